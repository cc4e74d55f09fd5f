package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/period"
)

const (
	defaultPeriodCount = 12
	maxPeriodCount     = 104
)

// PeriodHandler serves rental cycle dates for the date pickers
type PeriodHandler struct {
	now func() time.Time
}

func NewPeriodHandler() *PeriodHandler {
	return &PeriodHandler{now: time.Now}
}

// periodDate is a cycle date as the pickers display it
type periodDate struct {
	Date string `json:"date"`
}

// ListBiWeeklyStarts lists valid bi-weekly starts on or after from
// GET /api/v1/periods/biweekly?from=2026-01-01&count=12
func (h *PeriodHandler) ListBiWeeklyStarts(c *gin.Context) {
	from, ok := h.dateParam(c, "from", true)
	if !ok {
		return
	}
	count, ok := countParam(c, "count")
	if !ok {
		return
	}

	starts := period.ValidBiWeeklyStarts(from, count)
	out := make([]gin.H, 0, len(starts))
	for _, s := range starts {
		info, _ := period.BiWeekInfo(s)
		out = append(out, gin.H{
			"start": period.FormatDate(info.Start),
			"end":   period.FormatDate(info.End),
			"label": info.Label(),
		})
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: out})
}

// CheckBiWeeklyDate tells whether a date starts or ends a bi-weekly cycle
// GET /api/v1/periods/biweekly/check?date=2026-01-12
func (h *PeriodHandler) CheckBiWeeklyDate(c *gin.Context) {
	d, ok := h.dateParam(c, "date", false)
	if !ok {
		return
	}

	data := gin.H{
		"date":      period.FormatDate(d),
		"isStart":   period.IsValidBiWeeklyStart(d),
		"isEnd":     period.IsValidBiWeeklyEnd(d),
		"nextStart": period.FormatDate(period.NextValidBiWeeklyStart(d)),
	}
	if end, ok := period.SuggestedBiWeeklyEnd(d); ok {
		data["suggestedEnd"] = period.FormatDate(end)
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: data})
}

// GetBiWeekInfo numbers the cycle that starts on date
// GET /api/v1/periods/biweekly/info?date=2026-01-12
func (h *PeriodHandler) GetBiWeekInfo(c *gin.Context) {
	d, ok := h.dateParam(c, "date", false)
	if !ok {
		return
	}
	info, found := period.BiWeekInfo(d)
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_DATE", Message: period.FormatDate(d) + " is not a bi-weekly start date"},
		})
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: biWeekJSON(info)})
}

// ListBiWeeksInYear lists the cycles ending within year
// GET /api/v1/periods/biweekly/year/:year
func (h *PeriodHandler) ListBiWeeksInYear(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < period.Epoch.Year() || year > period.Epoch.Year()+100 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_REQUEST", Message: "year must be a number from " + strconv.Itoa(period.Epoch.Year())},
		})
		return
	}

	cycles := period.BiWeeksInYear(year)
	out := make([]gin.H, len(cycles))
	for i, b := range cycles {
		out[i] = biWeekJSON(b)
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: out})
}

// ListMonthlyEnds lists candidate ends of a monthly rental
// GET /api/v1/periods/monthly?start=2026-01-31&months=12
func (h *PeriodHandler) ListMonthlyEnds(c *gin.Context) {
	start, ok := h.dateParam(c, "start", false)
	if !ok {
		return
	}
	months, ok := countParam(c, "months")
	if !ok {
		return
	}

	ends := period.ValidMonthlyEnds(start, months)
	out := make([]periodDate, len(ends))
	for i, e := range ends {
		out[i] = periodDate{Date: period.FormatDate(e)}
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: gin.H{
		"start":        period.FormatDate(start),
		"suggestedEnd": period.FormatDate(period.SuggestedMonthlyEnd(start)),
		"ends":         out,
	}})
}

// CheckMonthlyRange validates a monthly start and end pair
// GET /api/v1/periods/monthly/check?start=2026-01-31&end=2026-02-28
func (h *PeriodHandler) CheckMonthlyRange(c *gin.Context) {
	start, ok := h.dateParam(c, "start", false)
	if !ok {
		return
	}
	end, ok := h.dateParam(c, "end", false)
	if !ok {
		return
	}

	valid, reason := period.CheckRange(period.CycleMonthly, start, end)
	data := gin.H{
		"start": period.FormatDate(start),
		"end":   period.FormatDate(end),
		"valid": valid,
	}
	if !valid {
		data["reason"] = reason
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: data})
}

// dateParam reads a date query parameter. When optional and absent it
// defaults to today.
func (h *PeriodHandler) dateParam(c *gin.Context, name string, optional bool) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" && optional {
		return period.DateOf(h.now()), true
	}
	d, err := period.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_DATE", Message: name + ": " + err.Error()},
		})
		return time.Time{}, false
	}
	return d, true
}

func countParam(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return defaultPeriodCount, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxPeriodCount {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "INVALID_REQUEST", Message: name + " must be between 1 and " + strconv.Itoa(maxPeriodCount)},
		})
		return 0, false
	}
	return n, true
}

func biWeekJSON(b period.BiWeek) gin.H {
	return gin.H{
		"number": b.Number,
		"year":   b.Year,
		"label":  b.Label(),
		"start":  period.FormatDate(b.Start),
		"end":    period.FormatDate(b.End),
	}
}
