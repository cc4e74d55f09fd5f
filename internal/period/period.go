// Package period computes rental cycle boundaries for outdoor advertising
// inventory: fixed 14-day bi-weekly cycles ("bissemanas") anchored to an epoch,
// and monthly cycles that end on the same day of a later month.
package period

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// Cycle identifies a billing scheme.
type Cycle string

const (
	CycleBiWeekly Cycle = "BiWeekly"
	CycleMonthly  Cycle = "Monthly"
)

const (
	cycleDays = 14
	cycleSpan = cycleDays - 1

	secondsPerDay = 24 * 60 * 60
)

// Epoch is the first bi-weekly start of the scheme (cycle 02-26).
var Epoch = time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC)

// BiWeek identifies one bi-weekly cycle. Cycles are labelled by the year in
// which they end and an even ordinal within that year.
type BiWeek struct {
	Number int       `json:"number"`
	Year   int       `json:"year"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Label formats the cycle as NN-YY, e.g. "02-26".
func (b BiWeek) Label() string {
	return fmt.Sprintf("%02d-%02d", b.Number, b.Year%100)
}

// DateOf drops the clock and location of t, keeping only its calendar date.
// All comparisons in this package operate on these values.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts ISO (2006-01-02) and Brazilian (02/01/2006) calendar dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or DD/MM/YYYY", s)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format("2006-01-02")
}

// daysSinceEpoch counts calendar days without going through time.Duration,
// which saturates about 292 years out.
func daysSinceEpoch(t time.Time) int {
	return int((DateOf(t).Unix() - Epoch.Unix()) / secondsPerDay)
}

func addDays(t time.Time, n int) time.Time {
	return DateOf(t).AddDate(0, 0, n)
}

// BiWeeklyStarts yields valid bi-weekly starts on or after from, indefinitely.
func BiWeeklyStarts(from time.Time) iter.Seq[time.Time] {
	days := daysSinceEpoch(from)
	first := 0
	if days > 0 {
		first = (days + cycleDays - 1) / cycleDays
	}
	return func(yield func(time.Time) bool) {
		for k := first; ; k++ {
			if !yield(addDays(Epoch, k*cycleDays)) {
				return
			}
		}
	}
}

// ValidBiWeeklyStarts returns count valid starts on or after from, 14 days apart.
func ValidBiWeeklyStarts(from time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}
	starts := make([]time.Time, 0, count)
	for s := range BiWeeklyStarts(from) {
		starts = append(starts, s)
		if len(starts) == count {
			break
		}
	}
	return starts
}

// ValidBiWeeklyEnds pairs every start of ValidBiWeeklyStarts with its end.
func ValidBiWeeklyEnds(from time.Time, count int) []time.Time {
	starts := ValidBiWeeklyStarts(from, count)
	for i, s := range starts {
		starts[i] = addDays(s, cycleSpan)
	}
	return starts
}

// IsValidBiWeeklyStart reports whether d is a cycle start on or after the epoch.
func IsValidBiWeeklyStart(d time.Time) bool {
	days := daysSinceEpoch(d)
	return days >= 0 && days%cycleDays == 0
}

// IsValidBiWeeklyEnd reports whether d is the last day of some cycle.
func IsValidBiWeeklyEnd(d time.Time) bool {
	days := daysSinceEpoch(d)
	return days >= cycleSpan && (days-cycleSpan)%cycleDays == 0
}

// SuggestedBiWeeklyEnd returns start+13 days, or false when start is not a
// valid cycle start.
func SuggestedBiWeeklyEnd(start time.Time) (time.Time, bool) {
	if !IsValidBiWeeklyStart(start) {
		return time.Time{}, false
	}
	return addDays(start, cycleSpan), true
}

// NextValidBiWeeklyStart returns the earliest valid start on or after from.
func NextValidBiWeeklyStart(from time.Time) time.Time {
	return ValidBiWeeklyStarts(from, 1)[0]
}

// BiWeekInfo numbers the cycle starting on d. Only valid starts are numbered.
func BiWeekInfo(d time.Time) (BiWeek, bool) {
	if !IsValidBiWeeklyStart(d) {
		return BiWeek{}, false
	}
	start := DateOf(d)
	end := addDays(start, cycleSpan)
	return BiWeek{
		Number: (end.YearDay() + cycleDays - 1) / cycleDays * 2,
		Year:   end.Year(),
		Start:  start,
		End:    end,
	}, true
}

// BiWeeksInYear lists every cycle that ends within year, in order.
func BiWeeksInYear(year int) []BiWeek {
	from := addDays(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), -cycleSpan)
	var cycles []BiWeek
	for s := range BiWeeklyStarts(from) {
		info, ok := BiWeekInfo(s)
		if !ok || info.Year > year {
			break
		}
		if info.Year == year {
			cycles = append(cycles, info)
		}
	}
	return cycles
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonthsClamped moves n months ahead keeping the day of month, clamped to
// the last day of shorter months.
func addMonthsClamped(start time.Time, n int) time.Time {
	y, m, d := DateOf(start).Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, time.UTC)
}

// ValidMonthlyEnds returns the candidate ends 1..monthsAhead months after start.
func ValidMonthlyEnds(start time.Time, monthsAhead int) []time.Time {
	if monthsAhead <= 0 {
		return nil
	}
	ends := make([]time.Time, monthsAhead)
	for i := range ends {
		ends[i] = addMonthsClamped(start, i+1)
	}
	return ends
}

// IsValidMonthlyEndDate accepts an end on the same day of month as start, or on
// the last day of a month too short to contain that day.
func IsValidMonthlyEndDate(start, end time.Time) bool {
	s, e := DateOf(start), DateOf(end)
	if !e.After(s) {
		return false
	}
	if s.Day() == e.Day() {
		return true
	}
	last := daysIn(e.Year(), e.Month())
	return e.Day() == last && s.Day() > last
}

// SuggestedMonthlyEnd is one month after start, clamped.
func SuggestedMonthlyEnd(start time.Time) time.Time {
	return addMonthsClamped(start, 1)
}

// CheckRange validates a start/end pair against the given cycle and returns a
// human readable reason when it does not fit.
func CheckRange(c Cycle, start, end time.Time) (bool, string) {
	switch c {
	case CycleBiWeekly:
		if !IsValidBiWeeklyStart(start) {
			return false, fmt.Sprintf("%s is not a bi-weekly start date", FormatDate(start))
		}
		if !IsValidBiWeeklyEnd(end) {
			return false, fmt.Sprintf("%s is not a bi-weekly end date", FormatDate(end))
		}
		if !DateOf(end).After(DateOf(start)) {
			return false, "end date must be after start date"
		}
		return true, ""
	case CycleMonthly:
		if !IsValidMonthlyEndDate(start, end) {
			return false, fmt.Sprintf("%s is not a monthly end date for a period starting %s", FormatDate(end), FormatDate(start))
		}
		return true, ""
	default:
		return false, fmt.Sprintf("unknown billing period %q", c)
	}
}
