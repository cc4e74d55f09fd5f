package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/middleware"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/services"
)

const (
	DefaultMaxUploadBytes = 5 << 20
	DefaultMaxImageBytes  = 5 << 20
)

// ImportHandler exposes the import wizard of the current operator
type ImportHandler struct {
	service        *services.ImportService
	logger         *logrus.Entry
	maxUploadBytes int64
	maxImageBytes  int64
}

func NewImportHandler(service *services.ImportService, logger *logrus.Entry, maxUploadBytes, maxImageBytes int64) *ImportHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ImportHandler{
		service:        service,
		logger:         logger.WithField("component", "import_handler"),
		maxUploadBytes: maxUploadBytes,
		maxImageBytes:  maxImageBytes,
	}
}

func owner(c *gin.Context) services.Owner {
	return services.Owner{
		TenantID: middleware.GetTenantID(c),
		UserID:   middleware.GetUserID(c),
	}
}

// StartImport opens a new session, discarding the current one
// POST /api/v1/imports
func (h *ImportHandler) StartImport(c *gin.Context) {
	var req models.StartImportRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.service.Start(c.Request.Context(), owner(c), req.TargetCollectionID, req.TargetCollectionName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: session})
}

// GetCurrentImport resumes the session of the operator
// GET /api/v1/imports/current
func (h *ImportHandler) GetCurrentImport(c *gin.Context) {
	session, err := h.service.Current(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// CancelImport discards the session
// DELETE /api/v1/imports/current
func (h *ImportHandler) CancelImport(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), owner(c)); err != nil {
		h.respondError(c, err)
		return
	}
	msg := "Import cancelled"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &msg})
}

// FinishImport closes a processed session and returns its final summary
// POST /api/v1/imports/current/finish
func (h *ImportHandler) FinishImport(c *gin.Context) {
	summary, err := h.service.Finish(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: summary})
}

// UploadFile parses a CSV or XLSX file into the session
// POST /api/v1/imports/current/upload
func (h *ImportHandler) UploadFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fileTooLarge(c, h.maxUploadBytes)
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload a CSV or Excel file"},
		})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		h.fileTooLarge(c, h.maxUploadBytes)
		return
	}
	if _, err := DetectFormat(header.Filename); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "UNSUPPORTED_FORMAT", Message: err.Error()},
		})
		return
	}

	sheet, err := ParseSpreadsheet(file, header.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "PARSE_ERROR", Message: err.Error()},
		})
		return
	}
	if len(sheet.Headers) == 0 || len(sheet.Rows) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "EMPTY_FILE", Message: "The file contains no data rows"},
		})
		return
	}

	session, err := h.service.Upload(c.Request.Context(), owner(c), header.Filename, sheet.Headers, sheet.Rows)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// GetMappingSuggestions proposes a column mapping
// GET /api/v1/imports/current/mapping/suggestions
func (h *ImportHandler) GetMappingSuggestions(c *gin.Context) {
	suggestion, err := h.service.SuggestMapping(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: suggestion})
}

// SetMapping replaces the column mapping
// PUT /api/v1/imports/current/mapping
func (h *ImportHandler) SetMapping(c *gin.Context) {
	var req models.SetMappingRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.SetMapping(c.Request.Context(), owner(c), models.ColumnMapping(req.Mapping))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// GoToStep moves the wizard
// PUT /api/v1/imports/current/step
func (h *ImportHandler) GoToStep(c *gin.Context) {
	var req models.GoToStepRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.GoToStep(c.Request.Context(), owner(c), req.Step)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// UpdateCell edits one raw cell
// PATCH /api/v1/imports/current/cells
func (h *ImportHandler) UpdateCell(c *gin.Context) {
	var req models.UpdateCellRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.UpdateCell(c.Request.Context(), owner(c), req.Row, req.Column, req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// UpdateRow patches typed fields of a row
// PATCH /api/v1/imports/current/rows/:index
func (h *ImportHandler) UpdateRow(c *gin.Context) {
	index, ok := h.rowIndex(c)
	if !ok {
		return
	}
	var req models.UpdateRowRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.UpdateRow(c.Request.Context(), owner(c), index, req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// ToggleSkip includes or excludes a row
// POST /api/v1/imports/current/rows/:index/skip
func (h *ImportHandler) ToggleSkip(c *gin.Context) {
	index, ok := h.rowIndex(c)
	if !ok {
		return
	}
	var req models.ToggleSkipRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.ToggleSkip(c.Request.Context(), owner(c), index, req.Skip)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// Navigate moves the review cursor
// PUT /api/v1/imports/current/cursor
func (h *ImportHandler) Navigate(c *gin.Context) {
	var req models.NavigateRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.service.Navigate(c.Request.Context(), owner(c), req.Index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session})
}

// AddImage attaches an uploaded image to a row
// POST /api/v1/imports/current/rows/:index/images
func (h *ImportHandler) AddImage(c *gin.Context) {
	index, ok := h.rowIndex(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+(1<<20))
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fileTooLarge(c, h.maxImageBytes)
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "FILE_REQUIRED", Message: "Please upload an image"},
		})
		return
	}
	defer file.Close()

	if header.Size > h.maxImageBytes {
		h.fileTooLarge(c, h.maxImageBytes)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		h.respondInternal(c, err)
		return
	}
	contentType := http.DetectContentType(data)
	if contentType != "image/jpeg" && contentType != "image/png" && contentType != "image/webp" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "UNSUPPORTED_FORMAT", Message: "Images must be JPEG, PNG or WebP"},
		})
		return
	}

	_, image, err := h.service.AddImage(c.Request.Context(), owner(c), index, models.RowImage{
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	image.Data = nil
	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: image})
}

// RemoveImage detaches an image from a row
// DELETE /api/v1/imports/current/rows/:index/images/:image
func (h *ImportHandler) RemoveImage(c *gin.Context) {
	index, ok := h.rowIndex(c)
	if !ok {
		return
	}
	imageID, err := uuid.Parse(c.Param("image"))
	if err != nil {
		h.invalidRequest(c, "image must be a UUID")
		return
	}
	session, err := h.service.RemoveImage(c.Request.Context(), owner(c), index, imageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session.Rows[index].Images})
}

// SetCover makes an image the cover of its row
// PUT /api/v1/imports/current/rows/:index/images/cover
func (h *ImportHandler) SetCover(c *gin.Context) {
	index, ok := h.rowIndex(c)
	if !ok {
		return
	}
	var req models.SetCoverRequest
	if !h.bind(c, &req) {
		return
	}
	imageID, err := uuid.Parse(req.ImageID)
	if err != nil {
		h.invalidRequest(c, "imageId must be a UUID")
		return
	}
	session, err := h.service.SetCover(c.Request.Context(), owner(c), index, imageID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: session.Rows[index].Images})
}

// Submit sends the pending rows to the bulk saver. With async=true the save
// runs in the background and the in-flight summary comes back as 202.
// POST /api/v1/imports/current/submit
func (h *ImportHandler) Submit(c *gin.Context) {
	if c.Query("async") == "true" {
		summary, err := h.service.SubmitAsync(c.Request.Context(), owner(c))
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: summary})
		return
	}

	summary, err := h.service.Submit(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: summary})
}

// Retry resubmits the failed rows
// POST /api/v1/imports/current/retry
func (h *ImportHandler) Retry(c *gin.Context) {
	summary, err := h.service.Retry(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: summary})
}

// GetSummary reports counts and failures
// GET /api/v1/imports/current/summary
func (h *ImportHandler) GetSummary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), owner(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: summary})
}

func (h *ImportHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.invalidRequest(c, err.Error())
		return false
	}
	return true
}

func (h *ImportHandler) rowIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		h.invalidRequest(c, "index must be a non-negative number")
		return 0, false
	}
	return index, true
}

func (h *ImportHandler) invalidRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: "INVALID_REQUEST", Message: msg},
	})
}

func (h *ImportHandler) fileTooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: "FILE_TOO_LARGE", Message: fmt.Sprintf("File exceeds the %dMB limit", limit>>20)},
	})
}

func (h *ImportHandler) respondInternal(c *gin.Context, err error) {
	h.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: "INTERNAL_ERROR", Message: "Internal server error"},
	})
}

// respondError maps service errors onto the error envelope
func (h *ImportHandler) respondError(c *gin.Context, err error) {
	var gate *services.GateError
	switch {
	case errors.As(err, &gate):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "STEP_NOT_ALLOWED", Message: gate.Error(), Details: gate.Reasons},
		})
	case errors.Is(err, services.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_NOT_FOUND", Message: "No import in progress"},
		})
	case errors.Is(err, services.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SUBMISSION_IN_FLIGHT", Message: err.Error()},
		})
	case errors.Is(err, services.ErrStaleSubmission):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_CHANGED", Message: err.Error()},
		})
	case errors.Is(err, services.ErrRowOutOfRange), errors.Is(err, services.ErrColumnOutOfRange):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "ROW_NOT_FOUND", Message: err.Error()},
		})
	case errors.Is(err, services.ErrImageNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "IMAGE_NOT_FOUND", Message: err.Error()},
		})
	case errors.Is(err, services.ErrTooManyImages):
		c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "TOO_MANY_IMAGES", Message: err.Error()},
		})
	case errors.Is(err, services.ErrInvalidStep), errors.Is(err, services.ErrInvalidMapping):
		h.invalidRequest(c, err.Error())
	default:
		h.respondInternal(c, err)
	}
}
