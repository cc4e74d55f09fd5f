package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/repository"
	"ooh-import-service/internal/services"
)

// MockBulkSaver is a mock implementation of services.BulkSaver
type MockBulkSaver struct {
	mock.Mock
}

var _ services.BulkSaver = (*MockBulkSaver)(nil)

func (m *MockBulkSaver) BulkSave(ctx context.Context, tenantID string, req models.BulkSaveRequest) (*models.BulkSaveResult, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkSaveResult), args.Error(1)
}

type testServer struct {
	router  *gin.Engine
	service *services.ImportService
	saver   *MockBulkSaver
}

// Helper to setup test router with the import routes behind a fixed operator
func setupTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	saver := new(MockBulkSaver)
	svc := services.NewImportService(
		repository.NewRedisSessionStore(client, 24*time.Hour),
		saver, nil, nil,
		repository.NewRedisLocker(client),
		nil, services.Config{},
	)
	h := NewImportHandler(svc, nil, maxUpload, 0)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("tenant_id", "tenant-1")
		c.Set("user_id", "user-1")
		c.Next()
	})
	imports := r.Group("/api/v1/imports")
	imports.POST("", h.StartImport)
	imports.GET("/template", h.GetImportTemplate)
	imports.GET("/current", h.GetCurrentImport)
	imports.DELETE("/current", h.CancelImport)
	imports.POST("/current/upload", h.UploadFile)
	imports.GET("/current/mapping/suggestions", h.GetMappingSuggestions)
	imports.PUT("/current/mapping", h.SetMapping)
	imports.PUT("/current/step", h.GoToStep)
	imports.PATCH("/current/cells", h.UpdateCell)
	imports.POST("/current/rows/:index/skip", h.ToggleSkip)
	imports.POST("/current/submit", h.Submit)
	imports.GET("/current/summary", h.GetSummary)

	return &testServer{router: r, service: svc, saver: saver}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/current/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   models.Error    `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

const pointsCSV = "Código;Endereço;Latitude;Longitude\n" +
	"A1;Rua Augusta, 100;-23,5505;-46,6333\n" +
	"B2;Av. Rio Branco, 1;-22,9035;-43,2096\n"

func TestImportHandler_FullFlow(t *testing.T) {
	s := setupTestServer(t, 0)

	w := s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 42, TargetCollectionName: "Acme"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.upload(t, "points.csv", []byte(pointsCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session models.ImportSession
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &session))
	require.Len(t, session.Rows, 2)
	assert.Equal(t, "A1", session.Rows[0].Code)
	assert.Equal(t, -23.5505, *session.Rows[0].Latitude)
	assert.Equal(t, models.FieldLongitude, session.ColumnMapping[3])

	for _, step := range []models.Step{models.StepMapping, models.StepReview, models.StepProcessing} {
		w = s.do(t, http.MethodPut, "/api/v1/imports/current/step", models.GoToStepRequest{Step: step})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	s.saver.On("BulkSave", mock.Anything, "tenant-1", mock.MatchedBy(func(req models.BulkSaveRequest) bool {
		return req.OwnerID == 42 && len(req.Rows) == 2
	})).Return(&models.BulkSaveResult{Success: true, Saved: []int64{7, 8}}, nil).Once()

	w = s.do(t, http.MethodPost, "/api/v1/imports/current/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary models.ImportSummary
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &summary))
	assert.Equal(t, models.StepSummary, summary.Step)
	assert.Equal(t, []int64{7, 8}, summary.SavedIDs)
	assert.True(t, summary.CanFinish)
	s.saver.AssertExpectations(t)
}

func TestImportHandler_SubmitAsync(t *testing.T) {
	s := setupTestServer(t, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 1}).Code)
	require.Equal(t, http.StatusOK, s.upload(t, "points.csv", []byte(pointsCSV)).Code)
	for _, step := range []models.Step{models.StepMapping, models.StepReview, models.StepProcessing} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/imports/current/step", models.GoToStepRequest{Step: step}).Code)
	}
	s.saver.On("BulkSave", mock.Anything, "tenant-1", mock.Anything).
		Return(&models.BulkSaveResult{Success: true, Saved: []int64{1, 2}}, nil).Once()

	w := s.do(t, http.MethodPost, "/api/v1/imports/current/submit?async=true", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	s.service.Wait()

	w = s.do(t, http.MethodGet, "/api/v1/imports/current/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.ImportSummary
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &summary))
	assert.Equal(t, 2, summary.Succeeded)
}

func TestImportHandler_NoSession(t *testing.T) {
	s := setupTestServer(t, 0)

	w := s.do(t, http.MethodGet, "/api/v1/imports/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decode(t, w).Error.Code)
}

func TestImportHandler_StepGateConflict(t *testing.T) {
	s := setupTestServer(t, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 1}).Code)

	w := s.do(t, http.MethodPut, "/api/v1/imports/current/step", models.GoToStepRequest{Step: models.StepMapping})
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	assert.Equal(t, "STEP_NOT_ALLOWED", env.Error.Code)
	assert.NotEmpty(t, env.Error.Details)

	w = s.do(t, http.MethodPut, "/api/v1/imports/current/step", map[string]int{"step": 8})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_UploadRejections(t *testing.T) {
	s := setupTestServer(t, 64)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 1}).Code)

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
		code     string
	}{
		{"unsupported extension", "points.pdf", "x", http.StatusBadRequest, "UNSUPPORTED_FORMAT"},
		{"too large", "points.csv", strings.Repeat("a", 100), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{"header only", "points.csv", "Código,Endereço\n", http.StatusBadRequest, "EMPTY_FILE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(t, tt.filename, []byte(tt.content))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w).Error.Code)
		})
	}
}

func TestImportHandler_EditCellAndSkip(t *testing.T) {
	s := setupTestServer(t, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 1}).Code)
	csv := "Código,Endereço,Lat,Lng\nA1,Rua A,abc,-46.6\nA2,Rua B,-23.1,-46.7\n"
	require.Equal(t, http.StatusOK, s.upload(t, "points.csv", []byte(csv)).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/v1/imports/current/step", models.GoToStepRequest{Step: models.StepMapping}).Code)

	w := s.do(t, http.MethodPatch, "/api/v1/imports/current/cells", map[string]interface{}{"row": 0, "column": 2, "value": -23.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var session models.ImportSession
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &session))
	assert.Equal(t, models.ValidationValid, session.Rows[0].ValidationStatus)
	assert.Contains(t, session.CellCorrections, "0-2")

	w = s.do(t, http.MethodPost, "/api/v1/imports/current/rows/1/skip", models.ToggleSkipRequest{Skip: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &session))
	assert.True(t, session.Rows[1].SkipImport)

	w = s.do(t, http.MethodPost, "/api/v1/imports/current/rows/9/skip", models.ToggleSkipRequest{Skip: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROW_NOT_FOUND", decode(t, w).Error.Code)

	w = s.do(t, http.MethodPost, "/api/v1/imports/current/rows/x/skip", models.ToggleSkipRequest{Skip: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_MappingSuggestionsAndInvalidMapping(t *testing.T) {
	s := setupTestServer(t, 0)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/imports", models.StartImportRequest{TargetCollectionID: 1}).Code)
	require.Equal(t, http.StatusOK, s.upload(t, "points.csv", []byte(pointsCSV)).Code)

	w := s.do(t, http.MethodGet, "/api/v1/imports/current/mapping/suggestions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var suggestion models.MappingSuggestion
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &suggestion))
	assert.Equal(t, models.FieldCode, suggestion.Mapping[0])
	assert.Empty(t, suggestion.Errors)

	w = s.do(t, http.MethodPut, "/api/v1/imports/current/mapping", map[string]interface{}{
		"mapping": map[string]string{"0": "code", "7": "address"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w).Error.Code)
}

func TestImportHandler_Template(t *testing.T) {
	s := setupTestServer(t, 0)

	w := s.do(t, http.MethodGet, "/api/v1/imports/template?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	firstLine := strings.SplitN(w.Body.String(), "\n", 2)[0]
	assert.True(t, strings.HasPrefix(firstLine, "Código,Endereço,Latitude,Longitude"))

	w = s.do(t, http.MethodGet, "/api/v1/imports/template?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sheet, err := ParseSpreadsheet(bytes.NewReader(w.Body.Bytes()), "template.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "Código", sheet.Headers[0])
	assert.Len(t, sheet.Rows, 2)

	w = s.do(t, http.MethodGet, "/api/v1/imports/template", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var template ImportTemplate
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &template))
	assert.Len(t, template.Columns, len(models.AllFields))

	w = s.do(t, http.MethodGet, "/api/v1/imports/template?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
