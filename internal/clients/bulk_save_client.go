package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/models"
)

// ErrNoStructuredResponse is returned when the backend answered without a
// bulk save result body
var ErrNoStructuredResponse = errors.New("bulk save returned no structured response")

// BulkSaveClient talks to the inventory backend's bulk import endpoints
type BulkSaveClient struct {
	baseURL    string
	httpClient *http.Client
	retrier    *Retrier
	logger     *logrus.Entry
}

// NewBulkSaveClient creates a client for baseURL. A nil retry config uses
// DefaultRetryConfig.
func NewBulkSaveClient(baseURL string, timeout time.Duration, retry *RetryConfig, logger *logrus.Entry) *BulkSaveClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &BulkSaveClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retrier: NewRetrier(retry),
		logger:  logger.WithField("component", "bulk_save_client"),
	}
}

// BulkSave posts the batch and returns the backend's per-row outcome. Error
// statuses that still carry a result body are returned as a result, not an error.
func (c *BulkSaveClient) BulkSave(ctx context.Context, tenantID string, req models.BulkSaveRequest) (*models.BulkSaveResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bulk save request: %w", err)
	}

	resp, result := c.retrier.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, tenantID, "/api/bulk-import/save", body)
	})
	if resp == nil {
		c.logger.WithFields(logrus.Fields{
			"tenantId": tenantID,
			"attempts": result.Attempts,
			"rows":     len(req.Rows),
		}).WithError(result.LastError).Warn("Bulk save transport failure")
		return nil, fmt.Errorf("bulk save request failed: %w", result.LastError)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read bulk save response: %w", err)
	}

	var saveResult models.BulkSaveResult
	if err := json.Unmarshal(payload, &saveResult); err != nil || !structured(payload) {
		c.logger.WithFields(logrus.Fields{
			"tenantId": tenantID,
			"status":   resp.StatusCode,
			"attempts": result.Attempts,
		}).Warn("Bulk save returned an unstructured response")
		return nil, fmt.Errorf("%w: status %d", ErrNoStructuredResponse, resp.StatusCode)
	}

	c.logger.WithFields(logrus.Fields{
		"tenantId": tenantID,
		"status":   resp.StatusCode,
		"saved":    len(saveResult.Saved),
		"errors":   len(saveResult.Errors),
		"attempts": result.Attempts,
	}).Info("Bulk save completed")
	return &saveResult, nil
}

// ExistingCodes asks the backend which of codes are already registered
func (c *BulkSaveClient) ExistingCodes(ctx context.Context, tenantID string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return []string{}, nil
	}

	body, err := json.Marshal(models.ValidateCodesRequest{Codes: codes})
	if err != nil {
		return nil, fmt.Errorf("failed to encode validate codes request: %w", err)
	}

	resp, result := c.retrier.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, tenantID, "/api/bulk-import/validate-codes", body)
	})
	if resp == nil {
		return nil, fmt.Errorf("validate codes request failed: %w", result.LastError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validate codes failed: %d", resp.StatusCode)
	}

	var out models.ValidateCodesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode validate codes response: %w", err)
	}
	if out.ExistingCodes == nil {
		out.ExistingCodes = []string{}
	}
	return out.ExistingCodes, nil
}

func (c *BulkSaveClient) post(ctx context.Context, tenantID, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("x-jwt-claim-tenant-id", tenantID)
	return c.httpClient.Do(req)
}

// structured reports whether body is a JSON object with at least one of the
// bulk save result keys
func structured(body []byte) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return false
	}
	for _, k := range []string{"success", "saved", "errors"} {
		if _, ok := keys[k]; ok {
			return true
		}
	}
	return false
}
