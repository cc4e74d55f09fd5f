package models

// ImagePayload carries image bytes inline in a bulk save request
type ImagePayload struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
	Order       int    `json:"order"`
	IsCover     bool   `json:"isCover"`
}

// RowPayload is one point as sent to the bulk save backend
type RowPayload struct {
	Code         string         `json:"code"`
	Address      string         `json:"address"`
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	City         *string        `json:"city"`
	State        *string        `json:"state"`
	Country      string         `json:"country"`
	Dimensions   *string        `json:"dimensions"`
	DailyTraffic *int64         `json:"dailyTraffic"`
	MediaTypes   *string        `json:"mediaTypes"`
	Notes        *string        `json:"notes"`
	Landmark     *string        `json:"landmark"`
	Products     []Product      `json:"products"`
	Images       []ImagePayload `json:"images"`
}

// BulkSaveRequest is the body of a bulk save call
type BulkSaveRequest struct {
	OwnerID  int64        `json:"ownerId"`
	TenantID string       `json:"tenantId,omitempty"`
	Rows     []RowPayload `json:"rows"`
}

// BulkSaveError reports a rejected row by its code
type BulkSaveError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BulkSaveResult is the structured answer of a bulk save call
type BulkSaveResult struct {
	Success bool            `json:"success"`
	Saved   []int64         `json:"saved"`
	Errors  []BulkSaveError `json:"errors"`
}

// ValidateCodesRequest asks which codes already exist in the inventory
type ValidateCodesRequest struct {
	Codes []string `json:"codes"`
}

// ValidateCodesResponse lists the codes already taken
type ValidateCodesResponse struct {
	ExistingCodes []string `json:"existingCodes"`
}
