package models

// Response types

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// Request types

type StartImportRequest struct {
	TargetCollectionID   int64  `json:"targetCollectionId" binding:"required"`
	TargetCollectionName string `json:"targetCollectionName"`
}

type SetMappingRequest struct {
	// Keys are zero-based column indexes
	Mapping map[int]CanonicalField `json:"mapping" binding:"required"`
}

type GoToStepRequest struct {
	Step Step `json:"step" binding:"required"`
}

type UpdateCellRequest struct {
	Row    int  `json:"row"`
	Column int  `json:"column"`
	Value  Cell `json:"value"`
}

// UpdateRowRequest patches typed fields of a derived row. Nil fields are left untouched.
type UpdateRowRequest struct {
	Code         *string    `json:"code"`
	Address      *string    `json:"address"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	City         *string    `json:"city"`
	State        *string    `json:"state"`
	Country      *string    `json:"country"`
	Dimensions   *string    `json:"dimensions"`
	DailyTraffic *int64     `json:"dailyTraffic"`
	MediaTypes   *string    `json:"mediaTypes"`
	Notes        *string    `json:"notes"`
	Landmark     *string    `json:"landmark"`
	Products     *[]Product `json:"products"`
}

type ToggleSkipRequest struct {
	Skip bool `json:"skip"`
}

type NavigateRequest struct {
	Index int `json:"index"`
}

type SetCoverRequest struct {
	ImageID string `json:"imageId" binding:"required"`
}

// Summary types

// RowOutcome is one line of the final report
type RowOutcome struct {
	Index   int              `json:"index"`
	Code    string           `json:"code"`
	Status  SubmissionStatus `json:"status"`
	Error   string           `json:"error,omitempty"`
	SavedID *int64           `json:"savedId,omitempty"`
}

// ImportSummary aggregates the outcome of a session
type ImportSummary struct {
	SessionID    string       `json:"sessionId"`
	Step         Step         `json:"step"`
	Total        int          `json:"total"`
	Skipped      int          `json:"skipped"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
	Blocked      int          `json:"blocked"`
	Pending      int          `json:"pending"`
	Corrections  int          `json:"corrections"`
	SavedIDs     []int64      `json:"savedIds"`
	Failures     []RowOutcome `json:"failures"`
	BlockedRows  []RowOutcome `json:"blockedRows"`
	CanRetry     bool         `json:"canRetry"`
	CanFinish    bool         `json:"canFinish"`
	ValidCount   int          `json:"validCount"`
	WarningCount int          `json:"warningCount"`
	ErrorCount   int          `json:"errorCount"`
}

// MappingSuggestion is returned by the mapping suggestions endpoint
type MappingSuggestion struct {
	Mapping    ColumnMapping   `json:"mapping"`
	Errors     []string        `json:"errors"`
	Warnings   []string        `json:"warnings"`
	Headers    []string        `json:"headers"`
	Preview    [][]Cell        `json:"preview"`
	Confidence map[int]float64 `json:"confidence,omitempty"`
}
