package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"ooh-import-service/internal/period"
)

// Step is a stage of the bulk import wizard
type Step int

const (
	StepUpload     Step = 1
	StepMapping    Step = 2
	StepReview     Step = 3
	StepProcessing Step = 4
	StepSummary    Step = 5
)

func (s Step) String() string {
	switch s {
	case StepUpload:
		return "upload"
	case StepMapping:
		return "mapping"
	case StepReview:
		return "review"
	case StepProcessing:
		return "processing"
	case StepSummary:
		return "summary"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Valid reports whether s is one of the five wizard steps.
func (s Step) Valid() bool {
	return s >= StepUpload && s <= StepSummary
}

// CanonicalField is a target attribute that spreadsheet columns map onto
type CanonicalField string

const (
	FieldCode         CanonicalField = "code"
	FieldAddress      CanonicalField = "address"
	FieldLatitude     CanonicalField = "latitude"
	FieldLongitude    CanonicalField = "longitude"
	FieldCity         CanonicalField = "city"
	FieldState        CanonicalField = "state"
	FieldCountry      CanonicalField = "country"
	FieldDimensions   CanonicalField = "dimensions"
	FieldDailyTraffic CanonicalField = "dailyTraffic"
	FieldMediaTypes   CanonicalField = "mediaTypes"
	FieldNotes        CanonicalField = "notes"
	FieldLandmark     CanonicalField = "landmark"
	FieldRentalPrice  CanonicalField = "rentalPrice"
	FieldRentalPeriod CanonicalField = "rentalPeriod"
	FieldPaperPrice   CanonicalField = "paperPrice"
	FieldCanvasPrice  CanonicalField = "canvasPrice"
	FieldIgnore       CanonicalField = "ignore"
)

// RequiredFields must each be mapped to exactly one column.
var RequiredFields = []CanonicalField{FieldCode, FieldAddress, FieldLatitude, FieldLongitude}

// AllFields lists every mappable field in display order.
var AllFields = []CanonicalField{
	FieldCode, FieldAddress, FieldLatitude, FieldLongitude,
	FieldCity, FieldState, FieldCountry, FieldDimensions, FieldDailyTraffic,
	FieldMediaTypes, FieldNotes, FieldLandmark,
	FieldRentalPrice, FieldRentalPeriod, FieldPaperPrice, FieldCanvasPrice,
}

func (f CanonicalField) Required() bool {
	for _, r := range RequiredFields {
		if f == r {
			return true
		}
	}
	return false
}

// Known reports whether f is a mappable field or the ignore marker.
func (f CanonicalField) Known() bool {
	if f == FieldIgnore {
		return true
	}
	for _, k := range AllFields {
		if f == k {
			return true
		}
	}
	return false
}

// ColumnMapping maps a zero-based spreadsheet column index to a field
type ColumnMapping map[int]CanonicalField

// ColumnOf returns the first column mapped to field, or -1.
func (m ColumnMapping) ColumnOf(field CanonicalField) int {
	best := -1
	for col, f := range m {
		if f == field && (best == -1 || col < best) {
			best = col
		}
	}
	return best
}

// Clone copies the mapping.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Severity of a validation issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationIssue is a problem found on one field of a row
type ValidationIssue struct {
	Field    CanonicalField `json:"field"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
}

// ValidationStatus is derived from a row's issues
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
	ValidationError   ValidationStatus = "error"
)

// ProductType is a priced item sold on a point
type ProductType string

const (
	ProductRental ProductType = "Rental"
	ProductPaper  ProductType = "Paper"
	ProductCanvas ProductType = "Canvas"
)

// BillingPeriod is the cycle a rental price refers to
type BillingPeriod = period.Cycle

const (
	BillingBiWeekly BillingPeriod = period.CycleBiWeekly
	BillingMonthly  BillingPeriod = period.CycleMonthly
)

// Product is a price line of an imported point
type Product struct {
	Type          ProductType    `json:"productType"`
	Price         float64        `json:"price"`
	BillingPeriod *BillingPeriod `json:"billingPeriod,omitempty"`
}

// RowImage is an image attached during review. The cover is the image at order 0.
type RowImage struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	Data        []byte    `json:"data"`
	Order       int       `json:"order"`
	IsCover     bool      `json:"isCover"`
}

// SubmissionStatus tracks a row through the processing step
type SubmissionStatus string

const (
	SubmissionNone       SubmissionStatus = ""
	SubmissionQueued     SubmissionStatus = "queue"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionSuccess    SubmissionStatus = "success"
	SubmissionError      SubmissionStatus = "error"
)

// ImportRow is one prospective inventory point
type ImportRow struct {
	SourceIndex int `json:"sourceIndex"`

	Code      string   `json:"code"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Country      string `json:"country"`
	Dimensions   string `json:"dimensions,omitempty"`
	DailyTraffic *int64 `json:"dailyTraffic,omitempty"`
	MediaTypes   string `json:"mediaTypes,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Landmark     string `json:"landmark,omitempty"`

	Products []Product  `json:"products"`
	Images   []RowImage `json:"images"`

	// ParseIssues are problems found while converting cells; they survive
	// re-validation until the offending field is edited.
	ParseIssues      []ValidationIssue `json:"parseIssues,omitempty"`
	ValidationStatus ValidationStatus  `json:"validationStatus"`
	ValidationErrors []ValidationIssue `json:"validationErrors"`
	SkipImport       bool              `json:"skipImport"`

	SubmissionStatus SubmissionStatus `json:"submissionStatus,omitempty"`
	SubmissionError  string           `json:"submissionError,omitempty"`
	SavedID          *int64           `json:"savedId,omitempty"`
}

// Saved reports whether the backend already persisted this row.
func (r *ImportRow) Saved() bool {
	return r.SavedID != nil || r.SubmissionStatus == SubmissionSuccess
}

// CellCorrection records a cell whose current value differs from the file
type CellCorrection struct {
	Original  Cell           `json:"original"`
	Corrected Cell           `json:"corrected"`
	Field     CanonicalField `json:"field"`
}

// CorrectionKey builds the "row-col" key of a cell correction.
func CorrectionKey(row, col int) string {
	return fmt.Sprintf("%d-%d", row, col)
}

// ImportSession is the persisted state of one bulk import run
type ImportSession struct {
	SessionID            uuid.UUID `json:"sessionId"`
	OwnerKey             string    `json:"ownerKey"`
	TenantID             string    `json:"tenantId"`
	TargetCollectionID   int64     `json:"targetCollectionId"`
	TargetCollectionName string    `json:"targetCollectionName"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`

	CurrentStep     Step `json:"currentStep"`
	CurrentRowIndex int  `json:"currentRowIndex"`

	FileName        string                    `json:"fileName,omitempty"`
	RawRows         [][]Cell                  `json:"rawRows"`
	OriginalRawRows [][]Cell                  `json:"originalRawRows"`
	ColumnHeaders   []string                  `json:"columnHeaders"`
	ColumnMapping   ColumnMapping             `json:"columnMapping"`
	CellCorrections map[string]CellCorrection `json:"cellCorrections"`
	ExistingCodes   []string                  `json:"existingCodes,omitempty"`

	Rows        []ImportRow `json:"rows"`
	SavedRowIDs []int64     `json:"savedRowIds"`

	Submitting          bool       `json:"submitting"`
	SubmissionAttempts  int        `json:"submissionAttempts"`
	LastSubmissionError string     `json:"lastSubmissionError,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

// NewImportSession creates an empty session at the upload step.
func NewImportSession(ownerKey, tenantID string, targetID int64, targetName string, now time.Time) *ImportSession {
	return &ImportSession{
		SessionID:            uuid.New(),
		OwnerKey:             ownerKey,
		TenantID:             tenantID,
		TargetCollectionID:   targetID,
		TargetCollectionName: targetName,
		CreatedAt:            now.UTC(),
		UpdatedAt:            now.UTC(),
		CurrentStep:          StepUpload,
		RawRows:              [][]Cell{},
		OriginalRawRows:      [][]Cell{},
		ColumnHeaders:        []string{},
		ColumnMapping:        ColumnMapping{},
		CellCorrections:      map[string]CellCorrection{},
		Rows:                 []ImportRow{},
		SavedRowIDs:          []int64{},
	}
}

// Expired reports whether the session is older than ttl at now.
func (s *ImportSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// HasSavedID reports whether id is already recorded as saved.
func (s *ImportSession) HasSavedID(id int64) bool {
	for _, saved := range s.SavedRowIDs {
		if saved == id {
			return true
		}
	}
	return false
}
