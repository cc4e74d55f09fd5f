package importer

import (
	"slices"
	"strings"

	"ooh-import-service/internal/models"
)

// Issue messages shown next to the offending field.
const (
	MsgCodeRequired      = "Code is required"
	MsgAddressRequired   = "Address is required"
	MsgLatitudeRequired  = "Latitude is required"
	MsgLongitudeRequired = "Longitude is required"
	MsgLatitudeRange     = "Latitude must be between -90 and 90"
	MsgLongitudeRange    = "Longitude must be between -180 and 180"
	MsgDuplicateCode     = "Duplicate code in file"
	MsgCodeExists        = "Code already exists in the inventory"
	MsgRentalNoPeriod    = "Rental price requires a rental period"
	MsgCityMissing       = "City not provided"
	MsgStateMissing      = "State not provided"
)

// ValidateRows recomputes issues and status of every row in place.
// Skipped rows take no part in duplicate detection. Empty city or state only
// warns when that field is listed in expected.
func ValidateRows(rows []models.ImportRow, existingCodes []string, expected ...models.CanonicalField) {
	existing := make(map[string]bool, len(existingCodes))
	for _, c := range existingCodes {
		existing[strings.TrimSpace(c)] = true
	}

	seen := map[string]bool{}
	for i := range rows {
		r := &rows[i]
		code := strings.TrimSpace(r.Code)
		duplicate := false
		if code != "" && !r.SkipImport {
			duplicate = seen[code]
			seen[code] = true
		}
		ValidateRow(r, duplicate, existing[code], expected...)
	}
}

// ValidateRow recomputes the issues of a single row given its duplicate and
// existence facts, and sets its status.
func ValidateRow(r *models.ImportRow, duplicate, exists bool, expected ...models.CanonicalField) {
	issues := make([]models.ValidationIssue, 0, len(r.ParseIssues)+2)
	issues = append(issues, r.ParseIssues...)

	errorf := func(f models.CanonicalField, msg string) {
		issues = append(issues, models.ValidationIssue{Field: f, Message: msg, Severity: models.SeverityError})
	}
	warnf := func(f models.CanonicalField, msg string) {
		issues = append(issues, models.ValidationIssue{Field: f, Message: msg, Severity: models.SeverityWarning})
	}
	hasParseIssue := func(f models.CanonicalField) bool {
		for _, p := range r.ParseIssues {
			if p.Field == f {
				return true
			}
		}
		return false
	}

	code := strings.TrimSpace(r.Code)
	if code == "" {
		errorf(models.FieldCode, MsgCodeRequired)
	}
	if strings.TrimSpace(r.Address) == "" {
		errorf(models.FieldAddress, MsgAddressRequired)
	}

	switch {
	case r.Latitude != nil:
		if *r.Latitude < -90 || *r.Latitude > 90 {
			errorf(models.FieldLatitude, MsgLatitudeRange)
		}
	case !hasParseIssue(models.FieldLatitude):
		errorf(models.FieldLatitude, MsgLatitudeRequired)
	}
	switch {
	case r.Longitude != nil:
		if *r.Longitude < -180 || *r.Longitude > 180 {
			errorf(models.FieldLongitude, MsgLongitudeRange)
		}
	case !hasParseIssue(models.FieldLongitude):
		errorf(models.FieldLongitude, MsgLongitudeRequired)
	}

	if code != "" && duplicate {
		errorf(models.FieldCode, MsgDuplicateCode)
	}
	if code != "" && exists {
		errorf(models.FieldCode, MsgCodeExists)
	}

	for _, p := range r.Products {
		if p.Type == models.ProductRental && (p.BillingPeriod == nil || *p.BillingPeriod == "") {
			errorf(models.FieldRentalPeriod, MsgRentalNoPeriod)
		}
	}

	if slices.Contains(expected, models.FieldCity) && strings.TrimSpace(r.City) == "" {
		warnf(models.FieldCity, MsgCityMissing)
	}
	if slices.Contains(expected, models.FieldState) && strings.TrimSpace(r.State) == "" {
		warnf(models.FieldState, MsgStateMissing)
	}

	r.ValidationErrors = issues
	r.ValidationStatus = StatusOf(issues)
}

// ExpectedFields lists the optional fields that should be filled on every row
// because the file has a column for them.
func ExpectedFields(m models.ColumnMapping) []models.CanonicalField {
	var out []models.CanonicalField
	for _, f := range []models.CanonicalField{models.FieldCity, models.FieldState} {
		if m.ColumnOf(f) >= 0 {
			out = append(out, f)
		}
	}
	return out
}

// StatusOf is Error if any issue is an error, Warning if any is a warning, else Valid.
func StatusOf(issues []models.ValidationIssue) models.ValidationStatus {
	status := models.ValidationValid
	for _, i := range issues {
		switch i.Severity {
		case models.SeverityError:
			return models.ValidationError
		case models.SeverityWarning:
			status = models.ValidationWarning
		}
	}
	return status
}

// ClearParseIssues drops parse issues for fields that were just edited by hand.
func ClearParseIssues(r *models.ImportRow, fields ...models.CanonicalField) {
	if len(r.ParseIssues) == 0 {
		return
	}
	kept := r.ParseIssues[:0]
	for _, p := range r.ParseIssues {
		drop := false
		for _, f := range fields {
			if p.Field == f || (f == models.FieldRentalPrice && p.Field == models.FieldRentalPeriod) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	r.ParseIssues = kept
}
