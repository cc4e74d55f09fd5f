// Package importer turns parsed spreadsheet cells into validated inventory rows:
// column detection, cell normalization, correction tracking and row validation.
package importer

import (
	"math"

	"ooh-import-service/internal/models"
)

// DefaultCountry is used when no country column is mapped or the cell is empty.
const DefaultCountry = "Brasil"

// DeriveRows converts every raw spreadsheet row into an ImportRow using mapping.
// The result is not validated.
func DeriveRows(raw [][]models.Cell, mapping models.ColumnMapping) []models.ImportRow {
	rows := make([]models.ImportRow, len(raw))
	for i, r := range raw {
		rows[i] = DeriveRow(i, r, mapping)
	}
	return rows
}

// DeriveRow builds the typed row for raw row index from its cells. Cells that
// fail to normalize are recorded as parse issues on the row.
func DeriveRow(index int, cells []models.Cell, mapping models.ColumnMapping) models.ImportRow {
	row := models.ImportRow{
		SourceIndex:      index,
		Country:          DefaultCountry,
		Products:         []models.Product{},
		Images:           []models.RowImage{},
		ValidationErrors: []models.ValidationIssue{},
	}

	get := func(field models.CanonicalField) (Normalized, bool) {
		col := mapping.ColumnOf(field)
		if col < 0 || col >= len(cells) || cells[col].IsEmpty() {
			return Normalized{}, false
		}
		n := NormalizeCell(field, cells[col])
		if !n.OK {
			row.ParseIssues = append(row.ParseIssues, parseIssue(field, n.Message))
		}
		return n, true
	}
	text := func(field models.CanonicalField) string {
		if n, ok := get(field); ok {
			return n.Value.String()
		}
		return ""
	}
	number := func(field models.CanonicalField) *float64 {
		n, ok := get(field)
		if !ok || !n.OK {
			return nil
		}
		v := n.Value.Number
		return &v
	}

	row.Code = text(models.FieldCode)
	row.Address = text(models.FieldAddress)
	row.Latitude = number(models.FieldLatitude)
	row.Longitude = number(models.FieldLongitude)
	row.City = text(models.FieldCity)
	row.State = text(models.FieldState)
	if c := text(models.FieldCountry); c != "" {
		row.Country = c
	}
	row.Dimensions = text(models.FieldDimensions)
	if t := number(models.FieldDailyTraffic); t != nil {
		v := int64(math.Floor(*t))
		row.DailyTraffic = &v
	}
	row.MediaTypes = text(models.FieldMediaTypes)
	row.Notes = text(models.FieldNotes)
	row.Landmark = text(models.FieldLandmark)

	if price := number(models.FieldRentalPrice); price != nil {
		p := models.Product{Type: models.ProductRental, Price: *price}
		if n, ok := get(models.FieldRentalPeriod); ok && n.OK {
			bp := models.BillingPeriod(n.Value.Text)
			p.BillingPeriod = &bp
		}
		row.Products = append(row.Products, p)
	}
	if price := number(models.FieldPaperPrice); price != nil {
		row.Products = append(row.Products, models.Product{Type: models.ProductPaper, Price: *price})
	}
	if price := number(models.FieldCanvasPrice); price != nil {
		row.Products = append(row.Products, models.Product{Type: models.ProductCanvas, Price: *price})
	}

	return row
}

// Rederive rebuilds row index from its cells after an edit. State that does
// not come from cells is taken from prev: images, the skip flag, submission
// outcome, and every field or product whose column is not mapped.
func Rederive(index int, cells []models.Cell, mapping models.ColumnMapping, prev *models.ImportRow) models.ImportRow {
	row := DeriveRow(index, cells, mapping)
	if prev == nil {
		return row
	}

	row.Images = prev.Images
	row.SkipImport = prev.SkipImport
	row.SubmissionStatus = prev.SubmissionStatus
	row.SubmissionError = prev.SubmissionError
	row.SavedID = prev.SavedID

	unmapped := func(f models.CanonicalField) bool { return mapping.ColumnOf(f) < 0 }
	strs := []struct {
		field    models.CanonicalField
		dst, src *string
	}{
		{models.FieldCode, &row.Code, &prev.Code},
		{models.FieldAddress, &row.Address, &prev.Address},
		{models.FieldCity, &row.City, &prev.City},
		{models.FieldState, &row.State, &prev.State},
		{models.FieldCountry, &row.Country, &prev.Country},
		{models.FieldDimensions, &row.Dimensions, &prev.Dimensions},
		{models.FieldMediaTypes, &row.MediaTypes, &prev.MediaTypes},
		{models.FieldNotes, &row.Notes, &prev.Notes},
		{models.FieldLandmark, &row.Landmark, &prev.Landmark},
	}
	for _, s := range strs {
		if unmapped(s.field) && *s.src != "" {
			*s.dst = *s.src
		}
	}
	if unmapped(models.FieldLatitude) {
		row.Latitude = prev.Latitude
	}
	if unmapped(models.FieldLongitude) {
		row.Longitude = prev.Longitude
	}
	if unmapped(models.FieldDailyTraffic) {
		row.DailyTraffic = prev.DailyTraffic
	}

	for _, p := range prev.Products {
		field := PriceField(p.Type)
		if unmapped(field) {
			row.Products = append(row.Products, p)
			continue
		}
		if p.Type == models.ProductRental && unmapped(models.FieldRentalPeriod) && p.BillingPeriod != nil {
			for i := range row.Products {
				if row.Products[i].Type == models.ProductRental && row.Products[i].BillingPeriod == nil {
					bp := *p.BillingPeriod
					row.Products[i].BillingPeriod = &bp
				}
			}
		}
	}
	return row
}

// PriceField is the column field holding the price of a product type.
func PriceField(t models.ProductType) models.CanonicalField {
	switch t {
	case models.ProductPaper:
		return models.FieldPaperPrice
	case models.ProductCanvas:
		return models.FieldCanvasPrice
	default:
		return models.FieldRentalPrice
	}
}

// parseIssue grades a normalization failure. Unparseable coordinates block the
// row; optional fields only warn and are left out.
func parseIssue(field models.CanonicalField, msg string) models.ValidationIssue {
	sev := models.SeverityWarning
	if field == models.FieldLatitude || field == models.FieldLongitude {
		sev = models.SeverityError
	}
	return models.ValidationIssue{Field: field, Message: msg, Severity: sev}
}

// CollectCorrections diffs the current raw rows (manual edits included) after
// normalization against the cells as first parsed. Every mapped cell whose final
// value differs from the original gets an entry keyed "row-col".
func CollectCorrections(original, current [][]models.Cell, mapping models.ColumnMapping) map[string]models.CellCorrection {
	out := map[string]models.CellCorrection{}
	for i, row := range current {
		for col, field := range mapping {
			if field == models.FieldIgnore || !field.Known() {
				continue
			}
			cur := cellAt(row, col)
			corrected := cur
			if n := NormalizeCell(field, cur); n.OK {
				corrected = n.Value
			}

			var orig models.Cell
			if i < len(original) {
				orig = cellAt(original[i], col)
			} else {
				orig = models.EmptyCell()
			}

			if orig.String() != corrected.String() {
				out[models.CorrectionKey(i, col)] = models.CellCorrection{
					Original:  orig,
					Corrected: corrected,
					Field:     field,
				}
			}
		}
	}
	return out
}

func cellAt(row []models.Cell, col int) models.Cell {
	if col < 0 || col >= len(row) {
		return models.EmptyCell()
	}
	return row[col]
}
