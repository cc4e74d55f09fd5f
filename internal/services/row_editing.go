package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/importer"
	"ooh-import-service/internal/models"
)

// UpdateCell overwrites one raw cell and re-derives its row. The edit shows up
// as a correction against the original file.
func (s *ImportService) UpdateCell(ctx context.Context, owner Owner, row, col int, value models.Cell) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if row < 0 || row >= len(session.Rows) || row >= len(session.RawRows) {
			return ErrRowOutOfRange
		}
		if col < 0 || col >= len(session.ColumnHeaders) {
			return ErrColumnOutOfRange
		}

		previousCode := session.Rows[row].Code
		setCell(session, row, col, value)
		session.Rows[row] = importer.Rederive(row, session.RawRows[row], session.ColumnMapping, &session.Rows[row])
		s.afterEdit(ctx, session, row, previousCode)

		s.log(session).WithFields(logrus.Fields{
			"row":    row,
			"column": col,
			"field":  string(session.ColumnMapping[col]),
		}).Debug("Cell updated")
		return nil
	})
}

// UpdateRow applies a typed patch to a row. Fields whose column is mapped are
// written back into the raw cells; the others live on the row only.
func (s *ImportService) UpdateRow(ctx context.Context, owner Owner, index int, patch models.UpdateRowRequest) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if index < 0 || index >= len(session.Rows) || index >= len(session.RawRows) {
			return ErrRowOutOfRange
		}

		prev := session.Rows[index]
		previousCode := prev.Code
		mapping := session.ColumnMapping

		write := func(field models.CanonicalField, cell models.Cell) bool {
			col := mapping.ColumnOf(field)
			if col < 0 {
				return false
			}
			setCell(session, index, col, cell)
			return true
		}
		text := func(field models.CanonicalField, v *string, dst *string) {
			if v == nil {
				return
			}
			trimmed := strings.TrimSpace(*v)
			if !write(field, models.TextCell(trimmed)) {
				*dst = trimmed
			}
		}
		number := func(field models.CanonicalField, v *float64, dst **float64) {
			if v == nil {
				return
			}
			if !write(field, models.NumberCell(*v)) {
				n := *v
				*dst = &n
			}
		}

		text(models.FieldCode, patch.Code, &prev.Code)
		text(models.FieldAddress, patch.Address, &prev.Address)
		number(models.FieldLatitude, patch.Latitude, &prev.Latitude)
		number(models.FieldLongitude, patch.Longitude, &prev.Longitude)
		text(models.FieldCity, patch.City, &prev.City)
		text(models.FieldState, patch.State, &prev.State)
		text(models.FieldCountry, patch.Country, &prev.Country)
		text(models.FieldDimensions, patch.Dimensions, &prev.Dimensions)
		text(models.FieldMediaTypes, patch.MediaTypes, &prev.MediaTypes)
		text(models.FieldNotes, patch.Notes, &prev.Notes)
		text(models.FieldLandmark, patch.Landmark, &prev.Landmark)
		if patch.DailyTraffic != nil {
			if !write(models.FieldDailyTraffic, models.NumberCell(float64(*patch.DailyTraffic))) {
				v := *patch.DailyTraffic
				prev.DailyTraffic = &v
			}
		}

		if patch.Products != nil {
			products := *patch.Products
			for _, t := range []models.ProductType{models.ProductRental, models.ProductPaper, models.ProductCanvas} {
				priceCell, periodCell := models.EmptyCell(), models.EmptyCell()
				for _, p := range products {
					if p.Type != t {
						continue
					}
					priceCell = models.NumberCell(p.Price)
					if p.BillingPeriod != nil {
						periodCell = models.TextCell(string(*p.BillingPeriod))
					}
					break
				}
				write(importer.PriceField(t), priceCell)
				if t == models.ProductRental {
					write(models.FieldRentalPeriod, periodCell)
				}
			}
			prev.Products = append([]models.Product{}, products...)
		}

		session.Rows[index] = importer.Rederive(index, session.RawRows[index], mapping, &prev)
		s.afterEdit(ctx, session, index, previousCode)

		s.log(session).WithField("row", index).Debug("Row updated")
		return nil
	})
}

// ToggleSkip includes or excludes a row from submission
func (s *ImportService) ToggleSkip(ctx context.Context, owner Owner, index int, skip bool) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if index < 0 || index >= len(session.Rows) {
			return ErrRowOutOfRange
		}
		session.Rows[index].SkipImport = skip
		importer.ValidateRows(session.Rows, session.ExistingCodes, importer.ExpectedFields(session.ColumnMapping)...)
		return nil
	})
}

// Navigate moves the review cursor
func (s *ImportService) Navigate(ctx context.Context, owner Owner, index int) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if index < 0 || index >= len(session.Rows) {
			return ErrRowOutOfRange
		}
		session.CurrentRowIndex = index
		return nil
	})
}

// AddImage attaches an image to a row. The first image of a row is its cover.
func (s *ImportService) AddImage(ctx context.Context, owner Owner, index int, img models.RowImage) (*models.ImportSession, models.RowImage, error) {
	var added models.RowImage
	session, err := s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if index < 0 || index >= len(session.Rows) {
			return ErrRowOutOfRange
		}
		if len(session.Rows[index].Images) >= importer.MaxImagesPerRow {
			return ErrTooManyImages
		}
		added = importer.AddImage(&session.Rows[index], img)
		return nil
	})
	return session, added, err
}

// RemoveImage detaches an image; the next one in order becomes the cover
func (s *ImportService) RemoveImage(ctx context.Context, owner Owner, index int, imageID uuid.UUID) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if index < 0 || index >= len(session.Rows) {
			return ErrRowOutOfRange
		}
		if !importer.RemoveImage(&session.Rows[index], imageID) {
			return ErrImageNotFound
		}
		return nil
	})
}

// SetCover makes an image the cover of its row
func (s *ImportService) SetCover(ctx context.Context, owner Owner, index int, imageID uuid.UUID) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if err := editable(session); err != nil {
			return err
		}
		if index < 0 || index >= len(session.Rows) {
			return ErrRowOutOfRange
		}
		if !importer.SetCover(&session.Rows[index], imageID) {
			return ErrImageNotFound
		}
		return nil
	})
}

// afterEdit refreshes corrections, the existing-code cache and validation
// after row index changed.
func (s *ImportService) afterEdit(ctx context.Context, session *models.ImportSession, index int, previousCode string) {
	session.CellCorrections = importer.CollectCorrections(session.OriginalRawRows, session.RawRows, session.ColumnMapping)

	code := strings.TrimSpace(session.Rows[index].Code)
	if code != "" && code != strings.TrimSpace(previousCode) && s.checker != nil {
		found, err := s.checker.ExistingCodes(ctx, session.TenantID, []string{code})
		if err != nil {
			s.log(session).WithError(err).Warn("Existing code lookup failed")
		}
		for _, c := range found {
			if !contains(session.ExistingCodes, c) {
				session.ExistingCodes = append(session.ExistingCodes, c)
			}
		}
	}

	importer.ValidateRows(session.Rows, session.ExistingCodes, importer.ExpectedFields(session.ColumnMapping)...)
}

// editable refuses row edits outside mapping and review
func editable(session *models.ImportSession) error {
	if session.CurrentStep == models.StepMapping || session.CurrentStep == models.StepReview {
		return nil
	}
	return &GateError{
		From:    session.CurrentStep,
		To:      session.CurrentStep,
		Reasons: []string{"rows can only be edited during mapping and review"},
	}
}

func setCell(session *models.ImportSession, row, col int, value models.Cell) {
	cells := session.RawRows[row]
	for len(cells) <= col {
		cells = append(cells, models.EmptyCell())
	}
	cells[col] = value
	session.RawRows[row] = cells
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
