package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"ooh-import-service/internal/models"
)

// PointRepository writes imported points straight into the inventory tables.
// It backs the bulk save when no remote endpoint is configured.
type PointRepository struct {
	db *gorm.DB
}

func NewPointRepository(db *gorm.DB) *PointRepository {
	return &PointRepository{db: db}
}

// BulkSave creates every row as a point with its products and images in one
// transaction. A failing row rolls back to its own savepoint and is reported by
// code; the others still commit. Saved IDs follow the order of successful rows.
func (r *PointRepository) BulkSave(ctx context.Context, tenantID string, req models.BulkSaveRequest) (*models.BulkSaveResult, error) {
	result := &models.BulkSaveResult{
		Saved:  make([]int64, 0, len(req.Rows)),
		Errors: make([]models.BulkSaveError, 0),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, row := range req.Rows {
			// Check for duplicate code within tenant
			var existingCount int64
			if err := tx.Model(&models.Point{}).
				Where("tenant_id = ? AND code = ?", tenantID, row.Code).
				Count(&existingCount).Error; err != nil {
				return fmt.Errorf("failed to check for duplicate code: %w", err)
			}
			if existingCount > 0 {
				result.Errors = append(result.Errors, models.BulkSaveError{
					Code:  row.Code,
					Error: fmt.Sprintf("Point with code '%s' already exists", row.Code),
				})
				continue
			}

			savepoint := fmt.Sprintf("bulk_row_%d", i)
			if err := tx.SavePoint(savepoint).Error; err != nil {
				return err
			}

			point := pointFromPayload(tenantID, req.OwnerID, row)
			if err := tx.Create(point).Error; err != nil {
				if rbErr := tx.RollbackTo(savepoint).Error; rbErr != nil {
					return rbErr
				}
				result.Errors = append(result.Errors, models.BulkSaveError{Code: row.Code, Error: err.Error()})
				continue
			}

			result.Saved = append(result.Saved, point.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

func pointFromPayload(tenantID string, ownerID int64, row models.RowPayload) *models.Point {
	now := time.Now()
	point := &models.Point{
		TenantID:     tenantID,
		OwnerID:      ownerID,
		Code:         row.Code,
		Status:       models.PointStatusActive,
		Address:      row.Address,
		Latitude:     row.Latitude,
		Longitude:    row.Longitude,
		City:         row.City,
		State:        row.State,
		Country:      row.Country,
		Dimensions:   row.Dimensions,
		DailyTraffic: row.DailyTraffic,
		MediaTypes:   row.MediaTypes,
		Notes:        row.Notes,
		Landmark:     row.Landmark,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, p := range row.Products {
		product := models.PointProduct{Type: p.Type, Price: p.Price, CreatedAt: now}
		if p.BillingPeriod != nil {
			bp := string(*p.BillingPeriod)
			product.BillingPeriod = &bp
		}
		point.Products = append(point.Products, product)
	}
	for _, img := range row.Images {
		point.Images = append(point.Images, models.PointImage{
			FileName:    img.FileName,
			ContentType: img.ContentType,
			Data:        img.Data,
			SortOrder:   img.Order,
			IsCover:     img.IsCover,
			CreatedAt:   now,
		})
	}
	return point
}

// ExistingCodes returns the subset of codes already used by points of the tenant
func (r *PointRepository) ExistingCodes(ctx context.Context, tenantID string, codes []string) ([]string, error) {
	existing := make([]string, 0)
	if len(codes) == 0 {
		return existing, nil
	}
	err := r.db.WithContext(ctx).Model(&models.Point{}).
		Where("tenant_id = ? AND code IN ?", tenantID, codes).
		Pluck("code", &existing).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing codes: %w", err)
	}
	return existing, nil
}
