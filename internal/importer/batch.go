package importer

import (
	"slices"
	"strings"

	"ooh-import-service/internal/models"
)

// Submittable reports whether a row belongs in the next submission batch.
func Submittable(r *models.ImportRow) bool {
	return !r.SkipImport && !r.Saved() && r.ValidationStatus != models.ValidationError
}

// BuildBatch turns every submittable row into a payload. The returned indexes
// give the position in rows of each payload, in batch order.
func BuildBatch(rows []models.ImportRow) ([]models.RowPayload, []int) {
	var (
		payloads []models.RowPayload
		indexes  []int
	)
	for i := range rows {
		if !Submittable(&rows[i]) {
			continue
		}
		payloads = append(payloads, ToPayload(&rows[i]))
		indexes = append(indexes, i)
	}
	return payloads, indexes
}

// ToPayload converts a validated row into its wire shape. Images go out ordered
// with the cover first.
func ToPayload(r *models.ImportRow) models.RowPayload {
	p := models.RowPayload{
		Code:         strings.TrimSpace(r.Code),
		Address:      strings.TrimSpace(r.Address),
		City:         optional(r.City),
		State:        optional(r.State),
		Country:      r.Country,
		Dimensions:   optional(r.Dimensions),
		DailyTraffic: r.DailyTraffic,
		MediaTypes:   optional(r.MediaTypes),
		Notes:        optional(r.Notes),
		Landmark:     optional(r.Landmark),
		Products:     append([]models.Product{}, r.Products...),
		Images:       make([]models.ImagePayload, 0, len(r.Images)),
	}
	if p.Country == "" {
		p.Country = DefaultCountry
	}
	if r.Latitude != nil {
		p.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		p.Longitude = *r.Longitude
	}

	images := slices.Clone(r.Images)
	slices.SortStableFunc(images, func(a, b models.RowImage) int { return a.Order - b.Order })
	for _, img := range images {
		p.Images = append(p.Images, models.ImagePayload{
			FileName:    img.FileName,
			ContentType: img.ContentType,
			Data:        img.Data,
			Order:       img.Order,
			IsCover:     img.IsCover,
		})
	}
	return p
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
