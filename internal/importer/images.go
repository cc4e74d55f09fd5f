package importer

import (
	"github.com/google/uuid"
	"ooh-import-service/internal/models"
)

// MaxImagesPerRow caps the photos attached to one point.
const MaxImagesPerRow = 10

// AddImage appends img to the row. The first image becomes the cover.
func AddImage(r *models.ImportRow, img models.RowImage) models.RowImage {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	r.Images = append(r.Images, img)
	reorderImages(r.Images)
	return r.Images[len(r.Images)-1]
}

// RemoveImage deletes the image and closes the gap; whatever lands at position
// 0 becomes the cover. It reports whether the image was found.
func RemoveImage(r *models.ImportRow, id uuid.UUID) bool {
	for i, img := range r.Images {
		if img.ID == id {
			r.Images = append(r.Images[:i], r.Images[i+1:]...)
			reorderImages(r.Images)
			return true
		}
	}
	return false
}

// SetCover moves the image to the front.
func SetCover(r *models.ImportRow, id uuid.UUID) bool {
	for i, img := range r.Images {
		if img.ID == id {
			copy(r.Images[1:i+1], r.Images[:i])
			r.Images[0] = img
			reorderImages(r.Images)
			return true
		}
	}
	return false
}

func reorderImages(images []models.RowImage) {
	for i := range images {
		images[i].Order = i
		images[i].IsCover = i == 0
	}
}
