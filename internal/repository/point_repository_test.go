package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ooh-import-service/internal/models"
)

func TestPointRepository_ExistingCodes(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPointRepository(db)

	mock.ExpectQuery(`SELECT "code" FROM "points" WHERE \(tenant_id = \$1 AND code IN \(\$2,\$3\)\)`).
		WithArgs("tenant-1", "P-01", "P-02").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("P-02"))

	codes, err := repo.ExistingCodes(context.Background(), "tenant-1", []string{"P-01", "P-02"})
	require.NoError(t, err)
	assert.Equal(t, []string{"P-02"}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRepository_ExistingCodesEmptyInput(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPointRepository(db)

	codes, err := repo.ExistingCodes(context.Background(), "tenant-1", nil)
	require.NoError(t, err)
	assert.Empty(t, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRepository_BulkSaveDuplicateCode(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPointRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "points"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	result, err := repo.BulkSave(context.Background(), "tenant-1", models.BulkSaveRequest{
		OwnerID: 42,
		Rows:    []models.RowPayload{{Code: "P-01", Address: "Rua A", Country: "Brasil"}},
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Saved)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "P-01", result.Errors[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRepository_BulkSaveCreatesPoint(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPointRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "points"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`SAVEPOINT bulk_row_0`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "points"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectCommit()

	result, err := repo.BulkSave(context.Background(), "tenant-1", models.BulkSaveRequest{
		OwnerID: 42,
		Rows: []models.RowPayload{{
			Code: "P-01", Address: "Rua A, 100", Latitude: -23.55, Longitude: -46.63, Country: "Brasil",
		}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []int64{101}, result.Saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPointRepository_BulkSaveWritesProductsAndImagesBeforeCommit(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPointRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "points"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`SAVEPOINT bulk_row_0`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "points"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`INSERT INTO "point_products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "point_images"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("5f1c2b8e-0000-4000-8000-000000000001"))
	mock.ExpectCommit()

	result, err := repo.BulkSave(context.Background(), "tenant-1", models.BulkSaveRequest{
		OwnerID: 42,
		Rows: []models.RowPayload{{
			Code: "P-01", Address: "Rua A, 100", Latitude: -23.55, Longitude: -46.63, Country: "Brasil",
			Products: []models.Product{{Type: models.ProductPaper, Price: 300}},
			Images:   []models.ImagePayload{{FileName: "front.jpg", ContentType: "image/jpeg", Data: []byte{0xff}, IsCover: true}},
		}},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []int64{7}, result.Saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}
