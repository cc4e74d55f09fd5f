package importer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ooh-import-service/internal/models"
)

var fullMapping = models.ColumnMapping{
	0: models.FieldCode,
	1: models.FieldAddress,
	2: models.FieldLatitude,
	3: models.FieldLongitude,
	4: models.FieldCity,
	5: models.FieldState,
	6: models.FieldRentalPrice,
	7: models.FieldRentalPeriod,
	8: models.FieldIgnore,
}

func messyRow() []models.Cell {
	return texts(" P-01 ", "Rua A, 100", "-23,55", "-46,63", "sp", "São Paulo", "R$ 1.500,00", "Bissemanal", "whatever")
}

func TestDeriveRow(t *testing.T) {
	row := DeriveRow(3, messyRow(), fullMapping)

	assert.Equal(t, 3, row.SourceIndex)
	assert.Equal(t, "P-01", row.Code)
	assert.Equal(t, "Rua A, 100", row.Address)
	require.NotNil(t, row.Latitude)
	assert.InDelta(t, -23.55, *row.Latitude, 1e-9)
	require.NotNil(t, row.Longitude)
	assert.InDelta(t, -46.63, *row.Longitude, 1e-9)
	assert.Equal(t, "São Paulo", row.City)
	assert.Equal(t, "SP", row.State)
	assert.Equal(t, DefaultCountry, row.Country)
	assert.Empty(t, row.ParseIssues)

	require.Len(t, row.Products, 1)
	assert.Equal(t, models.ProductRental, row.Products[0].Type)
	assert.InDelta(t, 1500.0, row.Products[0].Price, 1e-9)
	require.NotNil(t, row.Products[0].BillingPeriod)
	assert.Equal(t, models.BillingBiWeekly, *row.Products[0].BillingPeriod)
}

func TestDeriveRow_ShortRowAndBadCoordinate(t *testing.T) {
	row := DeriveRow(0, texts("P-02", "Rua B", "norte"), fullMapping)

	assert.Nil(t, row.Latitude)
	assert.Nil(t, row.Longitude)
	require.Len(t, row.ParseIssues, 1)
	assert.Equal(t, models.FieldLatitude, row.ParseIssues[0].Field)
	assert.Equal(t, models.SeverityError, row.ParseIssues[0].Severity)
	assert.Empty(t, row.Products)
}

func TestDeriveRow_AllProducts(t *testing.T) {
	mapping := models.ColumnMapping{
		0: models.FieldPaperPrice,
		1: models.FieldCanvasPrice,
		2: models.FieldDailyTraffic,
		3: models.FieldCountry,
	}
	row := DeriveRow(0, []models.Cell{models.NumberCell(300), models.TextCell("450,00"), models.TextCell("12.000"), models.TextCell("Portugal")}, mapping)

	require.Len(t, row.Products, 2)
	assert.Equal(t, models.ProductPaper, row.Products[0].Type)
	assert.Equal(t, models.ProductCanvas, row.Products[1].Type)
	assert.InDelta(t, 450.0, row.Products[1].Price, 1e-9)
	require.NotNil(t, row.DailyTraffic)
	assert.Equal(t, int64(12000), *row.DailyTraffic)
	assert.Equal(t, "Portugal", row.Country)
}

func TestCollectCorrections(t *testing.T) {
	original := [][]models.Cell{messyRow()}
	current := [][]models.Cell{messyRow()}

	corrections := CollectCorrections(original, current, fullMapping)

	assert.Len(t, corrections, 7)
	assert.Equal(t, models.CellCorrection{
		Original:  models.TextCell(" P-01 "),
		Corrected: models.TextCell("P-01"),
		Field:     models.FieldCode,
	}, corrections["0-0"])
	assert.Equal(t, models.NumberCell(-23.55), corrections["0-2"].Corrected)
	assert.Equal(t, models.TextCell("São Paulo"), corrections["0-4"].Corrected)
	assert.Equal(t, models.TextCell("BiWeekly"), corrections["0-7"].Corrected)
	assert.NotContains(t, corrections, "0-1")
	assert.NotContains(t, corrections, "0-8")
}

func TestCollectCorrections_ManualEditDiffsAgainstOriginal(t *testing.T) {
	original := [][]models.Cell{texts("P-01", "Rua A", "-23.5", "-46.6")}
	current := [][]models.Cell{texts("P-01", "Rua A", "-23.5", "-46.6")}
	mapping := models.ColumnMapping{0: models.FieldCode, 1: models.FieldAddress, 2: models.FieldLatitude, 3: models.FieldLongitude}

	assert.Empty(t, CollectCorrections(original, current, mapping))

	current[0][1] = models.TextCell("Rua A, 42")
	corrections := CollectCorrections(original, current, mapping)
	require.Len(t, corrections, 1)
	assert.Equal(t, models.TextCell("Rua A"), corrections["0-1"].Original)
	assert.Equal(t, models.TextCell("Rua A, 42"), corrections["0-1"].Corrected)

	// Reverting restores the original, so the record disappears.
	current[0][1] = models.TextCell("Rua A")
	assert.Empty(t, CollectCorrections(original, current, mapping))
}

func TestImages_CoverFollowsOrder(t *testing.T) {
	row := models.ImportRow{}
	a := AddImage(&row, models.RowImage{FileName: "a.jpg"})
	b := AddImage(&row, models.RowImage{FileName: "b.jpg"})
	c := AddImage(&row, models.RowImage{FileName: "c.jpg"})

	assert.True(t, row.Images[0].IsCover)
	assert.NotEqual(t, uuid.Nil, a.ID)

	require.True(t, RemoveImage(&row, a.ID))
	require.Len(t, row.Images, 2)
	assert.Equal(t, b.ID, row.Images[0].ID)
	assert.True(t, row.Images[0].IsCover)
	assert.Equal(t, 0, row.Images[0].Order)
	assert.Equal(t, 1, row.Images[1].Order)

	require.True(t, SetCover(&row, c.ID))
	assert.Equal(t, c.ID, row.Images[0].ID)
	assert.True(t, row.Images[0].IsCover)
	assert.False(t, row.Images[1].IsCover)

	assert.False(t, RemoveImage(&row, uuid.New()))
	assert.False(t, SetCover(&row, uuid.New()))
}

func TestRederive_KeepsStateOutsideCells(t *testing.T) {
	mapping := models.ColumnMapping{
		0: models.FieldCode,
		1: models.FieldAddress,
		2: models.FieldLatitude,
		3: models.FieldLongitude,
		4: models.FieldRentalPrice,
	}
	cells := texts("P-01", "Rua A", "-23.5", "-46.6", "1500")

	prev := DeriveRow(0, cells, mapping)
	monthly := models.BillingMonthly
	prev.Products[0].BillingPeriod = &monthly
	prev.Products = append(prev.Products, models.Product{Type: models.ProductPaper, Price: 300})
	prev.City = "Campinas"
	prev.SkipImport = true
	AddImage(&prev, models.RowImage{FileName: "a.jpg"})

	cells[0] = models.TextCell("P-02")
	row := Rederive(0, cells, mapping, &prev)

	assert.Equal(t, "P-02", row.Code, "mapped fields come from the cells")
	assert.Equal(t, "Campinas", row.City)
	assert.True(t, row.SkipImport)
	assert.Len(t, row.Images, 1)
	require.Len(t, row.Products, 2)
	assert.Equal(t, models.ProductRental, row.Products[0].Type)
	require.NotNil(t, row.Products[0].BillingPeriod)
	assert.Equal(t, models.BillingMonthly, *row.Products[0].BillingPeriod)
	assert.Equal(t, models.ProductPaper, row.Products[1].Type)
}
