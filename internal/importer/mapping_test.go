package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"ooh-import-service/internal/models"
)

func texts(values ...string) []models.Cell {
	cells := make([]models.Cell, len(values))
	for i, v := range values {
		cells[i] = models.CellFromString(v)
	}
	return cells
}

func TestDetectHeader(t *testing.T) {
	tests := map[string]models.CanonicalField{
		"Código":              models.FieldCode,
		"Código OOH":          models.FieldCode,
		"Endereço":            models.FieldAddress,
		"Lat":                 models.FieldLatitude,
		"Lng":                 models.FieldLongitude,
		"Longitude":           models.FieldLongitude,
		"UF":                  models.FieldState,
		"Estado":              models.FieldState,
		"Cidade":              models.FieldCity,
		"Período de Locação":  models.FieldRentalPeriod,
		"Valor Locação":       models.FieldRentalPrice,
		"Valor Papel":         models.FieldPaperPrice,
		"Valor Lona":          models.FieldCanvasPrice,
		"Observações":         models.FieldNotes,
		"Ponto de referência": models.FieldLandmark,
		"Tipo de mídia":       models.FieldMediaTypes,
		"Medidas":             models.FieldDimensions,
		"Fluxo diário":        models.FieldDailyTraffic,
		"Foto":                models.FieldIgnore,
		"":                    models.FieldIgnore,
	}
	for header, want := range tests {
		t.Run(header, func(t *testing.T) {
			assert.Equal(t, want, DetectHeader(header))
		})
	}
}

func TestAnalyzeColumnContent(t *testing.T) {
	tests := []struct {
		name   string
		values []models.Cell
		want   models.CanonicalField
	}{
		{"latitudes", texts("-23,5505", "-23,5610", "-22,9068"), models.FieldLatitude},
		{"longitudes", texts("-46,6333", "-43,1729"), models.FieldLongitude},
		{"addresses", texts("Rua Augusta, 1500", "Av. Paulista 1000"), models.FieldAddress},
		{"dimensions", texts("9x3", "9 x 3"), models.FieldDimensions},
		{"states", texts("SP", "RJ", "MG"), models.FieldState},
		{"periods", texts("Mensal", "Bissemanal"), models.FieldRentalPeriod},
		{"noise", texts("foo", "bar"), models.FieldIgnore},
		{"empty", texts("", " "), models.FieldIgnore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnalyzeColumnContent(tt.values).Field)
		})
	}
}

func TestAnalyzeColumnContent_LowConfidence(t *testing.T) {
	got := AnalyzeColumnContent(texts("SP", "foo", "bar"))
	assert.Equal(t, models.FieldIgnore, got.Field)
	assert.InDelta(t, 1.0/3.0, got.Confidence, 1e-9)
}

func TestDetectColumnMapping_FallsBackToContent(t *testing.T) {
	headers := []string{"Código", "Endereço", "Coluna X", "Coluna Y", "Outra"}
	rows := [][]models.Cell{
		texts("P1", "Rua A, 1", "-23,55", "-46,63", "x"),
		texts("P2", "Rua B, 2", "-23,56", "-46,64", "y"),
	}

	mapping, confidence := DetectColumnMapping(headers, rows)
	assert.Equal(t, models.ColumnMapping{
		0: models.FieldCode,
		1: models.FieldAddress,
		2: models.FieldLatitude,
		3: models.FieldLongitude,
		4: models.FieldIgnore,
	}, mapping)
	assert.Equal(t, 1.0, confidence[0])
	assert.Equal(t, 1.0, confidence[2])
}

func TestDetectColumnMapping_ContentNeverDuplicatesHeader(t *testing.T) {
	headers := []string{"Lat", "Sem nome"}
	rows := [][]models.Cell{texts("-23,55", "-23,50"), texts("-23,56", "-23,51")}

	mapping, _ := DetectColumnMapping(headers, rows)
	assert.Equal(t, models.FieldLatitude, mapping[0])
	assert.Equal(t, models.FieldIgnore, mapping[1])
}

func TestValidateColumnMapping_Valid(t *testing.T) {
	check := ValidateColumnMapping(models.ColumnMapping{
		0: models.FieldCode,
		1: models.FieldAddress,
		2: models.FieldLatitude,
		3: models.FieldLongitude,
		4: models.FieldIgnore,
	})
	assert.True(t, check.Valid)
	assert.Empty(t, check.Errors)
	assert.Len(t, check.Warnings, 4)
	assert.Empty(t, check.Duplicates)
}

func TestValidateColumnMapping_MissingAndDuplicate(t *testing.T) {
	check := ValidateColumnMapping(models.ColumnMapping{
		0: models.FieldCode,
		1: models.FieldCode,
		2: models.FieldAddress,
	})
	assert.False(t, check.Valid)
	assert.Equal(t, []int{0, 1}, check.Duplicates[models.FieldCode])
	assert.Contains(t, check.Errors, "Required field not mapped: latitude")
	assert.Contains(t, check.Errors, "Required field not mapped: longitude")
	assert.Len(t, check.Errors, 3)
}

func TestValidateColumnMapping_UnknownField(t *testing.T) {
	check := ValidateColumnMapping(models.ColumnMapping{
		0: models.FieldCode, 1: models.FieldAddress, 2: models.FieldLatitude, 3: models.FieldLongitude,
		4: models.CanonicalField("price"),
	})
	assert.False(t, check.Valid)
	assert.Len(t, check.Errors, 1)
}
