package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"ooh-import-service/internal/models"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string                `json:"name"`
	Field       models.CanonicalField `json:"field"`
	Description string                `json:"description"`
	Required    bool                  `json:"required"`
	Type        string                `json:"type"`
	Example     string                `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity     string                 `json:"entity"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// PointImportTemplate lists the columns the header detection recognizes
func PointImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "points",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "Código", Field: models.FieldCode, Description: "Unique point code", Required: true, Type: "string", Example: "SP-0001"},
			{Name: "Endereço", Field: models.FieldAddress, Description: "Street address", Required: true, Type: "string", Example: "Av. Paulista, 1000"},
			{Name: "Latitude", Field: models.FieldLatitude, Description: "Decimal latitude", Required: true, Type: "number", Example: "-23.561414"},
			{Name: "Longitude", Field: models.FieldLongitude, Description: "Decimal longitude", Required: true, Type: "number", Example: "-46.655881"},
			{Name: "Cidade", Field: models.FieldCity, Description: "City", Type: "string", Example: "São Paulo"},
			{Name: "UF", Field: models.FieldState, Description: "State abbreviation", Type: "string", Example: "SP"},
			{Name: "País", Field: models.FieldCountry, Description: "Country, defaults to Brasil", Type: "string", Example: "Brasil"},
			{Name: "Medidas", Field: models.FieldDimensions, Description: "Width x height in meters", Type: "string", Example: "9 x 3"},
			{Name: "Fluxo diário", Field: models.FieldDailyTraffic, Description: "Daily traffic estimate", Type: "number", Example: "45000"},
			{Name: "Tipo de mídia", Field: models.FieldMediaTypes, Description: "Media types, comma separated", Type: "string", Example: "Outdoor, Front-light"},
			{Name: "Observações", Field: models.FieldNotes, Description: "Free notes", Type: "string", Example: "Lighting until 23h"},
			{Name: "Referência", Field: models.FieldLandmark, Description: "Nearby landmark", Type: "string", Example: "Em frente ao MASP"},
			{Name: "Valor locação", Field: models.FieldRentalPrice, Description: "Rental price", Type: "number", Example: "1500,00"},
			{Name: "Período", Field: models.FieldRentalPeriod, Description: "Bissemanal or Mensal", Type: "string", Example: "Bissemanal"},
			{Name: "Valor papel", Field: models.FieldPaperPrice, Description: "Paper production price", Type: "number", Example: "350,00"},
			{Name: "Valor lona", Field: models.FieldCanvasPrice, Description: "Canvas production price", Type: "number", Example: "800,00"},
		},
		SampleData: []map[string]string{
			{
				"Código":        "SP-0001",
				"Endereço":      "Av. Paulista, 1000",
				"Latitude":      "-23.561414",
				"Longitude":     "-46.655881",
				"Cidade":        "São Paulo",
				"UF":            "SP",
				"País":          "Brasil",
				"Medidas":       "9 x 3",
				"Fluxo diário":  "45000",
				"Tipo de mídia": "Outdoor",
				"Referência":    "Em frente ao MASP",
				"Valor locação": "1500,00",
				"Período":       "Bissemanal",
				"Valor papel":   "350,00",
			},
			{
				"Código":        "RJ-0002",
				"Endereço":      "Av. Atlântica, 1702",
				"Latitude":      "-22.967120",
				"Longitude":     "-43.178520",
				"Cidade":        "Rio de Janeiro",
				"UF":            "RJ",
				"Medidas":       "12 x 4",
				"Tipo de mídia": "Front-light",
				"Valor locação": "2200,00",
				"Período":       "Mensal",
				"Valor lona":    "800,00",
			},
		},
	}
}

// GetImportTemplate returns the point import template
// GET /api/v1/imports/template?format=json|csv|xlsx
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	template := PointImportTemplate()

	switch format {
	case "csv":
		h.generateCSVTemplate(c, template, "points")
	case "xlsx":
		h.generateXLSXTemplate(c, template, "Points")
	case "json":
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: template})
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "UNSUPPORTED_FORMAT", Message: "format must be json, csv or xlsx"},
		})
	}
}

func (h *ImportHandler) generateCSVTemplate(c *gin.Context, template ImportTemplate, entity string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	if err := writer.Write(headers); err != nil {
		h.logger.WithError(err).Warn("Failed to write CSV template")
		return
	}

	for _, sample := range template.SampleData {
		row := make([]string, len(template.Columns))
		for i, col := range template.Columns {
			row[i] = sample[col.Name]
		}
		if err := writer.Write(row); err != nil {
			h.logger.WithError(err).Warn("Failed to write CSV template")
			return
		}
	}
}

func (h *ImportHandler) generateXLSXTemplate(c *gin.Context, template ImportTemplate, sheetName string) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		h.respondInternal(c, err)
		return
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		style := headerStyle
		if col.Required {
			headerText = col.Name + " *"
			style = requiredStyle
		}
		_ = f.SetCellValue(sheetName, cell, headerText)
		_ = f.SetCellStyle(sheetName, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, colName, colName, 18)
	}

	for rowIdx, sample := range template.SampleData {
		for colIdx, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			_ = f.SetCellValue(sheetName, cell, sample[col.Name])
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=points_import_template.xlsx")
	if err := f.Write(c.Writer); err != nil {
		h.logger.WithError(err).Warn("Failed to write XLSX template")
	}
}
