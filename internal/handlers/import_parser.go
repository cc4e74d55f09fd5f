package handlers

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"ooh-import-service/internal/models"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

var ErrUnsupportedFormat = errors.New("only CSV and XLSX files are supported")

// Spreadsheet is the first sheet of an uploaded file: one header row and the
// data rows below it, cell types preserved where the format carries them.
type Spreadsheet struct {
	Headers []string
	Rows    [][]models.Cell
}

// DetectFormat picks the parser from the file extension
func DetectFormat(filename string) (ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ImportFormatCSV, nil
	case ".xlsx":
		return ImportFormatXLSX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// ParseSpreadsheet reads a CSV or XLSX upload
func ParseSpreadsheet(file io.Reader, filename string) (*Spreadsheet, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	if format == ImportFormatCSV {
		return parseCSV(file)
	}
	return parseXLSX(file)
}

func parseCSV(file io.Reader) (*Spreadsheet, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Spreadsheet{}, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	sheet := &Spreadsheet{Headers: cleanHeaders(headers)}
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", lineNum+1, err)
		}
		row := make([]models.Cell, len(record))
		for i, value := range record {
			row[i] = models.CellFromString(value)
		}
		sheet.Rows = append(sheet.Rows, row)
		lineNum++
	}
	return sheet, nil
}

// sniffDelimiter prefers ';' when the header line has more semicolons than
// commas, which is how spreadsheet apps export CSV in pt-BR locales.
func sniffDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func parseXLSX(file io.Reader) (*Spreadsheet, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	sheetName := sheets[0]

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	if len(rows) == 0 {
		return &Spreadsheet{}, nil
	}

	sheet := &Spreadsheet{Headers: cleanHeaders(rows[0])}
	for rowIdx, record := range rows[1:] {
		row := make([]models.Cell, len(record))
		for colIdx, value := range record {
			row[colIdx] = xlsxCell(f, sheetName, colIdx+1, rowIdx+2, value)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// xlsxCell keeps numeric cells numeric so coordinates and prices are not
// re-parsed from their display text.
func xlsxCell(f *excelize.File, sheet string, col, row int, raw string) models.Cell {
	if strings.TrimSpace(raw) == "" {
		return models.EmptyCell()
	}
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return models.TextCell(raw)
	}
	cellType, err := f.GetCellType(sheet, name)
	if err != nil {
		return models.TextCell(raw)
	}
	if cellType == excelize.CellTypeNumber || cellType == excelize.CellTypeUnset {
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return models.NumberCell(n)
		}
	}
	return models.TextCell(raw)
}

// cleanHeaders trims labels and drops the required marker of the template
func cleanHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.TrimSuffix(strings.TrimSpace(h), " *")
	}
	return out
}
