package importer

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"ooh-import-service/internal/models"
)

// headerAlias maps a folded header fragment to a field. Short aliases must match
// a whole word; longer ones match anywhere in the header. Order matters:
// "Período de locação" must hit the period before the rental price.
type headerAlias struct {
	alias string
	field models.CanonicalField
}

var headerAliases = []headerAlias{
	{"periodo", models.FieldRentalPeriod},
	{"period", models.FieldRentalPeriod},
	{"codigo", models.FieldCode},
	{"cod", models.FieldCode},
	{"code", models.FieldCode},
	{"endereco", models.FieldAddress},
	{"address", models.FieldAddress},
	{"latitude", models.FieldLatitude},
	{"lat", models.FieldLatitude},
	{"longitude", models.FieldLongitude},
	{"lng", models.FieldLongitude},
	{"lon", models.FieldLongitude},
	{"long", models.FieldLongitude},
	{"cidade", models.FieldCity},
	{"municipio", models.FieldCity},
	{"city", models.FieldCity},
	{"uf", models.FieldState},
	{"estado", models.FieldState},
	{"state", models.FieldState},
	{"pais", models.FieldCountry},
	{"country", models.FieldCountry},
	{"medida", models.FieldDimensions},
	{"tamanho", models.FieldDimensions},
	{"dimens", models.FieldDimensions},
	{"fluxo", models.FieldDailyTraffic},
	{"flow", models.FieldDailyTraffic},
	{"traffic", models.FieldDailyTraffic},
	{"tipo", models.FieldMediaTypes},
	{"type", models.FieldMediaTypes},
	{"midia", models.FieldMediaTypes},
	{"obs", models.FieldNotes},
	{"observac", models.FieldNotes},
	{"notes", models.FieldNotes},
	{"referencia", models.FieldLandmark},
	{"landmark", models.FieldLandmark},
	{"locacao", models.FieldRentalPrice},
	{"aluguel", models.FieldRentalPrice},
	{"rental", models.FieldRentalPrice},
	{"papel", models.FieldPaperPrice},
	{"paper", models.FieldPaperPrice},
	{"lona", models.FieldCanvasPrice},
	{"canvas", models.FieldCanvasPrice},
}

const (
	shortAliasLen            = 4
	contentConfidenceMinimum = 0.5
	contentSampleSize        = 10
)

// DetectHeader guesses the field a header label refers to, or FieldIgnore.
func DetectHeader(header string) models.CanonicalField {
	h := fold(header)
	if h == "" {
		return models.FieldIgnore
	}
	words := strings.FieldsFunc(h, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, a := range headerAliases {
		if len(a.alias) < shortAliasLen {
			if slices.Contains(words, a.alias) {
				return a.field
			}
			continue
		}
		if strings.Contains(h, a.alias) {
			return a.field
		}
	}
	return models.FieldIgnore
}

// ColumnAnalysis is the content-based guess for one column
type ColumnAnalysis struct {
	Field      models.CanonicalField `json:"field"`
	Confidence float64               `json:"confidence"`
	Reason     string                `json:"reason"`
}

var (
	coordinatePattern = regexp.MustCompile(`^-?\d+[.,]\d+$`)
	moneyPattern      = regexp.MustCompile(`^(R\$)?\s*\d+([.,]\d+)*$`)
	dimensionPattern  = regexp.MustCompile(`\d+\s*[xX×]\s*\d+`)
	trafficPattern    = regexp.MustCompile(`^\d{3,}$`)
	statePattern      = regexp.MustCompile(`^[A-Z]{2}$`)
	digitPattern      = regexp.MustCompile(`\d+`)

	addressKeywords   = []string{"rua", "r ", "av.", "av ", "avenida", "alameda", "al.", "travessa", "tv.", "estrada", "rod.", "rodovia", "praca"}
	periodKeywords    = []string{"bi", "semanal", "mensal", "quinzen", "mes"}
	mediaTypeKeywords = []string{"outdoor", "front", "back", "led", "digital", "painel", "totem", "busdoor", "empena"}
)

// AnalyzeColumnContent inspects up to ten non-empty values of a column and guesses
// its field from their shape. Guesses under 0.5 confidence come back as FieldIgnore.
func AnalyzeColumnContent(values []models.Cell) ColumnAnalysis {
	var sample []string
	for _, v := range values {
		if v.IsEmpty() {
			continue
		}
		sample = append(sample, strings.TrimSpace(v.String()))
		if len(sample) == contentSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return ColumnAnalysis{Field: models.FieldIgnore, Reason: "empty column"}
	}

	n := float64(len(sample))
	count := func(match func(string) bool) float64 {
		c := 0
		for _, s := range sample {
			if match(s) {
				c++
			}
		}
		return float64(c)
	}
	containsAny := func(keywords []string) func(string) bool {
		return func(s string) bool {
			f := fold(s)
			for _, k := range keywords {
				if strings.Contains(f, k) {
					return true
				}
			}
			return false
		}
	}

	var candidates []ColumnAnalysis
	add := func(f models.CanonicalField, score float64, reason string) {
		if score > 0 {
			candidates = append(candidates, ColumnAnalysis{Field: f, Confidence: score, Reason: reason})
		}
	}

	if coords := count(coordinatePattern.MatchString); coords > 0 {
		sum, parsed := 0.0, 0
		for _, s := range sample {
			if f, err := ParseCoordinate(models.TextCell(s)); err == nil {
				sum += f
				parsed++
			}
		}
		if parsed > 0 {
			avg := sum / float64(parsed)
			switch {
			case avg >= -34 && avg <= 6:
				add(models.FieldLatitude, coords/n, "coordinate pattern (latitude range)")
			case avg >= -75 && avg < -34:
				add(models.FieldLongitude, coords/n, "coordinate pattern (longitude range)")
			}
		}
	}

	add(models.FieldAddress, count(func(s string) bool {
		return containsAny(addressKeywords)(s) && digitPattern.MatchString(s)
	})/n, "street indicators with numbers")
	add(models.FieldRentalPrice, count(moneyPattern.MatchString)/n*0.8, "monetary values")
	add(models.FieldDimensions, count(dimensionPattern.MatchString)/n, "width x height pattern")
	add(models.FieldDailyTraffic, count(func(s string) bool {
		return trafficPattern.MatchString(strings.NewReplacer(".", "", ",", "").Replace(s))
	})/n*0.7, "large whole numbers")
	add(models.FieldRentalPeriod, count(containsAny(periodKeywords))/n, "rental period terms")
	add(models.FieldMediaTypes, count(containsAny(mediaTypeKeywords))/n, "media type names")
	add(models.FieldState, count(func(s string) bool {
		return statePattern.MatchString(strings.ToUpper(s))
	})/n, "two-letter state codes")

	best := ColumnAnalysis{Field: models.FieldIgnore, Reason: "not identified"}
	for _, c := range candidates {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	if best.Confidence < contentConfidenceMinimum {
		return ColumnAnalysis{Field: models.FieldIgnore, Confidence: best.Confidence, Reason: "low confidence"}
	}
	return best
}

// DetectColumnMapping proposes a mapping from headers first, then from column
// content for columns whose header said nothing. A field proposed by content is
// never assigned twice.
func DetectColumnMapping(headers []string, rows [][]models.Cell) (models.ColumnMapping, map[int]float64) {
	mapping := make(models.ColumnMapping, len(headers))
	confidence := make(map[int]float64, len(headers))
	taken := map[models.CanonicalField]bool{}

	for col, h := range headers {
		f := DetectHeader(h)
		mapping[col] = f
		if f != models.FieldIgnore {
			confidence[col] = 1
			taken[f] = true
		}
	}

	for col := range headers {
		if mapping[col] != models.FieldIgnore {
			continue
		}
		a := AnalyzeColumnContent(columnValues(rows, col))
		if a.Field == models.FieldIgnore || taken[a.Field] {
			continue
		}
		mapping[col] = a.Field
		confidence[col] = a.Confidence
		taken[a.Field] = true
	}
	return mapping, confidence
}

func columnValues(rows [][]models.Cell, col int) []models.Cell {
	values := make([]models.Cell, 0, len(rows))
	for _, r := range rows {
		if col < len(r) {
			values = append(values, r[col])
		}
	}
	return values
}

var recommendedFields = []models.CanonicalField{
	models.FieldCity, models.FieldState, models.FieldDimensions, models.FieldMediaTypes,
}

// MappingCheck is the verdict on a column mapping
type MappingCheck struct {
	Valid      bool                            `json:"valid"`
	Errors     []string                        `json:"errors"`
	Warnings   []string                        `json:"warnings"`
	Duplicates map[models.CanonicalField][]int `json:"duplicates"`
}

// ValidateColumnMapping requires each required field exactly once and rejects any
// field mapped to more than one column. Missing recommended fields only warn.
func ValidateColumnMapping(m models.ColumnMapping) MappingCheck {
	check := MappingCheck{
		Errors:     []string{},
		Warnings:   []string{},
		Duplicates: map[models.CanonicalField][]int{},
	}

	columns := map[models.CanonicalField][]int{}
	cols := make([]int, 0, len(m))
	for col := range m {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	for _, col := range cols {
		f := m[col]
		if !f.Known() {
			check.Errors = append(check.Errors, fmt.Sprintf("Column %d is mapped to unknown field %q", col+1, f))
			continue
		}
		if f == models.FieldIgnore {
			continue
		}
		columns[f] = append(columns[f], col)
	}

	for _, f := range models.RequiredFields {
		if len(columns[f]) == 0 {
			check.Errors = append(check.Errors, fmt.Sprintf("Required field not mapped: %s", f))
		}
	}
	for _, f := range models.AllFields {
		if len(columns[f]) > 1 {
			check.Duplicates[f] = columns[f]
			check.Errors = append(check.Errors, fmt.Sprintf("Field %q is mapped to multiple columns", f))
		}
	}
	for _, f := range recommendedFields {
		if len(columns[f]) == 0 {
			check.Warnings = append(check.Warnings, fmt.Sprintf("Recommended field not mapped: %s", f))
		}
	}

	check.Valid = len(check.Errors) == 0
	return check
}
