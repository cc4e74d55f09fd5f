package importer

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ooh-import-service/internal/models"
)

// ValidMediaTypes are the media types the inventory recognizes.
var ValidMediaTypes = []string{
	"Outdoor",
	"Frontlight",
	"Backlight",
	"Painel rodoviário",
	"Led",
	"Iluminado",
	"Digital",
	"Relógio de rua",
	"Empena",
	"Totem",
	"Busdoor",
	"Taxidoor",
}

// keys are folded (lowercase, no accents)
var mediaTypeSynonyms = map[string]string{
	"front light":       "Frontlight",
	"front-light":       "Frontlight",
	"frontligth":        "Frontlight",
	"frontlite":         "Frontlight",
	"front lite":        "Frontlight",
	"back light":        "Backlight",
	"back-light":        "Backlight",
	"backligth":         "Backlight",
	"backlite":          "Backlight",
	"back lite":         "Backlight",
	"painel de rodovia": "Painel rodoviário",
	"painel rodovia":    "Painel rodoviário",
	"painel rodoviario": "Painel rodoviário",
	"painel de estrada": "Painel rodoviário",
	"painel estrada":    "Painel rodoviário",
	"relogio de rua":    "Relógio de rua",
	"relogio":           "Relógio de rua",
	"bus door":          "Busdoor",
	"bus-door":          "Busdoor",
	"taxi door":         "Taxidoor",
	"taxi-door":         "Taxidoor",
}

const mediaTypeMatchThreshold = 0.6

var cityAliases = map[string]string{
	"sp":        "São Paulo",
	"sampa":     "São Paulo",
	"sao paulo": "São Paulo",
}

var stateAliases = map[string]string{
	"acre":                "AC",
	"alagoas":             "AL",
	"amapa":               "AP",
	"amazonas":            "AM",
	"bahia":               "BA",
	"ceara":               "CE",
	"distrito federal":    "DF",
	"espirito santo":      "ES",
	"goias":               "GO",
	"maranhao":            "MA",
	"mato grosso":         "MT",
	"mato grosso do sul":  "MS",
	"minas gerais":        "MG",
	"para":                "PA",
	"paraiba":             "PB",
	"parana":              "PR",
	"pernambuco":          "PE",
	"piaui":               "PI",
	"rio de janeiro":      "RJ",
	"rio grande do norte": "RN",
	"rio grande do sul":   "RS",
	"rondonia":            "RO",
	"roraima":             "RR",
	"santa catarina":      "SC",
	"sao paulo":           "SP",
	"sergipe":             "SE",
	"tocantins":           "TO",
}

var (
	errInvalidCoordinate = errors.New("invalid coordinate")
	errCoordinateRange   = errors.New("coordinate out of range")
	errInvalidTraffic    = errors.New("invalid daily traffic")
	errInvalidPrice      = errors.New("invalid price")
	errInvalidDimensions = errors.New("invalid dimensions format")

	mediaTypeSeparators = regexp.MustCompile(`[,;/]|\s+e\s+`)
	dimensionUnits      = regexp.MustCompile(`\s*(METROS|METRO|PIXELS|PIXEL|PX|M)\s*`)
	dimensionPair       = regexp.MustCompile(`(\d+\.?\d*)\s*[X×]\s*(\d+\.?\d*)`)
	trailingThousands   = regexp.MustCompile(`\.\d{3}$`)
)

// Normalized is the outcome of normalizing one cell for a field. When OK is
// false Value holds the input unchanged and Message explains the failure.
type Normalized struct {
	Value   models.Cell
	OK      bool
	Message string
}

func normalized(v models.Cell) Normalized {
	return Normalized{Value: v, OK: true}
}

func failed(c models.Cell, msg string) Normalized {
	return Normalized{Value: c, Message: msg}
}

// NormalizeCell converts a raw cell into the canonical form for field.
// Empty cells pass through untouched; requiredness is a validation concern.
func NormalizeCell(field models.CanonicalField, c models.Cell) Normalized {
	if c.IsEmpty() {
		return normalized(models.EmptyCell())
	}

	switch field {
	case models.FieldLatitude, models.FieldLongitude:
		f, err := ParseCoordinate(c)
		if err != nil && !errors.Is(err, errCoordinateRange) {
			return failed(c, fmt.Sprintf("%s must be a number", fieldLabel(field)))
		}
		if field == models.FieldLatitude && (err != nil || f < -90 || f > 90) {
			return failed(c, MsgLatitudeRange)
		}
		if err != nil {
			return failed(c, MsgLongitudeRange)
		}
		return normalized(models.NumberCell(f))

	case models.FieldDailyTraffic:
		n, err := ParseTraffic(c)
		if err != nil {
			return failed(c, "Daily traffic must be a non-negative whole number")
		}
		return normalized(models.NumberCell(float64(n)))

	case models.FieldRentalPrice, models.FieldPaperPrice, models.FieldCanvasPrice:
		f, err := ParsePrice(c)
		if err != nil {
			return failed(c, fmt.Sprintf("%s must be a non-negative amount", fieldLabel(field)))
		}
		return normalized(models.NumberCell(f))

	case models.FieldRentalPeriod:
		p, ok := ParseBillingPeriod(c.String())
		if !ok {
			return failed(c, "Rental period not recognized, use BiWeekly or Monthly")
		}
		return normalized(models.TextCell(string(p)))

	case models.FieldCity:
		return normalized(models.TextCell(NormalizeCity(c.String())))

	case models.FieldState:
		return normalized(models.TextCell(NormalizeState(c.String())))

	case models.FieldMediaTypes:
		return normalized(models.TextCell(strings.Join(NormalizeMediaTypes(c.String()), ", ")))

	case models.FieldDimensions:
		d, err := NormalizeDimensions(c.String())
		if err != nil {
			return failed(c, "Dimensions must look like 9 x 3")
		}
		return normalized(models.TextCell(d))

	default:
		return normalized(models.CellFromString(strings.TrimSpace(c.String())))
	}
}

// ParseCoordinate accepts numeric cells or text using either decimal mark.
// Finite values beyond ±180 fail with errCoordinateRange.
// Extra separators after the first are dropped ("-46.655.881" reads as -46.655881).
func ParseCoordinate(c models.Cell) (float64, error) {
	if c.Kind == models.CellNumber {
		return checkCoordinate(c.Number)
	}

	s := strings.TrimSpace(c.Text)
	switch s {
	case "", "-", "–", "—":
		return 0, errInvalidCoordinate
	}
	s = strings.NewReplacer(`"`, "", "'", "", ",", ".").Replace(s)
	if first := strings.Index(s, "."); first >= 0 && strings.Count(s, ".") > 1 {
		s = s[:first+1] + strings.ReplaceAll(s[first+1:], ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errInvalidCoordinate
	}
	return checkCoordinate(f)
}

func checkCoordinate(f float64) (float64, error) {
	if !finite(f) {
		return 0, errInvalidCoordinate
	}
	if f < -180 || f > 180 {
		return f, errCoordinateRange
	}
	return f, nil
}

// ParseTraffic reads a whole number, treating dots and commas as grouping.
func ParseTraffic(c models.Cell) (int64, error) {
	if c.Kind == models.CellNumber {
		if !finite(c.Number) || c.Number < 0 || c.Number >= math.MaxInt64 {
			return 0, errInvalidTraffic
		}
		return int64(math.Floor(c.Number)), nil
	}

	s := strings.NewReplacer(".", "", ",", "", " ", "").Replace(strings.TrimSpace(c.Text))
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errInvalidTraffic
	}
	return n, nil
}

// ParsePrice reads an amount in Brazilian or plain notation, rounded to cents.
//
//	"R$ 5.000,00" -> 5000
//	"1500,5"      -> 1500.5
//	"5.000"       -> 5000
//	"12.5"        -> 12.5
func ParsePrice(c models.Cell) (float64, error) {
	if c.Kind == models.CellNumber {
		if !finite(c.Number) || c.Number < 0 {
			return 0, errInvalidPrice
		}
		return roundCents(c.Number), nil
	}

	s := strings.Map(func(r rune) rune {
		switch r {
		case 'R', '$', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(c.Text))

	hasDot, hasComma := strings.Contains(s, "."), strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	case hasDot && trailingThousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) || f < 0 {
		return 0, errInvalidPrice
	}
	return roundCents(f), nil
}

// finite rejects the NaN and Inf values strconv accepts as text.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func roundCents(f float64) float64 {
	return math.Round(f*100) / 100
}

// ParseBillingPeriod recognizes the common ways people write bi-weekly and monthly.
func ParseBillingPeriod(s string) (models.BillingPeriod, bool) {
	f := fold(s)
	if f == "" {
		return "", false
	}
	for _, k := range []string{"bi", "quinzen", "seman", "15 dia", "15dia"} {
		if strings.Contains(f, k) {
			return models.BillingBiWeekly, true
		}
	}
	for _, k := range []string{"mes", "mensal", "month", "30 dia", "30dia"} {
		if strings.Contains(f, k) {
			return models.BillingMonthly, true
		}
	}
	return "", false
}

// NormalizeCity resolves common aliases and title-cases the rest.
// A trailing state ("Campinas - SP") is dropped.
func NormalizeCity(s string) string {
	clean := strings.TrimSpace(strings.SplitN(strings.TrimSpace(s), "-", 2)[0])
	if clean == "" {
		return ""
	}
	if alias, ok := cityAliases[fold(clean)]; ok {
		return alias
	}
	return titleCase(strings.Join(strings.Fields(clean), " "))
}

// NormalizeState maps full state names to their two-letter code.
func NormalizeState(s string) string {
	clean := strings.TrimSpace(s)
	if uf, ok := stateAliases[fold(clean)]; ok {
		return uf
	}
	return upperCase(clean)
}

// NormalizeMediaTypes splits a free-text list and snaps each entry to a known type.
func NormalizeMediaTypes(s string) []string {
	var out []string
	for _, part := range mediaTypeSeparators.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, matchMediaType(part))
	}
	return out
}

func matchMediaType(s string) string {
	if syn, ok := mediaTypeSynonyms[fold(s)]; ok {
		return syn
	}

	best, bestScore := "", 0.0
	for _, option := range ValidMediaTypes {
		if score := similarity(s, option); score > bestScore {
			best, bestScore = option, score
		}
	}
	if bestScore > mediaTypeMatchThreshold {
		return best
	}
	return capitalize(s)
}

// NormalizeDimensions rewrites "9x3", "9,5 X 3m" and similar as "9 x 3 M".
// Pixel sizes keep a PX unit.
func NormalizeDimensions(s string) (string, error) {
	clean := upperCase(strings.TrimSpace(s))
	unit := "M"
	if strings.Contains(clean, "PX") || strings.Contains(clean, "PIXEL") {
		unit = "PX"
	}
	clean = dimensionUnits.ReplaceAllString(clean, "")
	clean = strings.ReplaceAll(clean, ",", ".")

	m := dimensionPair.FindStringSubmatch(clean)
	if m == nil {
		return "", errInvalidDimensions
	}
	w, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", errInvalidDimensions
	}
	h, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", errInvalidDimensions
	}
	return fmt.Sprintf("%s x %s %s", formatNumber(w), formatNumber(h), unit), nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func fieldLabel(f models.CanonicalField) string {
	switch f {
	case models.FieldCode:
		return "Code"
	case models.FieldAddress:
		return "Address"
	case models.FieldLatitude:
		return "Latitude"
	case models.FieldLongitude:
		return "Longitude"
	case models.FieldCity:
		return "City"
	case models.FieldState:
		return "State"
	case models.FieldRentalPrice:
		return "Rental price"
	case models.FieldRentalPeriod:
		return "Rental period"
	case models.FieldPaperPrice:
		return "Paper price"
	case models.FieldCanvasPrice:
		return "Canvas price"
	case models.FieldDailyTraffic:
		return "Daily traffic"
	case models.FieldMediaTypes:
		return "Media types"
	default:
		return string(f)
	}
}
