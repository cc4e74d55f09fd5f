package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CellKind tags the value held by a Cell
type CellKind string

const (
	CellEmpty  CellKind = "empty"
	CellText   CellKind = "text"
	CellNumber CellKind = "number"
)

// Cell is a spreadsheet value as parsed, before column mapping gives it a type.
// It serializes as a JSON string, number or null.
type Cell struct {
	Kind   CellKind
	Text   string
	Number float64
}

func EmptyCell() Cell {
	return Cell{Kind: CellEmpty}
}

func TextCell(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Number: f}
}

// CellFromString maps blank input to an empty cell and anything else to text.
func CellFromString(s string) Cell {
	if s == "" {
		return EmptyCell()
	}
	return TextCell(s)
}

// IsEmpty reports whether the cell carries no usable value. Whitespace-only
// text counts as empty.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellText:
		return strings.TrimSpace(c.Text) == ""
	case CellNumber:
		return false
	default:
		return true
	}
}

// String renders the cell the way a spreadsheet user would type it.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	default:
		return ""
	}
}

// Equal compares kind and value.
func (c Cell) Equal(o Cell) bool {
	if c.IsEmpty() && o.IsEmpty() {
		return true
	}
	if c.Kind != o.Kind {
		return false
	}
	if c.Kind == CellNumber {
		return c.Number == o.Number
	}
	return c.Text == o.Text
}

func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CellText:
		return json.Marshal(c.Text)
	case CellNumber:
		return json.Marshal(c.Number)
	default:
		return []byte("null"), nil
	}
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = EmptyCell()
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CellFromString(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*c = TextCell(strconv.FormatBool(b))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("unsupported cell value %s: %w", string(data), err)
		}
		*c = NumberCell(f)
	}
	return nil
}
