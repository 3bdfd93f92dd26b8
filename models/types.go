package models

import (
	"math"
	"strconv"
	"strings"
)

// ColumnType is the inferred type of a column
type ColumnType string

const (
	TypeInt    ColumnType = "int64"
	TypeFloat  ColumnType = "float64"
	TypeObject ColumnType = "object"
)

// ColumnInfo describes one dataset column
type ColumnInfo struct {
	Name         string
	Type         ColumnType
	NonNullCount int
}

// ColumnInfo returns name, inferred type and non-null count for every column
func (d *Dataset) ColumnInfo() []ColumnInfo {
	if d == nil {
		return nil
	}
	infos := make([]ColumnInfo, 0, len(d.Columns))
	for _, c := range d.Columns {
		infos = append(infos, ColumnInfo{
			Name:         c,
			Type:         d.ColumnType(c),
			NonNullCount: d.NonNullCount(c),
		})
	}
	return infos
}

// NonNullCount counts the non-null cells in a column
func (d *Dataset) NonNullCount(col string) int {
	n := 0
	for _, r := range d.Rows {
		if _, ok := r[col]; ok {
			n++
		}
	}
	return n
}

// ColumnType infers the column type from its non-null values.
// A column with no values is an object column.
func (d *Dataset) ColumnType(col string) ColumnType {
	t := TypeInt
	seen := false
	for _, r := range d.Rows {
		v, ok := r[col]
		if !ok {
			continue
		}
		seen = true
		switch {
		case t == TypeInt && IsInt(v):
		case IsFloat(v):
			t = TypeFloat
		default:
			return TypeObject
		}
	}
	if !seen {
		return TypeObject
	}
	return t
}

// NormalizeNumber strips whitespace and thousands separators from a numeric cell
func NormalizeNumber(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), ",", "")
}

// IsInt reports whether v is an integer once normalized
func IsInt(v string) bool {
	_, err := strconv.ParseInt(NormalizeNumber(v), 10, 64)
	return err == nil
}

// IsFloat reports whether v is a finite number once normalized
func IsFloat(v string) bool {
	n := NormalizeNumber(v)
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return false
	}
	// ParseFloat accepts "Inf" and "NaN", JSON cannot carry them
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
