package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUnionsColumns(t *testing.T) {
	a := NewDataset("S.No.", "Name")
	a.AddRow(Row{"S.No.": "1", "Name": "TCS"})

	b := NewDataset("S.No.", "CMP")
	b.AddRow(Row{"S.No.": "2", "CMP": "3,500.10"})

	a.Append(b)

	assert.Equal(t, []string{"S.No.", "Name", "CMP"}, a.Columns)
	require.Equal(t, 2, a.Len())

	_, ok := a.Value(1, "Name")
	assert.False(t, ok, "cell missing from the appended table should be null")
	v, ok := a.Value(1, "CMP")
	assert.True(t, ok)
	assert.Equal(t, "3,500.10", v)
}

func TestAddRowStoresEmptyAsNull(t *testing.T) {
	d := NewDataset("S.No.", "Name")
	d.AddRow(Row{"S.No.": "", "Name": "Median"})

	_, ok := d.Value(0, "S.No.")
	assert.False(t, ok)
	assert.Equal(t, 1, d.NonNullCount("Name"))
}

func TestHeadAndWhere(t *testing.T) {
	d := NewDataset("S.No.")
	for _, n := range []string{"1", "2", "3", "4"} {
		d.AddRow(Row{"S.No.": n})
	}

	assert.Equal(t, 2, d.Head(2).Len())
	assert.Equal(t, 4, d.Head(100).Len())
	assert.Equal(t, 0, d.Head(-1).Len())

	even := d.Where(func(r Row) bool { return r["S.No."] == "2" || r["S.No."] == "4" })
	require.Equal(t, 2, even.Len())
	v, _ := even.Value(0, "S.No.")
	assert.Equal(t, "2", v)
	assert.Equal(t, 4, d.Len(), "Where must not modify the source")
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		name     string
		values   []string
		expected ColumnType
	}{
		{"integers", []string{"1", "2", "30"}, TypeInt},
		{"thousands separator", []string{"1,234", "56"}, TypeInt},
		{"mixed int and float", []string{"1", "2.5"}, TypeFloat},
		{"negative float", []string{"-3.25", "1,024.5"}, TypeFloat},
		{"text", []string{"1", "Reliance"}, TypeObject},
		{"nan is text", []string{"NaN"}, TypeObject},
		{"all null", nil, TypeObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDataset("col", "other")
			for _, v := range tt.values {
				d.AddRow(Row{"col": v, "other": "x"})
			}
			d.AddRow(Row{"other": "only"})
			assert.Equal(t, tt.expected, d.ColumnType("col"))
		})
	}
}

func TestColumnInfo(t *testing.T) {
	d := NewDataset("S.No.", "Name", "P/E")
	d.AddRow(Row{"S.No.": "1", "Name": "Infosys", "P/E": "24.5"})
	d.AddRow(Row{"S.No.": "2", "Name": "Wipro"})

	infos := d.ColumnInfo()
	require.Len(t, infos, 3)
	assert.Equal(t, ColumnInfo{Name: "S.No.", Type: TypeInt, NonNullCount: 2}, infos[0])
	assert.Equal(t, ColumnInfo{Name: "Name", Type: TypeObject, NonNullCount: 2}, infos[1])
	assert.Equal(t, ColumnInfo{Name: "P/E", Type: TypeFloat, NonNullCount: 1}, infos[2])
}
