package filter

import (
	"screener-scraper/models"
)

// Filter removes screener table artifacts keyed on the sequence column
type Filter struct {
	sequenceColumn string
}

// NewFilter creates a new Filter instance
func NewFilter(sequenceColumn string) *Filter {
	if sequenceColumn == "" {
		sequenceColumn = models.SequenceColumn
	}
	return &Filter{
		sequenceColumn: sequenceColumn,
	}
}

// DropNullSequence drops rows without a serial number, such as the median
// summary row. Datasets without the column are returned unchanged.
func (f *Filter) DropNullSequence(ds *models.Dataset) *models.Dataset {
	if !ds.HasColumn(f.sequenceColumn) {
		return ds
	}
	return ds.Where(func(r models.Row) bool {
		_, ok := r[f.sequenceColumn]
		return ok
	})
}

// DropRepeatedHeaders drops rows whose serial number is the header label itself.
// Screener repeats the header row inside long tables.
func (f *Filter) DropRepeatedHeaders(ds *models.Dataset) *models.Dataset {
	if !ds.HasColumn(f.sequenceColumn) {
		return ds
	}
	return ds.Where(func(r models.Row) bool {
		return r[f.sequenceColumn] != f.sequenceColumn
	})
}
