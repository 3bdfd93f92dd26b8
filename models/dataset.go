package models

// SequenceColumn is the row-ordering column screener.in puts first in every table
const SequenceColumn = "S.No."

// Row is one table row keyed by column name. A missing key is a null cell.
type Row map[string]string

// Dataset represents rows accumulated from one or more screener tables
type Dataset struct {
	Columns []string
	Rows    []Row
}

// NewDataset creates an empty Dataset with the given columns
func NewDataset(columns ...string) *Dataset {
	return &Dataset{
		Columns: append([]string(nil), columns...),
	}
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HasColumn reports whether the dataset has a column with the given name
func (d *Dataset) HasColumn(name string) bool {
	return d.columnIndex(name) >= 0
}

func (d *Dataset) columnIndex(name string) int {
	if d == nil {
		return -1
	}
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AddColumn appends a column if it is not already present
func (d *Dataset) AddColumn(name string) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
}

// AddRow appends a row. Empty values are stored as nulls.
func (d *Dataset) AddRow(row Row) {
	clean := make(Row, len(row))
	for k, v := range row {
		if v == "" {
			continue
		}
		d.AddColumn(k)
		clean[k] = v
	}
	d.Rows = append(d.Rows, clean)
}

// Append concatenates other onto d. Columns are unioned in first-seen order,
// cells missing from either side stay null.
func (d *Dataset) Append(other *Dataset) {
	if other == nil {
		return
	}
	for _, c := range other.Columns {
		d.AddColumn(c)
	}
	d.Rows = append(d.Rows, other.Rows...)
}

// Value returns the cell at row i, column col and whether it is non-null
func (d *Dataset) Value(i int, col string) (string, bool) {
	if i < 0 || i >= d.Len() {
		return "", false
	}
	v, ok := d.Rows[i][col]
	return v, ok
}

// Head returns a dataset holding at most the first n rows
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 {
		n = 0
	}
	if n > d.Len() {
		n = d.Len()
	}
	return &Dataset{
		Columns: d.Columns,
		Rows:    d.Rows[:n],
	}
}

// Where returns a new dataset with only the rows for which keep returns true.
// The result is densely indexed in the original order.
func (d *Dataset) Where(keep func(Row) bool) *Dataset {
	out := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Row, 0, d.Len()),
	}
	for _, r := range d.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
