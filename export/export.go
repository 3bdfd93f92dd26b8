package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"screener-scraper/models"
)

// Format is a download format
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// filenameLayout is YYYYMMDD_HHMMSS
const filenameLayout = "20060102_150405"

// ParseFormat parses a format name, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV:
		return CSV, nil
	case JSON:
		return JSON, nil
	}
	return "", fmt.Errorf("unsupported format: %q", s)
}

// Serialize renders the whole dataset in the given format
func Serialize(ds *models.Dataset, format Format) (string, error) {
	switch format {
	case CSV:
		return ToCSV(ds)
	case JSON:
		return ToJSON(ds)
	}
	return "", fmt.Errorf("unsupported format: %q", format)
}

// ToCSV renders a header row followed by one line per row. Nulls are empty fields.
func ToCSV(ds *models.Dataset) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(ds.Columns); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, c := range ds.Columns {
			record[i] = row[c]
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write CSV: %w", err)
	}
	return buf.String(), nil
}

// ToJSON renders an array of row objects with keys in column order, indented
// with two spaces. Numeric columns are written as numbers and nulls as null.
func ToJSON(ds *models.Dataset) (string, error) {
	types := make([]models.ColumnType, len(ds.Columns))
	keys := make([][]byte, len(ds.Columns))
	for i, c := range ds.Columns {
		types[i] = ds.ColumnType(c)
		k, err := json.Marshal(c)
		if err != nil {
			return "", fmt.Errorf("failed to encode column %q: %w", c, err)
		}
		keys[i] = k
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range ds.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for i, c := range ds.Columns {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(keys[i])
			buf.WriteByte(':')
			v, err := jsonValue(row, c, types[i])
			if err != nil {
				return "", fmt.Errorf("failed to encode column %q: %w", c, err)
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent JSON: %w", err)
	}
	return out.String(), nil
}

func jsonValue(row models.Row, col string, t models.ColumnType) ([]byte, error) {
	v, ok := row[col]
	if !ok {
		return []byte("null"), nil
	}
	switch t {
	case models.TypeInt:
		n, err := strconv.ParseInt(models.NormalizeNumber(v), 10, 64)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.FormatInt(n, 10)), nil
	case models.TypeFloat:
		f, err := strconv.ParseFloat(models.NormalizeNumber(v), 64)
		if err != nil {
			return nil, err
		}
		return json.Marshal(f)
	}
	return json.Marshal(v)
}

// ParseCSV reads a CSV document with a header row back into a dataset.
// Empty fields become nulls.
func ParseCSV(r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return models.NewDataset(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	ds := models.NewDataset(header...)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := make(models.Row, len(record))
		for i, v := range record {
			row[header[i]] = v
		}
		ds.AddRow(row)
	}
	return ds, nil
}

// Filename names a download after the moment it was requested,
// e.g. screener_data_20240131_154502.csv
func Filename(format Format, t time.Time) string {
	return fmt.Sprintf("screener_data_%s.%s", t.Format(filenameLayout), format)
}

// ContentType returns the MIME type of a format
func ContentType(format Format) string {
	switch format {
	case CSV:
		return "text/csv"
	case JSON:
		return "application/json"
	}
	return "application/octet-stream"
}

// WriteFile serializes ds into dir and returns the path written
func WriteFile(dir string, ds *models.Dataset, format Format, t time.Time) (string, error) {
	content, err := Serialize(ds, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, Filename(format, t))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
