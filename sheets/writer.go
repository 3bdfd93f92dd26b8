package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"screener-scraper/models"

	"github.com/charmbracelet/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// maxSheetNameLen is the Sheets limit on tab titles
const maxSheetNameLen = 100

// Writer handles writing datasets to Google Sheets
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewWriter creates a new Google Sheets writer. Credentials come from
// credentialsPath when set, otherwise from credentialsJSON.
func NewWriter(ctx context.Context, spreadsheetID, credentialsPath, credentialsJSON string) (*Writer, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is empty")
	}

	credsJSON, err := loadCredentials(credentialsPath, credentialsJSON)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credsJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
	}, nil
}

func loadCredentials(path, raw string) ([]byte, error) {
	var credsJSON []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		// Trim whitespace and newlines that might be in the environment variable
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS is empty or not set")
		}
		log.Debug("reading sheets credentials from environment", "bytes", len(raw))
		credsJSON = []byte(raw)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}
	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}
	return credsJSON, nil
}

// SpreadsheetID returns the target spreadsheet
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

// CreateSheetAndWriteDataset creates a new sheet at the front of the spreadsheet
// and writes ds to it, preceded by a metadata row holding sourceURL.
// Returns the sheet name and sheet ID (gid) that was created.
func (w *Writer) CreateSheetAndWriteDataset(ctx context.Context, sheetName string, ds *models.Dataset, sourceURL string) (string, int64, error) {
	sheetName = sanitizeSheetName(sheetName)

	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
					},
				},
			},
		},
	}

	batchUpdateResp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(batchUpdateResp.Replies) > 0 && batchUpdateResp.Replies[0].AddSheet != nil {
		sheetID = batchUpdateResp.Replies[0].AddSheet.Properties.SheetId
	}
	log.Info("created sheet", "name", sheetName, "gid", sheetID)

	valueRange := &sheets.ValueRange{
		Values: datasetValues(ds, sourceURL),
	}
	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, fmt.Sprintf("'%s'!A1", sheetName), valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return "", 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	log.Info("wrote dataset to sheet", "name", sheetName, "rows", ds.Len())
	return sheetName, sheetID, nil
}

// datasetValues lays out the metadata row, the header and one line per row.
// Numeric columns are sent as numbers so the sheet can sort them.
func datasetValues(ds *models.Dataset, sourceURL string) [][]interface{} {
	var values [][]interface{}

	if sourceURL != "" {
		values = append(values, []interface{}{"URL", sourceURL, "Source", "screener.in"})
	}

	header := make([]interface{}, len(ds.Columns))
	types := make([]models.ColumnType, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
		types[i] = ds.ColumnType(c)
	}
	values = append(values, header)

	for _, row := range ds.Rows {
		line := make([]interface{}, len(ds.Columns))
		for i, c := range ds.Columns {
			line[i] = cellValue(row, c, types[i])
		}
		values = append(values, line)
	}
	return values
}

func cellValue(row models.Row, col string, t models.ColumnType) interface{} {
	v, ok := row[col]
	if !ok {
		return ""
	}
	if t == models.TypeInt || t == models.TypeFloat {
		if f, err := strconv.ParseFloat(models.NormalizeNumber(v), 64); err == nil {
			return f
		}
	}
	return v
}

// SheetName names an export tab after the moment it was written
func SheetName(t time.Time) string {
	return "screener " + t.Format("2006-01-02 15:04:05")
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ] '
	invalidChars := []string{"/", "\\", "?", "*", "[", "]", "'"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	if r := []rune(result); len(r) > maxSheetNameLen {
		result = string(r[:maxSheetNameLen])
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) string {
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return ""
	}

	idPart := parts[1]
	if idx := strings.IndexAny(idPart, "/?#"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}

// SheetURL links straight to one tab of a spreadsheet
func SheetURL(spreadsheetID string, gid int64) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", spreadsheetID, gid)
}
