package parser

import (
	"fmt"
	"strconv"
	"strings"

	"screener-scraper/models"

	"github.com/PuerkitoBio/goquery"
)

// Parser extracts tables from screener result pages
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseTables extracts every <table> in htmlContent as a separate dataset.
// A page without tables returns an empty slice and no error.
func (p *Parser) ParseTables(htmlContent string) ([]*models.Dataset, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var tables []*models.Dataset
	doc.Find("table").Each(func(i int, s *goquery.Selection) {
		tables = append(tables, p.extractTable(s))
	})

	return tables, nil
}

// ParsePage concatenates all tables of one page into a single dataset.
// found is false when the page has no tables.
func (p *Parser) ParsePage(htmlContent string) (page *models.Dataset, found bool, err error) {
	tables, err := p.ParseTables(htmlContent)
	if err != nil {
		return nil, false, err
	}
	if len(tables) == 0 {
		return models.NewDataset(), false, nil
	}

	page = models.NewDataset()
	for _, t := range tables {
		page.Append(t)
	}

	return page, true, nil
}

// extractTable converts one table element into a dataset
func (p *Parser) extractTable(table *goquery.Selection) *models.Dataset {
	// Only rows that belong to this table, not to tables nested in its cells
	rows := table.Find("tr").FilterFunction(func(i int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})

	var header []string
	var body [][]string

	rows.Each(func(i int, tr *goquery.Selection) {
		cells, allHeader := extractCells(tr)
		if len(cells) == 0 {
			return
		}
		inThead := goquery.NodeName(tr.Parent()) == "thead"

		// Leading rows made only of <th> cells form the header, the same as a <thead>.
		// Later header-looking rows are kept as data.
		if len(body) == 0 && (inThead || allHeader) {
			header = cells
			return
		}
		body = append(body, cells)
	})

	width := len(header)
	for _, cells := range body {
		if len(cells) > width {
			width = len(cells)
		}
	}

	columns := columnNames(header, width)
	ds := models.NewDataset(columns...)
	for _, cells := range body {
		row := make(models.Row, len(cells))
		for i, v := range cells {
			row[columns[i]] = v
		}
		ds.AddRow(row)
	}
	return ds
}

// extractCells returns the text of every cell in a row with colspans expanded,
// and whether all cells were <th>
func extractCells(tr *goquery.Selection) ([]string, bool) {
	var cells []string
	allHeader := true
	tr.ChildrenFiltered("th, td").Each(func(i int, cell *goquery.Selection) {
		if goquery.NodeName(cell) != "th" {
			allHeader = false
		}
		text := cleanText(cell.Text())
		span, err := strconv.Atoi(cell.AttrOr("colspan", "1"))
		if err != nil || span < 1 {
			span = 1
		}
		for j := 0; j < span; j++ {
			cells = append(cells, text)
		}
	})
	return cells, allHeader && len(cells) > 0
}

// columnNames builds unique column names. Missing or blank header cells are
// named by position; duplicates get a numeric suffix.
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = header[i]
		}
		if name == "" {
			name = strconv.Itoa(i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}

// cleanText collapses all whitespace, non-breaking spaces included
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
