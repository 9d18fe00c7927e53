package staging

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one staged row as read back for import. Unlike StagedRecord it also
// carries an optional explicit slug, which some historical exports include.
type Row struct {
	Domain      string
	Slug        string
	Name        string
	Description string
	Website     string
	Category    string
	Pricing     string
	Logo        string
	Source      string
}

// columnAliases maps header cells to canonical column names. Two naming
// generations are accepted: the lower-case machine names the pipeline writes,
// and the capitalized labels of older directory exports. When a file carries
// both forms the machine name wins.
var columnAliases = map[string]string{
	"domain":      "domain",
	"slug":        "slug",
	"name":        "name",
	"tool name":   "name",
	"tool_name":   "name",
	"description": "description",
	"website":     "website",
	"tool_link":   "website",
	"category":    "category",
	"pricing":     "pricing",
	"logo":        "logo",
	"tool_logo":   "logo",
	"source":      "source",
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staging file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a staging CSV. The header decides column positions; unknown
// columns are ignored and ragged rows are tolerated.
func Read(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read staging header: %w", err)
	}

	// canonical column -> position; first (machine-name) binding wins
	positions := make(map[string]int, len(header))
	for i, cell := range header {
		canonical, ok := columnAliases[strings.ToLower(strings.TrimSpace(cell))]
		if !ok {
			continue
		}
		if _, bound := positions[canonical]; !bound || strings.TrimSpace(cell) == canonical {
			positions[canonical] = i
		}
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read staging row: %w", err)
		}
		cell := func(column string) string {
			i, ok := positions[column]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		rows = append(rows, Row{
			Domain:      cell("domain"),
			Slug:        cell("slug"),
			Name:        cell("name"),
			Description: cell("description"),
			Website:     cell("website"),
			Category:    cell("category"),
			Pricing:     cell("pricing"),
			Logo:        cell("logo"),
			Source:      cell("source"),
		})
	}
	return rows, nil
}
