// Package symbols is the static ticker lookup table used by search.
package symbols

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed constituents.csv
var constituents string

// Symbol is one row of the lookup table.
type Symbol struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Sector string `json:"sector,omitempty"`
}

// Table is an immutable, ordered list of symbols.
type Table struct {
	rows []Symbol
}

// Load reads the table from path, or from the embedded constituents list
// when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Parse(strings.NewReader(constituents))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbols file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a CSV with a header row containing at least Symbol and Name
// columns, in any order.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols header: %w", err)
	}
	symbolCol, nameCol, sectorCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "symbol":
			symbolCol = i
		case "name", "security":
			nameCol = i
		case "sector", "gics sector":
			sectorCol = i
		}
	}
	if symbolCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("symbols file needs Symbol and Name columns, got %v", header)
	}

	t := &Table{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read symbols row: %w", err)
		}
		if symbolCol >= len(rec) || nameCol >= len(rec) {
			continue
		}
		s := Symbol{
			Symbol: strings.ToUpper(strings.TrimSpace(rec[symbolCol])),
			Name:   strings.TrimSpace(rec[nameCol]),
		}
		if sectorCol >= 0 && sectorCol < len(rec) {
			s.Sector = strings.TrimSpace(rec[sectorCol])
		}
		if s.Symbol != "" {
			t.rows = append(t.rows, s)
		}
	}
	return t, nil
}

func (t *Table) Len() int { return len(t.rows) }

// Search returns the symbols whose ticker contains query, ignoring case. An
// empty query matches nothing.
func (t *Table) Search(query string) []Symbol {
	query = strings.ToUpper(strings.TrimSpace(query))
	matches := []Symbol{}
	if query == "" {
		return matches
	}
	for _, s := range t.rows {
		if strings.Contains(s.Symbol, query) {
			matches = append(matches, s)
		}
	}
	return matches
}

// Lookup returns the row for an exact ticker.
func (t *Table) Lookup(ticker string) (Symbol, bool) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	for _, s := range t.rows {
		if s.Symbol == ticker {
			return s, true
		}
	}
	return Symbol{}, false
}
