package enrich

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"SignalScanner/internal/domain"
)

// InvestableMap maps a lower-cased brand to its investment vehicle row.
type InvestableMap map[string]domain.InvestableEntry

// Lookup finds the row for a brand, case-insensitively.
func (m InvestableMap) Lookup(brand string) (domain.InvestableEntry, bool) {
	if brand == "" {
		return nil, false
	}
	e, ok := m[strings.ToLower(brand)]
	return e, ok
}

// LoadLines reads a one-entry-per-line file, skipping blanks and '#' comments. A missing
// file yields an empty list.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// LoadInvestableMap reads a CSV with a header row and a required "brand" column. A
// missing file yields an empty map.
func LoadInvestableMap(path string) (InvestableMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return InvestableMap{}, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	m, err := ParseInvestableMap(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ParseInvestableMap parses investable CSV rows from r.
func ParseInvestableMap(r io.Reader) (InvestableMap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return InvestableMap{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	out := InvestableMap{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		row := domain.InvestableEntry{}
		for i, col := range header {
			if i < len(rec) && col != "" {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		brand := row.Brand()
		if brand == "" {
			continue
		}
		out[strings.ToLower(brand)] = row
	}
	return out, nil
}
