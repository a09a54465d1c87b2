// Package workbook reads spreadsheet exports into header-addressed rows.
package workbook

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Cell is a raw spreadsheet value. Numeric is set when the cell was stored
// as a number, which is how spreadsheets store dates too.
type Cell struct {
	Value   string
	Numeric bool
}

// Sheet is one worksheet split into a header and data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]Cell
	// HeaderRow is the zero-based row index the header was read from.
	HeaderRow int
}

// Workbook wraps an opened xlsx file.
type Workbook struct {
	file *xlsx.File
}

// Open reads a workbook from disk.
func Open(path string) (*Workbook, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open file")
	}
	return &Workbook{file: f}, nil
}

// OpenBytes reads a workbook from an in-memory upload.
func OpenBytes(data []byte) (*Workbook, error) {
	if len(data) == 0 {
		return nil, eris.New("workbook: empty file")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "workbook: open binary")
	}
	return &Workbook{file: f}, nil
}

// Date1904 reports whether serial dates use the 1904 epoch.
func (w *Workbook) Date1904() bool {
	return w.file.Date1904
}

// SheetNames lists worksheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, 0, len(w.file.Sheets))
	for _, s := range w.file.Sheets {
		names = append(names, s.Name)
	}
	return names
}

// HeaderMatcher reports whether a normalized header text is a known column.
type HeaderMatcher func(header string) bool

// headerScanRows bounds how far down a sheet the header row is searched for.
const headerScanRows = 10

// Read loads the named sheet. The header is the row within the first few
// rows that contains the most known columns; without a matcher it is the
// first non-blank row. Blank data rows are dropped.
func (w *Workbook) Read(name string, known HeaderMatcher) (*Sheet, error) {
	sh, ok := w.file.Sheet[name]
	if !ok {
		return nil, eris.Errorf("workbook: sheet %q not found", name)
	}

	raw := make([][]Cell, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		raw = append(raw, rowToCells(row))
	}

	hdr := DetectHeader(raw, known)
	out := &Sheet{Name: name, HeaderRow: hdr}
	if hdr < 0 {
		return out, nil
	}

	out.Header = make([]string, len(raw[hdr]))
	for i, c := range raw[hdr] {
		out.Header[i] = strings.TrimSpace(c.Value)
	}
	for _, cells := range raw[hdr+1:] {
		if blank(cells) {
			continue
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, nil
}

// DetectHeader returns the index of the header row, or -1 when every
// scanned row is blank.
func DetectHeader(rows [][]Cell, known HeaderMatcher) int {
	best, bestHits := -1, 0
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		if blank(rows[i]) {
			continue
		}
		if known == nil {
			return i
		}
		hits := 0
		for _, c := range rows[i] {
			if known(NormalizeHeader(c.Value)) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = i, hits
		}
	}
	if best < 0 && known != nil {
		for i := 0; i < len(rows) && i < headerScanRows; i++ {
			if !blank(rows[i]) {
				return i
			}
		}
	}
	return best
}

// NormalizeHeader lowercases, reads underscores as spaces and collapses
// whitespace so " Contract  Amt ", "contract amt" and "contract_amt" compare
// equal.
func NormalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " "))
}

// Record maps normalized header text to the cell in that column.
func (s *Sheet) Record(row []Cell) map[string]Cell {
	m := make(map[string]Cell, len(s.Header))
	for i, h := range s.Header {
		key := NormalizeHeader(h)
		if key == "" || i >= len(row) {
			continue
		}
		if _, dup := m[key]; dup && strings.TrimSpace(row[i].Value) == "" {
			continue
		}
		m[key] = row[i]
	}
	return m
}

// Raw maps original header text to the trimmed cell text, omitting blanks.
func (s *Sheet) Raw(row []Cell) map[string]string {
	m := make(map[string]string, len(s.Header))
	for i, h := range s.Header {
		if h == "" || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i].Value); v != "" {
			m[h] = v
		}
	}
	return m
}

func rowToCells(row *xlsx.Row) []Cell {
	cells := make([]Cell, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = Cell{
			Value:   strings.ToValidUTF8(cell.Value, ""),
			Numeric: cell.Type() == xlsx.CellTypeNumeric,
		}
	}
	return cells
}

func blank(cells []Cell) bool {
	for _, c := range cells {
		if strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}
