package vista

import (
	"github.com/titanops/vista-sync/internal/workbook"
)

// MappedRow is one sheet row coerced for the type's table.
type MappedRow struct {
	// Row is the 1-based position among the sheet's data rows.
	Row            int
	Key            string
	Name           string
	City           string
	State          string
	DepartmentCode string
	// Fields holds business columns: string, decimal.NullDecimal,
	// *time.Time or *bool; nil for blank text.
	Fields Fields
	Raw    map[string]string
}

// MapResult is the outcome of mapping one sheet.
type MapResult struct {
	Rows    []MappedRow
	Total   int
	Skipped int
}

// Map coerces sheet rows for d. Rows without a key are skipped; when a key
// repeats, the last occurrence wins and earlier ones count as skipped.
func (l *Layout) Map(d *EntityDescriptor, sh *workbook.Sheet, date1904 bool) MapResult {
	res := MapResult{Total: len(sh.Rows)}

	mapped := make([]MappedRow, 0, len(sh.Rows))
	lastByKey := make(map[string]int, len(sh.Rows))
	for i, cells := range sh.Rows {
		rec := sh.Record(cells)
		key := l.text(d.Type, rec, fieldKey)
		if key == "" {
			res.Skipped++
			continue
		}

		row := MappedRow{
			Row:            i + 1,
			Key:            key,
			City:           l.text(d.Type, rec, fieldCity),
			State:          l.text(d.Type, rec, fieldState),
			DepartmentCode: l.text(d.Type, rec, fieldDepartmentCode),
			Fields:         make(Fields, len(d.Columns)),
			Raw:            sh.Raw(cells),
		}
		for _, col := range d.Columns {
			row.Fields[col.Name] = l.coerce(d.Type, rec, col, date1904)
		}
		row.Name = d.MatchName(row.Fields, l.text(d.Type, rec, fieldName))

		if prev, dup := lastByKey[key]; dup {
			mapped[prev].Key = ""
			res.Skipped++
		}
		lastByKey[key] = len(mapped)
		mapped = append(mapped, row)
	}

	for _, r := range mapped {
		if r.Key != "" {
			res.Rows = append(res.Rows, r)
		}
	}
	return res
}

func (l *Layout) text(t EntityType, rec map[string]workbook.Cell, field string) string {
	c, ok := l.lookup(t, rec, field)
	if !ok {
		return ""
	}
	return workbook.Text(c)
}

func (l *Layout) coerce(t EntityType, rec map[string]workbook.Cell, col Column, date1904 bool) any {
	c, ok := l.lookup(t, rec, col.Name)
	switch col.Kind {
	case ColMoney:
		return workbook.Money(c)
	case ColDate:
		return workbook.Date(c, date1904)
	case ColBool:
		return workbook.Bool(c)
	default:
		if !ok {
			return nil
		}
		return workbook.Text(c)
	}
}
