package workbook

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
)

// Text returns the trimmed cell text.
func Text(c Cell) string {
	return strings.TrimSpace(c.Value)
}

// Money parses currency text such as "$1,234.56" or "(12.50)" and plain
// numbers. Blank or unparseable input yields an invalid NullDecimal, never zero.
func Money(c Cell) decimal.NullDecimal {
	s := strings.TrimSpace(c.Value)
	if s == "" || s == "-" {
		return decimal.NullDecimal{}
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasSuffix(s, "-") {
		neg = !neg
		s = strings.TrimSuffix(s, "-")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if neg {
		d = d.Neg()
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-2006",
	"01-02-06",
	"Jan 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
}

// Date parses spreadsheet serial numbers (1900 or 1904 epoch) and ISO or
// US formatted strings. The result is truncated to a calendar date.
func Date(c Cell, date1904 bool) *time.Time {
	s := strings.TrimSpace(c.Value)
	if s == "" {
		return nil
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// Serials below 1 are time-of-day only; above 2958465 is past 9999-12-31.
		if serial < 1 || serial > 2958465 {
			return nil
		}
		t := xlsx.TimeFromExcelTime(serial, date1904)
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

// Bool accepts Y/N, Yes/No, True/False, 1/0 and Active/Inactive.
func Bool(c Cell) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(c.Value)) {
	case "y", "yes", "true", "1", "active", "a":
		v = true
	case "n", "no", "false", "0", "inactive", "i", "terminated":
		v = false
	default:
		return nil
	}
	return &v
}
