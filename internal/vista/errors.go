package vista

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Sentinel errors. Callers test with errors.Is.
var (
	ErrNotFound          = eris.New("vista: record not found")
	ErrEntityNotFound    = eris.New("vista: internal entity not found")
	ErrInvalidTransition = eris.New("vista: invalid link status transition")
	ErrUnknownEntityType = eris.New("vista: unknown entity type")
)

// ErrNoRecognizedSheets is matched by a *SheetError from Importer.Import.
var ErrNoRecognizedSheets = eris.New("vista: no recognized sheets")

// SheetError reports a workbook without any importable sheet.
type SheetError struct {
	Found []string
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("vista: no recognized sheets (found: %s)", strings.Join(e.Found, ", "))
}

// Is lets errors.Is(err, ErrNoRecognizedSheets) match.
func (e *SheetError) Is(target error) bool {
	return target == ErrNoRecognizedSheets
}

// ErrInvalidInput reports a malformed request value.
var ErrInvalidInput = eris.New("vista: invalid input")

// ErrInvalidWorkbook reports an upload that is not a readable workbook.
var ErrInvalidWorkbook = eris.New("vista: invalid workbook")
