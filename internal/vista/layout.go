package vista

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/titanops/vista-sync/internal/workbook"
)

//go:embed layout.yaml
var defaultLayout []byte

// Fields every layout may map besides business columns.
const (
	fieldKey            = "key"
	fieldName           = "name"
	fieldCity           = "city"
	fieldState          = "state"
	fieldDepartmentCode = "department_code"
)

// SheetLayout lists the sheet names and per-field header aliases for one
// entity type.
type SheetLayout struct {
	Sheets []string            `yaml:"sheets"`
	Fields map[string][]string `yaml:"fields"`
}

// Layout maps each entity type to its sheet layout.
type Layout struct {
	types map[EntityType]SheetLayout
	// normalized sheet name -> type
	sheets map[string]EntityType
	// type -> normalized header -> field
	headers map[EntityType]map[string]string
	// type -> field -> normalized aliases in priority order
	aliases map[EntityType]map[string][]string
}

// LoadLayout reads the layout file at path, or the embedded default when
// path is empty.
func LoadLayout(path string) (*Layout, error) {
	data := defaultLayout
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "vista: read layout %s", path)
		}
		data = b
	}
	return ParseLayout(data)
}

// ParseLayout decodes and validates a layout document.
func ParseLayout(data []byte) (*Layout, error) {
	var raw map[string]SheetLayout
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "vista: parse layout")
	}

	l := &Layout{
		types:   make(map[EntityType]SheetLayout, len(raw)),
		sheets:  make(map[string]EntityType),
		headers: make(map[EntityType]map[string]string, len(raw)),
		aliases: make(map[EntityType]map[string][]string, len(raw)),
	}
	for name, sl := range raw {
		t, err := ParseEntityType(name)
		if err != nil {
			return nil, eris.Wrapf(err, "vista: layout entry %q", name)
		}
		d, _ := Describe(t)
		if len(sl.Fields[fieldKey]) == 0 {
			return nil, eris.Errorf("vista: layout for %s has no key aliases", t)
		}

		allowed := map[string]bool{fieldKey: true, fieldName: true, fieldCity: true, fieldState: true, fieldDepartmentCode: true}
		for _, c := range d.Columns {
			allowed[c.Name] = true
		}

		l.types[t] = sl
		l.headers[t] = make(map[string]string)
		l.aliases[t] = make(map[string][]string)
		for field, names := range sl.Fields {
			if !allowed[field] {
				return nil, eris.Errorf("vista: layout for %s maps unknown field %q", t, field)
			}
			for _, n := range names {
				h := workbook.NormalizeHeader(n)
				l.aliases[t][field] = append(l.aliases[t][field], h)
				if _, taken := l.headers[t][h]; !taken {
					l.headers[t][h] = field
				}
			}
		}
		for _, s := range sl.Sheets {
			key := workbook.NormalizeHeader(s)
			if prev, dup := l.sheets[key]; dup && prev != t {
				return nil, eris.Errorf("vista: sheet %q claimed by %s and %s", s, prev, t)
			}
			l.sheets[key] = t
		}
	}
	return l, nil
}

// Recognize maps a sheet name to its entity type.
func (l *Layout) Recognize(sheet string) (EntityType, bool) {
	t, ok := l.sheets[workbook.NormalizeHeader(sheet)]
	return t, ok
}

// HeaderMatcher reports known headers for t.
func (l *Layout) HeaderMatcher(t EntityType) workbook.HeaderMatcher {
	h := l.headers[t]
	return func(header string) bool {
		_, ok := h[header]
		return ok
	}
}

// lookup returns the first non-blank cell among the field's aliases.
func (l *Layout) lookup(t EntityType, rec map[string]workbook.Cell, field string) (workbook.Cell, bool) {
	for _, alias := range l.aliases[t][field] {
		if c, ok := rec[alias]; ok && workbook.Text(c) != "" {
			return c, true
		}
	}
	return workbook.Cell{}, false
}
