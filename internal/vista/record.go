package vista

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Fields holds type-specific business column values keyed by column name.
type Fields map[string]any

// Text returns the field as trimmed text, or "" when absent or null.
func (f Fields) Text(name string) string {
	switch v := f[name].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case *string:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	case json.Number:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Record is an external record as stored.
type Record struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	EntityType         EntityType `json:"entity_type"`
	Key                string     `json:"key"`
	Name               string     `json:"name"`
	City               string     `json:"city,omitempty"`
	State              string     `json:"state,omitempty"`
	DepartmentCode     *string    `json:"department_code"`
	Fields             Fields     `json:"fields"`
	// RawData is the source row as imported, keyed by header.
	RawData map[string]string `json:"raw_data"`
	LinkStatus         LinkStatus `json:"link_status"`
	LinkedEntityID     *uuid.UUID `json:"linked_entity_id"`
	LinkConfidence     *float64   `json:"link_confidence"`
	LinkedAt           *time.Time `json:"linked_at"`
	LinkedBy           *uuid.UUID `json:"linked_by"`
	LinkedDepartmentID *uuid.UUID `json:"linked_department_id"`
	ImportBatchID      *uuid.UUID `json:"import_batch_id"`
	ImportedAt         *time.Time `json:"imported_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// selectColumns renders the record projection for d.
func selectColumns(d *EntityDescriptor) string {
	pairs := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		pairs = append(pairs, fmt.Sprintf("'%s', %s", c.Name, pgx.Identifier{c.Name}.Sanitize()))
	}
	return fmt.Sprintf(`id, tenant_id, %s, coalesce(name, ''), coalesce(city, ''), coalesce(state, ''),
		department_code, jsonb_build_object(%s), raw_data, link_status, linked_entity_id, link_confidence::float8,
		linked_at, linked_by, linked_department_id, import_batch_id, imported_at, created_at, updated_at`,
		pgx.Identifier{d.KeyColumn}.Sanitize(), strings.Join(pairs, ", "))
}

func scanRecord(row pgx.Row, d *EntityDescriptor) (*Record, error) {
	var (
		r      Record
		fields []byte
		raw    []byte
		status string
	)
	err := row.Scan(
		&r.ID, &r.TenantID, &r.Key, &r.Name, &r.City, &r.State,
		&r.DepartmentCode, &fields, &raw, &status, &r.LinkedEntityID, &r.LinkConfidence,
		&r.LinkedAt, &r.LinkedBy, &r.LinkedDepartmentID, &r.ImportBatchID, &r.ImportedAt,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.EntityType = d.Type
	r.LinkStatus = LinkStatus(status)
	if r.Fields, err = decodeFields(fields); err != nil {
		return nil, err
	}
	if r.RawData, err = decodeRaw(raw); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRecords(rows pgx.Rows, d *EntityDescriptor) ([]*Record, error) {
	defer rows.Close()
	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows, d)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decodeFields(b []byte) (Fields, error) {
	f := Fields{}
	if len(b) == 0 {
		return f, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "vista: decode fields")
	}
	return f, nil
}

func decodeRaw(b []byte) (map[string]string, error) {
	raw := map[string]string{}
	if len(b) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, eris.Wrap(err, "vista: decode raw data")
	}
	return raw, nil
}
