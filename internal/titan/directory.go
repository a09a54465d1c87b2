// Package titan is the lookup and create boundary onto the platform's own
// tenant-scoped entities (employees, customers, vendors, departments).
package titan

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/titanops/vista-sync/internal/db"
)

// Kind names an internal entity table.
type Kind string

// Internal entity kinds.
const (
	KindEmployee Kind = "employee"
	KindCustomer Kind = "customer"
	KindVendor   Kind = "vendor"
)

// Source marks rows created by promotion from the ERP export.
const Source = "vista"

// Entity is a candidate internal record.
type Entity struct {
	ID     uuid.UUID `json:"id"`
	Number string    `json:"number"`
	Name   string    `json:"name"`
	City   string    `json:"city"`
	State  string    `json:"state"`
}

// NewEntity carries the fields for creating an internal record. Fields not
// stored by a kind are ignored.
type NewEntity struct {
	Kind         Kind
	Number       string
	Name         string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address      string
	City         string
	State        string
	Zip          string
	DepartmentID *uuid.UUID
}

// CandidateQuery narrows a candidate lookup.
type CandidateQuery struct {
	Number string
	Name   string
	// MinSimilarity is the pg_trgm similarity floor for name matches.
	MinSimilarity float64
	Limit         int
}

// Directory looks up and creates internal entities. Every method takes the
// querier to run on so callers can enlist it in their own transaction.
type Directory interface {
	Candidates(ctx context.Context, q db.Querier, tenantID uuid.UUID, kind Kind, cq CandidateQuery) ([]Entity, error)
	Exists(ctx context.Context, q db.Querier, tenantID uuid.UUID, kind Kind, id uuid.UUID) (bool, error)
	Create(ctx context.Context, q db.Querier, tenantID uuid.UUID, e NewEntity) (uuid.UUID, error)
	DepartmentsByCode(ctx context.Context, q db.Querier, tenantID uuid.UUID, codes []string) (map[string]uuid.UUID, error)
	DepartmentExists(ctx context.Context, q db.Querier, tenantID, id uuid.UUID) (bool, error)
}

type kindTable struct {
	table     string
	numberCol string
	nameExpr  string
	cityExpr  string
	stateExpr string
}

var kindTables = map[Kind]kindTable{
	KindEmployee: {table: "employees", numberCol: "employee_number", nameExpr: "concat_ws(' ', first_name, last_name)", cityExpr: "NULL", stateExpr: "NULL"},
	KindCustomer: {table: "customers", numberCol: "customer_number", nameExpr: "name", cityExpr: "city", stateExpr: "state"},
	KindVendor:   {table: "vendors", numberCol: "vendor_number", nameExpr: "name", cityExpr: "city", stateExpr: "state"},
}

func lookup(kind Kind) (kindTable, error) {
	kt, ok := kindTables[kind]
	if !ok {
		return kindTable{}, eris.Errorf("titan: unknown entity kind %q", kind)
	}
	return kt, nil
}

// PostgresDirectory implements Directory against the platform schema.
type PostgresDirectory struct{}

// NewPostgresDirectory creates a PostgresDirectory.
func NewPostgresDirectory() *PostgresDirectory {
	return &PostgresDirectory{}
}

// Candidates returns entities whose number equals cq.Number or whose name is
// trigram-similar to cq.Name, exact numbers first.
func (d *PostgresDirectory) Candidates(ctx context.Context, q db.Querier, tenantID uuid.UUID, kind Kind, cq CandidateQuery) ([]Entity, error) {
	kt, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	if cq.Number == "" && cq.Name == "" {
		return nil, nil
	}
	limit := cq.Limit
	if limit <= 0 {
		limit = 10
	}

	numberMatch := fmt.Sprintf(
		"($2 <> '' AND ltrim(upper(trim(%[1]s)), '0') = ltrim(upper(trim($2)), '0'))", kt.numberCol)
	sql := fmt.Sprintf(`SELECT id, coalesce(%[2]s, ''), coalesce(%[3]s, ''), coalesce(%[4]s, ''), coalesce(%[5]s, '')
		FROM %[1]s
		WHERE tenant_id = $1
		  AND (%[6]s OR ($3 <> '' AND similarity(%[3]s, $3) >= $4))
		ORDER BY %[6]s DESC, similarity(%[3]s, $3) DESC, id
		LIMIT $5`,
		kt.table, kt.numberCol, kt.nameExpr, kt.cityExpr, kt.stateExpr, numberMatch)

	rows, err := q.Query(ctx, sql, tenantID, cq.Number, cq.Name, cq.MinSimilarity, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "titan: candidates for %s", kind)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Number, &e.Name, &e.City, &e.State); err != nil {
			return nil, eris.Wrapf(err, "titan: scan %s candidate", kind)
		}
		out = append(out, e)
	}
	return out, eris.Wrapf(rows.Err(), "titan: iterate %s candidates", kind)
}

// Exists reports whether id is an entity of kind within the tenant.
func (d *PostgresDirectory) Exists(ctx context.Context, q db.Querier, tenantID uuid.UUID, kind Kind, id uuid.UUID) (bool, error) {
	kt, err := lookup(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	err = q.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE tenant_id = $1 AND id = $2)`, kt.table),
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "titan: check %s %s", kind, id)
	}
	return exists, nil
}

// Create inserts a new entity tagged with Source and returns its id.
func (d *PostgresDirectory) Create(ctx context.Context, q db.Querier, tenantID uuid.UUID, e NewEntity) (uuid.UUID, error) {
	var (
		sql  string
		args []any
	)
	switch e.Kind {
	case KindEmployee:
		sql = `INSERT INTO employees (tenant_id, employee_number, first_name, last_name, email, phone, department_id, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
		args = []any{tenantID, e.Number, e.FirstName, e.LastName, nullIfEmpty(e.Email), nullIfEmpty(e.Phone), e.DepartmentID, Source}
	case KindCustomer, KindVendor:
		kt := kindTables[e.Kind]
		sql = fmt.Sprintf(`INSERT INTO %s (tenant_id, %s, name, address, city, state, zip, phone, email, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`, kt.table, kt.numberCol)
		args = []any{tenantID, e.Number, e.Name, nullIfEmpty(e.Address), nullIfEmpty(e.City), nullIfEmpty(e.State),
			nullIfEmpty(e.Zip), nullIfEmpty(e.Phone), nullIfEmpty(e.Email), Source}
	default:
		return uuid.Nil, eris.Errorf("titan: unknown entity kind %q", e.Kind)
	}

	var id uuid.UUID
	if err := q.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return uuid.Nil, eris.Wrapf(err, "titan: create %s %q", e.Kind, e.Number)
	}
	return id, nil
}

// DepartmentsByCode resolves trimmed department codes to ids. Codes with no
// department are absent from the result.
func (d *PostgresDirectory) DepartmentsByCode(ctx context.Context, q db.Querier, tenantID uuid.UUID, codes []string) (map[string]uuid.UUID, error) {
	trimmed := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			trimmed = append(trimmed, c)
		}
	}
	if len(trimmed) == 0 {
		return map[string]uuid.UUID{}, nil
	}

	rows, err := q.Query(ctx,
		`SELECT trim(code), id FROM departments WHERE tenant_id = $1 AND trim(code) = ANY($2) ORDER BY id`,
		tenantID, trimmed,
	)
	if err != nil {
		return nil, eris.Wrap(err, "titan: departments by code")
	}

	out := make(map[string]uuid.UUID, len(trimmed))
	var (
		code string
		id   uuid.UUID
	)
	_, err = pgx.ForEachRow(rows, []any{&code, &id}, func() error {
		if _, seen := out[code]; !seen {
			out[code] = id
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "titan: scan departments")
	}
	return out, nil
}

// DepartmentExists reports whether the department belongs to the tenant.
func (d *PostgresDirectory) DepartmentExists(ctx context.Context, q db.Querier, tenantID, id uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM departments WHERE tenant_id = $1 AND id = $2)`,
		tenantID, id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "titan: check department %s", id)
	}
	return exists, nil
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
