package vista

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/titan"
)

// DepartmentCounts reports department propagation for one entity type.
type DepartmentCounts struct {
	CodesLinked int   `json:"codes_linked"`
	RowsUpdated int64 `json:"rows_updated"`
}

// DepartmentLinker propagates internal department ids onto records by
// their ERP department code.
type DepartmentLinker struct {
	pool db.Pool
	dir  titan.Directory
}

// NewDepartmentLinker creates a DepartmentLinker.
func NewDepartmentLinker(pool db.Pool, dir titan.Directory) *DepartmentLinker {
	return &DepartmentLinker{pool: pool, dir: dir}
}

// departmentTypes returns the types whose records carry department codes.
func departmentTypes() []*EntityDescriptor {
	var out []*EntityDescriptor
	for _, t := range AllTypes {
		if d := descriptors[t]; d.Departments {
			out = append(out, d)
		}
	}
	return out
}

// AutoLinkExactMatches links every distinct department code that equals
// (after trimming) an internal department code of the tenant.
func (l *DepartmentLinker) AutoLinkExactMatches(ctx context.Context, tenantID uuid.UUID) (map[string]DepartmentCounts, error) {
	out := make(map[string]DepartmentCounts)
	for _, d := range departmentTypes() {
		codes, err := l.distinctCodes(ctx, d, tenantID)
		if err != nil {
			return nil, err
		}
		depts, err := l.dir.DepartmentsByCode(ctx, l.pool, tenantID, codes)
		if err != nil {
			return nil, err
		}

		var c DepartmentCounts
		for _, code := range codes {
			deptID, ok := depts[code]
			if !ok {
				continue
			}
			n, err := l.apply(ctx, d, tenantID, code, deptID)
			if err != nil {
				return nil, err
			}
			c.CodesLinked++
			c.RowsUpdated += n
		}
		out[d.Type.ResultKey()] = c
	}

	zap.L().Info("vista: department codes linked", zap.String("tenant_id", tenantID.String()), zap.Any("counts", out))
	return out, nil
}

// LinkCode links every record carrying code to departmentID and returns
// rows updated per type.
func (l *DepartmentLinker) LinkCode(ctx context.Context, tenantID uuid.UUID, code string, departmentID uuid.UUID) (map[string]int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, eris.Wrap(ErrInvalidInput, "vista: department code is required")
	}
	ok, err := l.dir.DepartmentExists(ctx, l.pool, tenantID, departmentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrEntityNotFound, "vista: department %s", departmentID)
	}

	out := make(map[string]int64)
	for _, d := range departmentTypes() {
		n, err := l.apply(ctx, d, tenantID, code, departmentID)
		if err != nil {
			return nil, err
		}
		out[d.Type.ResultKey()] = n
	}
	return out, nil
}

func (l *DepartmentLinker) distinctCodes(ctx context.Context, d *EntityDescriptor, tenantID uuid.UUID) ([]string, error) {
	rows, err := l.pool.Query(ctx,
		fmt.Sprintf(`SELECT DISTINCT trim(department_code) FROM %s
			WHERE tenant_id = $1 AND coalesce(trim(department_code), '') <> ''
			ORDER BY 1`, pgx.Identifier{d.Table}.Sanitize()),
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "vista: department codes for %s", d.Type)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "vista: scan department codes for %s", d.Type)
	}
	return codes, nil
}

func (l *DepartmentLinker) apply(ctx context.Context, d *EntityDescriptor, tenantID uuid.UUID, code string, deptID uuid.UUID) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET linked_department_id = $3, updated_at = now()
			WHERE tenant_id = $1 AND trim(department_code) = $2
			  AND linked_department_id IS DISTINCT FROM $3`, pgx.Identifier{d.Table}.Sanitize()),
		tenantID, code, deptID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "vista: link department %q on %s", code, d.Type)
	}
	return tag.RowsAffected(), nil
}
