package vista

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/titan"
)

// ListFilter narrows a record listing.
type ListFilter struct {
	Status LinkStatus
	Search string
	Limit  int
	Offset int
}

// RecordPage is one page of a listing.
type RecordPage struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
}

// StatusCounts holds record counts per link status.
type StatusCounts struct {
	Total         int `json:"total"`
	Unmatched     int `json:"unmatched"`
	AutoMatched   int `json:"auto_matched"`
	ManualMatched int `json:"manual_matched"`
	Ignored       int `json:"ignored"`
}

// Linker applies human link decisions. Each mutation runs in its own
// transaction holding the record's row lock.
type Linker struct {
	pool db.Pool
	dir  titan.Directory
}

// NewLinker creates a Linker.
func NewLinker(pool db.Pool, dir titan.Directory) *Linker {
	return &Linker{pool: pool, dir: dir}
}

func getRecord(ctx context.Context, q db.Querier, d *EntityDescriptor, tenantID, id uuid.UUID, forUpdate bool) (*Record, error) {
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 AND id = $2`,
		selectColumns(d), pgx.Identifier{d.Table}.Sanitize())
	if forUpdate {
		sql += " FOR UPDATE"
	}
	r, err := scanRecord(q.QueryRow(ctx, sql, tenantID, id), d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "vista: %s %s", d.Type, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "vista: get %s %s", d.Type, id)
	}
	return r, nil
}

// Get loads one record of the tenant.
func (l *Linker) Get(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID) (*Record, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	return getRecord(ctx, l.pool, d, tenantID, id, false)
}

// List returns a page of records filtered by status and a key/name search.
func (l *Linker) List(ctx context.Context, tenantID uuid.UUID, t EntityType, f ListFilter) (*RecordPage, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := "tenant_id = $1"
	args := []any{tenantID}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, eris.Wrapf(ErrInvalidInput, "vista: unknown link status %q", f.Status)
		}
		args = append(args, string(f.Status))
		where += fmt.Sprintf(" AND link_status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND (%s ILIKE $%d OR name ILIKE $%d)",
			pgx.Identifier{d.KeyColumn}.Sanitize(), len(args), len(args))
	}
	table := pgx.Identifier{d.Table}.Sanitize()

	page := &RecordPage{Limit: f.Limit, Offset: f.Offset}
	if err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s`, table, where), args...,
	).Scan(&page.Total); err != nil {
		return nil, eris.Wrapf(err, "vista: count %s", t)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := l.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s, id LIMIT $%d OFFSET $%d`,
			selectColumns(d), table, where, pgx.Identifier{d.KeyColumn}.Sanitize(), len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "vista: list %s", t)
	}
	if page.Records, err = collectRecords(rows, d); err != nil {
		return nil, eris.Wrapf(err, "vista: scan %s", t)
	}
	if page.Records == nil {
		page.Records = []*Record{}
	}
	return page, nil
}

// Counts returns the number of records per link status.
func (l *Linker) Counts(ctx context.Context, tenantID uuid.UUID, t EntityType) (StatusCounts, error) {
	d, err := Describe(t)
	if err != nil {
		return StatusCounts{}, err
	}
	rows, err := l.pool.Query(ctx,
		fmt.Sprintf(`SELECT link_status, count(*) FROM %s WHERE tenant_id = $1 GROUP BY link_status`,
			pgx.Identifier{d.Table}.Sanitize()),
		tenantID,
	)
	if err != nil {
		return StatusCounts{}, eris.Wrapf(err, "vista: counts %s", t)
	}

	var (
		c      StatusCounts
		status string
		n      int
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &n}, func() error {
		c.Total += n
		switch LinkStatus(status) {
		case StatusUnmatched:
			c.Unmatched = n
		case StatusAutoMatched:
			c.AutoMatched = n
		case StatusManualMatched:
			c.ManualMatched = n
		case StatusIgnored:
			c.Ignored = n
		}
		return nil
	})
	if err != nil {
		return StatusCounts{}, eris.Wrapf(err, "vista: scan counts %s", t)
	}
	return c, nil
}

// Link manually links a record to an internal entity of the type's kind,
// replacing any previous link.
func (l *Linker) Link(ctx context.Context, tenantID uuid.UUID, t EntityType, id, entityID uuid.UUID, actor *uuid.UUID) (*Record, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		cur, err := getRecord(ctx, tx, d, tenantID, id, true)
		if err != nil {
			return err
		}
		if !cur.LinkStatus.CanTransition(StatusManualMatched) {
			return eris.Wrapf(ErrInvalidTransition, "vista: link %s from %s", id, cur.LinkStatus)
		}
		ok, err := l.dir.Exists(ctx, tx, tenantID, d.Kind, entityID)
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrEntityNotFound, "vista: %s %s", d.Kind, entityID)
		}

		out, err = updateLink(ctx, tx, d, tenantID, id,
			`link_status = 'manual_matched', linked_entity_id = $3, link_confidence = NULL,
			 linked_at = now(), linked_by = $4`, entityID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("vista: record linked",
		zap.String("tenant_id", tenantID.String()), zap.String("entity_type", string(t)),
		zap.String("record_id", id.String()), zap.String("entity_id", entityID.String()))
	return out, nil
}

// Unlink clears any link. An unmatched record is returned unchanged.
func (l *Linker) Unlink(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID) (*Record, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		cur, err := getRecord(ctx, tx, d, tenantID, id, true)
		if err != nil {
			return err
		}
		if cur.LinkStatus == StatusUnmatched {
			out = cur
			return nil
		}
		out, err = updateLink(ctx, tx, d, tenantID, id,
			`link_status = 'unmatched', linked_entity_id = NULL, link_confidence = NULL,
			 linked_at = NULL, linked_by = NULL`)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ignore excludes an unmatched record from matching and promotion. Ignoring
// an ignored record is a no-op; linked records must be unlinked first.
func (l *Linker) Ignore(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID, actor *uuid.UUID) (*Record, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}

	var out *Record
	err = db.WithTx(ctx, l.pool, func(tx pgx.Tx) error {
		cur, err := getRecord(ctx, tx, d, tenantID, id, true)
		if err != nil {
			return err
		}
		switch cur.LinkStatus {
		case StatusIgnored:
			out = cur
			return nil
		case StatusUnmatched:
		default:
			return eris.Wrapf(ErrInvalidTransition, "vista: ignore %s from %s", id, cur.LinkStatus)
		}
		out, err = updateLink(ctx, tx, d, tenantID, id,
			`link_status = 'ignored', linked_entity_id = NULL, link_confidence = NULL,
			 linked_at = now(), linked_by = $3`, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExternalOnly removes the tenant's unmatched and ignored records of
// type t and returns how many were deleted.
func (l *Linker) DeleteExternalOnly(ctx context.Context, tenantID uuid.UUID, t EntityType) (int64, error) {
	d, err := Describe(t)
	if err != nil {
		return 0, err
	}
	tag, err := l.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND link_status IN ('unmatched', 'ignored')`,
			pgx.Identifier{d.Table}.Sanitize()),
		tenantID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "vista: delete external-only %s", t)
	}
	zap.L().Info("vista: deleted external-only records",
		zap.String("tenant_id", tenantID.String()), zap.String("entity_type", string(t)),
		zap.Int64("deleted", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// updateLink applies set to one record and returns the updated row. $1 and
// $2 are the tenant and record id; extra args start at $3.
func updateLink(ctx context.Context, q db.Querier, d *EntityDescriptor, tenantID, id uuid.UUID, set string, extra ...any) (*Record, error) {
	sql := fmt.Sprintf(`UPDATE %s SET %s, updated_at = now() WHERE tenant_id = $1 AND id = $2 RETURNING %s`,
		pgx.Identifier{d.Table}.Sanitize(), set, selectColumns(d))
	args := append([]any{tenantID, id}, extra...)
	r, err := scanRecord(q.QueryRow(ctx, sql, args...), d)
	if err != nil {
		return nil, eris.Wrapf(err, "vista: update link %s %s", d.Type, id)
	}
	return r, nil
}
