package vista

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
)

// DefaultChunkSize bounds rows per upsert transaction.
const DefaultChunkSize = 500

// RowFailure reports a row rejected by the database.
type RowFailure struct {
	Row   int    `json:"row"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// UpsertResult counts the outcome of an upsert run.
type UpsertResult struct {
	New      int          `json:"new"`
	Updated  int          `json:"updated"`
	Failed   int          `json:"failed"`
	Failures []RowFailure `json:"failures,omitempty"`
}

// Upserter writes mapped rows keyed on (tenant_id, natural key). Link
// columns are never part of the write so existing links survive re-import.
type Upserter struct {
	pool      db.Pool
	chunkSize int
	retry     resilience.RetryConfig
}

// NewUpserter creates an Upserter. A non-positive chunkSize uses
// DefaultChunkSize.
func NewUpserter(pool db.Pool, chunkSize int, retry resilience.RetryConfig) *Upserter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Upserter{pool: pool, chunkSize: chunkSize, retry: retry}
}

// upsertColumns lists the columns written for d, conflict keys first.
func upsertColumns(d *EntityDescriptor) []string {
	cols := []string{"tenant_id", d.KeyColumn, "name", "city", "state", "department_code"}
	cols = append(cols, d.ColumnNames()...)
	return append(cols, "raw_data", "import_batch_id", "imported_at", "updated_at")
}

// Upsert writes rows in chunks, one transaction per chunk. A chunk rejected
// for bad data is replayed row by row so only the offending rows fail. On
// any other error the result holds what committed before it.
func (u *Upserter) Upsert(ctx context.Context, d *EntityDescriptor, tenantID, batchID uuid.UUID, rows []MappedRow) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}

	cfg := db.UpsertConfig{
		Table:        d.Table,
		Columns:      upsertColumns(d),
		ConflictKeys: []string{"tenant_id", d.KeyColumn},
	}
	now := time.Now().UTC()
	log := zap.L().With(
		zap.String("tenant_id", tenantID.String()),
		zap.String("entity_type", string(d.Type)),
		zap.String("batch_id", batchID.String()),
	)

	for start := 0; start < len(rows); start += u.chunkSize {
		end := min(start+u.chunkSize, len(rows))
		chunk := rows[start:end]

		values := make([][]any, len(chunk))
		for i := range chunk {
			values[i] = rowValues(d, tenantID, batchID, now, &chunk[i])
		}

		out, err := u.write(ctx, cfg, values)
		if err == nil {
			res.New += out.Inserted
			res.Updated += out.Updated
			continue
		}
		if !resilience.IsRowError(err) {
			return res, eris.Wrapf(err, "vista: upsert %s rows %d-%d", d.Type, start+1, end)
		}

		log.Warn("vista: chunk rejected, retrying row by row",
			zap.Int("chunk_start", start+1), zap.Int("chunk_size", len(chunk)), zap.Error(err))
		for i := range chunk {
			out, err := u.write(ctx, cfg, values[i:i+1])
			switch {
			case err == nil:
				res.New += out.Inserted
				res.Updated += out.Updated
			case resilience.IsRowError(err):
				res.Failed++
				res.Failures = append(res.Failures, RowFailure{Row: chunk[i].Row, Key: chunk[i].Key, Error: rootMessage(err)})
				log.Warn("vista: row rejected", zap.String("key", chunk[i].Key), zap.Error(err))
			default:
				return res, eris.Wrapf(err, "vista: upsert %s row %d", d.Type, chunk[i].Row)
			}
		}
	}
	return res, nil
}

func (u *Upserter) write(ctx context.Context, cfg db.UpsertConfig, values [][]any) (db.UpsertResult, error) {
	retry := u.retry
	retry.OnRetry = resilience.RetryLogger("vista.upsert", zap.String("table", cfg.Table))
	return resilience.DoVal(ctx, retry, func(ctx context.Context) (db.UpsertResult, error) {
		return db.BulkUpsert(ctx, u.pool, cfg, values)
	})
}

// rowValues renders one row in upsertColumns order.
func rowValues(d *EntityDescriptor, tenantID, batchID uuid.UUID, now time.Time, r *MappedRow) []any {
	vals := []any{tenantID, r.Key, nullText(r.Name), nullText(r.City), nullText(r.State), nullText(r.DepartmentCode)}
	for _, c := range d.Columns {
		vals = append(vals, copyValue(r.Fields[c.Name]))
	}
	raw := r.Raw
	if raw == nil {
		raw = map[string]string{}
	}
	return append(vals, raw, batchID, now, now)
}

func copyValue(v any) any {
	switch x := v.(type) {
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return numeric(x.Decimal)
	case decimal.Decimal:
		return numeric(x)
	case string:
		return nullText(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case *bool:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// rootMessage returns the innermost error text without wrapping context.
func rootMessage(err error) string {
	return eris.Cause(err).Error()
}
