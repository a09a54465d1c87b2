package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for a bulk upsert operation.
type UpsertConfig struct {
	Table        string   // target table (e.g., "vista_contracts")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = all non-conflict columns
}

// UpsertResult counts how many rows were inserted versus updated.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
//  1. Creates a temp table shaped like the target (dropped on commit)
//  2. COPY rows into the temp table
//  3. Deletes duplicate conflict keys from the temp table, keeping the last copied row
//  4. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
//     RETURNING (xmax = 0) so fresh inserts can be told apart from updates
//
// Columns not listed in UpdateCols are never touched on conflict.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (UpsertResult, error) {
	if len(rows) == 0 {
		return UpsertResult{}, nil
	}

	if len(cfg.Columns) == 0 {
		return UpsertResult{}, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return UpsertResult{}, eris.New("db: upsert: no conflict keys specified")
	}

	updateCols := resolveUpdateCols(cfg)
	if len(updateCols) == 0 {
		return UpsertResult{}, eris.Errorf("db: upsert: no updatable columns for %s", cfg.Table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := TempTableName(cfg.Table)

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	conflictList := quoteAndJoin(cfg.ConflictKeys)
	dedupSQL := fmt.Sprintf(
		"DELETE FROM %[1]s t USING (SELECT %[2]s, max(ctid) AS keep FROM %[1]s GROUP BY %[2]s) d WHERE %[3]s AND t.ctid <> d.keep",
		pgx.Identifier{tempTable}.Sanitize(),
		conflictList,
		joinEquals("t", "d", cfg.ConflictKeys),
	)
	if _, err := tx.Exec(ctx, dedupSQL); err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: dedup temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	setClauses := make([]string, 0, len(updateCols))
	for _, col := range updateCols {
		ident := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", ident, ident))
	}

	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0) AS inserted",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		conflictList,
		strings.Join(setClauses, ", "),
	)

	res, err := scanInserted(ctx, tx, upsertSQL)
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: commit tx")
	}

	return res, nil
}

// TempTableName returns the session temp table used to stage rows for table.
func TempTableName(table string) string {
	return fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(table, ".", "_"))
}

func scanInserted(ctx context.Context, q Querier, sql string) (UpsertResult, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return UpsertResult{}, err
	}
	defer rows.Close()

	var res UpsertResult
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return UpsertResult{}, err
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	return res, rows.Err()
}

func resolveUpdateCols(cfg UpsertConfig) []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflictSet[k] = true
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !conflictSet[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// sanitizeTable handles schema-qualified table names like "public.vista_contracts".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// joinEquals renders "a.k1 = b.k1 AND a.k2 = b.k2".
func joinEquals(left, right string, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		ident := pgx.Identifier{c}.Sanitize()
		parts[i] = fmt.Sprintf("%s.%s = %s.%s", left, ident, right, ident)
	}
	return strings.Join(parts, " AND ")
}
