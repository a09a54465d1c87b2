package vista

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/titanops/vista-sync/internal/db"
)

// Batch statuses.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// ImportBatch is one sheet of one upload.
type ImportBatch struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	FileName    string     `json:"file_name"`
	SheetName   string     `json:"sheet_name"`
	EntityType  EntityType `json:"entity_type"`
	UploadedBy  *uuid.UUID `json:"uploaded_by"`
	Status      string     `json:"status"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`

	BatchCounts
}

// BatchMeta describes a batch at creation.
type BatchMeta struct {
	TenantID   uuid.UUID
	FileName   string
	SheetName  string
	EntityType EntityType
	UploadedBy *uuid.UUID
}

// BatchCounts are the final per-sheet counters.
type BatchCounts struct {
	Total       int `json:"records_total"`
	New         int `json:"records_new"`
	Updated     int `json:"records_updated"`
	AutoMatched int `json:"records_auto_matched"`
	Skipped     int `json:"records_skipped"`
	Failed      int `json:"records_failed"`
}

// BatchManager records import batches in vista_import_batches.
type BatchManager struct {
	pool db.Pool
}

// NewBatchManager creates a BatchManager.
func NewBatchManager(pool db.Pool) *BatchManager {
	return &BatchManager{pool: pool}
}

// Create opens a batch in processing state with zeroed counters.
func (m *BatchManager) Create(ctx context.Context, meta BatchMeta) (*ImportBatch, error) {
	b := &ImportBatch{
		TenantID:   meta.TenantID,
		FileName:   meta.FileName,
		SheetName:  meta.SheetName,
		EntityType: meta.EntityType,
		UploadedBy: meta.UploadedBy,
		Status:     BatchProcessing,
	}
	err := m.pool.QueryRow(ctx,
		`INSERT INTO vista_import_batches (tenant_id, file_name, sheet_name, entity_type, uploaded_by, status)
		 VALUES ($1, $2, $3, $4, $5, 'processing') RETURNING id, created_at`,
		meta.TenantID, meta.FileName, meta.SheetName, string(meta.EntityType), meta.UploadedBy,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "vista: create batch for sheet %q", meta.SheetName)
	}
	return b, nil
}

// Complete writes final counters. A batch leaves processing exactly once.
func (m *BatchManager) Complete(ctx context.Context, id uuid.UUID, c BatchCounts) error {
	return m.finish(ctx, id, BatchCompleted, c, nil)
}

// Fail records an aborted batch with the counters that committed.
func (m *BatchManager) Fail(ctx context.Context, id uuid.UUID, c BatchCounts, errMsg string) error {
	return m.finish(ctx, id, BatchFailed, c, &errMsg)
}

func (m *BatchManager) finish(ctx context.Context, id uuid.UUID, status string, c BatchCounts, errMsg *string) error {
	tag, err := m.pool.Exec(ctx,
		`UPDATE vista_import_batches SET
			status = $2,
			records_total = $3,
			records_new = $4,
			records_updated = $5,
			records_auto_matched = $6,
			records_skipped = $7,
			records_failed = $8,
			error = $9,
			completed_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, status, c.Total, c.New, c.Updated, c.AutoMatched, c.Skipped, c.Failed, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "vista: %s batch %s", status, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "vista: batch %s is not processing", id)
	}
	return nil
}

const batchColumns = `id, tenant_id, file_name, sheet_name, entity_type,
	records_total, records_new, records_updated, records_auto_matched, records_skipped, records_failed,
	uploaded_by, status, error, created_at, completed_at`

func scanBatch(row pgx.Row) (*ImportBatch, error) {
	var (
		b  ImportBatch
		et string
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.FileName, &b.SheetName, &et,
		&b.Total, &b.New, &b.Updated, &b.AutoMatched, &b.Skipped, &b.Failed,
		&b.UploadedBy, &b.Status, &b.Error, &b.CreatedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	b.EntityType = EntityType(et)
	return &b, nil
}

// Get loads one batch of the tenant.
func (m *BatchManager) Get(ctx context.Context, tenantID, id uuid.UUID) (*ImportBatch, error) {
	b, err := scanBatch(m.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM vista_import_batches WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "vista: batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "vista: get batch %s", id)
	}
	return b, nil
}

// List returns the tenant's most recent batches, newest first.
func (m *BatchManager) List(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ImportBatch, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := m.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM vista_import_batches
		 WHERE tenant_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		tenantID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "vista: list batches")
	}
	defer rows.Close()

	var out []*ImportBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "vista: scan batch")
		}
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "vista: iterate batches")
}
