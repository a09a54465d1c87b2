package vista

import (
	"context"

	"github.com/google/uuid"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

// ServiceConfig wires the engine components.
type ServiceConfig struct {
	Layout            *Layout
	ChunkSize         int
	AutoMatchOnUpload bool
	Match             MatchOptions
	TrigramWeight     float64
	Retry             resilience.RetryConfig
}

// Service bundles the reconciliation components over one pool.
type Service struct {
	Importer    *Importer
	Batches     *BatchManager
	Linker      *Linker
	Matcher     *AutoMatcher
	Reporter    *Reporter
	Promoter    *Promoter
	Departments *DepartmentLinker
}

// NewService builds every component. A nil Layout uses the embedded default.
func NewService(pool db.Pool, dir titan.Directory, cfg ServiceConfig) (*Service, error) {
	layout := cfg.Layout
	if layout == nil {
		var err error
		if layout, err = LoadLayout(""); err != nil {
			return nil, err
		}
	}

	scorer := similarity.NewScorer(cfg.TrigramWeight)
	batches := NewBatchManager(pool)
	matcher := NewAutoMatcher(pool, dir, scorer, cfg.Match, cfg.Retry)

	return &Service{
		Importer:    NewImporter(layout, batches, NewUpserter(pool, cfg.ChunkSize, cfg.Retry), matcher, cfg.AutoMatchOnUpload),
		Batches:     batches,
		Linker:      NewLinker(pool, dir),
		Matcher:     matcher,
		Reporter:    NewReporter(pool, dir, scorer, cfg.Match),
		Promoter:    NewPromoter(pool, dir, cfg.Retry, cfg.Match.PageSize),
		Departments: NewDepartmentLinker(pool, dir),
	}, nil
}

// List returns a page of records.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, t EntityType, f ListFilter) (*RecordPage, error) {
	return s.Linker.List(ctx, tenantID, t, f)
}

// Counts returns record counts per link status.
func (s *Service) Counts(ctx context.Context, tenantID uuid.UUID, t EntityType) (StatusCounts, error) {
	return s.Linker.Counts(ctx, tenantID, t)
}

// Get loads one record.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID) (*Record, error) {
	return s.Linker.Get(ctx, tenantID, t, id)
}

// Link manually links a record.
func (s *Service) Link(ctx context.Context, tenantID uuid.UUID, t EntityType, id, entityID uuid.UUID, actor *uuid.UUID) (*Record, error) {
	return s.Linker.Link(ctx, tenantID, t, id, entityID, actor)
}

// Unlink clears a record's link.
func (s *Service) Unlink(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID) (*Record, error) {
	return s.Linker.Unlink(ctx, tenantID, t, id)
}

// Ignore marks a record ignored.
func (s *Service) Ignore(ctx context.Context, tenantID uuid.UUID, t EntityType, id uuid.UUID, actor *uuid.UUID) (*Record, error) {
	return s.Linker.Ignore(ctx, tenantID, t, id, actor)
}

// DeleteExternalOnly deletes unmatched and ignored records.
func (s *Service) DeleteExternalOnly(ctx context.Context, tenantID uuid.UUID, t EntityType) (int64, error) {
	return s.Linker.DeleteExternalOnly(ctx, tenantID, t)
}

// Import processes an uploaded workbook.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	return s.Importer.Import(ctx, req)
}

// ListBatches returns the tenant's most recent import batches.
func (s *Service) ListBatches(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ImportBatch, error) {
	return s.Batches.List(ctx, tenantID, limit)
}

// AutoMatchAll auto-matches every entity type.
func (s *Service) AutoMatchAll(ctx context.Context, tenantID uuid.UUID) (map[string]MatchCounts, error) {
	return s.Matcher.RunAll(ctx, tenantID)
}

// Duplicates lists likely matches for review.
func (s *Service) Duplicates(ctx context.Context, tenantID uuid.UUID, t EntityType, opts DuplicateOptions) ([]DuplicateGroup, error) {
	return s.Reporter.Duplicates(ctx, tenantID, t, opts)
}

// DuplicateStats buckets unmatched records by best score.
func (s *Service) DuplicateStats(ctx context.Context, tenantID uuid.UUID, t EntityType) (DuplicateStats, error) {
	return s.Reporter.Stats(ctx, tenantID, t)
}

// Promote creates internal entities for unmatched records.
func (s *Service) Promote(ctx context.Context, tenantID uuid.UUID, t EntityType, actor *uuid.UUID) (*PromoteResult, error) {
	return s.Promoter.Promote(ctx, tenantID, t, actor)
}

// LinkDepartmentCode links one department code to a department.
func (s *Service) LinkDepartmentCode(ctx context.Context, tenantID uuid.UUID, code string, departmentID uuid.UUID) (map[string]int64, error) {
	return s.Departments.LinkCode(ctx, tenantID, code, departmentID)
}

// AutoLinkDepartments links every exactly matching department code.
func (s *Service) AutoLinkDepartments(ctx context.Context, tenantID uuid.UUID) (map[string]DepartmentCounts, error) {
	return s.Departments.AutoLinkExactMatches(ctx, tenantID)
}
