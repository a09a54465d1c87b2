package vista

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

// MatchCounts reports one auto-match run.
type MatchCounts struct {
	Matched int `json:"matched"`
	Total   int `json:"total"`
}

// AutoMatcher links unmatched records when exactly one candidate is a
// confident match.
type AutoMatcher struct {
	pool   db.Pool
	finder *candidateFinder
	retry  resilience.RetryConfig
}

// NewAutoMatcher creates an AutoMatcher.
func NewAutoMatcher(pool db.Pool, dir titan.Directory, scorer *similarity.Scorer, opts MatchOptions, retry resilience.RetryConfig) *AutoMatcher {
	return &AutoMatcher{
		pool:   pool,
		finder: &candidateFinder{dir: dir, scorer: scorer, opts: opts.withDefaults()},
		retry:  retry,
	}
}

// decision is the outcome of evaluating one record's candidates.
type decision struct {
	EntityID   uuid.UUID
	Confidence float64
}

// decide applies the linking rule to candidates sorted best first. A single
// exact natural-key match wins outright; several exact keys are ambiguous.
// Otherwise the best score must clear the threshold and lead the runner-up
// by more than the margin.
func decide(cands []MatchCandidate, opts MatchOptions) (decision, bool) {
	var exact []MatchCandidate
	for _, c := range cands {
		if c.ExactKey {
			exact = append(exact, c)
		}
	}
	switch {
	case len(exact) == 1:
		return decision{EntityID: exact[0].EntityID, Confidence: 1.0}, true
	case len(exact) > 1:
		return decision{}, false
	case len(cands) == 0:
		return decision{}, false
	}

	best := cands[0]
	if best.Score < opts.AutoLinkThreshold {
		return decision{}, false
	}
	if len(cands) > 1 {
		second := cands[1].Score
		if second >= best.Score || second >= best.Score-opts.AmbiguityMargin {
			return decision{}, false
		}
	}
	return decision{EntityID: best.EntityID, Confidence: best.Score}, true
}

// Run auto-matches the tenant's unmatched records of type t. A non-nil
// batchID limits the run to records from that import batch.
func (m *AutoMatcher) Run(ctx context.Context, tenantID uuid.UUID, t EntityType, batchID *uuid.UUID) (MatchCounts, error) {
	d, err := Describe(t)
	if err != nil {
		return MatchCounts{}, err
	}
	log := zap.L().With(zap.String("tenant_id", tenantID.String()), zap.String("entity_type", string(t)))

	var counts MatchCounts
	err = eachUnmatched(ctx, m.pool, d, tenantID, m.finder.opts.PageSize, batchID, func(p pending) error {
		counts.Total++
		cands, err := m.finder.score(ctx, m.pool, d, tenantID, p)
		if err != nil {
			return err
		}
		dec, ok := decide(cands, m.finder.opts)
		if !ok {
			return nil
		}
		linked, err := m.link(ctx, d, tenantID, p.ID, dec)
		if err != nil {
			return err
		}
		if linked {
			counts.Matched++
		} else {
			log.Debug("vista: record decided concurrently, skipped", zap.String("record_id", p.ID.String()))
		}
		return nil
	})
	if err != nil {
		return counts, eris.Wrapf(err, "vista: auto-match %s", t)
	}

	log.Info("vista: auto-match complete", zap.Int("matched", counts.Matched), zap.Int("total", counts.Total))
	return counts, nil
}

// link writes the decision only if the record is still unmatched.
func (m *AutoMatcher) link(ctx context.Context, d *EntityDescriptor, tenantID, id uuid.UUID, dec decision) (bool, error) {
	sql := fmt.Sprintf(`UPDATE %s SET
			link_status = 'auto_matched',
			linked_entity_id = $3,
			link_confidence = $4,
			linked_at = now(),
			linked_by = NULL,
			updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND link_status = 'unmatched'`, pgx.Identifier{d.Table}.Sanitize())

	return resilience.DoVal(ctx, m.retry, func(ctx context.Context) (bool, error) {
		tag, err := m.pool.Exec(ctx, sql, tenantID, id, dec.EntityID, dec.Confidence)
		if err != nil {
			return false, eris.Wrapf(err, "vista: auto-link %s %s", d.Type, id)
		}
		return tag.RowsAffected() == 1, nil
	})
}

// RunAll auto-matches every entity type concurrently and returns counts
// keyed by result key (contracts, workOrders, ...).
func (m *AutoMatcher) RunAll(ctx context.Context, tenantID uuid.UUID) (map[string]MatchCounts, error) {
	var mu sync.Mutex
	out := make(map[string]MatchCounts, len(AllTypes))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range AllTypes {
		g.Go(func() error {
			c, err := m.Run(gctx, tenantID, t, nil)
			if err != nil {
				return err
			}
			mu.Lock()
			out[t.ResultKey()] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
