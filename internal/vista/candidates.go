package vista

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

// MatchOptions are the matching thresholds shared by the auto-matcher and
// the reporter. Zero or negative values select the defaults; equal top
// scores are ambiguous whatever the margin.
type MatchOptions struct {
	AutoLinkThreshold float64
	AmbiguityMargin   float64
	CandidateFloor    float64
	PrefilterFloor    float64
	MaxCandidates     int
	TopN              int
	BandHigh          float64
	BandMedium        float64
	PageSize          int
}

// DefaultMatchOptions returns the documented defaults.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		AutoLinkThreshold: 0.92,
		AmbiguityMargin:   0.03,
		CandidateFloor:    0.5,
		PrefilterFloor:    0.3,
		MaxCandidates:     10,
		TopN:              5,
		BandHigh:          0.9,
		BandMedium:        0.7,
		PageSize:          500,
	}
}

func (o MatchOptions) withDefaults() MatchOptions {
	def := DefaultMatchOptions()
	if o.AutoLinkThreshold <= 0 {
		o.AutoLinkThreshold = def.AutoLinkThreshold
	}
	if o.AmbiguityMargin <= 0 {
		o.AmbiguityMargin = def.AmbiguityMargin
	}
	if o.CandidateFloor <= 0 {
		o.CandidateFloor = def.CandidateFloor
	}
	if o.PrefilterFloor <= 0 {
		o.PrefilterFloor = def.PrefilterFloor
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = def.MaxCandidates
	}
	if o.TopN <= 0 {
		o.TopN = def.TopN
	}
	if o.BandHigh <= 0 {
		o.BandHigh = def.BandHigh
	}
	if o.BandMedium <= 0 {
		o.BandMedium = def.BandMedium
	}
	if o.PageSize <= 0 {
		o.PageSize = def.PageSize
	}
	return o
}

// MatchCandidate is a scored internal entity for one external record.
type MatchCandidate struct {
	RecordID     uuid.UUID `json:"record_id"`
	EntityID     uuid.UUID `json:"entity_id"`
	EntityNumber string    `json:"entity_number"`
	EntityName   string    `json:"entity_name"`
	similarity.Result
}

// pending is the slice of an unmatched record the matchers need.
type pending struct {
	ID       uuid.UUID
	Key      string
	MatchKey string
	Name     string
	City     string
	State    string
}

func (p pending) subject() similarity.Subject {
	return similarity.Subject{Key: p.MatchKey, Name: p.Name, City: p.City, State: p.State}
}

// unmatchedPage returns up to limit unmatched records with id > after,
// ordered by id. A non-nil batchID restricts to one import batch.
func unmatchedPage(ctx context.Context, q db.Querier, d *EntityDescriptor, tenantID, after uuid.UUID, limit int, batchID *uuid.UUID) ([]pending, error) {
	sql := fmt.Sprintf(`SELECT id, %s, coalesce(%s, ''), coalesce(name, ''), coalesce(city, ''), coalesce(state, '')
		FROM %s
		WHERE tenant_id = $1 AND link_status = 'unmatched' AND id > $2`,
		pgx.Identifier{d.KeyColumn}.Sanitize(), pgx.Identifier{d.MatchKey()}.Sanitize(), pgx.Identifier{d.Table}.Sanitize())
	args := []any{tenantID, after, limit}
	if batchID != nil {
		sql += " AND import_batch_id = $4"
		args = append(args, *batchID)
	}
	sql += " ORDER BY id LIMIT $3"

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "vista: page unmatched %s", d.Type)
	}
	defer rows.Close()

	var out []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.ID, &p.Key, &p.MatchKey, &p.Name, &p.City, &p.State); err != nil {
			return nil, eris.Wrapf(err, "vista: scan unmatched %s", d.Type)
		}
		out = append(out, p)
	}
	return out, eris.Wrapf(rows.Err(), "vista: iterate unmatched %s", d.Type)
}

// eachUnmatched walks every unmatched record of d page by page. Pages are
// fully read before fn runs, so fn may write through the same pool.
func eachUnmatched(ctx context.Context, pool db.Pool, d *EntityDescriptor, tenantID uuid.UUID, pageSize int, batchID *uuid.UUID, fn func(p pending) error) error {
	after := uuid.Nil
	for {
		page, err := unmatchedPage(ctx, pool, d, tenantID, after, pageSize, batchID)
		if err != nil {
			return err
		}
		for _, p := range page {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "vista: cancelled")
			}
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

// candidateFinder fetches prefiltered internal entities and scores them.
type candidateFinder struct {
	dir    titan.Directory
	scorer *similarity.Scorer
	opts   MatchOptions
}

// score returns every prefiltered candidate with its comparison result,
// sorted best first.
func (f *candidateFinder) score(ctx context.Context, q db.Querier, d *EntityDescriptor, tenantID uuid.UUID, p pending) ([]MatchCandidate, error) {
	if p.MatchKey == "" && p.Name == "" {
		return nil, nil
	}
	ents, err := f.dir.Candidates(ctx, q, tenantID, d.Kind, titan.CandidateQuery{
		Number:        p.MatchKey,
		Name:          p.Name,
		MinSimilarity: f.opts.PrefilterFloor,
		Limit:         f.opts.MaxCandidates,
	})
	if err != nil {
		return nil, err
	}

	self := p.subject()
	out := make([]MatchCandidate, 0, len(ents))
	for _, e := range ents {
		out = append(out, MatchCandidate{
			RecordID:     p.ID,
			EntityID:     e.ID,
			EntityNumber: e.Number,
			EntityName:   e.Name,
			Result: f.scorer.Compare(self, similarity.Subject{
				Key: e.Number, Name: e.Name, City: e.City, State: e.State,
			}),
		})
	}
	sortCandidates(out)
	return out, nil
}

// sortCandidates orders by score desc, exact number first, then name asc.
func sortCandidates(c []MatchCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].ExactKey != c[j].ExactKey {
			return c[i].ExactKey
		}
		return c[i].EntityName < c[j].EntityName
	})
}
