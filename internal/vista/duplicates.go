package vista

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

// DuplicateOptions narrows a duplicate report. Zero values use defaults.
type DuplicateOptions struct {
	MinSimilarity float64
	TopN          int
	Limit         int
}

// DuplicateGroup is one unmatched record with its likely internal matches.
type DuplicateGroup struct {
	RecordID   uuid.UUID        `json:"record_id"`
	Key        string           `json:"key"`
	Name       string           `json:"name"`
	City       string           `json:"city,omitempty"`
	State      string           `json:"state,omitempty"`
	BestScore  float64          `json:"best_score"`
	Candidates []MatchCandidate `json:"candidates"`
}

// DuplicateStats buckets unmatched records by their best candidate score.
type DuplicateStats struct {
	Total  int `json:"total"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	None   int `json:"none"`
}

// Reporter surfaces ambiguous matches for human review. It never writes.
type Reporter struct {
	pool   db.Pool
	finder *candidateFinder
}

// NewReporter creates a Reporter.
func NewReporter(pool db.Pool, dir titan.Directory, scorer *similarity.Scorer, opts MatchOptions) *Reporter {
	return &Reporter{pool: pool, finder: &candidateFinder{dir: dir, scorer: scorer, opts: opts.withDefaults()}}
}

// Duplicates lists unmatched records that have at least one candidate
// scoring at or above the floor, best groups first.
func (r *Reporter) Duplicates(ctx context.Context, tenantID uuid.UUID, t EntityType, opts DuplicateOptions) ([]DuplicateGroup, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	floor := math.Max(r.finder.opts.CandidateFloor, opts.MinSimilarity)
	topN := opts.TopN
	if topN <= 0 {
		topN = r.finder.opts.TopN
	}

	var groups []DuplicateGroup
	err = eachUnmatched(ctx, r.pool, d, tenantID, r.finder.opts.PageSize, nil, func(p pending) error {
		cands, err := r.finder.score(ctx, r.pool, d, tenantID, p)
		if err != nil {
			return err
		}
		kept := cands[:0]
		for _, c := range cands {
			if c.Score >= floor {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return nil
		}
		if len(kept) > topN {
			kept = kept[:topN]
		}
		groups = append(groups, DuplicateGroup{
			RecordID:   p.ID,
			Key:        p.Key,
			Name:       p.Name,
			City:       p.City,
			State:      p.State,
			BestScore:  kept[0].Score,
			Candidates: kept,
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "vista: duplicates for %s", t)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].BestScore != groups[j].BestScore {
			return groups[i].BestScore > groups[j].BestScore
		}
		return groups[i].Key < groups[j].Key
	})
	if opts.Limit > 0 && len(groups) > opts.Limit {
		groups = groups[:opts.Limit]
	}
	return groups, nil
}

// Stats buckets every unmatched record into high, medium, low or none.
func (r *Reporter) Stats(ctx context.Context, tenantID uuid.UUID, t EntityType) (DuplicateStats, error) {
	d, err := Describe(t)
	if err != nil {
		return DuplicateStats{}, err
	}
	o := r.finder.opts

	var s DuplicateStats
	err = eachUnmatched(ctx, r.pool, d, tenantID, o.PageSize, nil, func(p pending) error {
		s.Total++
		cands, err := r.finder.score(ctx, r.pool, d, tenantID, p)
		if err != nil {
			return err
		}
		best := 0.0
		if len(cands) > 0 {
			best = cands[0].Score
		}
		switch {
		case best >= o.BandHigh:
			s.High++
		case best >= o.BandMedium:
			s.Medium++
		case best >= o.CandidateFloor:
			s.Low++
		default:
			s.None++
		}
		return nil
	})
	if err != nil {
		return DuplicateStats{}, eris.Wrapf(err, "vista: duplicate stats for %s", t)
	}
	return s, nil
}
