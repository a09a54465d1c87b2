package vista

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

// Promotion outcomes per record.
const (
	PromoteCreated = "created"
	PromoteLinked  = "linked"
	PromoteSkipped = "skipped"
	PromoteFailed  = "failed"
)

// PromoteItem reports one record's promotion.
type PromoteItem struct {
	RecordID uuid.UUID  `json:"record_id"`
	Key      string     `json:"key"`
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

// PromoteResult summarizes a promotion run. Imported counts created
// entities; Linked counts records attached to an entity that already
// existed.
type PromoteResult struct {
	Imported int           `json:"imported"`
	Linked   int           `json:"linked"`
	Total    int           `json:"total"`
	Results  []PromoteItem `json:"results"`
}

const (
	existingNameFloor = 0.6
	existingLimit     = 10
)

// Promoter turns records still unmatched into internal entities and links
// each record to its entity.
type Promoter struct {
	pool     db.Pool
	dir      titan.Directory
	retry    resilience.RetryConfig
	pageSize int
}

// NewPromoter creates a Promoter.
func NewPromoter(pool db.Pool, dir titan.Directory, retry resilience.RetryConfig, pageSize int) *Promoter {
	if pageSize <= 0 {
		pageSize = DefaultMatchOptions().PageSize
	}
	return &Promoter{pool: pool, dir: dir, retry: retry, pageSize: pageSize}
}

var (
	// errNotUnmatched marks a record decided by someone else mid-run.
	errNotUnmatched = eris.New("record no longer unmatched")
	// errSeveralExisting marks a record whose number or name already
	// belongs to more than one internal entity.
	errSeveralExisting = eris.New("several internal entities already match")
)

// promoted is the entity a record ended up linked to.
type promoted struct {
	ID      uuid.UUID
	Existed bool
}

// Promote walks the tenant's unmatched records of type t. Each record is
// promoted in its own transaction after re-checking its status under a row
// lock, so a rerun only sees what is left.
func (p *Promoter) Promote(ctx context.Context, tenantID uuid.UUID, t EntityType, actor *uuid.UUID) (*PromoteResult, error) {
	d, err := Describe(t)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("tenant_id", tenantID.String()), zap.String("entity_type", string(t)))

	res := &PromoteResult{Results: []PromoteItem{}}
	err = eachUnmatched(ctx, p.pool, d, tenantID, p.pageSize, nil, func(rec pending) error {
		res.Total++
		item := PromoteItem{RecordID: rec.ID, Key: rec.Key, Name: rec.Name}
		if rec.Name == "" {
			item.Status = PromoteSkipped
			item.Reason = "record has no name"
			res.Results = append(res.Results, item)
			return nil
		}

		out, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (promoted, error) {
			return p.promoteOne(ctx, d, tenantID, rec.ID, actor)
		})
		switch {
		case err == nil && out.Existed:
			item.Status = PromoteLinked
			item.EntityID = &out.ID
			res.Linked++
		case err == nil:
			item.Status = PromoteCreated
			item.EntityID = &out.ID
			res.Imported++
		case errors.Is(err, errNotUnmatched), errors.Is(err, errSeveralExisting):
			item.Status = PromoteSkipped
			item.Reason = eris.Cause(err).Error()
		case resilience.IsRowError(err):
			item.Status = PromoteFailed
			item.Reason = rootMessage(err)
			log.Warn("vista: promotion rejected", zap.String("record_id", rec.ID.String()), zap.Error(err))
		default:
			return err
		}
		res.Results = append(res.Results, item)
		return nil
	})
	if err != nil {
		return res, eris.Wrapf(err, "vista: promote %s", t)
	}

	log.Info("vista: promotion complete",
		zap.Int("imported", res.Imported), zap.Int("linked", res.Linked), zap.Int("total", res.Total))
	return res, nil
}

// promoteOne links the record to the single internal entity that already
// carries its number (or its name, when it has no number), creating one
// when none exists.
func (p *Promoter) promoteOne(ctx context.Context, d *EntityDescriptor, tenantID, id uuid.UUID, actor *uuid.UUID) (promoted, error) {
	var out promoted
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		rec, err := getRecord(ctx, tx, d, tenantID, id, true)
		if errors.Is(err, ErrNotFound) {
			return errNotUnmatched
		}
		if err != nil {
			return err
		}
		if rec.LinkStatus != StatusUnmatched {
			return errNotUnmatched
		}

		ne := d.NewEntity(rec)
		out.ID, err = p.existing(ctx, tx, tenantID, ne)
		if err != nil {
			return err
		}
		out.Existed = out.ID != uuid.Nil
		if !out.Existed {
			if out.ID, err = p.dir.Create(ctx, tx, tenantID, ne); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET
				link_status = 'manual_matched',
				linked_entity_id = $3,
				link_confidence = NULL,
				linked_at = now(),
				linked_by = $4,
				updated_at = now()
			WHERE tenant_id = $1 AND id = $2`, pgx.Identifier{d.Table}.Sanitize()),
			tenantID, id, out.ID, actor,
		)
		if err != nil {
			return eris.Wrapf(err, "vista: link promoted %s %s", d.Type, id)
		}
		return nil
	})
	return out, err
}

// existing returns the id of the one internal entity matching ne exactly,
// uuid.Nil when there is none.
func (p *Promoter) existing(ctx context.Context, q db.Querier, tenantID uuid.UUID, ne titan.NewEntity) (uuid.UUID, error) {
	name := ne.Name
	if name == "" {
		name = strings.TrimSpace(ne.FirstName + " " + ne.LastName)
	}
	if ne.Number == "" && name == "" {
		return uuid.Nil, nil
	}

	ents, err := p.dir.Candidates(ctx, q, tenantID, ne.Kind, titan.CandidateQuery{
		Number:        ne.Number,
		Name:          name,
		MinSimilarity: existingNameFloor,
		Limit:         existingLimit,
	})
	if err != nil {
		return uuid.Nil, err
	}

	var hits []uuid.UUID
	for _, e := range ents {
		if ne.Number != "" && similarity.ExactKey(e.Number, ne.Number) ||
			ne.Number == "" && similarity.ExactName(e.Name, name) {
			hits = append(hits, e.ID)
		}
	}
	switch len(hits) {
	case 0:
		return uuid.Nil, nil
	case 1:
		return hits[0], nil
	default:
		return uuid.Nil, errSeveralExisting
	}
}
