package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/config"
	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
	"github.com/titanops/vista-sync/internal/titan"
	"github.com/titanops/vista-sync/internal/vista"
)

// engineEnv holds the pool and the reconciliation service used by every
// command.
type engineEnv struct {
	Pool    *pgxpool.Pool
	Service *vista.Service
}

// Close releases the pool.
func (e *engineEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initEngine validates config for mode, connects, and builds the service.
// Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	sc, err := serviceConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect database")
	}

	svc, err := vista.NewService(pool, titan.NewPostgresDirectory(), sc)
	if err != nil {
		pool.Close()
		return nil, err
	}

	zap.L().Debug("engine initialized", zap.String("mode", mode))
	return &engineEnv{Pool: pool, Service: svc}, nil
}

// serviceConfig translates configuration into engine settings.
func serviceConfig(c *config.Config) (vista.ServiceConfig, error) {
	layout, err := vista.LoadLayout(c.Import.LayoutPath)
	if err != nil {
		return vista.ServiceConfig{}, err
	}
	m := c.Match
	return vista.ServiceConfig{
		Layout:            layout,
		ChunkSize:         c.Import.ChunkSize,
		AutoMatchOnUpload: c.Import.AutoMatchOnUpload,
		TrigramWeight:     m.TrigramWeight,
		Match: vista.MatchOptions{
			AutoLinkThreshold: m.AutoLinkThreshold,
			AmbiguityMargin:   m.AmbiguityMargin,
			CandidateFloor:    m.CandidateFloor,
			PrefilterFloor:    m.PrefilterFloor,
			MaxCandidates:     m.MaxCandidates,
			TopN:              m.TopN,
			BandHigh:          m.BandHigh,
			BandMedium:        m.BandMedium,
			PageSize:          m.PageSize,
		},
		Retry: resilience.FromConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs),
	}, nil
}

// parseTenant parses a required tenant id flag.
func parseTenant(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, eris.Errorf("invalid --tenant %q: expected a uuid", s)
	}
	return id, nil
}

// parseActor parses an optional user id flag.
func parseActor(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, eris.Errorf("invalid --user %q: expected a uuid", s)
	}
	return &id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
