//go:build !integration

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanops/vista-sync/internal/config"
	"github.com/titanops/vista-sync/internal/vista"
)

func testConfig() *config.Config {
	return &config.Config{
		Store:  config.StoreConfig{DatabaseURL: "postgres://localhost/vista"},
		Import: config.ImportConfig{ChunkSize: 250, AutoMatchOnUpload: true},
		Match: config.MatchConfig{
			AutoLinkThreshold: 0.95, AmbiguityMargin: 0.05, CandidateFloor: 0.6,
			PrefilterFloor: 0.3, MaxCandidates: 20, TopN: 3, BandHigh: 0.9,
			BandMedium: 0.7, TrigramWeight: 0.5, PageSize: 100,
		},
		Retry: config.RetryConfig{MaxAttempts: 4, InitialBackoffMs: 50, MaxBackoffMs: 1000},
	}
}

func TestServiceConfig(t *testing.T) {
	sc, err := serviceConfig(testConfig())
	require.NoError(t, err)

	require.NotNil(t, sc.Layout)
	assert.Equal(t, 250, sc.ChunkSize)
	assert.True(t, sc.AutoMatchOnUpload)
	assert.Equal(t, 0.5, sc.TrigramWeight)
	assert.Equal(t, vista.MatchOptions{
		AutoLinkThreshold: 0.95, AmbiguityMargin: 0.05, CandidateFloor: 0.6,
		PrefilterFloor: 0.3, MaxCandidates: 20, TopN: 3, BandHigh: 0.9,
		BandMedium: 0.7, PageSize: 100,
	}, sc.Match)
	assert.Equal(t, 4, sc.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, sc.Retry.InitialBackoff)

	typ, ok := sc.Layout.Recognize("Contracts")
	assert.True(t, ok)
	assert.Equal(t, vista.Contract, typ)
}

func TestServiceConfig_CustomLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vendor:\n  sheets: [Suppliers]\n  fields:\n    key: [Supplier No]\n"), 0o600))

	c := testConfig()
	c.Import.LayoutPath = path
	sc, err := serviceConfig(c)
	require.NoError(t, err)

	typ, ok := sc.Layout.Recognize("Suppliers")
	assert.True(t, ok)
	assert.Equal(t, vista.Vendor, typ)
}

func TestServiceConfig_MissingLayout(t *testing.T) {
	c := testConfig()
	c.Import.LayoutPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := serviceConfig(c)
	assert.Error(t, err)
}

func TestParseTenant(t *testing.T) {
	id := uuid.New()
	got, err := parseTenant(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseTenant("acme")
	assert.Error(t, err)
	_, err = parseTenant(uuid.Nil.String())
	assert.Error(t, err)
}

func TestParseActor(t *testing.T) {
	got, err := parseActor("")
	require.NoError(t, err)
	assert.Nil(t, got)

	id := uuid.New()
	got, err = parseActor(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	_, err = parseActor("bob")
	assert.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]vista.MatchCounts{"vendors": {Matched: 2, Total: 5}}))
	assert.JSONEq(t, `{"vendors":{"matched":2,"total":5}}`, buf.String())
}
