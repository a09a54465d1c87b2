package vista

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"go.uber.org/zap"

	"github.com/titanops/vista-sync/internal/db"
	"github.com/titanops/vista-sync/internal/resilience"
	"github.com/titanops/vista-sync/internal/titan"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	tenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	actorID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	created  = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
)

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1}
}

var recordColumnNames = []string{
	"id", "tenant_id", "key", "name", "city", "state", "department_code", "fields", "raw_data",
	"link_status", "linked_entity_id", "link_confidence", "linked_at", "linked_by",
	"linked_department_id", "import_batch_id", "imported_at", "created_at", "updated_at",
}

// testRecord describes a stored row for mocked record queries.
type testRecord struct {
	id         uuid.UUID
	key        string
	matchKey   string
	name       string
	city       string
	state      string
	fields     string
	raw        string
	status     LinkStatus
	linked     *uuid.UUID
	confidence *float64
	linkedBy   *uuid.UUID
	department *uuid.UUID
}

func (r testRecord) values() []any {
	fields := r.fields
	if fields == "" {
		fields = "{}"
	}
	raw := r.raw
	if raw == "" {
		raw = "{}"
	}
	status := r.status
	if status == "" {
		status = StatusUnmatched
	}
	var linkedAt *time.Time
	if status != StatusUnmatched {
		linkedAt = &created
	}
	return []any{
		r.id, tenantID, r.key, r.name, r.city, r.state, nil, []byte(fields), []byte(raw),
		string(status), r.linked, r.confidence, linkedAt, r.linkedBy,
		r.department, nil, nil, created, created,
	}
}

func recordRows(recs ...testRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows(recordColumnNames)
	for _, r := range recs {
		rows.AddRow(r.values()...)
	}
	return rows
}

func pendingRows(recs ...testRecord) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "key", "match_key", "name", "city", "state"})
	for _, r := range recs {
		rows.AddRow(r.id, r.key, r.matchKey, r.name, r.city, r.state)
	}
	return rows
}

func ptr[T any](v T) *T { return &v }

// fakeDirectory is an in-memory titan.Directory.
type fakeDirectory struct {
	mu         sync.Mutex
	entities   map[titan.Kind][]titan.Entity
	depts      map[string]uuid.UUID
	createErr  error
	created    []titan.NewEntity
	candidates int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entities: map[titan.Kind][]titan.Entity{}, depts: map[string]uuid.UUID{}}
}

func (f *fakeDirectory) add(kind titan.Kind, number, name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.entities[kind] = append(f.entities[kind], titan.Entity{ID: id, Number: number, Name: name})
	return id
}

func (f *fakeDirectory) Candidates(_ context.Context, _ db.Querier, _ uuid.UUID, kind titan.Kind, _ titan.CandidateQuery) ([]titan.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates++
	return append([]titan.Entity(nil), f.entities[kind]...), nil
}

func (f *fakeDirectory) Exists(_ context.Context, _ db.Querier, _ uuid.UUID, kind titan.Kind, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities[kind] {
		if e.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDirectory) Create(_ context.Context, _ db.Querier, _ uuid.UUID, e titan.NewEntity) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.created = append(f.created, e)
	id := uuid.New()
	f.entities[e.Kind] = append(f.entities[e.Kind], titan.Entity{ID: id, Number: e.Number, Name: e.Name})
	return id, nil
}

func (f *fakeDirectory) DepartmentsByCode(_ context.Context, _ db.Querier, _ uuid.UUID, codes []string) (map[string]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]uuid.UUID{}
	for _, c := range codes {
		if id, ok := f.depts[c]; ok {
			out[c] = id
		}
	}
	return out, nil
}

func (f *fakeDirectory) DepartmentExists(_ context.Context, _ db.Querier, _ uuid.UUID, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.depts {
		if d == id {
			return true, nil
		}
	}
	return false, nil
}
