package vista

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanops/vista-sync/internal/similarity"
	"github.com/titanops/vista-sync/internal/titan"
)

func cand(score float64, exactKey bool) MatchCandidate {
	return MatchCandidate{EntityID: uuid.New(), Result: similarity.Result{Score: score, ExactKey: exactKey}}
}

func TestDecide(t *testing.T) {
	opts := DefaultMatchOptions()

	t.Run("single exact key wins with full confidence", func(t *testing.T) {
		c := []MatchCandidate{cand(0.97, false), cand(0.4, true)}
		dec, ok := decide(c, opts)
		require.True(t, ok)
		assert.Equal(t, c[1].EntityID, dec.EntityID)
		assert.Equal(t, 1.0, dec.Confidence)
	})

	t.Run("several exact keys are ambiguous", func(t *testing.T) {
		_, ok := decide([]MatchCandidate{cand(1, true), cand(0.8, true)}, opts)
		assert.False(t, ok)
	})

	t.Run("confident unique name", func(t *testing.T) {
		c := []MatchCandidate{cand(0.95, false), cand(0.80, false)}
		dec, ok := decide(c, opts)
		require.True(t, ok)
		assert.Equal(t, c[0].EntityID, dec.EntityID)
		assert.Equal(t, 0.95, dec.Confidence)
	})

	t.Run("single candidate above threshold", func(t *testing.T) {
		_, ok := decide([]MatchCandidate{cand(0.93, false)}, opts)
		assert.True(t, ok)
	})

	t.Run("below threshold", func(t *testing.T) {
		_, ok := decide([]MatchCandidate{cand(0.91, false)}, opts)
		assert.False(t, ok)
	})

	t.Run("equal top scores never link", func(t *testing.T) {
		_, ok := decide([]MatchCandidate{cand(1, false), cand(1, false)}, opts)
		assert.False(t, ok)

		zeroMargin := opts
		zeroMargin.AmbiguityMargin = 0
		_, ok = decide([]MatchCandidate{cand(0.96, false), cand(0.96, false)}, zeroMargin)
		assert.False(t, ok)
	})

	t.Run("runner-up within margin", func(t *testing.T) {
		_, ok := decide([]MatchCandidate{cand(0.95, false), cand(0.93, false)}, opts)
		assert.False(t, ok)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, ok := decide(nil, opts)
		assert.False(t, ok)
	})
}

func TestMatchOptions_ZeroValueUsesDefaults(t *testing.T) {
	opts := MatchOptions{}.withDefaults()
	assert.Equal(t, DefaultMatchOptions(), opts)

	_, ok := decide([]MatchCandidate{cand(0.95, false), cand(0.93, false)}, opts)
	assert.False(t, ok, "runner-up within the default margin")

	custom := MatchOptions{AmbiguityMargin: 0.01}.withDefaults()
	assert.Equal(t, 0.01, custom.AmbiguityMargin)
	_, ok = decide([]MatchCandidate{cand(0.95, false), cand(0.93, false)}, custom)
	assert.True(t, ok)
}

func TestAutoMatcher_ContractLinksToCustomerByName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	customerID := dir.add(titan.KindCustomer, "CU-7", "Acme Corp")
	dir.add(titan.KindCustomer, "CU-8", "Zephyr Builders")

	rec := testRecord{id: uuid.New(), key: "C-100", name: "Acme Corp"}
	mock.ExpectQuery(`SELECT id, "contract_number", coalesce\("customer_number", ''\).*\s+FROM "vista_contracts"\s+WHERE tenant_id = \$1 AND link_status = 'unmatched' AND id > \$2 ORDER BY id LIMIT \$3`).
		WithArgs(tenantID, uuid.Nil, 500).
		WillReturnRows(pendingRows(rec))
	mock.ExpectExec(`UPDATE "vista_contracts" SET\s+link_status = 'auto_matched'`).
		WithArgs(tenantID, rec.id, customerID, 1.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	counts, err := m.Run(context.Background(), tenantID, Contract, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 1, Total: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMatcher_WorkOrderLinksByCustomerNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	customerID := dir.add(titan.KindCustomer, "42", "Acme Holdings")
	dir.add(titan.KindCustomer, "43", "Acme Corp")

	rec := testRecord{id: uuid.New(), key: "WO-1", matchKey: "0042", name: "Acme Corp"}
	mock.ExpectQuery(`FROM "vista_work_orders"`).WillReturnRows(pendingRows(rec))
	mock.ExpectExec(`UPDATE "vista_work_orders"`).
		WithArgs(tenantID, rec.id, customerID, 1.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	counts, err := m.Run(context.Background(), tenantID, WorkOrder, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 1, Total: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMatcher_AmbiguousLeftUnmatched(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindCustomer, "C-1", "Acme Corp")
	dir.add(titan.KindCustomer, "C-2", "Acme Corporation")

	rec := testRecord{id: uuid.New(), key: "9001", name: "Acme Corp"}
	mock.ExpectQuery(`FROM "vista_customers"`).WillReturnRows(pendingRows(rec))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	counts, err := m.Run(context.Background(), tenantID, Customer, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 0, Total: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMatcher_LostRaceIsSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindVendor, "V-1", "Steel Supply")

	rec := testRecord{id: uuid.New(), key: "V-1", name: "Steel Supply"}
	mock.ExpectQuery(`FROM "vista_vendors"`).WillReturnRows(pendingRows(rec))
	mock.ExpectExec(`AND link_status = 'unmatched'`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	counts, err := m.Run(context.Background(), tenantID, Vendor, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 0, Total: 1}, counts)
}

func TestAutoMatcher_BatchScopeAndPaging(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	batch := uuid.New()
	first := testRecord{id: uuid.MustParse("00000000-0000-0000-0000-000000000001"), key: "E-1", name: "Nobody Known"}
	second := testRecord{id: uuid.MustParse("00000000-0000-0000-0000-000000000002"), key: "E-2", name: "Also Unknown"}

	mock.ExpectQuery(`(?s)FROM "vista_employees".*AND import_batch_id = \$4 ORDER BY id LIMIT \$3`).
		WithArgs(tenantID, uuid.Nil, 1, batch).
		WillReturnRows(pendingRows(first))
	mock.ExpectQuery(`FROM "vista_employees"`).
		WithArgs(tenantID, first.id, 1, batch).
		WillReturnRows(pendingRows(second))
	mock.ExpectQuery(`FROM "vista_employees"`).
		WithArgs(tenantID, second.id, 1, batch).
		WillReturnRows(pendingRows())

	opts := DefaultMatchOptions()
	opts.PageSize = 1
	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), opts, noRetry())
	counts, err := m.Run(context.Background(), tenantID, Employee, &batch)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 0, Total: 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMatcher_SkipsRecordsWithoutKeyOrName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindCustomer, "CU-1", "Anything")
	mock.ExpectQuery(`FROM "vista_work_orders"`).WillReturnRows(pendingRows(testRecord{id: uuid.New()}))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	counts, err := m.Run(context.Background(), tenantID, WorkOrder, nil)
	require.NoError(t, err)
	assert.Equal(t, MatchCounts{Matched: 0, Total: 1}, counts)
	assert.Zero(t, dir.candidates)
}

func TestAutoMatcher_UnknownType(t *testing.T) {
	m := NewAutoMatcher(nil, newFakeDirectory(), similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	_, err := m.Run(context.Background(), tenantID, "truck", nil)
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}

func TestAutoMatcher_RunAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	dir := newFakeDirectory()
	empID := dir.add(titan.KindEmployee, "0042", "Jon Smith")

	for _, table := range []string{"vista_contracts", "vista_work_orders", "vista_customers", "vista_vendors"} {
		mock.ExpectQuery(`FROM "` + table + `"`).WillReturnRows(pendingRows())
	}
	rec := testRecord{id: uuid.New(), key: "42", matchKey: "42", name: "Jonathan Smyth"}
	mock.ExpectQuery(`FROM "vista_employees"`).WillReturnRows(pendingRows(rec))
	mock.ExpectExec(`UPDATE "vista_employees"`).
		WithArgs(tenantID, rec.id, empID, 1.0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	m := NewAutoMatcher(mock, dir, similarity.NewScorer(0), DefaultMatchOptions(), noRetry())
	got, err := m.RunAll(context.Background(), tenantID)
	require.NoError(t, err)

	assert.Equal(t, map[string]MatchCounts{
		"contracts":  {},
		"workOrders": {},
		"employees":  {Matched: 1, Total: 1},
		"customers":  {},
		"vendors":    {},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
