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

func TestReporter_Duplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	acme := dir.add(titan.KindCustomer, "100", "Acme Corp")
	beta := dir.add(titan.KindCustomer, "200", "Beta Builders")

	mock.ExpectQuery(`FROM "vista_customers"`).WillReturnRows(pendingRows(
		testRecord{id: uuid.New(), key: "C-2", name: "ACME CORP"},
		testRecord{id: uuid.New(), key: "C-9", name: "Qwerty Zxcv"},
		testRecord{id: uuid.New(), key: "C-1", name: "Beta Builders LLC"},
	))

	r := NewReporter(mock, dir, similarity.NewScorer(0), DefaultMatchOptions())
	groups, err := r.Duplicates(context.Background(), tenantID, Customer, DuplicateOptions{})
	require.NoError(t, err)
	require.Len(t, groups, 2, "records without a candidate above the floor are omitted")

	assert.Equal(t, "C-1", groups[0].Key, "equal best scores sort by key")
	assert.Equal(t, 1.0, groups[0].BestScore)
	require.Len(t, groups[0].Candidates, 1)
	assert.Equal(t, beta, groups[0].Candidates[0].EntityID)

	assert.Equal(t, "C-2", groups[1].Key)
	require.Len(t, groups[1].Candidates, 1)
	assert.Equal(t, acme, groups[1].Candidates[0].EntityID)
	assert.Equal(t, "Acme Corp", groups[1].Candidates[0].EntityName)
	assert.Equal(t, groups[1].RecordID, groups[1].Candidates[0].RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReporter_DuplicatesTopNAndLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindVendor, "1", "Acme Corp")
	dir.add(titan.KindVendor, "2", "Acme Inc")
	dir.add(titan.KindVendor, "3", "Acme Co")

	mock.ExpectQuery(`FROM "vista_vendors"`).WillReturnRows(pendingRows(
		testRecord{id: uuid.New(), key: "V-1", name: "Acme"},
		testRecord{id: uuid.New(), key: "V-2", name: "Acme LLC"},
	))

	r := NewReporter(mock, dir, similarity.NewScorer(0), DefaultMatchOptions())
	groups, err := r.Duplicates(context.Background(), tenantID, Vendor, DuplicateOptions{TopN: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "V-1", groups[0].Key)
	require.Len(t, groups[0].Candidates, 2)
	assert.Equal(t, "Acme Co", groups[0].Candidates[0].EntityName, "ties sort by entity name")
	assert.Equal(t, "Acme Corp", groups[0].Candidates[1].EntityName)
}

func TestReporter_DuplicatesMinSimilarityRaisesFloor(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindVendor, "1", "Northwind Traders")

	mock.ExpectQuery(`FROM "vista_vendors"`).WillReturnRows(pendingRows(
		testRecord{id: uuid.New(), key: "V-1", name: "Northwind Trader"},
	))

	r := NewReporter(mock, dir, similarity.NewScorer(0), DefaultMatchOptions())
	groups, err := r.Duplicates(context.Background(), tenantID, Vendor, DuplicateOptions{MinSimilarity: 0.9999})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestReporter_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dir := newFakeDirectory()
	dir.add(titan.KindCustomer, "CU-1", "Acme Corp")

	mock.ExpectQuery(`FROM "vista_contracts"`).WillReturnRows(pendingRows(
		testRecord{id: uuid.New(), key: "C-1", name: "Acme Corporation"},
		testRecord{id: uuid.New(), key: "C-2", name: "Qwerty Zxcv"},
		testRecord{id: uuid.New()},
	))

	r := NewReporter(mock, dir, similarity.NewScorer(0), DefaultMatchOptions())
	s, err := r.Stats(context.Background(), tenantID, Contract)
	require.NoError(t, err)
	assert.Equal(t, DuplicateStats{Total: 3, High: 1, None: 2}, s)
}

func TestReporter_UnknownType(t *testing.T) {
	r := NewReporter(nil, newFakeDirectory(), similarity.NewScorer(0), DefaultMatchOptions())
	_, err := r.Duplicates(context.Background(), tenantID, "equipment", DuplicateOptions{})
	assert.ErrorIs(t, err, ErrUnknownEntityType)
	_, err = r.Stats(context.Background(), tenantID, "equipment")
	assert.ErrorIs(t, err, ErrUnknownEntityType)
}
