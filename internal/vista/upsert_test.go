package vista

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractRows(keys ...string) []MappedRow {
	out := make([]MappedRow, len(keys))
	for i, k := range keys {
		out[i] = MappedRow{Row: i + 1, Key: k, Name: "Job " + k, Fields: Fields{}}
	}
	return out
}

// expectChunk sets up one successful BulkUpsert transaction.
func expectChunk(mock pgxmock.PgxPoolIface, d *EntityDescriptor, inserted ...bool) {
	rows := pgxmock.NewRows([]string{"inserted"})
	for _, ins := range inserted {
		rows.AddRow(ins)
	}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + d.Table}, upsertColumns(d)).WillReturnResult(int64(len(inserted)))
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`INSERT INTO "` + d.Table + `"`).WillReturnRows(rows)
	mock.ExpectCommit()
}

// expectChunkError sets up a BulkUpsert transaction whose INSERT fails.
func expectChunkError(mock pgxmock.PgxPoolIface, d *EntityDescriptor, err error) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + d.Table}, upsertColumns(d)).WillReturnResult(1)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`INSERT INTO "` + d.Table + `"`).WillReturnError(err)
	mock.ExpectRollback()
}

func TestUpsertColumns_NeverWritesLinkColumns(t *testing.T) {
	for _, et := range AllTypes {
		d, _ := Describe(et)
		cols := upsertColumns(d)
		assert.Equal(t, []string{"tenant_id", d.KeyColumn}, cols[:2])
		for _, c := range []string{"link_status", "linked_entity_id", "link_confidence", "linked_at", "linked_by", "linked_department_id", "id", "created_at"} {
			assert.NotContains(t, cols, c, "%s must not be written on upsert of %s", c, et)
		}
		assert.Contains(t, cols, "raw_data")
		assert.Contains(t, cols, "import_batch_id")
	}
}

func TestUpsert_IdempotentReimport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, _ := Describe(Contract)
	u := NewUpserter(mock, 0, noRetry())
	rows := contractRows("C-1", "C-2", "C-3")

	expectChunk(mock, d, true, true, true)
	res, err := u.Upsert(context.Background(), d, tenantID, uuid.New(), rows)
	require.NoError(t, err)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, 0, res.Updated)

	expectChunk(mock, d, false, false, false)
	res, err = u.Upsert(context.Background(), d, tenantID, uuid.New(), rows)
	require.NoError(t, err)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 3, res.Updated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Chunks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, _ := Describe(Vendor)
	expectChunk(mock, d, true, true)
	expectChunk(mock, d, false)

	res, err := NewUpserter(mock, 2, noRetry()).Upsert(context.Background(), d, tenantID, uuid.New(), contractRows("V-1", "V-2", "V-3"))
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{New: 2, Updated: 1}, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_BadRowFallsBackToRowByRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, _ := Describe(Contract)
	bad := &pgconn.PgError{Code: "22003", Message: "numeric field overflow"}

	expectChunkError(mock, d, bad)
	expectChunk(mock, d, true)
	expectChunkError(mock, d, bad)
	expectChunk(mock, d, false)

	res, err := NewUpserter(mock, 10, noRetry()).Upsert(context.Background(), d, tenantID, uuid.New(), contractRows("C-1", "C-2", "C-3"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "C-2", res.Failures[0].Key)
	assert.Equal(t, 2, res.Failures[0].Row)
	assert.Contains(t, res.Failures[0].Error, "numeric field overflow")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_InfrastructureErrorAbortsWithPartialResult(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, _ := Describe(Customer)
	expectChunk(mock, d, true)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	res, err := NewUpserter(mock, 1, noRetry()).Upsert(context.Background(), d, tenantID, uuid.New(), contractRows("A", "B", "C"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
	assert.Equal(t, 1, res.New)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_RetriesTransient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	d, _ := Describe(Employee)
	expectChunkError(mock, d, &pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	expectChunk(mock, d, true)

	retry := noRetry()
	retry.MaxAttempts = 2
	retry.InitialBackoff = time.Millisecond

	res, err := NewUpserter(mock, 0, retry).Upsert(context.Background(), d, tenantID, uuid.New(), contractRows("E-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.New)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Empty(t *testing.T) {
	d, _ := Describe(Contract)
	res, err := NewUpserter(nil, 0, noRetry()).Upsert(context.Background(), d, tenantID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{}, res)
}

func TestRowValues(t *testing.T) {
	d, _ := Describe(Contract)
	batch := uuid.New()
	now := time.Now()
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	r := MappedRow{
		Key:  "C-100",
		Name: "Acme Corp",
		Fields: Fields{
			"description":     nil,
			"contract_amount": decimal.NullDecimal{Decimal: decimal.RequireFromString("1500.50"), Valid: true},
			"billed_amount":   decimal.NullDecimal{},
			"start_date":      &start,
			"completion_date": (*time.Time)(nil),
			"status":          "Open",
		},
		Raw: map[string]string{"Contract": "C-100"},
	}
	vals := rowValues(d, tenantID, batch, now, &r)
	cols := upsertColumns(d)
	require.Len(t, vals, len(cols))

	byCol := map[string]any{}
	for i, c := range cols {
		byCol[c] = vals[i]
	}
	assert.Equal(t, tenantID, byCol["tenant_id"])
	assert.Equal(t, "C-100", byCol["contract_number"])
	assert.Nil(t, byCol["city"])
	assert.Nil(t, byCol["description"])
	assert.Nil(t, byCol["billed_amount"])
	assert.Nil(t, byCol["completion_date"])
	assert.Equal(t, start, byCol["start_date"])
	assert.Equal(t, "Open", byCol["status"])
	assert.Equal(t, batch, byCol["import_batch_id"])

	amt := byCol["contract_amount"].(pgtype.Numeric)
	assert.True(t, amt.Valid)
	assert.Equal(t, int64(150050), amt.Int.Int64())
	assert.Equal(t, int32(-2), amt.Exp)
}
