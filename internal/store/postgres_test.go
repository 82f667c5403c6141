package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var decisionColumns = []string{"id", "case_data", "decision", "action", "started_at", "finished_at"}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS decisions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDecision(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := record("C1", false, time.Minute)

	mock.ExpectExec(`INSERT INTO decisions`).
		WithArgs(pgxmock.AnyArg(), "C1", "CT-001", false, "Ajustar", pgxmock.AnyArg(), pgxmock.AnyArg(), rec.StartedAt, rec.FinishedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveDecision(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestDecision(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := record("C1", true, time.Minute)

	mock.ExpectQuery(`SELECT id, case_data, decision, action, started_at, finished_at FROM decisions WHERE case_id = \$1`).
		WithArgs("C1").
		WillReturnRows(pgxmock.NewRows(decisionColumns).
			AddRow("id-1", mustJSON(t, rec.Case), mustJSON(t, rec.Decision), "Aprovar", rec.StartedAt, rec.FinishedAt))

	got, err := s.LatestDecision(context.Background(), "C1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, rec.Case, got.Case)
	assert.Equal(t, rec.Decision, got.Decision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestDecision_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM decisions WHERE case_id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.LatestDecision(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisions_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := record("C1", false, time.Minute)
	approved := false

	mock.ExpectQuery(`WHERE true AND case_id = \$1 AND approved = \$2 ORDER BY finished_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("C1", false, 10, 20).
		WillReturnRows(pgxmock.NewRows(decisionColumns).
			AddRow("id-1", mustJSON(t, rec.Case), mustJSON(t, rec.Decision), "Ajustar", rec.StartedAt, rec.FinishedAt))

	got, err := s.ListDecisions(context.Background(), DecisionFilter{CaseID: "C1", Approved: &approved, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ajustar", got[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDecisions_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true ORDER BY finished_at DESC LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(decisionColumns))

	got, err := s.ListDecisions(context.Background(), DecisionFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
