package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/caseaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	case_id       TEXT NOT NULL,
	contract_code TEXT NOT NULL DEFAULT '',
	approved      INTEGER NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	case_data     TEXT NOT NULL,
	decision      TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	finished_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_case_id ON decisions(case_id, finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_finished_at ON decisions(finished_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDecision(ctx context.Context, rec *model.DecisionRecord) error {
	caseJSON, decisionJSON, err := prepareRecord(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: save decision")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, case_id, contract_code, approved, action, case_data, decision, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Case.CaseID, rec.Case.ContractCode, rec.Decision.Approved, rec.Action,
		string(caseJSON), string(decisionJSON), rec.StartedAt, rec.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: insert decision %s", rec.ID)
}

func (s *SQLiteStore) LatestDecision(ctx context.Context, caseID string) (*model.DecisionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, case_data, decision, action, started_at, finished_at FROM decisions
		 WHERE case_id = ? ORDER BY finished_at DESC LIMIT 1`,
		caseID,
	)
	rec, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest decision %s", caseID)
	}
	return rec, nil
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error) {
	query := `SELECT id, case_data, decision, action, started_at, finished_at FROM decisions WHERE 1=1`
	var args []any

	if filter.CaseID != "" {
		query += ` AND case_id = ?`
		args = append(args, filter.CaseID)
	}
	if filter.Approved != nil {
		query += ` AND approved = ?`
		args = append(args, *filter.Approved)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

// helpers

// prepareRecord assigns defaults to rec and returns its JSON columns.
func prepareRecord(rec *model.DecisionRecord) (caseJSON, decisionJSON []byte, err error) {
	if rec == nil {
		return nil, nil, eris.New("nil decision record")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.FinishedAt = rec.FinishedAt.UTC()

	caseJSON, err = json.Marshal(rec.Case)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal case")
	}
	decisionJSON, err = json.Marshal(rec.Decision)
	if err != nil {
		return nil, nil, eris.Wrap(err, "marshal decision")
	}
	return caseJSON, decisionJSON, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDecision(row scannable) (*model.DecisionRecord, error) {
	var rec model.DecisionRecord
	var caseJSON, decisionJSON string

	if err := row.Scan(&rec.ID, &caseJSON, &decisionJSON, &rec.Action, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(&rec, []byte(caseJSON), []byte(decisionJSON)); err != nil {
		return nil, err
	}
	return &rec, nil
}

func unmarshalRecord(rec *model.DecisionRecord, caseJSON, decisionJSON []byte) error {
	if err := json.Unmarshal(caseJSON, &rec.Case); err != nil {
		return eris.Wrap(err, "unmarshal case")
	}
	if err := json.Unmarshal(decisionJSON, &rec.Decision); err != nil {
		return eris.Wrap(err, "unmarshal decision")
	}
	return nil
}
