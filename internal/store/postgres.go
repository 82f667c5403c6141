package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/caseaudit/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_decision": `INSERT INTO decisions (id, case_id, contract_code, approved, action, case_data, decision, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"latest_decision": `SELECT id, case_data, decision, action, started_at, finished_at FROM decisions WHERE case_id = $1 ORDER BY finished_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	case_id       TEXT NOT NULL,
	contract_code TEXT NOT NULL DEFAULT '',
	approved      BOOLEAN NOT NULL,
	action        TEXT NOT NULL DEFAULT '',
	case_data     JSONB NOT NULL,
	decision      JSONB NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_decisions_case_id ON decisions(case_id, finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_finished_at ON decisions(finished_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_approved ON decisions(approved);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveDecision(ctx context.Context, rec *model.DecisionRecord) error {
	caseJSON, decisionJSON, err := prepareRecord(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: save decision")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, case_id, contract_code, approved, action, case_data, decision, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Case.CaseID, rec.Case.ContractCode, rec.Decision.Approved, rec.Action,
		caseJSON, decisionJSON, rec.StartedAt, rec.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: insert decision %s", rec.ID)
}

func (s *PostgresStore) LatestDecision(ctx context.Context, caseID string) (*model.DecisionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, case_data, decision, action, started_at, finished_at FROM decisions WHERE case_id = $1 ORDER BY finished_at DESC LIMIT 1`,
		caseID,
	)
	rec, err := scanPgDecision(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest decision %s", caseID)
	}
	return rec, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error) {
	query := `SELECT id, case_data, decision, action, started_at, finished_at FROM decisions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CaseID != "" {
		query += fmt.Sprintf(` AND case_id = $%d`, argIdx)
		args = append(args, filter.CaseID)
		argIdx++
	}
	if filter.Approved != nil {
		query += fmt.Sprintf(` AND approved = $%d`, argIdx)
		args = append(args, *filter.Approved)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY finished_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		rec, err := scanPgDecision(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func scanPgDecision(row scannable) (*model.DecisionRecord, error) {
	var rec model.DecisionRecord
	var caseJSON, decisionJSON []byte

	if err := row.Scan(&rec.ID, &caseJSON, &decisionJSON, &rec.Action, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}
	if err := unmarshalRecord(&rec, caseJSON, decisionJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}
