// Package store keeps the history of case decisions so earlier verdicts can
// be audited and served back by the API.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/caseaudit/internal/config"
	"github.com/sells-group/caseaudit/internal/model"
)

// DecisionFilter specifies criteria for listing decisions.
type DecisionFilter struct {
	CaseID   string `json:"case_id,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

const defaultListLimit = 100

// Store defines the persistence interface for decision history.
type Store interface {
	// SaveDecision inserts rec, assigning an ID when it has none.
	SaveDecision(ctx context.Context, rec *model.DecisionRecord) error
	// LatestDecision returns the most recent decision for a case, or nil.
	LatestDecision(ctx context.Context, caseID string) (*model.DecisionRecord, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.DecisionRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and migrates it. Driver
// "none" returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "sqlite", "":
		st, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func listLimit(filter DecisionFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
