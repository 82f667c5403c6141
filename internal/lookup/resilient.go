package lookup

import (
	"context"
	"errors"

	"github.com/sells-group/caseaudit/internal/resilience"
)

const (
	sourceMaster = "master_list"
	sourceAVD    = "avd"
)

// Resilient wraps a Port with retries for transient read failures and one
// circuit breaker per spreadsheet source. Every error it returns matches
// ErrLookupFailed, including a rejected call on an open breaker.
type Resilient struct {
	inner    Port
	retry    resilience.RetryConfig
	breakers *resilience.Breakers
}

// NewResilient creates a Resilient port.
func NewResilient(inner Port, retry resilience.RetryConfig, breaker resilience.BreakerConfig) *Resilient {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("spreadsheet")
	}
	return &Resilient{
		inner:    inner,
		retry:    retry,
		breakers: resilience.NewBreakers(breaker),
	}
}

type reference struct {
	id    string
	found bool
}

// FindReference implements Port.
func (r *Resilient) FindReference(ctx context.Context, contractCode string) (string, bool, error) {
	ref, err := resilience.Guard(ctx, r.breakers.For(sourceMaster), func(ctx context.Context) (reference, error) {
		return resilience.Retry(ctx, r.retry, func(ctx context.Context) (reference, error) {
			id, ok, err := r.inner.FindReference(ctx, contractCode)
			return reference{id: id, found: ok}, err
		})
	})
	if err != nil {
		return "", false, asLookupFailed("find reference", err)
	}
	return ref.id, ref.found, nil
}

// SumDebt implements Port.
func (r *Resilient) SumDebt(ctx context.Context, ref, cnpj string) (DebtSum, error) {
	sum, err := resilience.Guard(ctx, r.breakers.For(sourceAVD), func(ctx context.Context) (DebtSum, error) {
		return resilience.Retry(ctx, r.retry, func(ctx context.Context) (DebtSum, error) {
			return r.inner.SumDebt(ctx, ref, cnpj)
		})
	})
	if err != nil {
		return DebtSum{}, asLookupFailed("sum debt", err)
	}
	return sum, nil
}

// States reports the breaker state of each source touched so far.
func (r *Resilient) States() map[string]resilience.State {
	return r.breakers.States()
}

func asLookupFailed(op string, err error) error {
	if errors.Is(err, ErrLookupFailed) {
		return err
	}
	return failed(op, err)
}
