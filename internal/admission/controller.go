// Package admission implements the three-phase admission protocol around a
// transaction: Check (Validate), Reserve (Prepare) and Commit. The controller
// owns no quota state; every record lives in the store and every decision is
// delegated to the pure window policy.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/quota"
	"github.com/tollgate/tollgate/internal/store"
)

// ErrQuotaExceeded is the Check phase denial. It is surfaced before any
// execution or state mutation; the caller may retry after the window rolls.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Controller orchestrates the admission protocol. Safe for concurrent use
// across transactions; the phases of one transaction must stay in one
// execution context.
type Controller struct {
	limits  quota.Limits
	records store.Store
	clock   quota.Clock
	logger  *slog.Logger
	metrics *metrics.Admission
}

func NewController(limits quota.Limits, records store.Store, clock quota.Clock, logger *slog.Logger, m *metrics.Admission) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		limits:  limits,
		records: records,
		clock:   clock,
		logger:  logger,
		metrics: m,
	}
}

// Limits returns the deployment quota constants.
func (c *Controller) Limits() quota.Limits { return c.limits }

// Validate is the Check phase. An empty account is the anonymous/privileged
// path: admitted unconditionally, nothing is ever committed for it. For an
// identified account the current record is fetched and the window policy
// consulted; denial returns a rejected ticket and ErrQuotaExceeded with no
// state mutated.
func (c *Controller) Validate(ctx context.Context, account string, size uint32) (*Ticket, error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveCheckDuration(time.Since(start).Seconds())
	}()

	if account == "" {
		c.metrics.RecordCheck("bypass")
		return &Ticket{phase: PhaseValidated, size: size}, nil
	}

	rec, _, err := c.records.Get(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("admission check for %q: %w", account, err)
	}

	now := c.clock.Now()
	if !c.limits.Admissible(rec, now, size) {
		c.metrics.RecordCheck("rejected")
		c.logger.Debug("transaction rejected",
			"account", account,
			"size", size,
			"epoch", now,
			"tx_count", rec.TxCount,
			"bytes", rec.Bytes,
		)
		return &Ticket{phase: PhaseRejected, account: account, size: size}, ErrQuotaExceeded
	}

	c.metrics.RecordCheck("allowed")
	return &Ticket{phase: PhaseValidated, account: account, size: size}, nil
}

// Prepare is the Reserve phase: a pass-through seam for the host's pipeline
// ordering. It performs no quota mutation.
func (c *Controller) Prepare(t *Ticket) (*Ticket, error) {
	if t.phase != PhaseValidated {
		return nil, fmt.Errorf("prepare: ticket is %s, want validated", t.phase)
	}
	t.phase = PhasePrepared
	return t, nil
}

// Commit charges the transaction against the account's window using the
// post-dispatch size. It runs after the transaction executed, whether or not
// the execution itself succeeded. Anonymous tickets commit nothing.
func (c *Controller) Commit(ctx context.Context, t *Ticket, size uint32) error {
	if t.phase != PhasePrepared {
		return fmt.Errorf("commit: ticket is %s, want prepared", t.phase)
	}
	if t.Anonymous() {
		t.phase = PhaseCommitted
		return nil
	}

	now := c.clock.Now()
	err := c.records.Mutate(ctx, t.account, func(rec *quota.Record) error {
		c.limits.Advance(rec, now, size)
		return nil
	})
	if err != nil {
		return fmt.Errorf("admission commit for %q: %w", t.account, err)
	}

	t.phase = PhaseCommitted
	c.metrics.RecordCommit(size)
	return nil
}

// Dispatch runs the full protocol around work: Validate, Prepare, execute,
// Commit. The commit is applied for any admitted attempt, not only successful
// ones, so a failing work still consumes quota. Returns work's error; a commit
// failure is returned only when work itself succeeded.
func (c *Controller) Dispatch(ctx context.Context, account string, size uint32, work func(context.Context) error) error {
	t, err := c.Validate(ctx, account, size)
	if err != nil {
		return err
	}
	if t, err = c.Prepare(t); err != nil {
		return err
	}

	workErr := work(ctx)

	if err := c.Commit(ctx, t, size); err != nil {
		c.logger.Error("quota commit failed", "account", account, "error", err)
		if workErr == nil {
			return err
		}
	}
	return workErr
}
