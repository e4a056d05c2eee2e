// Package admin is the administrative surface of the quota engine: flipping an
// account's enforcement override. It lives outside the admission hot path and
// is exposed only on the control plane.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/quota"
	"github.com/tollgate/tollgate/internal/store"
)

// ErrUnknownAccount means the target has no quota record: it has never been
// observed by the engine.
var ErrUnknownAccount = errors.New("unknown account")

// StatusManager flips the per-account enforcement override.
type StatusManager struct {
	records store.Store
	notify  Notifier
	logger  *slog.Logger
	metrics *metrics.Admission
}

func NewStatusManager(records store.Store, notify Notifier, logger *slog.Logger, m *metrics.Admission) *StatusManager {
	if logger == nil {
		logger = slog.Default()
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	return &StatusManager{records: records, notify: notify, logger: logger, metrics: m}
}

// SetStatus sets the account's override flag and notifies the old and new
// status. Fails with ErrUnknownAccount when the account has no record;
// SetStatus never creates one.
func (s *StatusManager) SetStatus(ctx context.Context, account string, status quota.Status) error {
	if _, found, err := s.records.Get(ctx, account); err != nil {
		return fmt.Errorf("set status for %q: %w", account, err)
	} else if !found {
		return fmt.Errorf("set status for %q: %w", account, ErrUnknownAccount)
	}

	var old quota.Status
	err := s.records.Mutate(ctx, account, func(rec *quota.Record) error {
		old = rec.Status
		rec.Status = status
		return nil
	})
	if err != nil {
		return fmt.Errorf("set status for %q: %w", account, err)
	}

	s.metrics.RecordStatusChange(status.String())
	s.logger.Info("account status changed", "account", account, "old", old.String(), "new", status.String())
	s.notify.StatusChanged(ctx, account, old, status)
	return nil
}

// Record returns the account's current record, or ErrUnknownAccount.
func (s *StatusManager) Record(ctx context.Context, account string) (quota.Record, error) {
	rec, found, err := s.records.Get(ctx, account)
	if err != nil {
		return quota.Record{}, fmt.Errorf("record for %q: %w", account, err)
	}
	if !found {
		return quota.Record{}, fmt.Errorf("record for %q: %w", account, ErrUnknownAccount)
	}
	return rec, nil
}
