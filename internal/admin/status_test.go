package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/tollgate/tollgate/internal/quota"
	"github.com/tollgate/tollgate/internal/store"
)

type captureNotifier struct {
	account  string
	from, to quota.Status
	calls    int
}

func (c *captureNotifier) StatusChanged(_ context.Context, account string, from, to quota.Status) {
	c.account, c.from, c.to = account, from, to
	c.calls++
}

func observe(t *testing.T, recs store.Store, account string) {
	t.Helper()
	if err := recs.Mutate(context.Background(), account, func(rec *quota.Record) error {
		rec.TxCount = 1
		return nil
	}); err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestSetStatusRoundTrip(t *testing.T) {
	recs := store.NewMemory()
	notify := &captureNotifier{}
	mgr := NewStatusManager(recs, notify, nil, nil)
	ctx := context.Background()

	observe(t, recs, "alice")

	if err := mgr.SetStatus(ctx, "alice", quota.StatusUnlimited); err != nil {
		t.Fatalf("SetStatus(unlimited): %v", err)
	}
	rec, _, _ := recs.Get(ctx, "alice")
	if rec.Status != quota.StatusUnlimited {
		t.Errorf("status = %s, want unlimited", rec.Status)
	}
	if notify.calls != 1 || notify.account != "alice" ||
		notify.from != quota.StatusLimited || notify.to != quota.StatusUnlimited {
		t.Errorf("unexpected notification: %+v", notify)
	}

	// Flipping back restores enforcement.
	if err := mgr.SetStatus(ctx, "alice", quota.StatusLimited); err != nil {
		t.Fatalf("SetStatus(limited): %v", err)
	}
	rec, _, _ = recs.Get(ctx, "alice")
	if rec.Status != quota.StatusLimited {
		t.Errorf("status = %s, want limited", rec.Status)
	}
	if notify.from != quota.StatusUnlimited || notify.to != quota.StatusLimited {
		t.Errorf("unexpected second notification: %+v", notify)
	}
}

func TestSetStatusUnknownAccount(t *testing.T) {
	recs := store.NewMemory()
	notify := &captureNotifier{}
	mgr := NewStatusManager(recs, notify, nil, nil)

	err := mgr.SetStatus(context.Background(), "nobody", quota.StatusUnlimited)
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if notify.calls != 0 {
		t.Error("no notification should be sent on failure")
	}
	// SetStatus must not create the record as a side effect.
	if _, found, _ := recs.Get(context.Background(), "nobody"); found {
		t.Error("failed SetStatus created a record")
	}
}

func TestRecordLookup(t *testing.T) {
	recs := store.NewMemory()
	mgr := NewStatusManager(recs, nil, nil, nil)
	ctx := context.Background()

	if _, err := mgr.Record(ctx, "alice"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}

	observe(t, recs, "alice")
	rec, err := mgr.Record(ctx, "alice")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.TxCount != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
}
