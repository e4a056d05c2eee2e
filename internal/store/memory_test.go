package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tollgate/tollgate/internal/quota"
)

func TestMemory_GetUnknownAccount(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	rec, found, err := m.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("unobserved account should not be found")
	}
	if rec != (quota.Record{}) {
		t.Errorf("unobserved account should return the zero record, got %+v", rec)
	}
}

func TestMemory_MutateCreatesLazily(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	err := m.Mutate(ctx, "alice", func(rec *quota.Record) error {
		if *rec != (quota.Record{}) {
			t.Errorf("first mutate should see the zero record, got %+v", *rec)
		}
		rec.TxCount = 1
		rec.Bytes = 10
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	rec, found, err := m.Get(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("Get after mutate: found=%v err=%v", found, err)
	}
	if rec.TxCount != 1 || rec.Bytes != 10 {
		t.Errorf("unexpected record after mutate: %+v", rec)
	}
}

func TestMemory_MutateErrorWritesNothing(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.Mutate(ctx, "alice", func(rec *quota.Record) error {
		rec.TxCount = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Mutate should return fn's error unchanged, got %v", err)
	}

	if _, found, _ := m.Get(ctx, "alice"); found {
		t.Error("failed mutate must not create the record")
	}
}

func TestMemory_ConcurrentMutate(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Mutate(ctx, "alice", func(rec *quota.Record) error {
				rec.TxCount++
				return nil
			})
		}()
	}
	wg.Wait()

	rec, _, _ := m.Get(ctx, "alice")
	if rec.TxCount != n {
		t.Errorf("lost updates: TxCount = %d, want %d", rec.TxCount, n)
	}
}
