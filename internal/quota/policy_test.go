package quota

import (
	"math"
	"testing"
)

func testLimits() Limits {
	return Limits{MaxTx: 5, MaxBytes: 40, Period: 10}
}

func TestAdmissible_CountLimitInsideWindow(t *testing.T) {
	l := testLimits()
	rec := Record{}

	for i := uint32(0); i < l.MaxTx; i++ {
		if !l.Admissible(rec, 0, 1) {
			t.Fatalf("transaction %d should be admissible, record %+v", i, rec)
		}
		l.Advance(&rec, 0, 1)
	}

	if l.Admissible(rec, 0, 1) {
		t.Errorf("transaction %d should be rejected, record %+v", l.MaxTx, rec)
	}
}

func TestAdmissible_ByteLimitInsideWindow(t *testing.T) {
	l := testLimits()
	rec := Record{}

	// 3 transactions of 10 bytes fit under the 40-byte ceiling.
	for i := 0; i < 3; i++ {
		if !l.Admissible(rec, 0, 10) {
			t.Fatalf("transaction %d should be admissible", i)
		}
		l.Advance(&rec, 0, 10)
	}

	// 30 + 10 = 40 is not strictly below the ceiling.
	if l.Admissible(rec, 0, 10) {
		t.Error("4th 10-byte transaction should exceed the byte ceiling")
	}
	if !l.Admissible(rec, 0, 9) {
		t.Error("9-byte transaction should still fit (30+9 < 40)")
	}
}

func TestAdmissible_FreshWindowOversizeRejected(t *testing.T) {
	l := testLimits()
	rec := Record{}

	// Window has elapsed: only the byte ceiling applies, boundary is strict.
	now := l.Period
	if l.Admissible(rec, now, 40) {
		t.Error("size == MaxBytes must be rejected even on a fresh window")
	}
	if !l.Admissible(rec, now, 39) {
		t.Error("size == MaxBytes-1 must be admitted on a fresh window")
	}
}

func TestAdmissible_FreshWindowIgnoresCount(t *testing.T) {
	l := testLimits()
	rec := Record{WindowStart: 0, TxCount: math.MaxUint32, Bytes: math.MaxUint32}

	if !l.Admissible(rec, l.Period, 1) {
		t.Error("elapsed window must reset the count quota regardless of counters")
	}
}

func TestAdmissible_UnlimitedBypass(t *testing.T) {
	l := testLimits()
	rec := Record{TxCount: math.MaxUint32, Bytes: math.MaxUint32, Status: StatusUnlimited}

	if !l.Admissible(rec, 0, math.MaxUint32) {
		t.Error("unlimited account must be admissible for any size and any counters")
	}
}

func TestAdvance_WindowReset(t *testing.T) {
	l := testLimits()
	rec := Record{}

	l.Advance(&rec, 3, 7)
	l.Advance(&rec, 3, 7)
	if rec.TxCount != 2 || rec.Bytes != 14 || rec.WindowStart != 0 {
		t.Fatalf("unexpected record inside window: %+v", rec)
	}

	// Any now at or past WindowStart+Period starts a fresh window seeded with
	// the admitted transaction.
	l.Advance(&rec, 12, 5)
	if rec.WindowStart != 12 || rec.TxCount != 1 || rec.Bytes != 5 {
		t.Errorf("window should have reset at epoch 12: %+v", rec)
	}
}

func TestAdvance_WindowStartMonotonic(t *testing.T) {
	l := testLimits()
	rec := Record{}

	epochs := []uint64{0, 4, 9, 10, 15, 100, 100, 103}
	for _, now := range epochs {
		prev := rec.WindowStart
		l.Advance(&rec, now, 1)
		if rec.WindowStart < prev {
			t.Fatalf("WindowStart decreased: %d -> %d at epoch %d", prev, rec.WindowStart, now)
		}
	}
}

func TestAdvance_SaturatesInsteadOfWrapping(t *testing.T) {
	l := Limits{MaxTx: math.MaxUint32, MaxBytes: math.MaxUint32, Period: 10}
	rec := Record{}

	// Sizes summing well past the uint32 ceiling must never decrease Bytes.
	prev := uint32(0)
	for i := 0; i < 10; i++ {
		l.Advance(&rec, 0, math.MaxUint32/2)
		if rec.Bytes < prev {
			t.Fatalf("Bytes decreased after advance %d: %d -> %d", i, prev, rec.Bytes)
		}
		prev = rec.Bytes
	}
	if rec.Bytes != math.MaxUint32 {
		t.Errorf("Bytes should have saturated at MaxUint32, got %d", rec.Bytes)
	}

	// A saturated sum reads as over the ceiling, not as admissible.
	if (Limits{MaxTx: 100, MaxBytes: math.MaxUint32, Period: 10}).Admissible(rec, 0, math.MaxUint32) {
		t.Error("saturated byte sum must not be admissible")
	}
}

func TestWindowBoundaryTransition(t *testing.T) {
	// Period = 10, MaxTx = 5: five transactions at epoch 0, the sixth fails,
	// the window rolls at epoch 10 and the next transaction reseeds it.
	l := testLimits()
	rec := Record{}

	for i := 0; i < 5; i++ {
		if !l.Admissible(rec, 0, 1) {
			t.Fatalf("transaction %d should be admissible", i)
		}
		l.Advance(&rec, 0, 1)
	}
	if l.Admissible(rec, 0, 1) {
		t.Fatal("6th transaction in the same window should be rejected")
	}

	if !l.Admissible(rec, 10, 1) {
		t.Fatal("transaction should be admissible once the window has elapsed")
	}
	l.Advance(&rec, 10, 1)
	if rec.WindowStart != 10 || rec.TxCount != 1 || rec.Bytes != 1 {
		t.Errorf("counters should reflect only the seeding transaction: %+v", rec)
	}
}

func TestRemaining(t *testing.T) {
	l := testLimits()

	rec := Record{}
	if got := l.Remaining(rec, 0); got != 5 {
		t.Errorf("fresh record remaining = %d, want 5", got)
	}

	l.Advance(&rec, 0, 1)
	l.Advance(&rec, 0, 1)
	if got := l.Remaining(rec, 0); got != 3 {
		t.Errorf("remaining after 2 = %d, want 3", got)
	}

	// Elapsed window reports a full quota again.
	if got := l.Remaining(rec, 10); got != 5 {
		t.Errorf("remaining after rollover = %d, want 5", got)
	}

	rec.TxCount = 9999
	rec.Status = StatusUnlimited
	if got := l.Remaining(rec, 0); got != 5 {
		t.Errorf("unlimited remaining = %d, want full limit", got)
	}
}

func TestParseStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusLimited, StatusUnlimited} {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseStatus("banana"); err == nil {
		t.Error("ParseStatus should reject unknown values")
	}
}
