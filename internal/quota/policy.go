package quota

import "math"

// Limits are the per-deployment quota constants. They are fixed at startup and
// shared by every account; per-account variation happens only through Status.
type Limits struct {
	// MaxTx is the maximum number of transactions admitted per window.
	MaxTx uint32

	// MaxBytes is the cumulative size ceiling per window. A single transaction
	// of size >= MaxBytes is never admissible, even as the first of a fresh
	// window.
	MaxBytes uint32

	// Period is the window length in epochs.
	Period uint64
}

// Admissible reports whether a transaction of the given size may be admitted
// for the record at epoch now. Pure: no side effects, no storage access.
//
// Inside the current window both the transaction count and the byte ceiling
// apply. Once the window has elapsed only the byte ceiling applies: the count
// quota resets unconditionally with the new window, the size check does not.
func (l Limits) Admissible(rec Record, now uint64, size uint32) bool {
	if rec.Status == StatusUnlimited {
		return true
	}
	if elapsed(now, rec.WindowStart) < l.Period {
		return rec.TxCount < l.MaxTx && satAdd32(rec.Bytes, size) < l.MaxBytes
	}
	return size < l.MaxBytes
}

// Advance records an admitted transaction of the given size at epoch now.
// Call only after Admissible returned true for the same observation; Advance
// itself does not re-check.
func (l Limits) Advance(rec *Record, now uint64, size uint32) {
	if elapsed(now, rec.WindowStart) < l.Period {
		rec.TxCount = satAdd32(rec.TxCount, 1)
		rec.Bytes = satAdd32(rec.Bytes, size)
		return
	}
	// The admitted transaction seeds the new window.
	rec.WindowStart = now
	rec.TxCount = 1
	rec.Bytes = size
}

// WindowReset returns the epoch at which the record's current window elapses.
func (l Limits) WindowReset(rec Record) uint64 {
	return satAdd64(rec.WindowStart, l.Period)
}

// Remaining returns how many transactions the record may still admit in the
// current window at epoch now. Unlimited accounts report the full limit.
func (l Limits) Remaining(rec Record, now uint64) uint32 {
	if rec.Status == StatusUnlimited || elapsed(now, rec.WindowStart) >= l.Period {
		return l.MaxTx
	}
	if rec.TxCount >= l.MaxTx {
		return 0
	}
	return l.MaxTx - rec.TxCount
}

func elapsed(now, start uint64) uint64 {
	if now < start {
		return 0
	}
	return now - start
}

// satAdd32 clamps at the numeric ceiling instead of wrapping, so an oversized
// sum reads as "quota exhausted" rather than admitting the transaction.
func satAdd32(a, b uint32) uint32 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint32
}

func satAdd64(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return math.MaxUint64
}
