// Package store provides the keyed account -> quota record store. The engine
// never creates or deletes entries itself: records come into existence on the
// first Mutate (default-initialized, enforcement on) and removal is the host's
// concern.
package store

import (
	"context"

	"github.com/tollgate/tollgate/internal/quota"
)

// Store is a keyed get/mutate interface over account -> quota.Record.
// Implementations serialize Mutate per key, so the Check and Commit phases of
// one transaction see a consistent record as long as the caller runs them in
// one execution context. Different accounts are independent.
type Store interface {
	// Get returns a snapshot of the account's record. The second return is
	// false when the account has never been observed; the record is then the
	// zero value.
	Get(ctx context.Context, account string) (quota.Record, bool, error)

	// Mutate applies fn to the account's record under the store's per-key
	// serialization and persists the result. A missing record is
	// default-initialized before fn runs. If fn returns an error nothing is
	// written and the error is returned unchanged.
	Mutate(ctx context.Context, account string, fn func(*quota.Record) error) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
