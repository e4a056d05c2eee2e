package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tollgate/tollgate/internal/quota"
)

const (
	recordKeyPrefix = "tollgate:quota:"

	// Mutate retries on optimistic-lock conflicts before giving up.
	mutateRetries = 5
)

// RedisConfig carries the connection settings for the Redis-backed store.
type RedisConfig struct {
	Address      string
	Password     string
	Database     int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Redis is the shared Store used in strong mode. Each account maps to one
// hash; Mutate runs as a WATCH/MULTI transaction so concurrent writers to the
// same account serialize instead of losing updates.
type Redis struct {
	client *redis.Client
}

func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})}
}

func (r *Redis) Get(ctx context.Context, account string) (quota.Record, bool, error) {
	fields, err := r.client.HGetAll(ctx, recordKeyPrefix+account).Result()
	if err != nil {
		return quota.Record{}, false, fmt.Errorf("redis get %q: %w", account, err)
	}
	if len(fields) == 0 {
		return quota.Record{}, false, nil
	}
	rec, err := recordFromFields(fields)
	if err != nil {
		return quota.Record{}, false, fmt.Errorf("redis get %q: %w", account, err)
	}
	return rec, true, nil
}

func (r *Redis) Mutate(ctx context.Context, account string, fn func(*quota.Record) error) error {
	key := recordKeyPrefix + account

	txn := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		var rec quota.Record
		if len(fields) > 0 {
			if rec, err = recordFromFields(fields); err != nil {
				return err
			}
		}
		if err := fn(&rec); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, recordToFields(rec))
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < mutateRetries; i++ {
		err = r.client.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			// fn errors pass through unchanged so callers can match on them.
			return err
		}
	}
	return fmt.Errorf("redis mutate %q: %w", account, err)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Client exposes the underlying connection for collaborators that share it
// (e.g. the status-change publisher).
func (r *Redis) Client() *redis.Client {
	return r.client
}

func recordToFields(rec quota.Record) map[string]any {
	return map[string]any{
		"window_start": rec.WindowStart,
		"tx_count":     rec.TxCount,
		"bytes":        rec.Bytes,
		"status":       rec.Status.String(),
	}
}

func recordFromFields(fields map[string]string) (quota.Record, error) {
	var rec quota.Record

	start, err := strconv.ParseUint(fields["window_start"], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("bad window_start %q", fields["window_start"])
	}
	count, err := strconv.ParseUint(fields["tx_count"], 10, 32)
	if err != nil {
		return rec, fmt.Errorf("bad tx_count %q", fields["tx_count"])
	}
	size, err := strconv.ParseUint(fields["bytes"], 10, 32)
	if err != nil {
		return rec, fmt.Errorf("bad bytes %q", fields["bytes"])
	}
	status, err := quota.ParseStatus(fields["status"])
	if err != nil {
		return rec, err
	}

	rec.WindowStart = start
	rec.TxCount = uint32(count)
	rec.Bytes = uint32(size)
	rec.Status = status
	return rec, nil
}
