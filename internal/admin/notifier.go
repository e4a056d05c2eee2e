package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tollgate/tollgate/internal/quota"
)

// StatusChannel is the pub/sub channel status-change events are published on.
const StatusChannel = "tollgate:events:status"

// Notifier receives status-change events after a successful SetStatus.
type Notifier interface {
	StatusChanged(ctx context.Context, account string, from, to quota.Status)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) StatusChanged(context.Context, string, quota.Status, quota.Status) {}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) StatusChanged(ctx context.Context, account string, from, to quota.Status) {
	n.Logger.InfoContext(ctx, "status change event",
		"account", account,
		"from", from.String(),
		"to", to.String(),
	)
}

// StatusEvent is the wire form of a status change on the pub/sub channel.
type StatusEvent struct {
	Account string    `json:"account"`
	Old     string    `json:"old"`
	New     string    `json:"new"`
	At      time.Time `json:"at"`
}

// RedisNotifier publishes events on StatusChannel so gateways and operator
// tooling can observe override flips. Publish failures are logged, not
// surfaced: the status write already happened.
type RedisNotifier struct {
	Client *redis.Client
	Logger *slog.Logger
}

func (n RedisNotifier) StatusChanged(ctx context.Context, account string, from, to quota.Status) {
	payload, err := json.Marshal(StatusEvent{
		Account: account,
		Old:     from.String(),
		New:     to.String(),
		At:      time.Now().UTC(),
	})
	if err != nil {
		n.Logger.Error("marshal status event", "account", account, "error", err)
		return
	}
	if err := n.Client.Publish(ctx, StatusChannel, payload).Err(); err != nil {
		n.Logger.Error("publish status event", "account", account, "error", err)
	}
}
