package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier wakes idle workers when a job lands in the queue. The jobs table
// is the durable source of truth; the notifier only shortens the latency
// between enqueue and pickup, so a lost notification costs at most one poll
// interval.
type Notifier interface {
	// Notify signals that at least one job is ready.
	Notify(ctx context.Context) error
	// Wait blocks until a signal arrives, timeout elapses or ctx is done.
	Wait(ctx context.Context, timeout time.Duration) error
	// Close releases the notifier's resources.
	Close() error
}

// NewNotifier picks a notifier from the broker URL. An empty URL selects the
// in-process notifier, anything else must parse as a Redis URL
// (redis://host:port/db) so separate server and worker processes share
// wake-ups.
func NewNotifier(brokerURL string) (Notifier, error) {
	if brokerURL == "" {
		return newLocalNotifier(), nil
	}
	opts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}
	return &redisNotifier{client: redis.NewClient(opts)}, nil
}

// localNotifier wakes workers inside the same process through a buffered
// channel. The single-slot buffer coalesces bursts of notifications.
type localNotifier struct {
	ch chan struct{}
}

func newLocalNotifier() *localNotifier {
	return &localNotifier{ch: make(chan struct{}, 1)}
}

func (n *localNotifier) Notify(ctx context.Context) error {
	select {
	case n.ch <- struct{}{}:
	default:
	}
	return nil
}

func (n *localNotifier) Wait(ctx context.Context, timeout time.Duration) error {
	select {
	case <-n.ch:
		return nil
	case <-time.After(timeout):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *localNotifier) Close() error { return nil }

// redisNotifier shares wake-ups across processes through a Redis list.
type redisNotifier struct {
	client *redis.Client
}

// notifyList is the Redis key BRPOP blocks on.
const notifyList = "logsight:jobs:notify"

func (n *redisNotifier) Notify(ctx context.Context) error {
	return n.client.LPush(ctx, notifyList, "1").Err()
}

func (n *redisNotifier) Wait(ctx context.Context, timeout time.Duration) error {
	err := n.client.BRPop(ctx, timeout, notifyList).Err()
	if err == redis.Nil {
		// Timeout without a signal; the caller polls the table anyway.
		return nil
	}
	return err
}

func (n *redisNotifier) Close() error {
	return n.client.Close()
}
