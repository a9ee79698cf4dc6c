// Package wake nudges dispatch workers across processes so a freshly created
// occurrence or an operator trigger does not wait out a full poll interval.
// It is strictly an optimization: correctness never depends on it, and without
// Redis the workers simply poll.
package wake

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"reminder-engine/internal/config"
)

const channel = "reminders:wake"

// Bus publishes and subscribes to the wake signal over Redis pub/sub.
type Bus struct {
	client *redis.Client
	log    zerolog.Logger
}

// New builds a bus from config. Returns nil when Redis is not configured;
// callers treat a nil bus as "no wake signal".
func New(cfg config.Config, log zerolog.Logger) *Bus {
	if !cfg.WakeConfigured() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Bus{client: client, log: log.With().Str("component", "wake").Logger()}
}

// NewWithClient builds a bus around an existing client. Used by tests.
func NewWithClient(client *redis.Client, log zerolog.Logger) *Bus {
	return &Bus{client: client, log: log}
}

// Publish fires the wake signal. Failures are logged and swallowed: a missed
// wake only delays dispatch until the next poll.
func (b *Bus) Publish(ctx context.Context) {
	if b == nil {
		return
	}
	if err := b.client.Publish(ctx, channel, "1").Err(); err != nil {
		b.log.Warn().Err(err).Msg("wake publish failed")
	}
}

// Subscribe returns a coalesced channel that receives after each wake signal.
// Bursts collapse into a single pending notification. The channel closes when
// ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	if b == nil {
		close(out)
		return out
	}
	sub := b.client.Subscribe(ctx, channel)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	_ = b.client.Close()
}
