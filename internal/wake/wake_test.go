package wake

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestPublishReachesSubscriber(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())
	defer bus.Close()

	ch := bus.Subscribe(ctx)

	// The subscriber attaches asynchronously; republish until the first
	// signal lands rather than sleeping a fixed interval.
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(ctx)
		select {
		case <-ch:
			return
		case <-deadline:
			t.Fatalf("wake signal never arrived")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	ctx := context.Background()

	bus.Publish(ctx) // must not panic
	ch := bus.Subscribe(ctx)
	if _, ok := <-ch; ok {
		t.Fatalf("nil bus channel should be closed")
	}
	bus.Close()
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	bus := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zerolog.Nop())
	defer bus.Close()

	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected channel close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
