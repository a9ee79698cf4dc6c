package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/models"
	"reminder-engine/internal/store"
)

func TestRunCyclesOnWakeSignal(t *testing.T) {
	st := store.NewMemory()
	clk := clock.NewFake(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	fake := &fakeSender{}

	cfg := testConfig()
	cfg.PollInterval = time.Hour // only the wake signal can trigger a cycle
	d := New(cfg, st, registryWith(fake), clk, "w1", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wakeCh := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx, wakeCh)
	}()

	// The startup cycle runs against an empty store; seed afterwards and wake.
	time.Sleep(50 * time.Millisecond)
	seedOccurrence(t, st, "occ-1", clk.Now().Add(time.Hour))
	seedReminder(t, st, "rem-1", "occ-1", clk.Now().Add(-time.Minute))
	wakeCh <- struct{}{}

	deadline := time.After(2 * time.Second)
	for {
		r, err := st.GetReminder(context.Background(), "rem-1")
		if err == nil && r.Status == models.StatusSent {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reminder not dispatched after wake signal (status %q)", r.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run loop did not stop on cancel")
	}
}
