// Package worker implements the reminder dispatch cycle: claim due rows,
// guard against completed occurrences, invoke the channel sender, and record
// the outcome. Any number of workers may run the cycle concurrently; the
// store's conditional claim transition is the only point of mutual exclusion.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/config"
	"reminder-engine/internal/models"
	"reminder-engine/internal/sender"
	"reminder-engine/internal/store"
	"reminder-engine/internal/telemetry"
)

// Dispatcher runs dispatch cycles against the shared store.
type Dispatcher struct {
	cfg     config.Config
	store   store.Store
	senders *sender.Registry
	clock   clock.Clock
	owner   string
	log     zerolog.Logger
}

// CycleStats summarizes one dispatch cycle.
type CycleStats struct {
	Claimed   int
	Reclaimed int
	Sent      int
	Retried   int
	Failed    int
	Skipped   int
}

// New builds a dispatcher. owner identifies this worker instance in claim
// rows; it must be distinct across concurrently running workers.
func New(cfg config.Config, st store.Store, senders *sender.Registry, clk clock.Clock, owner string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		store:   st,
		senders: senders,
		clock:   clk,
		owner:   owner,
		log:     log.With().Str("component", "dispatcher").Str("owner", owner).Logger(),
	}
}

// RunCycle executes one claim/guard/dispatch/resolve pass over a bounded
// batch. The error return covers infrastructure failure only (store
// unreachable); individual send failures are recorded per row and never abort
// the batch. Claims committed before an abort self-heal through stale-claim
// recovery on a later cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleStats, error) {
	now := d.clock.Now()
	staleBefore := now.Add(-d.cfg.ClaimTimeout)

	claimed, reclaimed, err := d.store.ClaimDue(ctx, now, staleBefore, d.cfg.DispatchBatchSize, d.owner)
	if err != nil {
		telemetry.CycleErrors.Inc()
		return CycleStats{}, fmt.Errorf("claim phase: %w", err)
	}

	stats := CycleStats{Claimed: len(claimed), Reclaimed: reclaimed}
	telemetry.RemindersClaimed.Add(float64(len(claimed)))
	telemetry.StaleReclaims.Add(float64(reclaimed))

	for _, r := range claimed {
		if err := d.resolve(ctx, r, &stats); err != nil {
			telemetry.CycleErrors.Inc()
			return stats, fmt.Errorf("resolve reminder %s: %w", r.ID, err)
		}
	}

	if stats.Claimed > 0 {
		d.log.Info().
			Int("claimed", stats.Claimed).
			Int("reclaimed", stats.Reclaimed).
			Int("sent", stats.Sent).
			Int("retried", stats.Retried).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Msg("dispatch cycle complete")
	}
	return stats, nil
}

// resolve takes one claimed reminder to a terminal or retryable state. A
// non-nil return means the store itself failed; send failures resolve the row
// and return nil.
func (d *Dispatcher) resolve(ctx context.Context, r models.Reminder, stats *CycleStats) error {
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	occ, err := d.store.GetOccurrence(ctx, r.OccurrenceID)
	if errors.Is(err, store.ErrNotFound) {
		return d.skip(ctx, r, "occurrence no longer exists", stats)
	}
	if err != nil {
		return fmt.Errorf("guard phase: %w", err)
	}
	if occ.Done {
		return d.skip(ctx, r, "occurrence completed", stats)
	}

	snd, err := d.senders.For(r.Channel)
	if err != nil {
		// Closed channel set: unreachable with the noop fallback, but a
		// registry without one resolves the row as failed.
		return d.fail(ctx, r, r.Attempts+1, err.Error(), stats)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	outcome, sendErr := snd.Send(sendCtx, sender.MessageFor(occ))
	cancel()

	if sendErr == nil {
		if err := d.store.MarkSent(ctx, r.ID, d.owner, d.clock.Now(), outcome.Note); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return nil
			}
			return fmt.Errorf("resolve phase: %w", err)
		}
		stats.Sent++
		telemetry.RemindersSent.Inc()
		return nil
	}

	attempts := r.Attempts + 1
	summary := sendErr.Error()
	d.log.Warn().
		Str("reminder_id", r.ID).
		Str("channel", r.Channel).
		Int("attempts", attempts).
		Str("error", summary).
		Msg("send failed")

	if attempts >= d.cfg.MaxAttempts {
		return d.fail(ctx, r, attempts, summary, stats)
	}

	// scheduled_send_at is untouched: the reminder is simply overdue and the
	// next cycle reclaims it.
	if err := d.store.ReleaseForRetry(ctx, r.ID, d.owner, attempts, summary); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("resolve phase: %w", err)
	}
	stats.Retried++
	telemetry.RemindersRetried.Inc()
	return nil
}

func (d *Dispatcher) skip(ctx context.Context, r models.Reminder, note string, stats *CycleStats) error {
	if err := d.store.MarkSkipped(ctx, r.ID, note); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("guard phase: %w", err)
	}
	stats.Skipped++
	telemetry.RemindersSkipped.Inc()
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, r models.Reminder, attempts int, summary string, stats *CycleStats) error {
	if err := d.store.MarkFailed(ctx, r.ID, d.owner, attempts, summary); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return fmt.Errorf("resolve phase: %w", err)
	}
	stats.Failed++
	telemetry.RemindersFailed.Inc()
	return nil
}

// OwnerToken derives a claim-owner identifier unique to this process. The
// WORKER_ID env var wins when set (useful in orchestrated deployments).
func OwnerToken(role string) string {
	if v := os.Getenv("WORKER_ID"); v != "" {
		return v
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", role, hostname, os.Getpid())
}
