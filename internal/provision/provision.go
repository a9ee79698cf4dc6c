// Package provision materializes policy-driven reminder rows when occurrences
// are created or rescheduled.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/models"
	"reminder-engine/internal/policy"
	"reminder-engine/internal/store"
)

// Provisioner applies the reminder policy to occurrences. Safe to call
// concurrently for the same occurrence: the store's insert-if-absent makes
// provisioning idempotent per (occurrence, channel).
type Provisioner struct {
	store  store.Store
	global policy.Global
	clock  clock.Clock
	log    zerolog.Logger
}

func New(st store.Store, global policy.Global, clk clock.Clock, log zerolog.Logger) *Provisioner {
	return &Provisioner{store: st, global: global, clock: clk, log: log.With().Str("component", "provisioner").Logger()}
}

// Provision inserts a pending default reminder for each (channel, lead) pair
// the policy produces, skipping pairs that already have one. A send time in
// the past is still inserted; the dispatcher treats it as immediately due.
func (p *Provisioner) Provision(ctx context.Context, occ models.Occurrence, series models.SeriesConfig) ([]models.Reminder, error) {
	specs := policy.ComputeDefaultReminders(occ, series, p.global)

	var created []models.Reminder
	for _, spec := range specs {
		r := models.Reminder{
			ID:              uuid.New().String(),
			OccurrenceID:    occ.ID,
			Channel:         spec.Channel,
			Source:          models.SourceDefault,
			ScheduledSendAt: occ.ScheduledAt.Add(-time.Duration(spec.LeadMinutes) * time.Minute),
			Status:          models.StatusPending,
			CreatedAt:       p.clock.Now(),
		}
		inserted, err := p.store.InsertReminderIfAbsent(ctx, r)
		if err != nil {
			return created, fmt.Errorf("provision reminder for occurrence %s: %w", occ.ID, err)
		}
		if !inserted {
			p.log.Debug().Str("occurrence_id", occ.ID).Str("channel", spec.Channel).Msg("reminder already provisioned")
			continue
		}
		created = append(created, r)
	}
	return created, nil
}

// Reprovision realigns default reminders after an occurrence reschedule.
// Open reminders whose send time no longer matches the policy are skipped
// (never mutated: scheduled_send_at is immutable) and fresh rows inserted.
func (p *Provisioner) Reprovision(ctx context.Context, occ models.Occurrence, series models.SeriesConfig) ([]models.Reminder, error) {
	existing, err := p.store.ListRemindersByOccurrence(ctx, occ.ID)
	if err != nil {
		return nil, fmt.Errorf("list reminders for occurrence %s: %w", occ.ID, err)
	}

	specs := policy.ComputeDefaultReminders(occ, series, p.global)
	want := make(map[string]time.Time, len(specs))
	for _, spec := range specs {
		want[spec.Channel] = occ.ScheduledAt.Add(-time.Duration(spec.LeadMinutes) * time.Minute)
	}

	for _, r := range existing {
		if r.Source != models.SourceDefault || r.Terminal() {
			continue
		}
		sendAt, wanted := want[r.Channel]
		if wanted && r.ScheduledSendAt.Equal(sendAt) {
			continue
		}
		if err := p.store.MarkSkipped(ctx, r.ID, "superseded by reschedule"); err != nil {
			// A concurrent worker may have resolved it already; the replacement
			// insert below still applies.
			p.log.Warn().Err(err).Str("reminder_id", r.ID).Msg("could not supersede reminder")
		}
	}

	return p.Provision(ctx, occ, series)
}
