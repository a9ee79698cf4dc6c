package store

import (
	"context"
	"errors"
	"time"

	"reminder-engine/internal/models"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a conditional transition loses its race: the
// row was no longer in the expected status, or the claim belongs to another
// owner. Callers treat it as "someone else resolved this" and move on.
var ErrConflict = errors.New("store: conditional update conflict")

// Store is the durable record of occurrences and reminders, shared across all
// worker instances. All reminder mutation goes through conditional transitions;
// the claim is the only point of mutual exclusion between workers.
type Store interface {
	CreateOccurrence(ctx context.Context, occ models.Occurrence) error
	GetOccurrence(ctx context.Context, id string) (models.Occurrence, error)
	SetOccurrenceDone(ctx context.Context, id string, done bool) error

	// RescheduleOccurrence moves an occurrence's start time. Reminder rows are
	// untouched; callers reprovision to realign them.
	RescheduleOccurrence(ctx context.Context, id string, at time.Time) error

	// InsertReminderIfAbsent inserts a default-source reminder unless a
	// non-skipped one already exists for the (occurrence, channel) pair.
	// It reports whether a row was inserted; an existing pair is a no-op,
	// not an error. Skipped rows never block a replacement.
	InsertReminderIfAbsent(ctx context.Context, r models.Reminder) (bool, error)

	// InsertReminder inserts a manual reminder without the pair uniqueness
	// check.
	InsertReminder(ctx context.Context, r models.Reminder) error

	GetReminder(ctx context.Context, id string) (models.Reminder, error)
	ListRemindersByOccurrence(ctx context.Context, occurrenceID string) ([]models.Reminder, error)

	// ListReminders returns up to limit reminders, newest first, optionally
	// filtered by status. This is the operator audit surface.
	ListReminders(ctx context.Context, status string, limit int) ([]models.Reminder, error)

	// ClaimDue atomically transitions up to limit due reminders to claimed for
	// owner. Eligible rows are pending with scheduled_send_at <= now, or
	// claimed with claimed_at <= staleBefore (stale-claim recovery). Each row
	// is won by exactly one caller even under concurrent claims. reclaimed
	// counts how many of the returned rows were recovered from stale claims.
	ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int, owner string) (claimed []models.Reminder, reclaimed int, err error)

	// MarkSent resolves a claim held by owner to sent. ErrConflict if the row
	// is not claimed by owner.
	MarkSent(ctx context.Context, id, owner string, at time.Time, note string) error

	// MarkFailed resolves a claim held by owner to the terminal failed state.
	MarkFailed(ctx context.Context, id, owner string, attempts int, errSummary string) error

	// ReleaseForRetry returns a claimed reminder to pending with an updated
	// attempt count, leaving scheduled_send_at untouched so the next cycle
	// reclaims it.
	ReleaseForRetry(ctx context.Context, id, owner string, attempts int, errSummary string) error

	// MarkSkipped transitions a pending or claimed reminder to skipped.
	MarkSkipped(ctx context.Context, id, note string) error

	Close()
}
