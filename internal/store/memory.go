package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"reminder-engine/internal/models"
)

// Memory is an in-process Store used in tests and local development without
// Postgres. The mutex stands in for the database's conditional-update
// semantics: every transition re-checks the expected prior status under the
// lock, so the claim protocol behaves the same as the Postgres implementation.
type Memory struct {
	mu          sync.Mutex
	occurrences map[string]models.Occurrence
	reminders   map[string]models.Reminder
	order       []string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		occurrences: make(map[string]models.Occurrence),
		reminders:   make(map[string]models.Reminder),
	}
}

func (s *Memory) Close() {}

func (s *Memory) CreateOccurrence(_ context.Context, occ models.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.occurrences[occ.ID] = occ
	return nil
}

func (s *Memory) GetOccurrence(_ context.Context, id string) (models.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ, ok := s.occurrences[id]
	if !ok {
		return models.Occurrence{}, ErrNotFound
	}
	return occ, nil
}

func (s *Memory) SetOccurrenceDone(_ context.Context, id string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ, ok := s.occurrences[id]
	if !ok {
		return ErrNotFound
	}
	occ.Done = done
	s.occurrences[id] = occ
	return nil
}

func (s *Memory) RescheduleOccurrence(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	occ, ok := s.occurrences[id]
	if !ok {
		return ErrNotFound
	}
	occ.ScheduledAt = at
	s.occurrences[id] = occ
	return nil
}

func (s *Memory) InsertReminderIfAbsent(_ context.Context, r models.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reminders {
		if existing.Source == models.SourceDefault &&
			existing.Status != models.StatusSkipped &&
			existing.OccurrenceID == r.OccurrenceID &&
			existing.Channel == r.Channel {
			return false, nil
		}
	}
	s.reminders[r.ID] = r
	s.order = append(s.order, r.ID)
	return true, nil
}

func (s *Memory) InsertReminder(_ context.Context, r models.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[r.ID]; ok {
		return ErrConflict
	}
	s.reminders[r.ID] = r
	s.order = append(s.order, r.ID)
	return nil
}

func (s *Memory) GetReminder(_ context.Context, id string) (models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return models.Reminder{}, ErrNotFound
	}
	return r, nil
}

func (s *Memory) ListRemindersByOccurrence(_ context.Context, occurrenceID string) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, id := range s.order {
		if r := s.reminders[id]; r.OccurrenceID == occurrenceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) ListReminders(_ context.Context, status string, limit int) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.reminders[s.order[i]]
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) ClaimDue(_ context.Context, now, staleBefore time.Time, limit int, owner string) ([]models.Reminder, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []models.Reminder
	for _, r := range s.reminders {
		if !r.ScheduledSendAt.After(now) && claimable(r, staleBefore) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledSendAt.Before(due[j].ScheduledSendAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]models.Reminder, 0, len(due))
	var reclaimed int
	for _, r := range due {
		if r.Status == models.StatusClaimed {
			reclaimed++
		}
		r.Status = models.StatusClaimed
		r.ClaimOwner = &owner
		t := now
		r.ClaimedAt = &t
		s.reminders[r.ID] = r
		claimed = append(claimed, r)
	}
	return claimed, reclaimed, nil
}

func claimable(r models.Reminder, staleBefore time.Time) bool {
	if r.Status == models.StatusPending {
		return true
	}
	return r.Status == models.StatusClaimed && r.ClaimedAt != nil && !r.ClaimedAt.After(staleBefore)
}

func (s *Memory) MarkSent(_ context.Context, id, owner string, at time.Time, note string) error {
	return s.resolve(id, owner, func(r *models.Reminder) {
		r.Status = models.StatusSent
		t := at
		r.SentAt = &t
		r.DeliveryNote = emptyToNil(note)
		r.LastError = nil
	})
}

func (s *Memory) MarkFailed(_ context.Context, id, owner string, attempts int, errSummary string) error {
	return s.resolve(id, owner, func(r *models.Reminder) {
		r.Status = models.StatusFailed
		r.Attempts = attempts
		r.LastError = &errSummary
	})
}

func (s *Memory) ReleaseForRetry(_ context.Context, id, owner string, attempts int, errSummary string) error {
	return s.resolve(id, owner, func(r *models.Reminder) {
		r.Status = models.StatusPending
		r.Attempts = attempts
		r.LastError = &errSummary
		r.ClaimedAt = nil
	})
}

// resolve applies fn to a reminder currently claimed by owner.
func (s *Memory) resolve(id, owner string, fn func(*models.Reminder)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != models.StatusClaimed || r.ClaimOwner == nil || *r.ClaimOwner != owner {
		return ErrConflict
	}
	fn(&r)
	r.ClaimOwner = nil
	s.reminders[id] = r
	return nil
}

func (s *Memory) MarkSkipped(_ context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != models.StatusPending && r.Status != models.StatusClaimed {
		return ErrConflict
	}
	r.Status = models.StatusSkipped
	r.DeliveryNote = emptyToNil(note)
	r.ClaimOwner = nil
	s.reminders[id] = r
	return nil
}
