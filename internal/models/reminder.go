package models

import (
	"time"
)

// ReminderStatus enumerates lifecycle states persisted in the store.
// pending -> claimed -> {sent | pending(retry) | failed}; skipped is reachable
// only from pending or claimed (guard phase). sent, failed, skipped are terminal.
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Channel identifies a delivery channel. The set is extensible; the worker
// holds no channel-specific logic and resolves channels through the sender
// registry.
const (
	ChannelEmail = "email"
	ChannelSlack = "slack"
)

// Reminder source markers. Provisioner-created rows are unique per
// (occurrence, channel); manual rows are not.
const (
	SourceDefault = "default"
	SourceManual  = "manual"
)

// Occurrence is one concrete instance of a recurring meeting series.
type Occurrence struct {
	ID          string    `json:"id"`
	SeriesID    string    `json:"series_id"`
	Title       string    `json:"title"`
	Recipient   string    `json:"recipient"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Done        bool      `json:"done"`
	CreatedAt   time.Time `json:"created_at"`
}

// SeriesConfig is the read-only slice of series configuration the reminder
// policy consumes.
type SeriesConfig struct {
	ID               string `json:"id"`
	LeadMinutes      *int   `json:"reminder_lead_minutes,omitempty"`
	RemindersEnabled *bool  `json:"default_reminders_enabled,omitempty"`
}

// Reminder is a durable record of one owed delivery. scheduled_send_at is
// immutable after creation; rescheduling replaces the row instead of mutating
// it so the audit trail survives.
type Reminder struct {
	ID              string     `json:"id"`
	OccurrenceID    string     `json:"occurrence_id"`
	Channel         string     `json:"channel"`
	Source          string     `json:"source"`
	ScheduledSendAt time.Time  `json:"scheduled_send_at"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	LastError       *string    `json:"last_error,omitempty"`
	DeliveryNote    *string    `json:"delivery_note,omitempty"`
	ClaimOwner      *string    `json:"claim_owner,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// Terminal reports whether the reminder can never be claimed again.
func (r Reminder) Terminal() bool {
	switch r.Status {
	case StatusSent, StatusFailed, StatusSkipped:
		return true
	}
	return false
}
