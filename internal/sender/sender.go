// Package sender abstracts reminder delivery. Variants are selected at
// configuration time; the dispatch worker holds no channel-specific logic.
package sender

import (
	"context"
	"errors"

	"reminder-engine/internal/models"
)

// NoteNoChannel marks deliveries that succeeded only because no channel was
// configured, so the audit trail can tell them apart from real sends.
const NoteNoChannel = "delivery skipped: no channel configured"

// Message carries the occurrence context a sender needs to render a reminder.
// Senders never see credentials through this type.
type Message struct {
	Recipient   string
	Title       string
	ScheduledAt string
}

// Outcome describes a completed send attempt.
type Outcome struct {
	Delivered bool
	Note      string
}

// Sender delivers one reminder message. Implementations must return errors
// with any credential material stripped; the summary is persisted and logged.
type Sender interface {
	Send(ctx context.Context, msg Message) (Outcome, error)
}

// ErrNoSender is returned by the registry for channels with no configured
// variant and no noop fallback.
var ErrNoSender = errors.New("sender: no sender for channel")

// Registry maps channels to their configured sender.
type Registry struct {
	byChannel map[string]Sender
	fallback  Sender
}

// NewRegistry builds an empty registry with fallback as the sender for any
// channel without an explicit entry. A nil fallback disables the channel.
func NewRegistry(fallback Sender) *Registry {
	return &Registry{byChannel: make(map[string]Sender), fallback: fallback}
}

// Register binds a sender to a channel.
func (r *Registry) Register(channel string, s Sender) {
	if channel == "" || s == nil {
		return
	}
	r.byChannel[channel] = s
}

// For resolves the sender for a channel.
func (r *Registry) For(channel string) (Sender, error) {
	if s, ok := r.byChannel[channel]; ok {
		return s, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, ErrNoSender
}

// MessageFor renders the sender-facing view of an occurrence.
func MessageFor(occ models.Occurrence) Message {
	return Message{
		Recipient:   occ.Recipient,
		Title:       occ.Title,
		ScheduledAt: occ.ScheduledAt.Format("2006-01-02 15:04 MST"),
	}
}
