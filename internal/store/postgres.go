package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"reminder-engine/internal/models"
)

// Postgres wraps pgxpool for durable persistence shared by every worker and
// API instance.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Postgres) CreateOccurrence(ctx context.Context, occ models.Occurrence) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO occurrences (id, series_id, title, recipient, scheduled_at, done, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, occ.ID, occ.SeriesID, occ.Title, occ.Recipient, occ.ScheduledAt, occ.Done, occ.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert occurrence: %w", err)
	}
	return nil
}

func (s *Postgres) GetOccurrence(ctx context.Context, id string) (models.Occurrence, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, series_id, title, recipient, scheduled_at, done, created_at
		FROM occurrences WHERE id = $1
	`, id)

	var occ models.Occurrence
	if err := row.Scan(&occ.ID, &occ.SeriesID, &occ.Title, &occ.Recipient, &occ.ScheduledAt, &occ.Done, &occ.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Occurrence{}, ErrNotFound
		}
		return models.Occurrence{}, fmt.Errorf("scan occurrence: %w", err)
	}
	return occ, nil
}

func (s *Postgres) SetOccurrenceDone(ctx context.Context, id string, done bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET done = $2 WHERE id = $1
	`, id, done)
	if err != nil {
		return fmt.Errorf("update occurrence done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) RescheduleOccurrence(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET scheduled_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("reschedule occurrence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const reminderColumns = `id, occurrence_id, channel, source, scheduled_send_at, status, attempts, last_error, delivery_note, claim_owner, created_at, claimed_at, sent_at`

func (s *Postgres) InsertReminderIfAbsent(ctx context.Context, r models.Reminder) (bool, error) {
	// The partial unique index on (occurrence_id, channel) for default-source
	// rows makes this race-safe against concurrent provisioning.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, NULL, $8, NULL, NULL)
		ON CONFLICT (occurrence_id, channel) WHERE source = 'default' AND status <> 'skipped' DO NOTHING
	`, r.ID, r.OccurrenceID, r.Channel, r.Source, r.ScheduledSendAt, r.Status, r.Attempts, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert reminder: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) InsertReminder(ctx context.Context, r models.Reminder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL, NULL, $8, NULL, NULL)
	`, r.ID, r.OccurrenceID, r.Channel, r.Source, r.ScheduledSendAt, r.Status, r.Attempts, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

func (s *Postgres) GetReminder(ctx context.Context, id string) (models.Reminder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	r, err := scanReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Reminder{}, ErrNotFound
	}
	return r, err
}

func (s *Postgres) ListRemindersByOccurrence(ctx context.Context, occurrenceID string) ([]models.Reminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE occurrence_id = $1 ORDER BY created_at
	`, occurrenceID)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (s *Postgres) ListReminders(ctx context.Context, status string, limit int) ([]models.Reminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders`
	args := []any{limit}
	if status != "" {
		q += ` WHERE status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()
	return collectReminders(rows)
}

// ClaimDue wins due rows with a single conditional update. FOR UPDATE SKIP
// LOCKED keeps concurrent claimers from blocking on each other and guarantees
// each row has exactly one winner; the lock acquired in the CTE holds through
// the UPDATE.
func (s *Postgres) ClaimDue(ctx context.Context, now, staleBefore time.Time, limit int, owner string) ([]models.Reminder, int, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id, status AS prev_status FROM reminders
			WHERE scheduled_send_at <= $1
			  AND (status = $5 OR (status = $4 AND claimed_at <= $2))
			ORDER BY scheduled_send_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE reminders r SET status = $4, claim_owner = $6, claimed_at = $1
		FROM due
		WHERE r.id = due.id
		RETURNING r.id, r.occurrence_id, r.channel, r.source, r.scheduled_send_at,
		          r.status, r.attempts, r.last_error, r.delivery_note, r.claim_owner,
		          r.created_at, r.claimed_at, r.sent_at, due.prev_status
	`, now, staleBefore, limit, models.StatusClaimed, models.StatusPending, owner)
	if err != nil {
		return nil, 0, fmt.Errorf("claim due reminders: %w", err)
	}
	defer rows.Close()

	var claimed []models.Reminder
	var reclaimed int
	for rows.Next() {
		var r models.Reminder
		var lastErr, note, claimOwner pgtype.Text
		var claimedAt, sentAt pgtype.Timestamptz
		var prevStatus string
		if err := rows.Scan(&r.ID, &r.OccurrenceID, &r.Channel, &r.Source, &r.ScheduledSendAt,
			&r.Status, &r.Attempts, &lastErr, &note, &claimOwner, &r.CreatedAt, &claimedAt, &sentAt,
			&prevStatus); err != nil {
			return nil, 0, fmt.Errorf("scan claimed reminder: %w", err)
		}
		r.LastError = textPtr(lastErr)
		r.DeliveryNote = textPtr(note)
		r.ClaimOwner = textPtr(claimOwner)
		r.ClaimedAt = timePtr(claimedAt)
		r.SentAt = timePtr(sentAt)
		if prevStatus == models.StatusClaimed {
			reclaimed++
		}
		claimed = append(claimed, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate claimed reminders: %w", err)
	}
	return claimed, reclaimed, nil
}

func (s *Postgres) MarkSent(ctx context.Context, id, owner string, at time.Time, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET status = $3, sent_at = $4, delivery_note = $5, last_error = NULL, claim_owner = NULL
		WHERE id = $1 AND status = $6 AND claim_owner = $2
	`, id, owner, models.StatusSent, at, emptyToNil(note), models.StatusClaimed)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Postgres) MarkFailed(ctx context.Context, id, owner string, attempts int, errSummary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET status = $3, attempts = $4, last_error = $5, claim_owner = NULL
		WHERE id = $1 AND status = $6 AND claim_owner = $2
	`, id, owner, models.StatusFailed, attempts, errSummary, models.StatusClaimed)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Postgres) ReleaseForRetry(ctx context.Context, id, owner string, attempts int, errSummary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET status = $3, attempts = $4, last_error = $5, claim_owner = NULL, claimed_at = NULL
		WHERE id = $1 AND status = $6 AND claim_owner = $2
	`, id, owner, models.StatusPending, attempts, errSummary, models.StatusClaimed)
	if err != nil {
		return fmt.Errorf("release for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (s *Postgres) MarkSkipped(ctx context.Context, id, note string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reminders SET status = $2, delivery_note = $3, claim_owner = NULL
		WHERE id = $1 AND status IN ($4, $5)
	`, id, models.StatusSkipped, emptyToNil(note), models.StatusPending, models.StatusClaimed)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func scanReminder(row pgx.Row) (models.Reminder, error) {
	var r models.Reminder
	var lastErr, note, owner pgtype.Text
	var claimedAt, sentAt pgtype.Timestamptz
	err := row.Scan(&r.ID, &r.OccurrenceID, &r.Channel, &r.Source, &r.ScheduledSendAt,
		&r.Status, &r.Attempts, &lastErr, &note, &owner, &r.CreatedAt, &claimedAt, &sentAt)
	if err != nil {
		return models.Reminder{}, err
	}
	r.LastError = textPtr(lastErr)
	r.DeliveryNote = textPtr(note)
	r.ClaimOwner = textPtr(owner)
	r.ClaimedAt = timePtr(claimedAt)
	r.SentAt = timePtr(sentAt)
	return r, nil
}

func collectReminders(rows pgx.Rows) ([]models.Reminder, error) {
	var out []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return out, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if t.Valid {
		v := t.Time
		return &v
	}
	return nil
}

func emptyToNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
