package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/config"
	"reminder-engine/internal/models"
	"reminder-engine/internal/policy"
	"reminder-engine/internal/provision"
	"reminder-engine/internal/sender"
	"reminder-engine/internal/store"
	"reminder-engine/internal/worker"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory, *clock.Fake) {
	t.Helper()
	cfg := config.Config{
		PollInterval:            time.Minute,
		ClaimTimeout:            5 * time.Minute,
		DispatchBatchSize:       100,
		SendTimeout:             time.Second,
		MaxAttempts:             1,
		DefaultRemindersEnabled: true,
		DefaultLeadMinutes:      60,
	}
	st := store.NewMemory()
	clk := clock.NewFake(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	global := policy.Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60}
	prov := provision.New(st, global, clk, zerolog.Nop())
	senders := sender.NewRegistry(sender.NewNoop())
	disp := worker.New(cfg, st, senders, clk, "api-test", zerolog.Nop())

	srv := New(cfg, st, prov, disp, nil, clk, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st, clk
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func createOccurrence(t *testing.T, ts *httptest.Server, at time.Time) createOccurrenceResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/occurrences", map[string]any{
		"title":        "standup",
		"recipient":    "team@example.com",
		"scheduled_at": at,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create occurrence: status %d", resp.StatusCode)
	}
	var out createOccurrenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestCreateOccurrenceProvisionsReminder(t *testing.T) {
	ts, _, clk := newTestServer(t)

	start := clk.Now().Add(2 * time.Hour)
	out := createOccurrence(t, ts, start)

	if len(out.Reminders) != 1 {
		t.Fatalf("expected one provisioned reminder, got %d", len(out.Reminders))
	}
	r := out.Reminders[0]
	if r.Channel != models.ChannelEmail || r.Status != models.StatusPending {
		t.Fatalf("unexpected reminder: %+v", r)
	}
	if want := start.Add(-60 * time.Minute); !r.ScheduledSendAt.Equal(want) {
		t.Fatalf("expected send at %v, got %v", want, r.ScheduledSendAt)
	}
}

func TestSyncDispatchResolvesDueReminder(t *testing.T) {
	ts, st, clk := newTestServer(t)

	out := createOccurrence(t, ts, clk.Now().Add(2*time.Hour))
	clk.Advance(90 * time.Minute) // past the send time

	resp := postJSON(t, ts.URL+"/dispatch/run?sync=1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync dispatch: status %d", resp.StatusCode)
	}
	var stats worker.CycleStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Sent != 1 {
		t.Fatalf("expected one sent, got %+v", stats)
	}

	r, err := st.GetReminder(context.Background(), out.Reminders[0].ID)
	if err != nil {
		t.Fatalf("get reminder: %v", err)
	}
	if r.Status != models.StatusSent {
		t.Fatalf("expected sent, got %q", r.Status)
	}
}

func TestCompleteOccurrenceLeadsToSkip(t *testing.T) {
	ts, st, clk := newTestServer(t)

	out := createOccurrence(t, ts, clk.Now().Add(2*time.Hour))

	resp := postJSON(t, ts.URL+"/occurrences/"+out.Occurrence.ID+"/complete", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("complete: status %d", resp.StatusCode)
	}

	clk.Advance(90 * time.Minute)
	resp = postJSON(t, ts.URL+"/dispatch/run?sync=1", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync dispatch: status %d", resp.StatusCode)
	}

	r, _ := st.GetReminder(context.Background(), out.Reminders[0].ID)
	if r.Status != models.StatusSkipped {
		t.Fatalf("expected skipped, got %q", r.Status)
	}
}

func TestRescheduleReplacesReminder(t *testing.T) {
	ts, _, clk := newTestServer(t)

	out := createOccurrence(t, ts, clk.Now().Add(2*time.Hour))
	newStart := clk.Now().Add(5 * time.Hour)

	resp := postJSON(t, ts.URL+"/occurrences/"+out.Occurrence.ID+"/reschedule", map[string]any{
		"scheduled_at": newStart,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reschedule: status %d", resp.StatusCode)
	}
	var res createOccurrenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Reminders) != 1 {
		t.Fatalf("expected one replacement reminder, got %d", len(res.Reminders))
	}
	if want := newStart.Add(-60 * time.Minute); !res.Reminders[0].ScheduledSendAt.Equal(want) {
		t.Fatalf("expected replacement at %v, got %v", want, res.Reminders[0].ScheduledSendAt)
	}
}

func TestListRemindersAuditSurface(t *testing.T) {
	ts, _, clk := newTestServer(t)

	for i := 0; i < 3; i++ {
		createOccurrence(t, ts, clk.Now().Add(time.Duration(i+1)*time.Hour))
	}

	resp, err := http.Get(fmt.Sprintf("%s/reminders?status=%s", ts.URL, models.StatusPending))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Reminders []models.Reminder `json:"reminders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Reminders) != 3 {
		t.Fatalf("expected 3 pending reminders, got %d", len(body.Reminders))
	}
}

// recordingStore captures the limit the list handler passes down.
type recordingStore struct {
	store.Store
	lastLimit int
}

func (s *recordingStore) ListReminders(ctx context.Context, status string, limit int) ([]models.Reminder, error) {
	s.lastLimit = limit
	return s.Store.ListReminders(ctx, status, limit)
}

func TestListRemindersLimitIsCapped(t *testing.T) {
	cfg := config.Config{
		PollInterval:      time.Minute,
		ClaimTimeout:      5 * time.Minute,
		DispatchBatchSize: 100,
		SendTimeout:       time.Second,
		MaxAttempts:       1,
	}
	rec := &recordingStore{Store: store.NewMemory()}
	clk := clock.NewFake(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	prov := provision.New(rec, policy.Global{DefaultRemindersEnabled: true, DefaultLeadMinutes: 60}, clk, zerolog.Nop())
	disp := worker.New(cfg, rec, sender.NewRegistry(sender.NewNoop()), clk, "api-test", zerolog.Nop())
	ts := httptest.NewServer(New(cfg, rec, prov, disp, nil, clk, zerolog.Nop()).Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/reminders?limit=100000")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	if rec.lastLimit != maxListLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxListLimit, rec.lastLimit)
	}
}

func TestRunDispatchAsyncAccepted(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/dispatch/run", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("async dispatch: status %d", resp.StatusCode)
	}
}
