// Package api exposes the thin HTTP surface around the engine: the CRUD glue
// that feeds the provisioner, the audit endpoints over reminder rows, and the
// operator's run-a-cycle-now trigger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reminder-engine/internal/clock"
	"reminder-engine/internal/config"
	"reminder-engine/internal/models"
	"reminder-engine/internal/provision"
	"reminder-engine/internal/store"
	"reminder-engine/internal/telemetry"
	"reminder-engine/internal/wake"
	"reminder-engine/internal/worker"
)

// Server wires HTTP handlers for the engine's external interface.
type Server struct {
	cfg         config.Config
	store       store.Store
	provisioner *provision.Provisioner
	dispatcher  *worker.Dispatcher
	bus         *wake.Bus
	clock       clock.Clock
	log         zerolog.Logger
}

// New constructs the API server. bus may be nil (no wake signal configured).
func New(cfg config.Config, st store.Store, prov *provision.Provisioner, disp *worker.Dispatcher, bus *wake.Bus, clk clock.Clock, log zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		store:       st,
		provisioner: prov,
		dispatcher:  disp,
		bus:         bus,
		clock:       clk,
		log:         log.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/occurrences", s.handleCreateOccurrence)
	r.Post("/occurrences/{id}/complete", s.handleCompleteOccurrence)
	r.Post("/occurrences/{id}/reschedule", s.handleRescheduleOccurrence)
	r.Get("/occurrences/{id}/reminders", s.handleOccurrenceReminders)
	r.Get("/reminders", s.handleListReminders)
	r.Post("/dispatch/run", s.handleRunDispatch)
	return r
}

type createOccurrenceRequest struct {
	SeriesID         string     `json:"series_id"`
	Title            string     `json:"title"`
	Recipient        string     `json:"recipient"`
	ScheduledAt      *time.Time `json:"scheduled_at"`
	LeadMinutes      *int       `json:"reminder_lead_minutes"`
	RemindersEnabled *bool      `json:"default_reminders_enabled"`
}

type createOccurrenceResponse struct {
	Occurrence models.Occurrence `json:"occurrence"`
	Reminders  []models.Reminder `json:"reminders"`
}

func (s *Server) handleCreateOccurrence(w http.ResponseWriter, r *http.Request) {
	var req createOccurrenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Title == "" || req.Recipient == "" || req.ScheduledAt == nil {
		http.Error(w, "title, recipient and scheduled_at are required", http.StatusBadRequest)
		return
	}
	if req.SeriesID == "" {
		req.SeriesID = uuid.New().String()
	}

	occ := models.Occurrence{
		ID:          uuid.New().String(),
		SeriesID:    req.SeriesID,
		Title:       req.Title,
		Recipient:   req.Recipient,
		ScheduledAt: req.ScheduledAt.UTC(),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateOccurrence(r.Context(), occ); err != nil {
		s.log.Error().Err(err).Msg("create occurrence")
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	series := models.SeriesConfig{
		ID:               req.SeriesID,
		LeadMinutes:      req.LeadMinutes,
		RemindersEnabled: req.RemindersEnabled,
	}
	reminders, err := s.provisioner.Provision(r.Context(), occ, series)
	if err != nil {
		s.log.Error().Err(err).Msg("provision reminders")
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	telemetry.RemindersProvisioned.Add(float64(len(reminders)))
	s.bus.Publish(r.Context())

	writeJSON(w, http.StatusCreated, createOccurrenceResponse{Occurrence: occ, Reminders: reminders})
}

func (s *Server) handleCompleteOccurrence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetOccurrenceDone(r.Context(), id, true); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "occurrence not found", http.StatusNotFound)
			return
		}
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rescheduleRequest struct {
	ScheduledAt      *time.Time `json:"scheduled_at"`
	LeadMinutes      *int       `json:"reminder_lead_minutes"`
	RemindersEnabled *bool      `json:"default_reminders_enabled"`
}

func (s *Server) handleRescheduleOccurrence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScheduledAt == nil {
		http.Error(w, "scheduled_at is required", http.StatusBadRequest)
		return
	}

	if err := s.store.RescheduleOccurrence(r.Context(), id, req.ScheduledAt.UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "occurrence not found", http.StatusNotFound)
			return
		}
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	occ, err := s.store.GetOccurrence(r.Context(), id)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}

	series := models.SeriesConfig{
		ID:               occ.SeriesID,
		LeadMinutes:      req.LeadMinutes,
		RemindersEnabled: req.RemindersEnabled,
	}
	reminders, err := s.provisioner.Reprovision(r.Context(), occ, series)
	if err != nil {
		s.log.Error().Err(err).Msg("reprovision reminders")
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	telemetry.RemindersProvisioned.Add(float64(len(reminders)))
	s.bus.Publish(r.Context())

	writeJSON(w, http.StatusOK, createOccurrenceResponse{Occurrence: occ, Reminders: reminders})
}

func (s *Server) handleOccurrenceReminders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reminders, err := s.store.ListRemindersByOccurrence(r.Context(), id)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

// maxListLimit bounds the audit endpoint's page size so a single request
// cannot ask the store for an arbitrarily large scan.
const maxListLimit = 500

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	reminders, err := s.store.ListReminders(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "store error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

// handleRunDispatch is the discrete run-now entry point. By default it wakes
// the workers and returns; with ?sync=1 it runs a cycle inline and reports
// infrastructure failure. Per-reminder send failures never surface here; the
// reminder rows are the audit trail.
func (s *Server) handleRunDispatch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sync") == "" {
		s.bus.Publish(r.Context())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	stats, err := s.dispatcher.RunCycle(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("sync dispatch cycle")
		http.Error(w, "dispatch cycle aborted", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
