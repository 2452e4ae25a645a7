// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/community-hub/event-ledger/internal/model"
	"github.com/community-hub/event-ledger/internal/repository"
	"github.com/community-hub/event-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// EventHandler holds all HTTP handlers for the registration ledger API.
type EventHandler struct {
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// Routes returns the API route table.
func (h *EventHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/toggle", h.ToggleRegistration)
		r.Put("/{id}/manual-count", h.SetManualCount)
		r.Get("/{id}/registrations", h.ListRegistrations)
	})
	r.Get("/my/events", h.ListMyEvents)
	return r
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps the error taxonomy onto HTTP statuses so UIs
// can tell a full event or missing privilege apart from a transient
// failure.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, repository.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "administrator privileges required")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, repository.ErrEventFull):
		writeError(w, http.StatusConflict, "event is fully booked")
	default:
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event record. Administrator only.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), CallerFrom(r), req)
	if err != nil {
		if errors.Is(err, repository.ErrPermissionDenied) {
			writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns all events with their occupancy summary.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventSummary{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Returns a single event plus whether the caller is registered for it.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := CallerFrom(r)

	event, err := h.svc.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	registered, err := h.svc.IsRegistered(r.Context(), id, caller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		model.EventSummary
		Registered bool `json:"registered"`
	}{EventSummary: *event, Registered: registered})
}

// DeleteEvent handles DELETE /events/{id}
// Removes the event record and announces the deletion. Administrator only.
func (h *EventHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.DeleteEvent(r.Context(), CallerFrom(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRegistration handles POST /events/{id}/toggle
// Registers the caller if they are not registered, unregisters them if
// they are. Registration is refused with 409 when the event is full.
func (h *EventHandler) ToggleRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.svc.ToggleRegistration(r.Context(), id, CallerFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SetManualCount handles PUT /events/{id}/manual-count
// Stores the manual attendee counter, re-clamped server-side.
// Administrator only.
func (h *EventHandler) SetManualCount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.ManualCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stored, err := h.svc.SetManualCount(r.Context(), id, CallerFrom(r), req.Count)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ManualCountRequest{Count: stored})
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns enriched attendee rows for an event. Administrator only.
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rows, err := h.svc.ListRegistrations(r.Context(), id, CallerFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if rows == nil {
		rows = []model.AttendeeRow{}
	}

	writeJSON(w, http.StatusOK, rows)
}

// ListMyEvents handles GET /my/events
// Returns the ids of events the caller is registered for.
func (h *EventHandler) ListMyEvents(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListMyEvents(r.Context(), CallerFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, ids)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
