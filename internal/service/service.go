// Package service implements the registration facade: the caller-facing
// operations that couple authorization, capacity policy, and ledger
// mutation, plus event record management.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/community-hub/event-ledger/internal/capacity"
	"github.com/community-hub/event-ledger/internal/identity"
	"github.com/community-hub/event-ledger/internal/messaging"
	"github.com/community-hub/event-ledger/internal/model"
	"github.com/community-hub/event-ledger/internal/repository"
	"github.com/sirupsen/logrus"
)

// EventStore holds event records: capacity, schedule, and the manual
// attendee counter.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	Delete(ctx context.Context, id string) error
	SetManualCount(ctx context.Context, eventID string, draft int) (int, error)
}

// RegistrationLedger is the durable, de-duplicated membership of
// (event, user) pairs.
type RegistrationLedger interface {
	IsRegistered(ctx context.Context, eventID, userID string) (bool, error)
	CountForEvent(ctx context.Context, eventID string) (int, error)
	Register(ctx context.Context, eventID, userID string) (*model.Registration, error)
	Unregister(ctx context.Context, eventID, userID string) error
	ListForEvent(ctx context.Context, eventID string) ([]model.Registration, error)
	ListEventIDsForUser(ctx context.Context, userID string) ([]string, error)
}

// IdentityResolver turns a user id into display fields, best-effort.
type IdentityResolver interface {
	Resolve(ctx context.Context, userID string) identity.DisplayIdentity
}

// Caller is a request identity as resolved by the fronting auth layer.
// The facade trusts IsAdmin; it performs no independent verification.
type Caller struct {
	UserID  string
	IsAdmin bool
}

// EventService orchestrates event and registration operations.
type EventService struct {
	events    EventStore
	ledger    RegistrationLedger
	resolver  IdentityResolver
	publisher messaging.Publisher
	log       *logrus.Logger
}

// NewEventService constructs an EventService with its dependencies.
// publisher may be nil; lifecycle notifications are then skipped.
func NewEventService(
	events EventStore,
	ledger RegistrationLedger,
	resolver IdentityResolver,
	publisher messaging.Publisher,
	log *logrus.Logger,
) *EventService {
	return &EventService{
		events:    events,
		ledger:    ledger,
		resolver:  resolver,
		publisher: publisher,
		log:       log,
	}
}

// CreateEvent validates the request and stores a new event record.
// Administrator only.
func (s *EventService) CreateEvent(ctx context.Context, caller Caller, req model.CreateEventRequest) (*model.Event, error) {
	if !caller.IsAdmin {
		return nil, repository.ErrPermissionDenied
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("event title is required")
	}
	if req.MaxAttendees < 0 {
		return nil, fmt.Errorf("max_attendees must not be negative")
	}
	if req.StartsAt.IsZero() {
		return nil, fmt.Errorf("starts_at is required")
	}
	return s.events.Create(ctx, req)
}

// ListEvents returns all events with their occupancy summary.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventSummary, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	summaries := make([]model.EventSummary, 0, len(events))
	for i := range events {
		summary, err := s.summarize(ctx, &events[i])
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

// GetEvent returns a single event with its occupancy summary.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventSummary, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return s.summarize(ctx, event)
}

func (s *EventService) summarize(ctx context.Context, event *model.Event) (*model.EventSummary, error) {
	realCount, err := s.ledger.CountForEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	return &model.EventSummary{
		Event:           *event,
		RegisteredCount: realCount,
		Full:            capacity.IsFull(event.Capacity(), event.ManualCount, realCount),
	}, nil
}

// DeleteEvent removes an event record and announces the deletion so the
// reconciler can purge its registrations. Administrator only.
func (s *EventService) DeleteEvent(ctx context.Context, caller Caller, id string) error {
	if !caller.IsAdmin {
		return repository.ErrPermissionDenied
	}
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(messaging.SubjectEventDeleted, messaging.DeletionMessage{EventID: id})
	return nil
}

// ToggleRegistration flips the caller's registration for the event.
// Registering is guarded by the capacity check; unregistering is always
// permitted. Returns the caller's resulting state.
func (s *EventService) ToggleRegistration(ctx context.Context, eventID string, caller Caller) (*model.ToggleResult, error) {
	if caller.UserID == "" {
		return nil, repository.ErrNotAuthenticated
	}
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	registered, err := s.ledger.IsRegistered(ctx, eventID, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}

	if registered {
		if err := s.ledger.Unregister(ctx, eventID, caller.UserID); err != nil {
			return nil, fmt.Errorf("unregister: %w", err)
		}
		s.log.WithFields(logrus.Fields{
			"event_id": eventID,
			"user_id":  caller.UserID,
		}).Info("registration removed")
		s.publish(messaging.SubjectUnregistered, messaging.RegistrationMessage{
			EventID:    eventID,
			UserID:     caller.UserID,
			OccurredAt: time.Now().UTC(),
		})
		return &model.ToggleResult{Registered: false}, nil
	}

	reg, err := s.ledger.Register(ctx, eventID, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrEventFull) || errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"event_id": eventID,
		"user_id":  caller.UserID,
	}).Info("registration created")
	s.publish(messaging.SubjectRegistered, messaging.RegistrationMessage{
		EventID:    eventID,
		UserID:     caller.UserID,
		OccurredAt: reg.CreatedAt,
	})
	return &model.ToggleResult{Registered: true}, nil
}

// SetManualCount stores the administrator's manual attendee counter for
// an event. The draft is re-clamped server-side against a fresh
// registration count; the persisted value is returned.
func (s *EventService) SetManualCount(ctx context.Context, eventID string, caller Caller, draft int) (int, error) {
	if !caller.IsAdmin {
		return 0, repository.ErrPermissionDenied
	}
	if eventID == "" {
		return 0, fmt.Errorf("event id is required")
	}

	stored, err := s.events.SetManualCount(ctx, eventID, draft)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("set manual count: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"event_id":     eventID,
		"manual_count": stored,
	}).Info("manual count updated")
	return stored, nil
}

// ListRegistrations returns the event's attendee rows enriched with
// display identity, oldest registration first. Administrator only. The
// listing succeeds even when the event record no longer exists.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string, caller Caller) ([]model.AttendeeRow, error) {
	if !caller.IsAdmin {
		return nil, repository.ErrPermissionDenied
	}
	regs, err := s.ledger.ListForEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	rows := make([]model.AttendeeRow, 0, len(regs))
	for _, reg := range regs {
		ident := s.resolver.Resolve(ctx, reg.UserID)
		rows = append(rows, model.AttendeeRow{
			UserID:    reg.UserID,
			FullName:  ident.FullName,
			Email:     ident.Email,
			CreatedAt: reg.CreatedAt,
		})
	}
	return rows, nil
}

// ListMyEvents returns the ids of events the caller is registered for,
// most recent registration first.
func (s *EventService) ListMyEvents(ctx context.Context, caller Caller) ([]string, error) {
	if caller.UserID == "" {
		return nil, repository.ErrNotAuthenticated
	}
	ids, err := s.ledger.ListEventIDsForUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list my events: %w", err)
	}
	return ids, nil
}

// IsRegistered reports the caller's registration state for an event.
func (s *EventService) IsRegistered(ctx context.Context, eventID string, caller Caller) (bool, error) {
	if caller.UserID == "" {
		return false, nil
	}
	return s.ledger.IsRegistered(ctx, eventID, caller.UserID)
}

// publish sends a lifecycle notification best-effort: failures are
// logged, never surfaced to the caller.
func (s *EventService) publish(subject string, msg any) {
	if s.publisher == nil {
		return
	}
	payload, err := messaging.Encode(msg)
	if err != nil {
		s.log.WithField("subject", subject).Warn("encode notification failed")
		return
	}
	if err := s.publisher.Publish(subject, payload); err != nil {
		s.log.WithFields(logrus.Fields{
			"subject": subject,
			"error":   err.Error(),
		}).Warn("publish notification failed")
	}
}
