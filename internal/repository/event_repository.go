package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/community-hub/event-ledger/internal/capacity"
	"github.com/community-hub/event-ledger/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles persistence for event records.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, title, audience, description, location, image_url,
	starts_at, capacity, manual_count, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Audience, &e.Description, &e.Location,
		&e.ImageURL, &e.StartsAt, &e.MaxAttendees, &e.ManualCount, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:           uuid.New().String(),
		Title:        req.Title,
		Audience:     req.Audience,
		Description:  req.Description,
		Location:     req.Location,
		ImageURL:     req.ImageURL,
		StartsAt:     req.StartsAt,
		MaxAttendees: req.MaxAttendees,
		ManualCount:  0,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, audience, description, location, image_url,
			starts_at, capacity, manual_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.Title, event.Audience, event.Description, event.Location,
		event.ImageURL, event.StartsAt, event.MaxAttendees, event.ManualCount, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// Delete removes an event record. Registrations for the event are left
// in place; the reconciler purges them when it sees the deleted message.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetManualCount stores an administrator's manual attendee counter,
// clamped against the seats left after real registrations. The clamp
// uses counts read under a row lock on the event so a concurrent
// registration cannot slip between the read and the write. Returns the
// value actually persisted.
func (r *EventRepository) SetManualCount(ctx context.Context, eventID string, draft int) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after a commit is a no-op; a rejection must release the lock.
	defer tx.Rollback(ctx)

	var storedCapacity int
	err = tx.QueryRow(ctx,
		`SELECT capacity FROM events WHERE id = $1 FOR UPDATE`, eventID,
	).Scan(&storedCapacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lock event row: %w", err)
	}

	var realCount int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID,
	).Scan(&realCount)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}

	// Never trust a client-side clamp; re-derive the bound here.
	clamped := capacity.ClampManualAdjustment(capacity.FromStored(storedCapacity), realCount, draft)

	_, err = tx.Exec(ctx,
		`UPDATE events SET manual_count = $2 WHERE id = $1`, eventID, clamped,
	)
	if err != nil {
		return 0, fmt.Errorf("update manual count: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return clamped, nil
}
