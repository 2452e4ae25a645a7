package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/community-hub/event-ledger/internal/capacity"
	"github.com/community-hub/event-ledger/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistrationRepository is the registration ledger: a de-duplicated set
// of (event, user) memberships keyed by the composite registration id.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// The upsert keeps single-document last-write-wins semantics for the
// composite key: a duplicate register refreshes the timestamp instead of
// creating a second row.
const upsertRegistrationSQL = `
	INSERT INTO event_registrations (id, event_id, user_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET created_at = EXCLUDED.created_at`

// IsRegistered reports whether the user holds a registration for the event.
func (r *RegistrationRepository) IsRegistered(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_registrations WHERE id = $1)`,
		model.RegistrationKey(eventID, userID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return exists, nil
}

// CountForEvent returns the number of ledger registrations for the event.
func (r *RegistrationRepository) CountForEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return count, nil
}

// registerTx is the slice of pgx.Tx the register transaction uses,
// narrowed so the transaction body is testable without a database.
type registerTx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Register performs a capacity-guarded registration inside a transaction
// holding an exclusive row lock on the event. Locking the event row
// serialises concurrent attempts so the fullness check and the ledger
// write commit together: the event can never be overbooked by the
// ledger's own bookkeeping.
//
// Duplicate calls for the same pair collapse onto the composite key and
// refresh its timestamp. Returns ErrNotFound when the event does not
// exist and ErrEventFull when no seats remain.
func (r *RegistrationRepository) Register(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return registerInTx(ctx, tx, eventID, userID)
}

func registerInTx(ctx context.Context, tx registerTx, eventID, userID string) (*model.Registration, error) {
	// Always resolve the transaction. Rollback after a commit is a
	// no-op, and a rejection must not keep the row lock checked out.
	defer tx.Rollback(ctx)

	var storedCapacity, manualCount int
	err := tx.QueryRow(ctx,
		`SELECT capacity, manual_count FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&storedCapacity, &manualCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}

	// A re-register of an existing pair must not be rejected as full:
	// it does not take a new seat.
	reg := &model.Registration{
		ID:        model.RegistrationKey(eventID, userID),
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	var alreadyRegistered bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_registrations WHERE id = $1)`, reg.ID,
	).Scan(&alreadyRegistered)
	if err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}

	if !alreadyRegistered {
		var realCount int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID,
		).Scan(&realCount)
		if err != nil {
			return nil, fmt.Errorf("count registrations: %w", err)
		}
		if capacity.IsFull(capacity.FromStored(storedCapacity), manualCount, realCount) {
			return nil, ErrEventFull
		}
	}

	if _, err := tx.Exec(ctx, upsertRegistrationSQL,
		reg.ID, reg.EventID, reg.UserID, reg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// Unregister deletes the registration at the composite key. Deleting an
// absent key is a no-op, which keeps retries and abandoned calls safe.
func (r *RegistrationRepository) Unregister(ctx context.Context, eventID, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	_, err := r.db.Exec(ctx,
		`DELETE FROM event_registrations WHERE id = $1`,
		model.RegistrationKey(eventID, userID),
	)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return nil
}

// ListForEvent returns the event's registrations ordered by creation
// time ascending. Rows are returned even when the event record itself
// has been deleted.
func (r *RegistrationRepository) ListForEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, user_id, created_at
		 FROM event_registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ListEventIDsForUser returns the ids of events the user is registered
// for, most recent registration first.
func (r *RegistrationRepository) ListEventIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT event_id
		 FROM event_registrations
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteForEvent removes every registration for the event. Used by the
// reconciler when an event is deleted; best-effort, not transactional
// with the event deletion itself.
func (r *RegistrationRepository) DeleteForEvent(ctx context.Context, eventID string) (int64, error) {
	res, err := r.db.Exec(ctx,
		`DELETE FROM event_registrations WHERE event_id = $1`, eventID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete registrations for event: %w", err)
	}
	return res.RowsAffected(), nil
}

// DeleteForUser removes every registration held by the user. Used by the
// reconciler when an account is removed.
func (r *RegistrationRepository) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.Exec(ctx,
		`DELETE FROM event_registrations WHERE user_id = $1`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete registrations for user: %w", err)
	}
	return res.RowsAffected(), nil
}
