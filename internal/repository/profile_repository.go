package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/community-hub/event-ledger/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository reads the user profile documents kept for display
// enrichment. Profiles are written by the account system, not by this
// service.
type ProfileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository constructs a ProfileRepository.
func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByID returns a user's profile or ErrNotFound.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	var email *string
	err := r.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, email FROM user_profiles WHERE id = $1`,
		userID,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if email != nil {
		p.Email = *email
	}
	return &p, nil
}
