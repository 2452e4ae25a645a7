// Package identity resolves raw user ids into display identities for
// administrator views. Lookups are best-effort: a missing or unreadable
// profile degrades to a placeholder instead of failing the caller.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/community-hub/event-ledger/internal/model"
	"github.com/community-hub/event-ledger/internal/repository"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// PlaceholderName is shown when a user has no readable profile.
const PlaceholderName = "(no name)"

// ProfileSource loads a user's stored profile.
type ProfileSource interface {
	GetByID(ctx context.Context, userID string) (*model.UserProfile, error)
}

// DisplayIdentity is a resolved user identity. Email is nil when the
// profile had none or the lookup failed.
type DisplayIdentity struct {
	FullName string
	Email    *string
}

// Resolver caches profile lookups for a short TTL so that listing the
// same attendees repeatedly does not re-read every profile row.
type Resolver struct {
	profiles ProfileSource
	cache    *gocache.Cache
	log      *logrus.Logger
}

// NewResolver constructs a Resolver with the given cache TTL.
func NewResolver(profiles ProfileSource, ttl time.Duration, log *logrus.Logger) *Resolver {
	return &Resolver{
		profiles: profiles,
		cache:    gocache.New(ttl, 2*ttl),
		log:      log,
	}
}

// Resolve returns the display identity for a user id. Lookup failures
// are logged and swallowed; the caller always gets a usable identity.
func (r *Resolver) Resolve(ctx context.Context, userID string) DisplayIdentity {
	if cached, ok := r.cache.Get(userID); ok {
		return cached.(DisplayIdentity)
	}

	ident := DisplayIdentity{FullName: PlaceholderName}
	profile, err := r.profiles.GetByID(ctx, userID)
	if err != nil {
		// One unreadable user must not fail a whole listing. Only a
		// genuinely absent profile is cached; a transient read failure
		// is retried on the next lookup.
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Debug("profile lookup failed, using placeholder")
		if errors.Is(err, repository.ErrNotFound) {
			r.cache.SetDefault(userID, ident)
		}
		return ident
	}

	if full := strings.TrimSpace(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName)); full != "" {
		ident.FullName = full
	}
	if profile.Email != "" {
		email := profile.Email
		ident.Email = &email
	}
	r.cache.SetDefault(userID, ident)
	return ident
}
