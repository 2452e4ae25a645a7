// Package model defines the core domain types for the event registration
// ledger.
package model

import (
	"time"

	"github.com/community-hub/event-ledger/internal/capacity"
)

// Event is a scheduled, capacity-limited activity users may register for.
// MaxAttendees carries the stored capacity encoding (the unlimited
// sentinel included); use Capacity() for decision logic.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Audience     string    `json:"audience"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	ImageURL     string    `json:"image_url,omitempty"`
	StartsAt     time.Time `json:"starts_at"`
	MaxAttendees int       `json:"max_attendees"`
	ManualCount  int       `json:"manual_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Capacity decodes the stored seat limit.
func (e *Event) Capacity() capacity.Capacity {
	return capacity.FromStored(e.MaxAttendees)
}

// Registration records that a user is attending an event. ID is the
// deterministic composite key "{eventID}_{userID}"; its uniqueness is
// what de-duplicates concurrent register calls.
type Registration struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationKey builds the composite ledger key for an event/user pair.
// The format is part of the storage contract.
func RegistrationKey(eventID, userID string) string {
	return eventID + "_" + userID
}

// UserProfile is the display identity attached to a user id. All fields
// are optional in storage.
type UserProfile struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// AttendeeRow is a ledger entry enriched with display identity for
// administrator views. Email is nil when the profile lookup found none.
type AttendeeRow struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title        string    `json:"title"`
	Audience     string    `json:"audience"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	ImageURL     string    `json:"image_url"`
	StartsAt     time.Time `json:"starts_at"`
	MaxAttendees int       `json:"max_attendees"`
}

// ToggleResult reports the caller's registration state after a toggle.
type ToggleResult struct {
	Registered bool `json:"registered"`
}

// ManualCountRequest is the payload for setting an event's manual
// attendee counter.
type ManualCountRequest struct {
	Count int `json:"count"`
}

// EventSummary is an event with its derived occupancy, as served by the
// listing endpoints.
type EventSummary struct {
	Event
	RegisteredCount int  `json:"registered_count"`
	Full            bool `json:"full"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
