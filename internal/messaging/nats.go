// Package messaging connects the service to NATS JetStream. Registration
// lifecycle notifications are published best-effort after commit, and the
// reconciler consumes deletion notices to purge orphaned registrations.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	SubjectRegistered   = "ledger.registration.registered"
	SubjectUnregistered = "ledger.registration.unregistered"
	SubjectEventDeleted = "ledger.event.deleted"
	SubjectUserDeleted  = "ledger.user.deleted"
)

// RegistrationMessage is the payload for registration lifecycle subjects.
type RegistrationMessage struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DeletionMessage is the payload for event/user deletion subjects. Only
// the id matching the subject is set.
type DeletionMessage struct {
	EventID string `json:"event_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// Publisher publishes a payload to a subject.
type Publisher interface {
	Publish(subject string, payload []byte) error
}

// Client wraps a NATS connection with its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

// Connect dials NATS and makes sure the ledger stream exists.
func Connect(url, stream string) (*Client, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := EnsureStream(js, stream); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

// ConnectWithRetry keeps dialing until the timeout elapses, to tolerate
// the broker starting up alongside the service.
func ConnectWithRetry(url, stream string, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := Connect(url, stream)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("connect nats timeout after %s: %w", timeout, lastErr)
}

// EnsureStream creates (or validates) the stream carrying ledger.> subjects.
func EnsureStream(js nats.JetStreamContext, name string) error {
	if _, err := js.StreamInfo(name); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      name,
				Subjects:  []string{"ledger.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return fmt.Errorf("add stream %s: %w", name, addErr)
			}
			return nil
		}
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
	c.Conn.Close()
}

// JetStreamPublisher publishes through a JetStream context.
type JetStreamPublisher struct {
	JS nats.JetStreamContext
}

func (p JetStreamPublisher) Publish(subject string, payload []byte) error {
	_, err := p.JS.Publish(subject, payload)
	return err
}

// Encode marshals a message payload for publishing.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
