package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// RegistrationPurger removes ledger rows that reference a deleted event
// or user.
type RegistrationPurger interface {
	DeleteForEvent(ctx context.Context, eventID string) (int64, error)
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

// Reconciler is the best-effort cleanup worker. When an event or user
// is deleted their registrations are left in place by the write path;
// the reconciler purges them as deletion notices arrive. A failed purge
// is retried on redelivery, never compensated.
type Reconciler struct {
	ledger RegistrationPurger
	log    *logrus.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(ledger RegistrationPurger, log *logrus.Logger) *Reconciler {
	return &Reconciler{ledger: ledger, log: log}
}

// Start subscribes the reconciler to the deletion subjects with durable
// queue consumers and returns the subscriptions for draining on shutdown.
func (r *Reconciler) Start(js nats.JetStreamContext) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription

	eventSub, err := js.Subscribe(SubjectEventDeleted,
		func(msg *nats.Msg) { r.handle(msg) },
		nats.Durable("reconciler-events"), nats.ManualAck(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectEventDeleted, err)
	}
	subs = append(subs, eventSub)

	userSub, err := js.Subscribe(SubjectUserDeleted,
		func(msg *nats.Msg) { r.handle(msg) },
		nats.Durable("reconciler-users"), nats.ManualAck(),
	)
	if err != nil {
		for _, s := range subs {
			_ = s.Drain()
		}
		return nil, fmt.Errorf("subscribe %s: %w", SubjectUserDeleted, err)
	}
	subs = append(subs, userSub)

	return subs, nil
}

func (r *Reconciler) handle(msg *nats.Msg) {
	if err := r.Handle(context.Background(), msg.Subject, msg.Data); err != nil {
		r.log.WithFields(logrus.Fields{
			"subject": msg.Subject,
			"error":   err.Error(),
		}).Warn("reconcile failed, leaving message for redelivery")
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// Handle processes one deletion notice. Unknown subjects and malformed
// payloads are dropped rather than redelivered forever.
func (r *Reconciler) Handle(ctx context.Context, subject string, payload []byte) error {
	var del DeletionMessage
	if err := json.Unmarshal(payload, &del); err != nil {
		r.log.WithField("subject", subject).Warn("dropping malformed deletion message")
		return nil
	}

	switch subject {
	case SubjectEventDeleted:
		if del.EventID == "" {
			return nil
		}
		purged, err := r.ledger.DeleteForEvent(ctx, del.EventID)
		if err != nil {
			return err
		}
		r.log.WithFields(logrus.Fields{
			"event_id": del.EventID,
			"purged":   purged,
		}).Info("purged registrations for deleted event")
	case SubjectUserDeleted:
		if del.UserID == "" {
			return nil
		}
		purged, err := r.ledger.DeleteForUser(ctx, del.UserID)
		if err != nil {
			return err
		}
		r.log.WithFields(logrus.Fields{
			"user_id": del.UserID,
			"purged":  purged,
		}).Info("purged registrations for deleted user")
	}
	return nil
}
