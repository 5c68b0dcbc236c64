// Package pubsub pulls Gmail change notifications from a Pub/Sub subscription,
// as an alternative to the push webhook.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rfp-mail-ingest/internal/ingest"
	"rfp-mail-ingest/internal/logging"
	"rfp-mail-ingest/internal/models"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

const restartDelay = 2 * time.Second

// NotificationHandler processes the inner JSON notification of one message
type NotificationHandler interface {
	HandleNotification(ctx context.Context, data []byte) (ingest.Outcome, error)
}

// Subscriber receives notifications and acks them once handled
type Subscriber struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	handler NotificationHandler
}

// NewSubscriber connects to the configured subscription
func NewSubscriber(ctx context.Context, cfg models.PubSubConfig, handler NotificationHandler, opts ...option.ClientOption) (*Subscriber, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" {
		return nil, errors.New("pubsub project id and subscription are required")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	sub := client.Subscription(cfg.Subscription)
	// Notifications for one mailbox are serialized downstream anyway.
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	return &Subscriber{client: client, sub: sub, handler: handler}, nil
}

// Run receives until ctx is done, restarting the stream after errors
func (s *Subscriber) Run(ctx context.Context) {
	logging.Log.Infof("Listening for Gmail notifications on %s", s.sub.String())
	for {
		err := s.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
			if handle(ctx, s.handler, m.ID, m.Data) {
				m.Ack()
				return
			}
			m.Nack()
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logging.Log.WithError(err).Error("Pub/Sub receive stopped, restarting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// Close releases the client
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// handle reports whether the message should be acked. Ignored payloads are
// acked so they are not redelivered; processing errors are nacked.
func handle(ctx context.Context, h NotificationHandler, id string, data []byte) bool {
	outcome, err := h.HandleNotification(ctx, data)
	log := logging.Log.WithField("pubsub_message_id", id)
	if err != nil {
		log.WithError(err).Error("Failed to process notification, nacking")
		return false
	}
	log.WithField("outcome", string(outcome)).Debug("Notification handled")
	return true
}
