package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Domain event subjects, relative to the configured prefix
const (
	SubjectBookingCreated       = "booking.created"
	SubjectBookingCancelled     = "booking.cancelled"
	SubjectBookingStatusChanged = "booking.status_changed"
	SubjectUserDeleted          = "user.deleted"
)

// EventPublisher delivers domain events after a transaction commits.
// Delivery is best effort; callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event interface{}) error
}

// BookingEvent is the payload of booking.* subjects
type BookingEvent struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Total     string    `json:"total,omitempty"`
	VendorIDs []string  `json:"vendorIds,omitempty"`
	ItemID    string    `json:"itemId,omitempty"`
	At        time.Time `json:"at"`
}

const (
	natsConnectWait   = 5 * time.Second
	natsMaxReconnects = 5
	natsReconnectWait = 2 * time.Second
)

// NewNATSConnection dials the NATS server with reconnect logging
func NewNATSConnection(url string, log *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("eventhub-backend"),
		nats.Timeout(natsConnectWait),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes JSON events on prefix.subject
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher wraps an open connection
func NewNATSPublisher(conn *nats.Conn, prefix string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("NATS connection cannot be nil")
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for subject %s: %w", subject, err)
	}

	full := subject
	if p.prefix != "" {
		full = p.prefix + "." + subject
	}
	if err := p.conn.Publish(full, data); err != nil {
		return fmt.Errorf("failed to publish to NATS subject %s: %w", full, err)
	}
	return nil
}

// NoopPublisher drops events. Used when NATS_URL is empty.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// publishEvent sends an event and logs failures
func publishEvent(ctx context.Context, pub EventPublisher, log *zap.Logger, subject string, event interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, subject, event); err != nil {
		log.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
