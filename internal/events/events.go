package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	SubjectCompanyRegistered    = "company.registered"
	SubjectCompanyStatusChanged = "company.status_changed"
	SubjectCarCreated           = "car.created"
	SubjectCarDeleted           = "car.deleted"
)

type CompanyRegistered struct {
	CompanyID  string    `json:"companyId"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CompanyStatusChanged struct {
	CompanyID  string    `json:"companyId"`
	Status     string    `json:"status"`
	ChangedBy  string    `json:"changedBy"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CarCreated struct {
	CarID      string    `json:"carId"`
	ShopID     string    `json:"shopId"`
	Brand      string    `json:"brand"`
	Model      string    `json:"model"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CarDeleted struct {
	CarID      string    `json:"carId"`
	ShopID     string    `json:"shopId"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

type natsPublisher struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func NewNATSPublisher(url string, logger zerolog.Logger) (Publisher, error) {
	logger = logger.With().Str("component", "nats_publisher").Logger()

	opts := []nats.Option{
		nats.Name("car-rental-api publisher"),
		nats.Timeout(10 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info().Str("url", conn.ConnectedUrl()).Msg("Connected to NATS")

	return &natsPublisher{conn: conn, logger: logger}, nil
}

func (p *natsPublisher) Publish(_ context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", subject, err)
	}
	p.logger.Debug().Str("subject", subject).Int("bytes", len(data)).Msg("Event published")
	return nil
}

func (p *natsPublisher) Close() {
	if p.conn == nil || p.conn.IsClosed() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Error().Err(err).Msg("Failed to drain NATS connection")
		p.conn.Close()
	}
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
func (noopPublisher) Close()                                      {}
