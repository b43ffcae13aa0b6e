package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
	pkgkafka "github.com/kulsmauinformatics/sumatin/pkg/kafka"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

// Kafka topic constants for portal session events.
var (
	TopicSessionLogin   = pkgkafka.Topic("session", "login")
	TopicSessionLogout  = pkgkafka.Topic("session", "logout")
	TopicSessionExpired = pkgkafka.Topic("session", "expired")
)

// Aggregate type constant.
const AggregateTypeSession = "session"

// Source identifier for events originating from the portal.
const SourcePortal = "portal"

// SessionData is the payload of every session event. User fields are empty
// when the session had no signed-in user.
type SessionData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
}

// KafkaPublisher is the part of pkg/kafka.Producer the portal uses.
type KafkaPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes portal session events to Kafka.
type Producer struct {
	kafka  KafkaPublisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the portal.
func NewProducer(kafka KafkaPublisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishLogin publishes a session.login event.
func (p *Producer) PublishLogin(ctx context.Context, sid string, u *domain.User) error {
	return p.publish(ctx, TopicSessionLogin, sid, u)
}

// PublishLogout publishes a session.logout event.
func (p *Producer) PublishLogout(ctx context.Context, sid string, u *domain.User) error {
	return p.publish(ctx, TopicSessionLogout, sid, u)
}

// PublishExpired publishes a session.expired event.
func (p *Producer) PublishExpired(ctx context.Context, sid string, u *domain.User) error {
	return p.publish(ctx, TopicSessionExpired, sid, u)
}

func (p *Producer) publish(ctx context.Context, topic, sid string, u *domain.User) error {
	data := SessionData{SessionID: sid}
	if u != nil {
		data.UserID = u.ID
		data.Username = u.Username
		data.Role = u.Role.String()
	}

	event, err := pkgkafka.NewEvent(topic, sid, AggregateTypeSession, SourcePortal, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published session event",
		slog.String("topic", topic),
		slog.String("user_id", data.UserID),
	)
	return nil
}

// Nop discards every event. It is used when no Kafka brokers are configured.
type Nop struct{}

func (Nop) PublishLogin(context.Context, string, *domain.User) error   { return nil }
func (Nop) PublishLogout(context.Context, string, *domain.User) error  { return nil }
func (Nop) PublishExpired(context.Context, string, *domain.User) error { return nil }
