package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-integrity-api/internal/dto"
)

// NotificationSink is a fire-and-forget delivery target for outbox rows.
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, notification dto.NotificationResponse) error
}

// LogNotificationSink writes deliveries to the log. It is the fallback sink
// when no broker is configured.
type LogNotificationSink struct {
	logger zerolog.Logger
}

// NewLogNotificationSink constructs a logging sink.
func NewLogNotificationSink(logger zerolog.Logger) *LogNotificationSink {
	return &LogNotificationSink{logger: logger.With().Str("component", "notification_delivery").Logger()}
}

func (l *LogNotificationSink) Name() string { return "log" }

// Deliver logs the notification and returns nil to indicate success.
func (l *LogNotificationSink) Deliver(_ context.Context, notification dto.NotificationResponse) error {
	l.logger.Info().
		Uint("notification_id", notification.ID).
		Uint("user_id", notification.UserID).
		Str("category", notification.Category).
		Str("priority", notification.Priority).
		Msg("notification delivered")
	return nil
}

// RedisNotificationSink publishes notification events on a Redis channel.
type RedisNotificationSink struct {
	client  *redis.Client
	channel string
	nodeID  string
}

// NewRedisNotificationSink constructs a Redis pub/sub sink.
func NewRedisNotificationSink(client *redis.Client, channels NotificationChannels) *RedisNotificationSink {
	return &RedisNotificationSink{client: client, channel: channels.RedisChannel, nodeID: channels.NodeID}
}

func (r *RedisNotificationSink) Name() string { return "redis" }

func (r *RedisNotificationSink) Deliver(ctx context.Context, notification dto.NotificationResponse) error {
	payload, err := encodeNotificationEvent(r.nodeID, notification)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// NATSNotificationSink publishes notification events on a NATS subject.
type NATSNotificationSink struct {
	conn    *nats.Conn
	subject string
	nodeID  string
}

// NewNATSNotificationSink constructs a NATS sink.
func NewNATSNotificationSink(conn *nats.Conn, channels NotificationChannels) *NATSNotificationSink {
	return &NATSNotificationSink{conn: conn, subject: channels.NATSSubject, nodeID: channels.NodeID}
}

func (n *NATSNotificationSink) Name() string { return "nats" }

func (n *NATSNotificationSink) Deliver(_ context.Context, notification dto.NotificationResponse) error {
	payload, err := encodeNotificationEvent(n.nodeID, notification)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, payload)
}

func encodeNotificationEvent(nodeID string, notification dto.NotificationResponse) ([]byte, error) {
	return json.Marshal(notificationEvent{
		Source:       nodeID,
		Notification: notification,
		SentAt:       time.Now().UTC(),
	})
}
