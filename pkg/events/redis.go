package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redoraai/redora-cli/pkg/logging"
)

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes transition events to Redis pub/sub.
type RedisPublisher struct {
	client  redisClient
	channel string
	logger  logging.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisPublisher creates a publisher on an existing client.
func NewRedisPublisher(client *redis.Client, channel string, logger logging.Logger) *RedisPublisher {
	return newRedisPublisher(client, channel, logger)
}

func newRedisPublisher(client redisClient, channel string, logger logging.Logger) *RedisPublisher {
	if channel == "" {
		channel = ChannelLeadStatusChanged
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger.With(logging.F("component", "event_publisher")),
	}
}

// NewRedisPublisherFromConfig dials Redis and verifies the connection.
func NewRedisPublisherFromConfig(ctx context.Context, cfg RedisConfig, logger logging.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisPublisher(client, cfg.Channel, logger), nil
}

// PublishTransition serializes and publishes event.
func (p *RedisPublisher) PublishTransition(ctx context.Context, event TransitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling transition event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", p.channel),
			logging.LeadID(event.LeadID))
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", p.channel),
		logging.LeadID(event.LeadID),
		logging.F("payload_size", len(data)))

	return nil
}

// Channel returns the pub/sub channel events are sent to.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
