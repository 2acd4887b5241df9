// Package notify publishes capture completion events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/mantonx/scrollcast/internal/modules/capturemodule/types"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "scrollcast:captures"

// Event is the message published when a capture finishes.
type Event struct {
	ID         string               `json:"id"`
	URL        string               `json:"url"`
	Status     string               `json:"status"`
	Stage      string               `json:"stage,omitempty"`
	Error      string               `json:"error,omitempty"`
	Result     *types.CaptureResult `json:"result,omitempty"`
	ElapsedMs  int64                `json:"elapsedMs"`
	FinishedAt time.Time            `json:"finishedAt"`
}

// Completed builds the event for a successful capture.
func Completed(result *types.CaptureResult, at time.Time) Event {
	return Event{
		ID:         result.ID,
		URL:        result.URL,
		Status:     "completed",
		Result:     result,
		ElapsedMs:  result.Elapsed.Milliseconds(),
		FinishedAt: at,
	}
}

// Failed builds the event for a failed capture.
func Failed(id, url, stage, message string, elapsed time.Duration, at time.Time) Event {
	return Event{
		ID:         id,
		URL:        url,
		Status:     "failed",
		Stage:      stage,
		Error:      message,
		ElapsedMs:  elapsed.Milliseconds(),
		FinishedAt: at,
	}
}

// Publisher delivers completion events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// client is the part of *redis.Client the publisher needs.
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     client
	channel string
	logger  hclog.Logger
}

// NewRedisPublisher connects lazily to the server at redisURL, e.g.
// redis://localhost:6379/0.
func NewRedisPublisher(redisURL, channel string, logger hclog.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisPublisher(redis.NewClient(opt), channel, logger), nil
}

func newRedisPublisher(rdb client, channel string, logger hclog.Logger) *RedisPublisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger.Named("notify")}
}

// Publish sends event as JSON. The number of receivers is logged.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	p.logger.Debug("published capture event", "id", event.ID, "status", event.Status, "receivers", receivers)
	return nil
}

// Close releases the connection pool.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
