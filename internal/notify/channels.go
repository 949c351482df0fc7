package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/store"
)

// WebhookChannel POSTs each alert event as JSON to a cloud endpoint.
type WebhookChannel struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookChannel(url, token string) *WebhookChannel {
	return &WebhookChannel{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, e domain.AlertEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// RedisChannel publishes alert events on the session's redis pub/sub
// channel for dashboards subscribed out of band.
type RedisChannel struct {
	rs *store.RedisStore
}

func NewRedisChannel(rs *store.RedisStore) *RedisChannel {
	return &RedisChannel{rs: rs}
}

func (c *RedisChannel) Name() string { return "redis" }

func (c *RedisChannel) Deliver(ctx context.Context, e domain.AlertEvent) error {
	return c.rs.PublishAlert(ctx, e)
}

// LogChannel writes alert events to the structured log. It stands in for an
// email transport, which this system deliberately does not implement.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(ctx context.Context, e domain.AlertEvent) error {
	c.logger.Info("alert notification",
		"rule", e.RuleName,
		"pid", e.PID,
		"value", e.Value,
		"condition", string(e.Condition),
		"threshold", e.Threshold,
		"session", e.SessionID,
	)
	return nil
}
