package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookture/internal/config"
)

const userAgent = "Bookture-Go/0.1.0"

// Event names a pipeline milestone worth a push notification.
type Event string

const (
	EventPipelineCompleted Event = "pipeline_completed"
	EventPipelineFailed    Event = "pipeline_failed"
	EventTest              Event = "test"
)

// Payload carries event-specific values (title, units, error, stage).
type Payload map[string]any

// Service publishes notifications for workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	title := payloadString(payload, "title")
	if title == "" {
		title = "untitled"
	}
	switch event {
	case EventPipelineCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("📖 Illustrated: %s", title)
		if units := payloadInt(payload, "units"); units > 0 {
			body = fmt.Sprintf("%s (%d pages)", body, units)
		}
		return message{
			title:    "Bookture - Complete",
			body:     body,
			tags:     []string{"bookture", "pipeline", "completed"},
			priority: "high",
		}, true
	case EventPipelineFailed:
		if !n.errors {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Failed: ")
		b.WriteString(title)
		if stage := payloadString(payload, "stage"); stage != "" {
			b.WriteString(" during ")
			b.WriteString(stage)
		}
		if errText := payloadString(payload, "error"); errText != "" {
			b.WriteString("\n")
			b.WriteString(errText)
		}
		return message{
			title:    "Bookture - Error",
			body:     b.String(),
			tags:     []string{"bookture", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Bookture - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"bookture", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func payloadInt(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
