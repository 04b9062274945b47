package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curator/internal/config"
)

const userAgent = "curator/0.1"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyTaskFailed(ctx context.Context, stageName, subject string, err error) error
	NotifyUnmatched(ctx context.Context, subject string) error
	NotifyScanCompleted(ctx context.Context, enqueued, deleted int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyTaskFailed(ctx context.Context, stageName, subject string, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Curator - Task Failed",
		message:  fmt.Sprintf("%s failed for %s\n%s", stageName, strings.TrimSpace(subject), reason),
		tags:     []string{"curator", "error", stageName},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUnmatched(ctx context.Context, subject string) error {
	data := payload{
		title:   "Curator - Unmatched Video",
		message: fmt.Sprintf("No TMDB match for %s\nAdd an nfo with a tmdb id and recheck", strings.TrimSpace(subject)),
		tags:    []string{"curator", "unmatched", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, enqueued, deleted int) error {
	data := payload{
		title:    "Curator - Library Scan",
		message:  fmt.Sprintf("Staged %d new or changed files and %d deletions", enqueued, deleted),
		tags:     []string{"curator", "scan", "completed"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Curator - Test",
		message:  "Notification system test",
		tags:     []string{"curator", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

type noopService struct{}

func (noopService) NotifyTaskFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyUnmatched(context.Context, string) error                 { return nil }
func (noopService) NotifyScanCompleted(context.Context, int, int) error           { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
