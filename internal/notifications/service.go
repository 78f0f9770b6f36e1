// Package notifications delivers best-effort push notifications via ntfy.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clearwatch/internal/config"
)

const userAgent = "clearwatch/0.1"

// Service defines the notification surface exposed to workflow components.
// All delivery is best effort; callers swallow failures.
type Service interface {
	NotifyCleared(ctx context.Context, companyName, declarationNumber string) error
	NotifyTransfer(ctx context.Context, companyName, declarationNumber string) error
	NotifyBatchStarted(ctx context.Context, count int) error
	NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
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

func (n *ntfyService) NotifyCleared(ctx context.Context, companyName, declarationNumber string) error {
	data := payload{
		title:    "Clearwatch - Cleared",
		message:  fmt.Sprintf("Declaration %s cleared customs%s", declarationNumber, companySuffix(companyName)),
		tags:     []string{"clearwatch", "cleared"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTransfer(ctx context.Context, companyName, declarationNumber string) error {
	data := payload{
		title:   "Clearwatch - Transfer Approved",
		message: fmt.Sprintf("Declaration %s approved for transfer%s", declarationNumber, companySuffix(companyName)),
		tags:    []string{"clearwatch", "transfer"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, count int) error {
	data := payload{
		title:   "Clearwatch - Batch Started",
		message: fmt.Sprintf("Processing %d eligible declarations", count),
		tags:    []string{"clearwatch", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	var title, message string
	if failed == 0 {
		title = "Clearwatch - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d barcodes retrieved in %s", processed, duration)
	} else {
		title = "Clearwatch - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", processed, failed, duration)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"clearwatch", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Clearwatch - Error",
		message:  builder.String(),
		tags:     []string{"clearwatch", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Clearwatch - Test",
		message:  "Notification system test",
		tags:     []string{"clearwatch", "test"},
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

func companySuffix(companyName string) string {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return ""
	}
	return " (" + companyName + ")"
}

type noopService struct{}

func (noopService) NotifyCleared(context.Context, string, string) error                 { return nil }
func (noopService) NotifyTransfer(context.Context, string, string) error                { return nil }
func (noopService) NotifyBatchStarted(context.Context, int) error                       { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                    { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
