package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"clearwatch/internal/notifications"
	"clearwatch/internal/testsupport"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), requests...)
	}
}

func TestNoopWhenTopicUnset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	service := notifications.NewService(cfg)

	if err := service.NotifyCleared(context.Background(), "Acme", "D-1"); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop test: %v", err)
	}
}

func TestNotifyClearedSendsNtfyRequest(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	if err := service.NotifyCleared(context.Background(), "Acme Trading", "D-2026-001"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if got[0].priority != "high" {
		t.Fatalf("priority = %q, want high", got[0].priority)
	}
	if !strings.Contains(got[0].tags, "cleared") {
		t.Fatalf("tags = %q, want cleared tag", got[0].tags)
	}
	if !strings.Contains(got[0].body, "D-2026-001") || !strings.Contains(got[0].body, "Acme Trading") {
		t.Fatalf("body = %q", got[0].body)
	}
}

func TestBatchCompletedMentionsFailures(t *testing.T) {
	server, requests := newCaptureServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	if err := service.NotifyBatchCompleted(context.Background(), 4, 2, 90*time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}

	got := requests()
	if len(got) != 1 {
		t.Fatalf("requests = %d, want 1", len(got))
	}
	if !strings.Contains(got[0].body, "4 succeeded") || !strings.Contains(got[0].body, "2 failed") {
		t.Fatalf("body = %q", got[0].body)
	}
	if !strings.Contains(got[0].title, "errors") {
		t.Fatalf("title = %q, want error marker", got[0].title)
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic rejected", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL

	service := notifications.NewService(cfg)
	err := service.NotifyError(context.Background(), io.ErrUnexpectedEOF, "declaration fetch")
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %v, want status code", err)
	}
}
