package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level orders message severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Message is one operator notification.
type Message struct {
	Level  Level          `json:"level"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Fields map[string]any `json:"fields,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Notifier delivers operator notifications such as budget breaches.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Log writes notifications to the structured log.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (n *Log) Notify(ctx context.Context, msg Message) error {
	event := n.logger.Info()
	switch msg.Level {
	case LevelWarning:
		event = n.logger.Warn()
	case LevelCritical:
		event = n.logger.Error()
	}
	event.
		Str("level_name", string(msg.Level)).
		Str("title", msg.Title).
		Fields(msg.Fields).
		Msg(msg.Body)
	return nil
}

const defaultWebhookTimeout = 5 * time.Second

// Webhook posts notifications as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &Webhook{url: strings.TrimSpace(url), client: client}
}

func (n *Webhook) Notify(ctx context.Context, msg Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a message out to several notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%d notifiers failed: %w", len(errs), errors.Join(errs...))
}
