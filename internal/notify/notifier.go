// Package notify fans lending and stock events out to the in-app chat log
// and, when configured, to Discord-style webhooks per channel.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ktsuji/homestock/internal/inventory"
)

// ChatStore is the slice of the inventory store the notifier needs.
type ChatStore interface {
	AddChatMessage(msg *inventory.ChatMessage) error
}

// Config maps notification channels (kitchen, bath, consumable, tool,
// other) to webhook URLs. Channels without a URL get chat-only
// notifications.
type Config struct {
	WebhookURLs map[string]string
}

// Fanout implements inventory.Notifier. The chat-log write is the part the
// state machine depends on: its failure propagates and triggers the
// caller's rollback. Webhook delivery is best-effort and only ever degrades
// to the chat entry.
type Fanout struct {
	chat     ChatStore
	webhooks map[string]string
	client   *http.Client
}

// New creates a Fanout notifier.
func New(chat ChatStore, cfg Config) *Fanout {
	return &Fanout{
		chat:     chat,
		webhooks: cfg.WebhookURLs,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func messageText(event inventory.Event) string {
	switch event.Type {
	case inventory.EventStockZero:
		return fmt.Sprintf("%s is out of stock.", event.ItemName)
	case inventory.EventLend:
		return fmt.Sprintf("%s borrowed %s.", event.UserName, event.ItemName)
	case inventory.EventReturn:
		return fmt.Sprintf("%s returned %s.", event.UserName, event.ItemName)
	case inventory.EventReserve:
		return fmt.Sprintf("%s reserved %s.", event.UserName, event.ItemName)
	}
	return fmt.Sprintf("[%s] notification: %s", event.Channel, event.ItemName)
}

// Notify posts the event to the chat log and then to the channel's webhook
// if one is configured.
func (f *Fanout) Notify(event inventory.Event) error {
	text := messageText(event)

	msg := &inventory.ChatMessage{
		ID:   uuid.NewString(),
		Type: "system",
		Text: text,
		At:   event.Timestamp,
	}
	if err := f.chat.AddChatMessage(msg); err != nil {
		return fmt.Errorf("posting chat message: %w", err)
	}

	url := f.webhooks[event.Channel]
	if url == "" {
		return nil
	}
	if err := f.postWebhook(url, text); err != nil {
		slog.Warn("Webhook delivery failed, notification degraded to chat only",
			"channel", event.Channel, "error", err)
	}
	return nil
}

func (f *Fanout) postWebhook(url, text string) error {
	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	resp, err := f.client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
