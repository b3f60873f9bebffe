package inventory

import "time"

// EventType names the notification triggers the state machine emits.
type EventType string

const (
	EventLend      EventType = "lend"
	EventReturn    EventType = "return"
	EventReserve   EventType = "reserve"
	EventStockZero EventType = "stock_zero"
)

// Event is a notification about a stock or lending transition. Channel is
// the item's notification channel (its first tag, or "other").
type Event struct {
	Type      EventType `json:"type"`
	ItemName  string    `json:"item_name"`
	Channel   string    `json:"channel"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans an event out to the chat log and any configured webhook.
// An error means the chat-log write failed; webhook delivery is best-effort
// inside the notifier and never surfaces here.
type Notifier interface {
	Notify(event Event) error
}

// NopNotifier discards events. Used when no notification sink is wired.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) error { return nil }
