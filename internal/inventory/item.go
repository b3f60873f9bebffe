package inventory

import "time"

// ItemType classifies how an item is tracked.
type ItemType string

const (
	ItemConsumable ItemType = "consumable"
	ItemFood       ItemType = "food"
	ItemShared     ItemType = "shared"
)

// ItemStatus is the obligation slot of a shared item.
type ItemStatus string

const (
	StatusAvailable ItemStatus = "available"
	StatusReserved  ItemStatus = "reserved"
	StatusLending   ItemStatus = "lending"
)

// LogStatus is the lifecycle state of a lending log row.
type LogStatus string

const (
	LogLending  LogStatus = "lending"
	LogReserved LogStatus = "reserved"
	LogReturned LogStatus = "returned"
	LogCanceled LogStatus = "canceled"
)

// Item is a tracked household item. Stock never goes negative; Threshold
// drives the low-stock flag. ExpiryDate/ExpiryType apply to food items,
// Status to shared items.
type Item struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Stock      int        `json:"stock"`
	Threshold  int        `json:"threshold"`
	Location   string     `json:"location"`
	Type       ItemType   `json:"item_type"`
	Tags       []string   `json:"tags"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	ExpiryType string     `json:"expiry_type,omitempty"`
	Status     ItemStatus `json:"status,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LowStock reports whether the item is at or below its threshold.
func (i *Item) LowStock() bool {
	return i.Stock <= i.Threshold
}

// LendingLog is one obligation on an item: a borrow or a reservation, kept
// as history after it closes.
type LendingLog struct {
	ID           string     `json:"id"`
	ItemID       string     `json:"item_id"`
	Status       LogStatus  `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ReservedDate *time.Time `json:"reserved_date,omitempty"`
	ReturnedDate *time.Time `json:"returned_date,omitempty"`
	Quantity     int        `json:"quantity"`
	UserName     string     `json:"user_name"`
	Memo         string     `json:"memo"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Tag is a named label items can carry. The first tag of an item doubles as
// its notification channel.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChatMessage is one entry in the in-app chat log. The notifier posts
// system messages here; users post their own through the API.
type ChatMessage struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	UserName string    `json:"user_name,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}
