package inventory

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates unique IDs for records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidIDGenerator struct{}

func (g *uuidIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service is the lending/reservation state machine over a Store.
//
// Stock mutation, log mutation, and the chat-side notification of a
// transition are treated as one logical unit: if a later step fails after
// the stock was written, the stock (and any log row touched) is restored
// before the error surfaces. The mutex serializes mutating operations so
// two concurrent borrows cannot both take the last unit.
type Service struct {
	store       Store
	notifier    Notifier
	idGenerator IDGenerator
	timeSource  TimeSource

	mu sync.Mutex
}

// NewService creates a Service with default ID generation and clock.
func NewService(store Store, notifier Notifier) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:       store,
		notifier:    notifier,
		idGenerator: &uuidIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(store Store, notifier Notifier, idGen IDGenerator, timeSrc TimeSource) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		store:       store,
		notifier:    notifier,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// channelFor maps an item to its notification channel: the first tag, or
// "other" for untagged items.
func channelFor(item *Item) string {
	if len(item.Tags) > 0 && strings.TrimSpace(item.Tags[0]) != "" {
		return strings.ToLower(strings.TrimSpace(item.Tags[0]))
	}
	return "other"
}

func validItemType(t ItemType) bool {
	switch t {
	case ItemConsumable, ItemFood, ItemShared:
		return true
	}
	return false
}

// CreateItem validates and stores a new item.
func (s *Service) CreateItem(item *Item) (*Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, &ValidationError{Reason: "item name is required"}
	}
	if item.Stock < 0 {
		return nil, &ValidationError{Reason: "stock must not be negative"}
	}
	if item.Type == "" {
		item.Type = ItemConsumable
	}
	if !validItemType(item.Type) {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown item type %q", item.Type)}
	}
	if item.Type == ItemShared && item.Status == "" {
		item.Status = StatusAvailable
	}

	now := s.timeSource.Now()
	item.ID = s.idGenerator.Generate()
	item.CreatedAt = now
	item.UpdatedAt = now
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// UpdateItem validates and stores changes to an existing item.
func (s *Service) UpdateItem(item *Item) (*Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, &ValidationError{Reason: "item name is required"}
	}
	if item.Stock < 0 {
		return nil, &ValidationError{Reason: "stock must not be negative"}
	}
	current, err := s.store.GetItem(item.ID)
	if err != nil {
		return nil, err
	}
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = s.timeSource.Now()
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}
	return item, nil
}

// GetItem retrieves an item.
func (s *Service) GetItem(id string) (*Item, error) {
	return s.store.GetItem(id)
}

// ListItems returns all items.
func (s *Service) ListItems() ([]*Item, error) {
	return s.store.ListItems()
}

// DeleteItem removes an item; the store cascades its lending logs.
func (s *Service) DeleteItem(id string) error {
	if _, err := s.store.GetItem(id); err != nil {
		return err
	}
	return s.store.DeleteItem(id)
}

// CreateTag registers a tag name.
func (s *Service) CreateTag(name string) (*Tag, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Reason: "tag name is required"}
	}
	tag := &Tag{ID: s.idGenerator.Generate(), Name: strings.TrimSpace(name)}
	if err := s.store.SaveTag(tag); err != nil {
		return nil, fmt.Errorf("saving tag: %w", err)
	}
	return tag, nil
}

// ListTags returns all tags.
func (s *Service) ListTags() ([]*Tag, error) {
	return s.store.ListTags()
}

// DeleteTag removes a tag.
func (s *Service) DeleteTag(id string) error {
	return s.store.DeleteTag(id)
}

// ListLogs returns an item's full lending history.
func (s *Service) ListLogs(itemID string) ([]*LendingLog, error) {
	if _, err := s.store.GetItem(itemID); err != nil {
		return nil, err
	}
	return s.store.ListLogs(itemID)
}

// OpenLogs returns an item's open obligations.
func (s *Service) OpenLogs(itemID string) ([]*LendingLog, error) {
	if _, err := s.store.GetItem(itemID); err != nil {
		return nil, err
	}
	return s.store.OpenLogs(itemID)
}

// PostChat appends a user message to the chat log.
func (s *Service) PostChat(userName, text string) (*ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Reason: "message text is required"}
	}
	msg := &ChatMessage{
		ID:       s.idGenerator.Generate(),
		Type:     "user",
		UserName: userName,
		Text:     text,
		At:       s.timeSource.Now(),
	}
	if err := s.store.AddChatMessage(msg); err != nil {
		return nil, fmt.Errorf("adding chat message: %w", err)
	}
	return msg, nil
}

// ListChat returns the chat log.
func (s *Service) ListChat() ([]*ChatMessage, error) {
	return s.store.ListChatMessages()
}

// restoreItem writes back a previous stock/status snapshot after a partial
// failure. A failed restore leaves the count wrong, so it is logged loudly.
func (s *Service) restoreItem(item *Item, prevStock int, prevStatus ItemStatus) {
	item.Stock = prevStock
	item.Status = prevStatus
	if err := s.store.SaveItem(item); err != nil {
		slog.Error("Failed to restore stock after partial failure",
			"item_id", item.ID, "stock", prevStock, "error", err)
	}
}

// emitStockZero sends the distinguished stock-zero alarm when a mutation
// crossed from positive to exactly zero. Best effort: the transition has
// already committed.
func (s *Service) emitStockZero(item *Item, userName string, prevStock int) {
	if prevStock <= 0 || item.Stock != 0 {
		return
	}
	err := s.notifier.Notify(Event{
		Type:      EventStockZero,
		ItemName:  item.Name,
		Channel:   channelFor(item),
		UserName:  userName,
		Timestamp: s.timeSource.Now(),
	})
	if err != nil {
		slog.Error("Failed to send stock-zero notification", "item", item.Name, "error", err)
	}
}

// AdjustStock applies a manual stock delta. The result must stay
// non-negative. A >0 to 0 transition emits the stock-zero alarm no matter
// what caused it.
func (s *Service) AdjustStock(itemID, userName string, delta int) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if item.Stock+delta < 0 {
		return nil, ErrInsufficientStock
	}

	prevStock := item.Stock
	item.Stock += delta
	item.UpdatedAt = s.timeSource.Now()
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}

	s.emitStockZero(item, userName, prevStock)
	return item, nil
}

// Borrow takes qty units of an item for a user: stock down, lending log
// created, lend notification out. Rejected without mutation when the user
// name is empty or qty exceeds stock.
func (s *Service) Borrow(itemID, userName string, qty int, dueDate *time.Time, memo string) (*LendingLog, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, &ValidationError{Reason: "borrower name is required"}
	}
	if qty <= 0 {
		return nil, &ValidationError{Reason: "quantity must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if qty > item.Stock {
		return nil, ErrInsufficientStock
	}

	now := s.timeSource.Now()
	prevStock, prevStatus := item.Stock, item.Status

	item.Stock -= qty
	if item.Type == ItemShared {
		item.Status = StatusLending
	}
	item.UpdatedAt = now
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}

	log := &LendingLog{
		ID:        s.idGenerator.Generate(),
		ItemID:    item.ID,
		Status:    LogLending,
		StartDate: now,
		DueDate:   dueDate,
		Quantity:  qty,
		UserName:  userName,
		Memo:      memo,
		CreatedAt: now,
	}
	if err := s.store.SaveLog(log); err != nil {
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("recording lending log: %w", err)
	}

	event := Event{
		Type:      EventLend,
		ItemName:  item.Name,
		Channel:   channelFor(item),
		UserName:  userName,
		Timestamp: now,
	}
	if err := s.notifier.Notify(event); err != nil {
		if derr := s.store.DeleteLog(log.ID); derr != nil {
			slog.Error("Failed to remove lending log after notification failure", "log_id", log.ID, "error", derr)
		}
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("sending lend notification: %w", err)
	}

	s.emitStockZero(item, userName, prevStock)
	return log, nil
}

// Reserve records a reservation for a user. Stock is untouched and the
// requested quantity is deliberately not checked against it; the check
// happens at conversion time.
func (s *Service) Reserve(itemID, userName string, qty int, reservedDate time.Time, memo string) (*LendingLog, error) {
	if strings.TrimSpace(userName) == "" {
		return nil, &ValidationError{Reason: "borrower name is required"}
	}
	if reservedDate.IsZero() {
		return nil, &ValidationError{Reason: "reservation date is required"}
	}
	if qty <= 0 {
		return nil, &ValidationError{Reason: "quantity must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	prevStatus := item.Status
	if item.Type == ItemShared {
		item.Status = StatusReserved
		item.UpdatedAt = now
		if err := s.store.SaveItem(item); err != nil {
			return nil, fmt.Errorf("saving item: %w", err)
		}
	}

	log := &LendingLog{
		ID:           s.idGenerator.Generate(),
		ItemID:       item.ID,
		Status:       LogReserved,
		StartDate:    now,
		ReservedDate: &reservedDate,
		Quantity:     qty,
		UserName:     userName,
		Memo:         memo,
		CreatedAt:    now,
	}
	if err := s.store.SaveLog(log); err != nil {
		s.restoreItem(item, item.Stock, prevStatus)
		return nil, fmt.Errorf("recording reservation: %w", err)
	}

	event := Event{
		Type:      EventReserve,
		ItemName:  item.Name,
		Channel:   channelFor(item),
		UserName:  userName,
		Timestamp: now,
	}
	if err := s.notifier.Notify(event); err != nil {
		if derr := s.store.DeleteLog(log.ID); derr != nil {
			slog.Error("Failed to remove reservation after notification failure", "log_id", log.ID, "error", derr)
		}
		s.restoreItem(item, item.Stock, prevStatus)
		return nil, fmt.Errorf("sending reserve notification: %w", err)
	}

	return log, nil
}

// ConvertReservation turns a reservation into a borrow: the reservation row
// is deleted and replaced by a lending row, and stock drops by the reserved
// quantity. The stock guard applies here, not at reservation time.
func (s *Service) ConvertReservation(logID string) (*LendingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, err := s.store.GetLog(logID)
	if err != nil {
		return nil, err
	}
	if reservation.Status != LogReserved {
		return nil, &ValidationError{Reason: "log is not an open reservation"}
	}

	item, err := s.store.GetItem(reservation.ItemID)
	if err != nil {
		return nil, err
	}
	qty := reservation.Quantity
	if qty > item.Stock {
		return nil, ErrInsufficientStock
	}

	now := s.timeSource.Now()
	prevStock, prevStatus := item.Stock, item.Status

	item.Stock -= qty
	if item.Type == ItemShared {
		item.Status = StatusLending
	}
	item.UpdatedAt = now
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}

	if err := s.store.DeleteLog(reservation.ID); err != nil {
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("removing reservation: %w", err)
	}

	log := &LendingLog{
		ID:        s.idGenerator.Generate(),
		ItemID:    item.ID,
		Status:    LogLending,
		StartDate: now,
		DueDate:   reservation.DueDate,
		Quantity:  qty,
		UserName:  reservation.UserName,
		Memo:      reservation.Memo,
		CreatedAt: now,
	}
	if err := s.store.SaveLog(log); err != nil {
		if rerr := s.store.SaveLog(reservation); rerr != nil {
			slog.Error("Failed to reinstate reservation after partial failure", "log_id", reservation.ID, "error", rerr)
		}
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("recording lending log: %w", err)
	}

	event := Event{
		Type:      EventLend,
		ItemName:  item.Name,
		Channel:   channelFor(item),
		UserName:  reservation.UserName,
		Timestamp: now,
	}
	if err := s.notifier.Notify(event); err != nil {
		if derr := s.store.DeleteLog(log.ID); derr != nil {
			slog.Error("Failed to remove lending log after notification failure", "log_id", log.ID, "error", derr)
		}
		if rerr := s.store.SaveLog(reservation); rerr != nil {
			slog.Error("Failed to reinstate reservation after notification failure", "log_id", reservation.ID, "error", rerr)
		}
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("sending lend notification: %w", err)
	}

	s.emitStockZero(item, reservation.UserName, prevStock)
	return log, nil
}

// CancelReservation deletes a reservation row. Stock was never touched, so
// there is nothing to compensate.
func (s *Service) CancelReservation(logID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, err := s.store.GetLog(logID)
	if err != nil {
		return err
	}
	if reservation.Status != LogReserved {
		return &ValidationError{Reason: "log is not an open reservation"}
	}

	if err := s.store.DeleteLog(reservation.ID); err != nil {
		return fmt.Errorf("removing reservation: %w", err)
	}

	item, err := s.store.GetItem(reservation.ItemID)
	if err == nil && item.Type == ItemShared && item.Status == StatusReserved {
		item.Status = StatusAvailable
		item.UpdatedAt = s.timeSource.Now()
		if err := s.store.SaveItem(item); err != nil {
			slog.Error("Failed to reset item status after cancel", "item_id", item.ID, "error", err)
		}
	}
	return nil
}

// Return closes a lending log: stock back up, row marked returned with the
// return date, return notification out.
func (s *Service) Return(logID string) (*LendingLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.store.GetLog(logID)
	if err != nil {
		return nil, err
	}
	if log.Status != LogLending {
		return nil, &ValidationError{Reason: "log is not an open borrow"}
	}

	item, err := s.store.GetItem(log.ItemID)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	prevStock, prevStatus := item.Stock, item.Status

	item.Stock += log.Quantity
	if item.Type == ItemShared {
		item.Status = StatusAvailable
	}
	item.UpdatedAt = now
	if err := s.store.SaveItem(item); err != nil {
		return nil, fmt.Errorf("saving item: %w", err)
	}

	log.Status = LogReturned
	log.ReturnedDate = &now
	if err := s.store.SaveLog(log); err != nil {
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("recording return: %w", err)
	}

	event := Event{
		Type:      EventReturn,
		ItemName:  item.Name,
		Channel:   channelFor(item),
		UserName:  log.UserName,
		Timestamp: now,
	}
	if err := s.notifier.Notify(event); err != nil {
		log.Status = LogLending
		log.ReturnedDate = nil
		if rerr := s.store.SaveLog(log); rerr != nil {
			slog.Error("Failed to revert lending log after notification failure", "log_id", log.ID, "error", rerr)
		}
		s.restoreItem(item, prevStock, prevStatus)
		return nil, fmt.Errorf("sending return notification: %w", err)
	}

	return log, nil
}
