package inventory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestInventory(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Inventory Suite")
}

// mockStore is an in-memory Store with injectable failures
type mockStore struct {
	items map[string]*Item
	tags  map[string]*Tag
	logs  map[string]*LendingLog
	chat  []*ChatMessage

	saveItemErr  error
	saveLogErr   error
	deleteLogErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		items: make(map[string]*Item),
		tags:  make(map[string]*Tag),
		logs:  make(map[string]*LendingLog),
	}
}

func (m *mockStore) SaveItem(item *Item) error {
	if m.saveItemErr != nil {
		return m.saveItemErr
	}
	copied := *item
	m.items[item.ID] = &copied
	return nil
}

func (m *mockStore) GetItem(id string) (*Item, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	copied := *item
	return &copied, nil
}

func (m *mockStore) ListItems() ([]*Item, error) {
	items := make([]*Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	return items, nil
}

func (m *mockStore) DeleteItem(id string) error {
	delete(m.items, id)
	for logID, log := range m.logs {
		if log.ItemID == id {
			delete(m.logs, logID)
		}
	}
	return nil
}

func (m *mockStore) SaveTag(tag *Tag) error {
	m.tags[tag.ID] = tag
	return nil
}

func (m *mockStore) ListTags() ([]*Tag, error) {
	tags := make([]*Tag, 0, len(m.tags))
	for _, tag := range m.tags {
		tags = append(tags, tag)
	}
	return tags, nil
}

func (m *mockStore) DeleteTag(id string) error {
	delete(m.tags, id)
	return nil
}

func (m *mockStore) SaveLog(log *LendingLog) error {
	if m.saveLogErr != nil {
		return m.saveLogErr
	}
	copied := *log
	m.logs[log.ID] = &copied
	return nil
}

func (m *mockStore) GetLog(id string) (*LendingLog, error) {
	log, ok := m.logs[id]
	if !ok {
		return nil, fmt.Errorf("lending log %s: %w", id, ErrNotFound)
	}
	copied := *log
	return &copied, nil
}

func (m *mockStore) ListLogs(itemID string) ([]*LendingLog, error) {
	logs := make([]*LendingLog, 0)
	for _, log := range m.logs {
		if log.ItemID == itemID {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

func (m *mockStore) OpenLogs(itemID string) ([]*LendingLog, error) {
	logs := make([]*LendingLog, 0)
	for _, log := range m.logs {
		if log.ItemID == itemID && (log.Status == LogReserved || log.Status == LogLending) {
			logs = append(logs, log)
		}
	}
	return logs, nil
}

func (m *mockStore) DeleteLog(id string) error {
	if m.deleteLogErr != nil {
		return m.deleteLogErr
	}
	delete(m.logs, id)
	return nil
}

func (m *mockStore) AddChatMessage(msg *ChatMessage) error {
	m.chat = append(m.chat, msg)
	return nil
}

func (m *mockStore) ListChatMessages() ([]*ChatMessage, error) {
	return m.chat, nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) logsWithStatus(itemID string, status LogStatus) []*LendingLog {
	logs := make([]*LendingLog, 0)
	for _, log := range m.logs {
		if log.ItemID == itemID && log.Status == status {
			logs = append(logs, log)
		}
	}
	return logs
}

// mockNotifier records events and can simulate chat-write failure
type mockNotifier struct {
	events    []Event
	notifyErr error
}

func (m *mockNotifier) Notify(event Event) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockNotifier) countOf(t EventType) int {
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// seqIDGenerator returns id-1, id-2, ...
type seqIDGenerator struct {
	n int
}

func (g *seqIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

// fixedTimeSource returns a constant time
type fixedTimeSource struct {
	t time.Time
}

func (f *fixedTimeSource) Now() time.Time {
	return f.t
}

var _ = Describe("Service", func() {
	var (
		store    *mockStore
		notifier *mockNotifier
		service  *Service
		now      time.Time
		item     *Item
	)

	BeforeEach(func() {
		store = newMockStore()
		notifier = &mockNotifier{}
		now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		service = NewServiceWithDeps(store, notifier, &seqIDGenerator{}, &fixedTimeSource{t: now})
	})

	Describe("CreateItem", func() {
		It("rejects an empty name", func() {
			_, err := service.CreateItem(&Item{Name: "  "})
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("rejects negative stock", func() {
			_, err := service.CreateItem(&Item{Name: "soap", Stock: -1})
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("defaults the type to consumable", func() {
			created, err := service.CreateItem(&Item{Name: "soap", Stock: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Type).To(Equal(ItemConsumable))
		})

		It("marks new shared items available", func() {
			created, err := service.CreateItem(&Item{Name: "drill", Stock: 1, Type: ItemShared})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Status).To(Equal(StatusAvailable))
		})
	})

	Describe("Borrow", func() {
		BeforeEach(func() {
			item = &Item{ID: "item-1", Name: "vacuum", Stock: 3, Type: ItemShared, Status: StatusAvailable, Tags: []string{"tool"}}
			Expect(store.SaveItem(item)).To(Succeed())
		})

		It("decrements stock and records a lending log", func() {
			log, err := service.Borrow("item-1", "alice", 1, nil, "weekly cleaning")
			Expect(err).NotTo(HaveOccurred())

			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(2))
			Expect(saved.Status).To(Equal(StatusLending))

			Expect(log.Status).To(Equal(LogLending))
			Expect(log.Quantity).To(Equal(1))
			Expect(log.UserName).To(Equal("alice"))
			Expect(log.StartDate).To(Equal(now))
			Expect(store.logsWithStatus("item-1", LogLending)).To(HaveLen(1))
		})

		It("emits a lend notification on the item's channel", func() {
			_, err := service.Borrow("item-1", "alice", 1, nil, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventLend)).To(Equal(1))
			Expect(notifier.events[0].Channel).To(Equal("tool"))
			Expect(notifier.events[0].ItemName).To(Equal("vacuum"))
		})

		When("quantity exceeds stock", func() {
			It("rejects with ErrInsufficientStock and mutates nothing", func() {
				_, err := service.Borrow("item-1", "alice", 4, nil, "")
				Expect(err).To(MatchError(ErrInsufficientStock))

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(3))
				Expect(store.logs).To(BeEmpty())
				Expect(notifier.events).To(BeEmpty())
			})
		})

		When("the borrower name is empty", func() {
			It("rejects with a validation error", func() {
				_, err := service.Borrow("item-1", "", 1, nil, "")
				var verr *ValidationError
				Expect(errors.As(err, &verr)).To(BeTrue())
			})
		})

		When("the last unit is borrowed", func() {
			BeforeEach(func() {
				item.Stock = 1
				Expect(store.SaveItem(item)).To(Succeed())
			})

			It("emits stock_zero exactly once", func() {
				_, err := service.Borrow("item-1", "alice", 1, nil, "")
				Expect(err).NotTo(HaveOccurred())

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(BeZero())
				Expect(notifier.countOf(EventStockZero)).To(Equal(1))
			})
		})

		When("the log write fails after the stock was decremented", func() {
			BeforeEach(func() {
				store.saveLogErr = errors.New("db write failed")
			})

			It("restores the previous stock", func() {
				_, err := service.Borrow("item-1", "alice", 2, nil, "")
				Expect(err).To(HaveOccurred())

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(3))
				Expect(saved.Status).To(Equal(StatusAvailable))
			})
		})

		When("the notification write fails after the stock was decremented", func() {
			BeforeEach(func() {
				notifier.notifyErr = errors.New("chat log unavailable")
			})

			It("restores the stock and removes the log row", func() {
				_, err := service.Borrow("item-1", "alice", 2, nil, "")
				Expect(err).To(HaveOccurred())

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(3))
				Expect(store.logs).To(BeEmpty())
			})
		})
	})

	Describe("Return", func() {
		var logID string

		BeforeEach(func() {
			item = &Item{ID: "item-1", Name: "vacuum", Stock: 3, Type: ItemShared, Status: StatusAvailable}
			Expect(store.SaveItem(item)).To(Succeed())

			log, err := service.Borrow("item-1", "alice", 1, nil, "")
			Expect(err).NotTo(HaveOccurred())
			logID = log.ID
		})

		It("restores stock and closes the same log with a return date", func() {
			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(2))

			returned, err := service.Return(logID)
			Expect(err).NotTo(HaveOccurred())

			saved, _ = store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(3))
			Expect(saved.Status).To(Equal(StatusAvailable))

			Expect(returned.ID).To(Equal(logID))
			Expect(returned.Status).To(Equal(LogReturned))
			Expect(returned.ReturnedDate).NotTo(BeNil())
			Expect(*returned.ReturnedDate).To(Equal(now))
		})

		It("emits a return notification", func() {
			_, err := service.Return(logID)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventReturn)).To(Equal(1))
		})

		It("rejects returning a closed log", func() {
			_, err := service.Return(logID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Return(logID)
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		When("the log update fails after the stock was incremented", func() {
			BeforeEach(func() {
				store.saveLogErr = errors.New("db write failed")
			})

			It("restores the previous stock", func() {
				_, err := service.Return(logID)
				Expect(err).To(HaveOccurred())

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(2))
			})
		})
	})

	Describe("Reserve", func() {
		var reservedDate time.Time

		BeforeEach(func() {
			reservedDate = now.AddDate(0, 0, 7)
			item = &Item{ID: "item-1", Name: "projector", Stock: 2, Type: ItemShared, Status: StatusAvailable}
			Expect(store.SaveItem(item)).To(Succeed())
		})

		It("creates a reservation without touching stock", func() {
			log, err := service.Reserve("item-1", "bob", 2, reservedDate, "movie night")
			Expect(err).NotTo(HaveOccurred())

			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(2))
			Expect(saved.Status).To(Equal(StatusReserved))

			Expect(log.Status).To(Equal(LogReserved))
			Expect(log.ReservedDate).NotTo(BeNil())
			Expect(*log.ReservedDate).To(Equal(reservedDate))
		})

		It("does not check quantity against stock", func() {
			// Optimistic reservation: the guard applies at conversion.
			_, err := service.Reserve("item-1", "bob", 5, reservedDate, "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("emits a reserve notification and never stock_zero", func() {
			_, err := service.Reserve("item-1", "bob", 2, reservedDate, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventReserve)).To(Equal(1))
			Expect(notifier.countOf(EventStockZero)).To(BeZero())
		})

		It("requires a reservation date", func() {
			_, err := service.Reserve("item-1", "bob", 1, time.Time{}, "")
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("requires a borrower name", func() {
			_, err := service.Reserve("item-1", "", 1, reservedDate, "")
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Describe("ConvertReservation", func() {
		var reservation *LendingLog

		BeforeEach(func() {
			item = &Item{ID: "item-1", Name: "projector", Stock: 5, Type: ItemShared, Status: StatusAvailable}
			Expect(store.SaveItem(item)).To(Succeed())

			var err error
			reservation, err = service.Reserve("item-1", "bob", 2, now.AddDate(0, 0, 7), "")
			Expect(err).NotTo(HaveOccurred())
		})

		It("replaces the reservation with a lending row and decrements stock", func() {
			log, err := service.ConvertReservation(reservation.ID)
			Expect(err).NotTo(HaveOccurred())

			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(3))
			Expect(saved.Status).To(Equal(StatusLending))

			Expect(log.Status).To(Equal(LogLending))
			Expect(log.Quantity).To(Equal(2))
			Expect(log.UserName).To(Equal("bob"))

			Expect(store.logsWithStatus("item-1", LogLending)).To(HaveLen(1))
			Expect(store.logsWithStatus("item-1", LogReserved)).To(BeEmpty())
		})

		It("emits a lend notification", func() {
			_, err := service.ConvertReservation(reservation.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventLend)).To(Equal(1))
		})

		When("the reserved quantity now exceeds stock", func() {
			BeforeEach(func() {
				_, err := service.AdjustStock("item-1", "admin", -4)
				Expect(err).NotTo(HaveOccurred())
			})

			It("rejects with ErrInsufficientStock and keeps the reservation", func() {
				_, err := service.ConvertReservation(reservation.ID)
				Expect(err).To(MatchError(ErrInsufficientStock))

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(1))
				Expect(store.logsWithStatus("item-1", LogReserved)).To(HaveLen(1))
			})
		})

		When("the lending row write fails mid-conversion", func() {
			BeforeEach(func() {
				store.saveLogErr = errors.New("db write failed")
			})

			It("restores the previous stock", func() {
				_, err := service.ConvertReservation(reservation.ID)
				Expect(err).To(HaveOccurred())

				saved, _ := store.GetItem("item-1")
				Expect(saved.Stock).To(Equal(5))
			})
		})

		It("rejects converting a non-reservation log", func() {
			borrowed, err := service.Borrow("item-1", "carol", 1, nil, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ConvertReservation(borrowed.ID)
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Describe("CancelReservation", func() {
		BeforeEach(func() {
			item = &Item{ID: "item-1", Name: "projector", Stock: 2, Type: ItemShared, Status: StatusAvailable}
			Expect(store.SaveItem(item)).To(Succeed())
		})

		It("removes the row and resets the item status without touching stock", func() {
			reservation, err := service.Reserve("item-1", "bob", 1, now.AddDate(0, 0, 3), "")
			Expect(err).NotTo(HaveOccurred())

			Expect(service.CancelReservation(reservation.ID)).To(Succeed())

			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(2))
			Expect(saved.Status).To(Equal(StatusAvailable))
			Expect(store.logs).To(BeEmpty())
		})

		It("rejects canceling a lending log", func() {
			log, err := service.Borrow("item-1", "bob", 1, nil, "")
			Expect(err).NotTo(HaveOccurred())

			err = service.CancelReservation(log.ID)
			var verr *ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})
	})

	Describe("AdjustStock", func() {
		BeforeEach(func() {
			item = &Item{ID: "item-1", Name: "detergent", Stock: 1, Type: ItemConsumable}
			Expect(store.SaveItem(item)).To(Succeed())
		})

		It("applies a positive delta", func() {
			updated, err := service.AdjustStock("item-1", "alice", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Stock).To(Equal(4))
		})

		It("rejects a delta that would go negative", func() {
			_, err := service.AdjustStock("item-1", "alice", -2)
			Expect(err).To(MatchError(ErrInsufficientStock))

			saved, _ := store.GetItem("item-1")
			Expect(saved.Stock).To(Equal(1))
		})

		It("emits stock_zero when a manual decrement hits zero", func() {
			_, err := service.AdjustStock("item-1", "alice", -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventStockZero)).To(Equal(1))
		})

		It("does not emit stock_zero when stock was already zero", func() {
			_, err := service.AdjustStock("item-1", "alice", -1)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.AdjustStock("item-1", "alice", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.countOf(EventStockZero)).To(Equal(1))
		})
	})

	Describe("notification channels", func() {
		It("falls back to the other channel for untagged items", func() {
			item = &Item{ID: "item-1", Name: "misc", Stock: 1, Type: ItemConsumable}
			Expect(store.SaveItem(item)).To(Succeed())

			_, err := service.Borrow("item-1", "alice", 1, nil, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(notifier.events[0].Channel).To(Equal("other"))
		})
	})
})
