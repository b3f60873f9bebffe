package inventory

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltStore", func() {
	var (
		tmpDir string
		store  *BoltStore
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		store, err = NewBoltStore(filepath.Join(tmpDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	newItem := func(id string) *Item {
		return &Item{
			ID:        id,
			Name:      "dish soap",
			Stock:     3,
			Threshold: 1,
			Location:  "kitchen shelf",
			Type:      ItemConsumable,
			Tags:      []string{"kitchen"},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}

	Describe("items", func() {
		It("round-trips an item", func() {
			Expect(store.SaveItem(newItem("item-1"))).To(Succeed())

			saved, err := store.GetItem("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Name).To(Equal("dish soap"))
			Expect(saved.Stock).To(Equal(3))
			Expect(saved.Tags).To(Equal([]string{"kitchen"}))
		})

		It("wraps ErrNotFound for a missing item", func() {
			_, err := store.GetItem("missing")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})

		It("updates in place on re-save", func() {
			item := newItem("item-1")
			Expect(store.SaveItem(item)).To(Succeed())
			item.Stock = 7
			Expect(store.SaveItem(item)).To(Succeed())

			saved, err := store.GetItem("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Stock).To(Equal(7))

			items, err := store.ListItems()
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(HaveLen(1))
		})

		It("cascades log deletion when the item is deleted", func() {
			Expect(store.SaveItem(newItem("item-1"))).To(Succeed())
			Expect(store.SaveItem(newItem("item-2"))).To(Succeed())
			Expect(store.SaveLog(&LendingLog{ID: "log-1", ItemID: "item-1", Status: LogLending, Quantity: 1})).To(Succeed())
			Expect(store.SaveLog(&LendingLog{ID: "log-2", ItemID: "item-2", Status: LogLending, Quantity: 1})).To(Succeed())

			Expect(store.DeleteItem("item-1")).To(Succeed())

			_, err := store.GetLog("log-1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())

			kept, err := store.GetLog("log-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(kept.ItemID).To(Equal("item-2"))
		})
	})

	Describe("lending logs", func() {
		BeforeEach(func() {
			Expect(store.SaveItem(newItem("item-1"))).To(Succeed())
		})

		It("separates open obligations from history", func() {
			Expect(store.SaveLog(&LendingLog{ID: "log-1", ItemID: "item-1", Status: LogLending, Quantity: 1})).To(Succeed())
			Expect(store.SaveLog(&LendingLog{ID: "log-2", ItemID: "item-1", Status: LogReserved, Quantity: 1})).To(Succeed())
			Expect(store.SaveLog(&LendingLog{ID: "log-3", ItemID: "item-1", Status: LogReturned, Quantity: 1})).To(Succeed())

			open, err := store.OpenLogs("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(open).To(HaveLen(2))

			all, err := store.ListLogs("item-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
		})

		It("deletes a single log row", func() {
			Expect(store.SaveLog(&LendingLog{ID: "log-1", ItemID: "item-1", Status: LogReserved, Quantity: 1})).To(Succeed())
			Expect(store.DeleteLog("log-1")).To(Succeed())

			_, err := store.GetLog("log-1")
			Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
		})
	})

	Describe("tags", func() {
		It("round-trips tags", func() {
			Expect(store.SaveTag(&Tag{ID: "tag-1", Name: "kitchen"})).To(Succeed())
			Expect(store.SaveTag(&Tag{ID: "tag-2", Name: "bath"})).To(Succeed())

			tags, err := store.ListTags()
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(HaveLen(2))

			Expect(store.DeleteTag("tag-1")).To(Succeed())
			tags, err = store.ListTags()
			Expect(err).NotTo(HaveOccurred())
			Expect(tags).To(HaveLen(1))
		})
	})

	Describe("chat", func() {
		It("keeps messages in insertion order", func() {
			for _, text := range []string{"first", "second", "third"} {
				Expect(store.AddChatMessage(&ChatMessage{
					ID:   "msg-" + text,
					Type: "system",
					Text: text,
					At:   time.Now(),
				})).To(Succeed())
			}

			msgs, err := store.ListChatMessages()
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].Text).To(Equal("first"))
			Expect(msgs[2].Text).To(Equal("third"))
		})
	})
})
