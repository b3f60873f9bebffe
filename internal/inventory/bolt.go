package inventory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	itemBucket = "items"
	tagBucket  = "tags"
	logBucket  = "lending_logs"
	chatBucket = "chat"
)

// BoltStore implements Store on a single bbolt file. This is the Local
// backend used when no Postgres DSN is configured.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the database file and its buckets.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{itemBucket, tagBucket, logBucket, chatBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (b *BoltStore) put(bucket, key string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

// SaveItem inserts or updates an item.
func (b *BoltStore) SaveItem(item *Item) error {
	return b.put(itemBucket, item.ID, item)
}

// GetItem retrieves an item by ID.
func (b *BoltStore) GetItem(id string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(itemBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("item %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns all items.
func (b *BoltStore) ListItems() ([]*Item, error) {
	items := make([]*Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemBucket)).ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItem removes an item and all of its lending logs in one
// transaction.
func (b *BoltStore) DeleteItem(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(itemBucket)).Delete([]byte(id)); err != nil {
			return err
		}

		logs := tx.Bucket([]byte(logBucket))
		var stale [][]byte
		err := logs.ForEach(func(k, v []byte) error {
			var log LendingLog
			if err := json.Unmarshal(v, &log); err != nil {
				return fmt.Errorf("unmarshaling lending log: %w", err)
			}
			if log.ItemID == id {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := logs.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveTag inserts or updates a tag.
func (b *BoltStore) SaveTag(tag *Tag) error {
	return b.put(tagBucket, tag.ID, tag)
}

// ListTags returns all tags.
func (b *BoltStore) ListTags() ([]*Tag, error) {
	tags := make([]*Tag, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tagBucket)).ForEach(func(k, v []byte) error {
			var tag Tag
			if err := json.Unmarshal(v, &tag); err != nil {
				return fmt.Errorf("unmarshaling tag: %w", err)
			}
			tags = append(tags, &tag)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// DeleteTag removes a tag.
func (b *BoltStore) DeleteTag(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tagBucket)).Delete([]byte(id))
	})
}

// SaveLog inserts or updates a lending log row.
func (b *BoltStore) SaveLog(log *LendingLog) error {
	return b.put(logBucket, log.ID, log)
}

// GetLog retrieves a lending log by ID.
func (b *BoltStore) GetLog(id string) (*LendingLog, error) {
	var log *LendingLog
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(logBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("lending log %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &log)
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (b *BoltStore) listLogs(itemID string, openOnly bool) ([]*LendingLog, error) {
	logs := make([]*LendingLog, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(logBucket)).ForEach(func(k, v []byte) error {
			var log LendingLog
			if err := json.Unmarshal(v, &log); err != nil {
				return fmt.Errorf("unmarshaling lending log: %w", err)
			}
			if log.ItemID != itemID {
				return nil
			}
			if openOnly && log.Status != LogReserved && log.Status != LogLending {
				return nil
			}
			logs = append(logs, &log)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListLogs returns all lending logs for an item.
func (b *BoltStore) ListLogs(itemID string) ([]*LendingLog, error) {
	return b.listLogs(itemID, false)
}

// OpenLogs returns the item's open obligations.
func (b *BoltStore) OpenLogs(itemID string) ([]*LendingLog, error) {
	return b.listLogs(itemID, true)
}

// DeleteLog removes a lending log row.
func (b *BoltStore) DeleteLog(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(logBucket)).Delete([]byte(id))
	})
}

// AddChatMessage appends a message under a monotonically increasing key so
// iteration order is insertion order.
func (b *BoltStore) AddChatMessage(msg *ChatMessage) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(chatBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshaling chat message: %w", err)
		}
		return bucket.Put(key, data)
	})
}

// ListChatMessages returns the chat log oldest first.
func (b *BoltStore) ListChatMessages() ([]*ChatMessage, error) {
	msgs := make([]*ChatMessage, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(chatBucket)).ForEach(func(k, v []byte) error {
			var msg ChatMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("unmarshaling chat message: %w", err)
			}
			msgs = append(msgs, &msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Close closes the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}
