package inventory

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	threshold   INTEGER NOT NULL DEFAULT 0,
	location    TEXT NOT NULL DEFAULT '',
	item_type   TEXT NOT NULL DEFAULT 'consumable',
	tags        TEXT[] NOT NULL DEFAULT '{}',
	expiry_date TIMESTAMPTZ,
	expiry_type TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'available',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS lending_logs (
	id            TEXT PRIMARY KEY,
	item_id       TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	status        TEXT NOT NULL CHECK (status IN ('lending', 'reserved', 'returned', 'canceled')),
	start_date    TIMESTAMPTZ NOT NULL,
	due_date      TIMESTAMPTZ,
	reserved_date TIMESTAMPTZ,
	returned_date TIMESTAMPTZ,
	quantity      INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
	user_name     TEXT NOT NULL DEFAULT '',
	memo          TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	seq       BIGSERIAL PRIMARY KEY,
	id        TEXT NOT NULL UNIQUE,
	msg_type  TEXT NOT NULL,
	user_name TEXT NOT NULL DEFAULT '',
	text      TEXT NOT NULL,
	at        TIMESTAMPTZ NOT NULL
);
`

// PostgresStore implements Store against the Supabase-hosted Postgres
// database. This is the Remote backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// SaveItem inserts or updates an item.
func (p *PostgresStore) SaveItem(item *Item) error {
	_, err := p.db.Exec(`
		INSERT INTO items (id, name, stock, threshold, location, item_type, tags, expiry_date, expiry_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			stock = EXCLUDED.stock,
			threshold = EXCLUDED.threshold,
			location = EXCLUDED.location,
			item_type = EXCLUDED.item_type,
			tags = EXCLUDED.tags,
			expiry_date = EXCLUDED.expiry_date,
			expiry_type = EXCLUDED.expiry_type,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		item.ID, item.Name, item.Stock, item.Threshold, item.Location, string(item.Type),
		pq.Array(item.Tags), item.ExpiryDate, item.ExpiryType, string(item.Status),
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving item: %w", err)
	}
	return nil
}

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var item Item
	var tags pq.StringArray
	err := row.Scan(&item.ID, &item.Name, &item.Stock, &item.Threshold, &item.Location,
		&item.Type, &tags, &item.ExpiryDate, &item.ExpiryType, &item.Status,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Tags = []string(tags)
	return &item, nil
}

const itemColumns = "id, name, stock, threshold, location, item_type, tags, expiry_date, expiry_type, status, created_at, updated_at"

// GetItem retrieves an item by ID.
func (p *PostgresStore) GetItem(id string) (*Item, error) {
	item, err := scanItem(p.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all items.
func (p *PostgresStore) ListItems() ([]*Item, error) {
	rows, err := p.db.Query("SELECT " + itemColumns + " FROM items ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items := make([]*Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItem removes an item; the FK cascade removes its lending logs.
func (p *PostgresStore) DeleteItem(id string) error {
	if _, err := p.db.Exec("DELETE FROM items WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// SaveTag inserts or updates a tag.
func (p *PostgresStore) SaveTag(tag *Tag) error {
	_, err := p.db.Exec(`
		INSERT INTO tags (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		tag.ID, tag.Name,
	)
	if err != nil {
		return fmt.Errorf("saving tag: %w", err)
	}
	return nil
}

// ListTags returns all tags.
func (p *PostgresStore) ListTags() ([]*Tag, error) {
	rows, err := p.db.Query("SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	tags := make([]*Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, &tag)
	}
	return tags, rows.Err()
}

// DeleteTag removes a tag.
func (p *PostgresStore) DeleteTag(id string) error {
	if _, err := p.db.Exec("DELETE FROM tags WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}
	return nil
}

// SaveLog inserts or updates a lending log row.
func (p *PostgresStore) SaveLog(log *LendingLog) error {
	_, err := p.db.Exec(`
		INSERT INTO lending_logs (id, item_id, status, start_date, due_date, reserved_date, returned_date, quantity, user_name, memo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			due_date = EXCLUDED.due_date,
			reserved_date = EXCLUDED.reserved_date,
			returned_date = EXCLUDED.returned_date,
			quantity = EXCLUDED.quantity,
			user_name = EXCLUDED.user_name,
			memo = EXCLUDED.memo`,
		log.ID, log.ItemID, string(log.Status), log.StartDate, log.DueDate,
		log.ReservedDate, log.ReturnedDate, log.Quantity, log.UserName, log.Memo,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving lending log: %w", err)
	}
	return nil
}

const logColumns = "id, item_id, status, start_date, due_date, reserved_date, returned_date, quantity, user_name, memo, created_at"

func scanLog(row interface{ Scan(...any) error }) (*LendingLog, error) {
	var log LendingLog
	err := row.Scan(&log.ID, &log.ItemID, &log.Status, &log.StartDate, &log.DueDate,
		&log.ReservedDate, &log.ReturnedDate, &log.Quantity, &log.UserName, &log.Memo,
		&log.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetLog retrieves a lending log by ID.
func (p *PostgresStore) GetLog(id string) (*LendingLog, error) {
	log, err := scanLog(p.db.QueryRow("SELECT "+logColumns+" FROM lending_logs WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lending log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting lending log: %w", err)
	}
	return log, nil
}

func (p *PostgresStore) queryLogs(query string, args ...any) ([]*LendingLog, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing lending logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*LendingLog, 0)
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lending log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// ListLogs returns all lending logs for an item.
func (p *PostgresStore) ListLogs(itemID string) ([]*LendingLog, error) {
	return p.queryLogs("SELECT "+logColumns+" FROM lending_logs WHERE item_id = $1 ORDER BY created_at DESC", itemID)
}

// OpenLogs returns the item's open obligations.
func (p *PostgresStore) OpenLogs(itemID string) ([]*LendingLog, error) {
	return p.queryLogs("SELECT "+logColumns+" FROM lending_logs WHERE item_id = $1 AND status IN ('reserved', 'lending') ORDER BY created_at DESC", itemID)
}

// DeleteLog removes a lending log row.
func (p *PostgresStore) DeleteLog(id string) error {
	if _, err := p.db.Exec("DELETE FROM lending_logs WHERE id = $1", id); err != nil {
		return fmt.Errorf("deleting lending log: %w", err)
	}
	return nil
}

// AddChatMessage appends a chat message.
func (p *PostgresStore) AddChatMessage(msg *ChatMessage) error {
	_, err := p.db.Exec(`
		INSERT INTO chat_messages (id, msg_type, user_name, text, at)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Type, msg.UserName, msg.Text, msg.At,
	)
	if err != nil {
		return fmt.Errorf("adding chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns the chat log oldest first.
func (p *PostgresStore) ListChatMessages() ([]*ChatMessage, error) {
	rows, err := p.db.Query("SELECT id, msg_type, user_name, text, at FROM chat_messages ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*ChatMessage, 0)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.UserName, &msg.Text, &msg.At); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
