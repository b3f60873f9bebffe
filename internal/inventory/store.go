package inventory

// Store defines the persistence surface for items, tags, lending logs, and
// the chat log. Two implementations exist: BoltStore for the local backend
// and PostgresStore for the remote one. Which backend runs is an explicit
// configuration decision made at startup, not an environment sniff.
type Store interface {
	// SaveItem inserts or updates an item
	SaveItem(item *Item) error

	// GetItem retrieves an item by ID
	GetItem(id string) (*Item, error)

	// ListItems returns all items
	ListItems() ([]*Item, error)

	// DeleteItem removes an item and cascades deletion of its lending logs
	DeleteItem(id string) error

	// SaveTag inserts or updates a tag
	SaveTag(tag *Tag) error

	// ListTags returns all tags
	ListTags() ([]*Tag, error)

	// DeleteTag removes a tag
	DeleteTag(id string) error

	// SaveLog inserts or updates a lending log row
	SaveLog(log *LendingLog) error

	// GetLog retrieves a lending log by ID
	GetLog(id string) (*LendingLog, error)

	// ListLogs returns all lending logs for an item, history included
	ListLogs(itemID string) ([]*LendingLog, error)

	// OpenLogs returns the item's open obligations (reserved or lending)
	OpenLogs(itemID string) ([]*LendingLog, error)

	// DeleteLog removes a lending log row
	DeleteLog(id string) error

	// AddChatMessage appends a message to the chat log
	AddChatMessage(msg *ChatMessage) error

	// ListChatMessages returns the chat log in insertion order
	ListChatMessages() ([]*ChatMessage, error)

	// Close closes the store
	Close() error
}
