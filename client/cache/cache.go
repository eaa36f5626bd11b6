// Package cache is the device-local persistence layer for the chat client.
// It stores conversation snapshots and list pointers in an embedded pebble
// database so the client renders instantly on reopen and survives restarts
// without talking to the server.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	pebble "github.com/cockroachdb/pebble"
)

// ErrNotFound is returned when a key has no cached value.
var ErrNotFound = errors.New("cache: not found")

// Cache is a pebble-backed key-value store. Values are opaque bytes; the
// JSON helpers cover the common case.
type Cache struct {
	db *pebble.DB
}

// Open opens (creating if needed) the cache at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) ([]byte, error) {
	v, closer, err := c.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores value under key, synced to disk.
func (c *Cache) Set(key string, value []byte) error {
	return c.db.Set([]byte(key), value, pebble.Sync)
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(key string) error {
	return c.db.Delete([]byte(key), pebble.Sync)
}

// GetJSON unmarshals the value stored under key into out.
func (c *Cache) GetJSON(key string, out any) error {
	b, err := c.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func (c *Cache) SetJSON(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(key, b)
}

// Key layout. Conversation snapshots and watermarks are scoped per user and
// group; the last-message pointer is shared per group on the device.
func MessagesKey(userID, groupID int) string {
	return fmt.Sprintf("%d_group_%d_messages", userID, groupID)
}

func ClearedAtKey(userID, groupID int) string {
	return fmt.Sprintf("%d_group_%d_clearedAt", userID, groupID)
}

func LastMessageKey(groupID int) string {
	return fmt.Sprintf("@lastMessage_%d", groupID)
}

func PinnedKey(userID int) string {
	return fmt.Sprintf("%d_pinned_groups", userID)
}
