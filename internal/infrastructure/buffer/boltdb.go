package buffer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	itemsBucket = "transitions"
	indexBucket = "transitions_by_conversation"
)

var ErrInvalidItem = errors.New("buffer: item requires a conversation id")

// Store persists pending conversation transitions in BoltDB while the
// primary database is unavailable. At most one item is kept per
// conversation; a newer transition replaces the older one.
type Store struct {
	db *bolt.DB
}

// Open initializes the BoltDB file and ensures both buckets exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{itemsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Enqueue stores an item under a priority-ordered key, replacing any
// transition already pending for the same conversation.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if item.ConversationID == "" {
		return ErrInvalidItem
	}
	item.normalize()
	key := buildKey(item)

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(itemsBucket))
		index := tx.Bucket([]byte(indexBucket))

		if previous := index.Get([]byte(item.ConversationID)); previous != nil {
			if err := items.Delete(previous); err != nil {
				return err
			}
		}
		if err := items.Put(key, payload); err != nil {
			return err
		}
		return index.Put([]byte(item.ConversationID), key)
	})
}

// GetBatch returns up to limit items in priority order without removing them.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(itemsBucket)).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Pending returns the buffered transition for a conversation, if any.
func (s *Store) Pending(conversationID string) (*Item, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, bolt.ErrDatabaseNotOpen
	}
	var (
		item  Item
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket([]byte(indexBucket)).Get([]byte(conversationID))
		if key == nil {
			return nil
		}
		raw := tx.Bucket([]byte(itemsBucket)).Get(key)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			return err
		}
		item.bucketKey = append([]byte(nil), key...)
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return &item, true, nil
}

// Remove deletes the item. A stale item whose conversation has since been
// re-enqueued leaves the newer entry untouched.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(itemsBucket))
		index := tx.Bucket([]byte(indexBucket))

		key := item.bucketKey
		if len(key) == 0 {
			key = index.Get([]byte(item.ConversationID))
		}
		if key == nil {
			return nil
		}
		if err := items.Delete(key); err != nil {
			return err
		}
		if current := index.Get([]byte(item.ConversationID)); current != nil && string(current) == string(key) {
			return index.Delete([]byte(item.ConversationID))
		}
		return nil
	})
}

// Requeue re-inserts an item after bumping its retry count and timestamp.
func (s *Store) Requeue(item Item, cause error) error {
	if err := s.Remove(item); err != nil {
		return err
	}
	item.bucketKey = nil
	item.Retries++
	item.Timestamp = time.Now()
	if cause != nil {
		item.LastError = cause.Error()
	}
	return s.Enqueue(item)
}

// Size returns the number of buffered items.
func (s *Store) Size() (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(itemsBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup removes items older than the provided timestamp and returns how
// many were dropped.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		items := tx.Bucket([]byte(itemsBucket))
		index := tx.Bucket([]byte(indexBucket))

		var stale []Item
		c := items.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.Timestamp.Before(olderThan) {
				item.bucketKey = append([]byte(nil), k...)
				stale = append(stale, item)
			}
		}
		for _, item := range stale {
			if err := items.Delete(item.bucketKey); err != nil {
				return err
			}
			if err := index.Delete([]byte(item.ConversationID)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildKey(item Item) []byte {
	return []byte(fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID))
}
