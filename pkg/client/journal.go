package client

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var journalBucket = []byte("pending_commits")

// Journal persists pending commit payloads so edits survive a process
// crash between the debounce window arming and the commit firing. On
// restart the surviving entries are replayed and then cleared.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens (or creates) the journal file at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record stores (or overwrites) the pending payload for key.
func (j *Journal) Record(key string, payload []byte) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(journalBucket).Put([]byte(key), payload)
	})
}

// Clear removes the pending payload for key, usually after the commit
// was handed to the transport.
func (j *Journal) Clear(key string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(journalBucket).Delete([]byte(key))
	})
}

// Replay invokes fn for every surviving entry and deletes it. Entries
// that fail fn are kept for the next replay.
func (j *Journal) Replay(fn func(key string, payload []byte) error) error {
	type entry struct {
		key     string
		payload []byte
	}
	var entries []entry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(journalBucket).ForEach(func(k, v []byte) error {
			entries = append(entries, entry{
				key:     string(k),
				payload: append([]byte(nil), v...),
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e.key, e.payload); err != nil {
			continue
		}
		if err := j.Clear(e.key); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of journaled entries.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(journalBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	return j.db.Close()
}
