package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"

	"github.com/cockroachdb/pebble"
)

func resourceMetaKey(resID string) []byte {
	return []byte("res:" + resID + ":meta")
}

func boardResourceIndexKey(boardID, resID string) []byte {
	return []byte("board:" + boardID + ":res:" + resID)
}

// SaveResource writes the canonical resource record and maintains the
// board index entry so board listings do not scan the whole keyspace.
func SaveResource(r models.Resource) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}
	if err := db.Set(resourceMetaKey(r.ID), data, pebble.Sync); err != nil {
		logger.Error("save_resource_failed", "resource", r.ID, "error", err)
		return err
	}
	if r.BoardID != "" {
		if err := db.Set(boardResourceIndexKey(r.BoardID, r.ID), []byte(r.ID), pebble.Sync); err != nil {
			logger.Error("save_resource_index_failed", "resource", r.ID, "board", r.BoardID, "error", err)
			return err
		}
	}
	logger.Debug("resource_saved", "resource", r.ID, "version", r.Version)
	return nil
}

// GetResource returns the canonical resource record for the given ID.
func GetResource(resID string) (models.Resource, error) {
	var r models.Resource
	if db == nil {
		return r, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(resourceMetaKey(resID))
	if err != nil {
		return r, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &r); err != nil {
		return r, fmt.Errorf("invalid resource record: %w", err)
	}
	return r, nil
}

// ListBoardResources returns all resources on a board, tombstones
// included; callers filter deleted entries when they do not want them.
func ListBoardResources(boardID string) ([]models.Resource, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("board:" + boardID + ":res:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Resource
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		r, err := GetResource(string(iter.Value()))
		if err != nil {
			// index entry pointing at a missing record; skip it
			continue
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// ListLockedResources returns all resources currently holding a lock.
// The sweeper uses this to find expired leases.
func ListLockedResources() ([]models.Resource, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("res:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Resource
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var r models.Resource
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		if r.Locked() && !r.Deleted {
			out = append(out, r)
		}
	}
	return out, iter.Error()
}
