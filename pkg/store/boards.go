package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"

	"github.com/cockroachdb/pebble"
)

func boardMetaKey(boardID string) []byte {
	return []byte("board:" + boardID + ":meta")
}

// SaveBoard stores board metadata under a reserved key.
func SaveBoard(b models.Board) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal board: %w", err)
	}
	if err := db.Set(boardMetaKey(b.ID), data, pebble.Sync); err != nil {
		logger.Error("save_board_failed", "board", b.ID, "error", err)
		return err
	}
	logger.Info("board_saved", "board", b.ID)
	return nil
}

// GetBoard returns the stored board for a given board ID.
func GetBoard(boardID string) (models.Board, error) {
	var b models.Board
	if db == nil {
		return b, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(boardMetaKey(boardID))
	if err != nil {
		return b, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &b); err != nil {
		return b, fmt.Errorf("invalid board metadata: %w", err)
	}
	return b, nil
}

// SoftDeleteBoard marks the board as deleted; resources remain readable
// so subscribers can drain tombstones.
func SoftDeleteBoard(boardID string) error {
	b, err := GetBoard(boardID)
	if err != nil {
		return err
	}
	b.Deleted = true
	b.DeletedTS = time.Now().UTC().UnixNano()
	b.UpdatedTS = b.DeletedTS
	return SaveBoard(b)
}

// ListBoards returns all saved boards.
func ListBoards() ([]models.Board, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("board:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Board
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !strings.HasSuffix(string(iter.Key()), ":meta") {
			continue
		}
		var b models.Board
		if err := json.Unmarshal(iter.Value(), &b); err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, iter.Error()
}
