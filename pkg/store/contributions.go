package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"

	"github.com/cockroachdb/pebble"
)

func contributionKey(docID, actorID string) []byte {
	return []byte("doc:" + docID + ":contrib:" + actorID)
}

// SaveContribution upserts one actor's slice of a shared document.
func SaveContribution(c models.Contribution) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal contribution: %w", err)
	}
	if err := db.Set(contributionKey(c.DocID, c.ActorID), data, pebble.Sync); err != nil {
		logger.Error("save_contribution_failed", "doc", c.DocID, "actor", c.ActorID, "error", err)
		return err
	}
	logger.Debug("contribution_saved", "doc", c.DocID, "actor", c.ActorID)
	return nil
}

// GetContribution returns one actor's contribution for a document.
func GetContribution(docID, actorID string) (models.Contribution, error) {
	var c models.Contribution
	if db == nil {
		return c, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get(contributionKey(docID, actorID))
	if err != nil {
		return c, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid contribution record: %w", err)
	}
	return c, nil
}

// ListContributions returns all contributions for a document ordered by
// join time, earliest first. Ties break on actor ID so the order is
// stable across reads.
func ListContributions(docID string) ([]models.Contribution, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("doc:" + docID + ":contrib:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Contribution
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var c models.Contribution
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].JoinedTS != out[j].JoinedTS {
			return out[i].JoinedTS < out[j].JoinedTS
		}
		return out[i].ActorID < out[j].ActorID
	})
	return out, nil
}
