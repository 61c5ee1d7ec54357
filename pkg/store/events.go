package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"

	"github.com/cockroachdb/pebble"
)

// Per-board sequence state. Seq values are derived from wall-clock
// nanoseconds and bumped under the mutex so they stay strictly
// increasing within a process even when the clock stalls.
var (
	seqMu   sync.Mutex
	lastSeq = map[string]uint64{}
)

func nextSeq(boardID string) uint64 {
	seqMu.Lock()
	defer seqMu.Unlock()
	s := uint64(time.Now().UTC().UnixNano())
	if s <= lastSeq[boardID] {
		s = lastSeq[boardID] + 1
	}
	lastSeq[boardID] = s
	return s
}

func eventKey(boardID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("board:%s:event:%020d", boardID, seq))
}

// AppendEvent assigns the event its sequence number, persists it to the
// board event log and returns the completed record.
func AppendEvent(ev models.Event) (models.Event, error) {
	if db == nil {
		return ev, fmt.Errorf("pebble not opened; call store.Open first")
	}
	ev.Seq = nextSeq(ev.BoardID)
	if ev.TS == 0 {
		ev.TS = time.Now().UTC().UnixNano()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := db.Set(eventKey(ev.BoardID, ev.Seq), data, pebble.Sync); err != nil {
		logger.Error("append_event_failed", "board", ev.BoardID, "type", ev.Type, "error", err)
		return ev, err
	}
	return ev, nil
}

// ListEventsSince returns events on a board with Seq strictly greater
// than since, oldest first, at most limit entries (0 means no cap).
func ListEventsSince(boardID string, since uint64, limit int) ([]models.Event, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("board:" + boardID + ":event:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	start := eventKey(boardID, since+1)
	var out []models.Event
	for iter.SeekGE(start); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var ev models.Event
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}
