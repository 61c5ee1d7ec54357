// Package progressor runs one-off upgrade work when the stored data
// version differs from the running binary version.
package progressor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

const (
	systemVersionKey    = "system:version"
	systemInProgressKey = "system:migration_in_progress"
)

// Sync performs upgrade work between versions. Edit in-place for migration logic.
func Sync(ctx context.Context, from, to string) error {
	logger.Info("progressor_sync_start", "from", from, "to", to)

	// Migration: rewrite resources whose board index entry is missing.
	// Records written before the board index existed are only reachable
	// by a full scan; SaveResource re-emits the index entry, so a rewrite
	// is idempotent and safe to run multiple times.
	keys, err := store.ListKeys("res:")
	if err != nil {
		logger.Error("progressor_list_resources_failed", "error", err)
		return err
	}
	for _, k := range keys {
		if !strings.HasSuffix(k, ":meta") {
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			logger.Error("progressor_read_resource_failed", "key", k, "error", err)
			continue
		}
		var r models.Resource
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			logger.Error("progressor_unmarshal_resource_failed", "key", k, "error", err)
			continue
		}
		if r.BoardID == "" {
			continue
		}
		indexed, err := store.GetKey("board:" + r.BoardID + ":res:" + r.ID)
		if err == nil && indexed != "" {
			continue
		}
		if err := store.SaveResource(r); err != nil {
			logger.Error("progressor_reindex_failed", "resource", r.ID, "error", err)
			continue
		}
		logger.Info("progressor_resource_reindexed", "resource", r.ID, "board", r.BoardID)
	}

	// Migration: backfill JoinedTS on contributions that predate join
	// ordering. UpdatedTS is the best available stand-in; merged views
	// only need a stable, non-zero ordering key.
	ckeys, err := store.ListKeys("doc:")
	if err != nil {
		logger.Error("progressor_list_contributions_failed", "error", err)
		return err
	}
	for _, k := range ckeys {
		if !strings.Contains(k, ":contrib:") {
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			continue
		}
		var c models.Contribution
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			logger.Error("progressor_unmarshal_contribution_failed", "key", k, "error", err)
			continue
		}
		if c.JoinedTS != 0 {
			continue
		}
		c.JoinedTS = c.UpdatedTS
		if c.JoinedTS == 0 {
			c.JoinedTS = time.Now().UTC().UnixNano()
		}
		if err := store.SaveContribution(c); err != nil {
			logger.Error("progressor_backfill_joined_failed", "key", k, "error", err)
			continue
		}
		logger.Info("progressor_contribution_joined_backfilled", "doc", c.DocID, "actor", c.ActorID)
	}

	logger.Info("progressor_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, newVersion string) (bool, error) {
	logger.Info("progressor_version_check", "stored", getStoredVersion(), "running", newVersion)

	stored, err := store.GetKey(systemVersionKey)
	if err != nil && err.Error() != "" {
		logger.Error("progressor_read_version_failed", "error", err)
	}
	if stored == newVersion {
		logger.Info("progressor_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := store.SaveKey(systemInProgressKey, mb); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, stored, newVersion); err != nil {
		logger.Error("progressor_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}
	logger.Info("progressor_sync_succeeded", "from", stored, "to", newVersion)

	if err := store.SaveKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("progressor_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}

	if err := store.DeleteKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}

	logger.Info("progressor_version_persisted", "version", newVersion)
	return true, nil
}

func getStoredVersion() string {
	v, _ := store.GetKey(systemVersionKey)
	return v
}
