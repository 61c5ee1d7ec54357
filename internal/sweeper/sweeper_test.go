package sweeper

import (
	"testing"
	"time"

	"boardsync/pkg/config"
	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

func openTestDB(t *testing.T) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func seedLocked(t *testing.T, id, holder string, acquiredAt time.Time) {
	t.Helper()
	err := store.SaveResource(models.Resource{
		ID:             id,
		BoardID:        "brd_1",
		Kind:           models.KindOwnedLockable,
		OwnerID:        holder,
		LockHolderID:   holder,
		LockAcquiredTS: acquiredAt.UnixNano(),
		Version:        1,
	})
	if err != nil {
		t.Fatalf("seed resource: %v", err)
	}
}

func TestSweepReleasesExpiredLeasesOnly(t *testing.T) {
	openTestDB(t)
	now := time.Now().UTC()
	seedLocked(t, "res_stale", "ghost", now.Add(-2*time.Minute))
	seedLocked(t, "res_fresh", "alice", now.Add(-5*time.Second))

	s := New(lock.NewManager(), config.LocksConfig{Lease: config.Duration(30 * time.Second)})
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("released %d locks, want 1", n)
	}
	stale, _ := store.GetResource("res_stale")
	if stale.LockHolderID != "" {
		t.Fatalf("expired lease not released: %+v", stale)
	}
	fresh, _ := store.GetResource("res_fresh")
	if fresh.LockHolderID != "alice" {
		t.Fatalf("fresh lease released: %+v", fresh)
	}
}

func TestSweepDryRunLeavesLocks(t *testing.T) {
	openTestDB(t)
	now := time.Now().UTC()
	seedLocked(t, "res_stale", "ghost", now.Add(-2*time.Minute))

	s := New(lock.NewManager(), config.LocksConfig{
		Lease:  config.Duration(30 * time.Second),
		DryRun: true,
	})
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce()
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("dry run reported %d, want 1", n)
	}
	r, _ := store.GetResource("res_stale")
	if r.LockHolderID != "ghost" {
		t.Fatalf("dry run released a lock: %+v", r)
	}
}
