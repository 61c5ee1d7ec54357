package lock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

func setup(t *testing.T) *Manager {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewManager()
}

func seedResource(t *testing.T, id string, kind models.ResourceKind) {
	t.Helper()
	r := models.Resource{
		ID:      id,
		BoardID: "brd_1",
		Kind:    kind,
		OwnerID: "owner",
		Version: 1,
		Shape:   &models.ShapePayload{X: 1, Y: 2, W: 3, H: 4},
	}
	if err := store.SaveResource(r); err != nil {
		t.Fatalf("seed resource: %v", err)
	}
}

func TestAcquireGrantsAndDenies(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	if _, err := m.Acquire("res_1", "amy"); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}
	_, err := m.Acquire("res_1", "bob")
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("second actor should be denied with HeldError, got %v", err)
	}
	if held.HeldBy != "amy" {
		t.Fatalf("denial should name the holder, got %q", held.HeldBy)
	}
}

func TestAcquireIdempotentForHolder(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	if _, err := m.Acquire("res_1", "amy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r, err := m.Acquire("res_1", "amy")
	if err != nil {
		t.Fatalf("re-acquire by holder must succeed: %v", err)
	}
	if r.LockHolderID != "amy" {
		t.Fatalf("holder changed on re-acquire: %q", r.LockHolderID)
	}
}

func TestAtMostOneHolderUnderContention(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	const actors = 32
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < actors; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := m.Acquire("res_1", string(rune('a'+n))); err == nil {
				atomic.AddInt64(&granted, 1)
			}
		}(i)
	}
	wg.Wait()
	if granted != 1 {
		t.Fatalf("expected exactly one grant, got %d", granted)
	}
	holder, err := m.Holder("res_1")
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder == "" {
		t.Fatalf("a holder should remain set")
	}
}

func TestReleaseByNonHolderIsNoop(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	if _, err := m.Acquire("res_1", "amy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r, err := m.Release("res_1", "bob", &models.ShapePayload{X: 99})
	if err != nil {
		t.Fatalf("non-holder release must not error: %v", err)
	}
	if r.LockHolderID != "amy" {
		t.Fatalf("lock should still be held by amy, got %q", r.LockHolderID)
	}
	if r.Shape.X == 99 {
		t.Fatalf("non-holder final payload must not be applied")
	}
}

func TestReleaseAppliesFinalPayloadAtomically(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	if _, err := m.Acquire("res_1", "amy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	final := &models.ShapePayload{X: 7, Y: 8, W: 9, H: 10, Text: "done"}
	r, err := m.Release("res_1", "amy", final)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if r.LockHolderID != "" {
		t.Fatalf("lock should be clear after release")
	}
	if r.Shape == nil || r.Shape.Text != "done" {
		t.Fatalf("final payload not applied: %+v", r.Shape)
	}
	if r.Version != 2 {
		t.Fatalf("final payload should bump version, got %d", r.Version)
	}

	stored, err := store.GetResource("res_1")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if stored.LockHolderID != "" || stored.Shape.Text != "done" {
		t.Fatalf("unlock and payload must persist together: %+v", stored)
	}
}

func TestAcquireOnMergeableRejected(t *testing.T) {
	m := setup(t)
	seedResource(t, "doc_1", models.KindSharedMergeable)

	if _, err := m.Acquire("doc_1", "amy"); !errors.Is(err, ErrNotLockable) {
		t.Fatalf("expected ErrNotLockable, got %v", err)
	}
}

func TestForceReleaseEvictsHolder(t *testing.T) {
	m := setup(t)
	seedResource(t, "res_1", models.KindOwnedLockable)

	if _, err := m.Acquire("res_1", "amy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	var events []models.Event
	m.Publish = func(ev models.Event) { events = append(events, ev) }
	r, err := m.ForceRelease("res_1", "lease expired")
	if err != nil {
		t.Fatalf("force release: %v", err)
	}
	if r.LockHolderID != "" {
		t.Fatalf("lock should be clear after force release")
	}
	if len(events) != 1 || events[0].Type != models.EventLockReleased || events[0].ActorID != "amy" {
		t.Fatalf("released event should carry the evicted holder, got %+v", events)
	}
}

func TestLeaseTimestampSetOnAcquire(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	m := NewManagerAt(func() time.Time { return fixed })
	seedResource(t, "res_1", models.KindOwnedLockable)

	r, err := m.Acquire("res_1", "amy")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if r.LockAcquiredTS != fixed.UnixNano() {
		t.Fatalf("lease timestamp should come from the injected clock")
	}
}
