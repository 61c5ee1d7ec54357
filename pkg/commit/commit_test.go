package commit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

func setup(t *testing.T) *Applier {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &Applier{}
}

func seed(t *testing.T, id string, kind models.ResourceKind, owner, holder string) {
	t.Helper()
	r := models.Resource{
		ID: id, BoardID: "brd_1", Kind: kind, OwnerID: owner,
		LockHolderID: holder, Version: 1,
		Shape: &models.ShapePayload{X: 1, Y: 1, W: 10, H: 10},
	}
	if holder != "" {
		r.LockAcquiredTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveResource(r); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func shapeOp(resID, actor string, shape models.ShapePayload) *Op {
	payload, _ := json.Marshal(shape)
	return &Op{Type: OpUpdateShape, Resource: resID, Board: "brd_1", Actor: actor, Payload: payload, TS: time.Now().UTC().UnixNano()}
}

func TestHolderShapeUpdateApplies(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "amy")

	if err := a.Apply(shapeOp("res_1", "amy", models.ShapePayload{X: 50, Y: 60, W: 10, H: 10})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	r, err := store.GetResource("res_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Shape.X != 50 || r.Version != 2 {
		t.Fatalf("update not applied: %+v", r)
	}
}

func TestNonHolderShapeUpdateRejected(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "amy")

	err := a.Apply(shapeOp("res_1", "bob", models.ShapePayload{X: 99}))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	r, _ := store.GetResource("res_1")
	if r.Shape.X == 99 || r.Version != 1 {
		t.Fatalf("rejected update must not change the resource: %+v", r)
	}
}

func TestUnlockedShapeUpdateAllowed(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "")

	if err := a.Apply(shapeOp("res_1", "bob", models.ShapePayload{X: 5})); err != nil {
		t.Fatalf("unlocked update should apply last-writer-wins: %v", err)
	}
}

func TestDeleteByNonOwnerRejected(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "")

	err := a.Apply(&Op{Type: OpDeleteResource, Resource: "res_1", Actor: "bob"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	r, _ := store.GetResource("res_1")
	if r.Deleted {
		t.Fatalf("non-owner delete must never remove the resource")
	}
}

func TestDeleteByOwnerTombstones(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "amy")

	var events []models.Event
	a.Publish = func(ev models.Event) { events = append(events, ev) }
	if err := a.Apply(&Op{Type: OpDeleteResource, Resource: "res_1", Actor: "amy"}); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	r, _ := store.GetResource("res_1")
	if !r.Deleted || r.LockHolderID != "" {
		t.Fatalf("delete should tombstone and clear the lock: %+v", r)
	}
	if len(events) != 1 || events[0].Type != models.EventResourceDeleted {
		t.Fatalf("expected a deleted event, got %+v", events)
	}
}

func TestStaleTargetIsNoop(t *testing.T) {
	a := setup(t)
	if err := a.Apply(shapeOp("res_missing", "amy", models.ShapePayload{X: 1})); err != nil {
		t.Fatalf("missing resource must be a silent no-op, got %v", err)
	}
}

func TestContributeFixesJoinOrderOnFirstWrite(t *testing.T) {
	a := setup(t)
	seed(t, "doc_1", models.KindSharedMergeable, "", "")

	first, _ := json.Marshal(contributePayload{ActorName: "Amy", Content: "hello"})
	if err := a.Apply(&Op{Type: OpContribute, Resource: "doc_1", Actor: "amy", Payload: first, TS: 100}); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	update, _ := json.Marshal(contributePayload{Content: "hello again"})
	if err := a.Apply(&Op{Type: OpContribute, Resource: "doc_1", Actor: "amy", Payload: update, TS: 200}); err != nil {
		t.Fatalf("contribute update: %v", err)
	}
	c, err := store.GetContribution("doc_1", "amy")
	if err != nil {
		t.Fatalf("get contribution: %v", err)
	}
	if c.JoinedTS != 100 {
		t.Fatalf("join timestamp must be fixed by the first write, got %d", c.JoinedTS)
	}
	if c.Content != "hello again" || c.ActorName != "Amy" {
		t.Fatalf("unexpected contribution: %+v", c)
	}
}

func TestApplySerializesWithLockAuthority(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "")
	locks := lock.NewManager()
	a.Locks = locks

	// hold the lock authority's mutex and verify the apply cannot run
	// until it is released
	inside := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_ = locks.Sync(func() error {
			close(inside)
			<-unblock
			return nil
		})
	}()
	<-inside

	done := make(chan struct{})
	go func() {
		if err := a.Apply(shapeOp("res_1", "amy", models.ShapePayload{X: 7})); err != nil {
			t.Errorf("apply: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("apply must not interleave with a lock transition")
	case <-time.After(50 * time.Millisecond):
	}

	close(unblock)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("apply never ran after the authority released the mutex")
	}
	r, _ := store.GetResource("res_1")
	if r.Shape.X != 7 {
		t.Fatalf("apply lost after serialization: %+v", r)
	}
}

func TestApplyCannotEraseConcurrentGrant(t *testing.T) {
	a := setup(t)
	seed(t, "res_1", models.KindOwnedLockable, "amy", "")
	locks := lock.NewManager()
	a.Locks = locks

	// an unlocked-window commit and a grant land in either order; the
	// grant must survive and the record must never hold a stale holder
	if err := a.Apply(shapeOp("res_1", "bob", models.ShapePayload{X: 5})); err != nil {
		t.Fatalf("unlocked apply: %v", err)
	}
	if _, err := locks.Acquire("res_1", "bob"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	r, err := store.GetResource("res_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.LockHolderID != "bob" {
		t.Fatalf("grant erased, holder %q", r.LockHolderID)
	}
	if r.Shape.X != 5 {
		t.Fatalf("commit lost, shape %+v", r.Shape)
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	logger.Init()
	q := NewQueue(16)
	for i := 0; i < 5; i++ {
		shape, _ := json.Marshal(models.ShapePayload{X: float64(i)})
		if err := q.TryEnqueue(&Op{Type: OpUpdateShape, Resource: "res_1", Actor: "amy", Payload: shape, TS: int64(i)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	var lastSeq uint64
	var lastTS int64 = -1
	for i := 0; i < 5; i++ {
		it := <-q.Out()
		if it.Op.EnqSeq <= lastSeq {
			t.Fatalf("enqueue sequence must be monotonic")
		}
		if it.Op.TS <= lastTS {
			t.Fatalf("ops must dequeue in capture order")
		}
		lastSeq = it.Op.EnqSeq
		lastTS = it.Op.TS
		it.Done()
	}
}

func TestQueueSheddingRejectsNewWork(t *testing.T) {
	q := NewQueue(16)
	SetShedding(true)
	defer SetShedding(false)

	if err := q.TryEnqueue(&Op{Type: OpUpdateShape, Resource: "a"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("shedding queue must reject, got %v", err)
	}
	SetShedding(false)
	if err := q.TryEnqueue(&Op{Type: OpUpdateShape, Resource: "a"}); err != nil {
		t.Fatalf("enqueue after shedding cleared: %v", err)
	}
}

func TestQueueFullReturnsError(t *testing.T) {
	q := NewQueue(1)
	if err := q.TryEnqueue(&Op{Type: OpUpdateShape, Resource: "a"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := q.TryEnqueue(&Op{Type: OpUpdateShape, Resource: "b"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("dropped counter should record the rejection")
	}
}
