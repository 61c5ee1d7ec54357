package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

var (
	// ErrNotLockable is returned when a lock operation targets a
	// shared mergeable resource.
	ErrNotLockable = errors.New("resource is not lockable")
	// ErrGone is returned when the target resource is deleted.
	ErrGone = errors.New("resource is deleted")
)

// HeldError reports a denied acquire along with the current holder so
// callers can surface who has the resource.
type HeldError struct {
	HeldBy string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("resource locked by %s", e.HeldBy)
}

// Manager is the single authority for exclusive locks. All grant and
// release decisions serialize through its mutex; the store has no
// transactions so the check-and-set must not interleave.
type Manager struct {
	mu sync.Mutex

	// Publish, when set, receives every persisted lock/resource event
	// for fanout. It is called while mu is held, so it must not call
	// back into the manager.
	Publish func(models.Event)

	now func() time.Time
}

// NewManager returns a Manager using wall-clock time.
func NewManager() *Manager {
	return &Manager{now: func() time.Time { return time.Now().UTC() }}
}

// NewManagerAt returns a Manager with an injected clock, for tests and
// the lease sweeper.
func NewManagerAt(now func() time.Time) *Manager {
	return &Manager{now: now}
}

// Acquire grants the exclusive lock on an owned lockable resource to
// actorID. Re-acquiring a lock already held by the same actor succeeds
// and renews the lease. Acquiring a lock held by another actor fails
// with *HeldError.
func (m *Manager) Acquire(resID, actorID string) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := store.GetResource(resID)
	if err != nil {
		return r, err
	}
	if r.Deleted {
		return r, ErrGone
	}
	if r.Kind != models.KindOwnedLockable {
		return r, ErrNotLockable
	}
	if r.LockHolderID != "" && r.LockHolderID != actorID {
		return r, &HeldError{HeldBy: r.LockHolderID}
	}

	renewal := r.LockHolderID == actorID
	r.LockHolderID = actorID
	r.LockAcquiredTS = m.now().UnixNano()
	if err := store.SaveResource(r); err != nil {
		return r, err
	}
	if !renewal {
		m.emit(models.Event{
			Type:       models.EventLockAcquired,
			BoardID:    r.BoardID,
			ResourceID: r.ID,
			ActorID:    actorID,
		})
		logger.Info("lock_acquired", "resource", r.ID, "actor", actorID)
		audit("lock_acquired", r.ID, actorID)
	}
	return r, nil
}

// Release gives up the lock held by actorID, optionally applying a
// final shape in the same step so no other actor can slip a write in
// between the last edit and the unlock. Releasing a lock the actor
// does not hold is a no-op, not an error.
func (m *Manager) Release(resID, actorID string, final *models.ShapePayload) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := store.GetResource(resID)
	if err != nil {
		return r, err
	}
	if r.LockHolderID != actorID {
		// stale client state; nothing to do
		logger.Debug("lock_release_noop", "resource", resID, "actor", actorID, "holder", r.LockHolderID)
		return r, nil
	}

	now := m.now().UnixNano()
	if final != nil {
		r.Shape = final
		r.Version++
		r.UpdatedTS = now
	}
	r.LockHolderID = ""
	r.LockAcquiredTS = 0
	if err := store.SaveResource(r); err != nil {
		return r, err
	}
	if final != nil {
		payload, _ := json.Marshal(r)
		m.emit(models.Event{
			Type:       models.EventResourceUpdated,
			BoardID:    r.BoardID,
			ResourceID: r.ID,
			ActorID:    actorID,
			Payload:    payload,
		})
	}
	m.emit(models.Event{
		Type:       models.EventLockReleased,
		BoardID:    r.BoardID,
		ResourceID: r.ID,
		ActorID:    actorID,
	})
	logger.Info("lock_released", "resource", r.ID, "actor", actorID, "final_payload", final != nil)
	audit("lock_released", r.ID, actorID)
	return r, nil
}

// ForceRelease clears a lock regardless of holder. The sweeper calls
// this when a lease expires; the released event carries the evicted
// holder so clients can tell a force release from their own.
func (m *Manager) ForceRelease(resID, reason string) (models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, err := store.GetResource(resID)
	if err != nil {
		return r, err
	}
	if r.LockHolderID == "" {
		return r, nil
	}
	evicted := r.LockHolderID
	r.LockHolderID = ""
	r.LockAcquiredTS = 0
	if err := store.SaveResource(r); err != nil {
		return r, err
	}
	m.emit(models.Event{
		Type:       models.EventLockReleased,
		BoardID:    r.BoardID,
		ResourceID: r.ID,
		ActorID:    evicted,
	})
	logger.Warn("lock_force_released", "resource", r.ID, "evicted", evicted, "reason", reason)
	audit("lock_force_released", r.ID, evicted)
	return r, nil
}

// Sync runs fn while the manager's mutex is held. The commit applier
// wraps each apply in Sync so its read-modify-write of a resource
// record cannot interleave with a concurrent grant or release and
// write a stale holder back. fn must not call back into the manager.
func (m *Manager) Sync(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// Holder returns the current lock holder for a resource, empty when
// unlocked.
func (m *Manager) Holder(resID string) (string, error) {
	r, err := store.GetResource(resID)
	if err != nil {
		return "", err
	}
	return r.LockHolderID, nil
}

func (m *Manager) emit(ev models.Event) {
	persisted, err := store.AppendEvent(ev)
	if err != nil {
		logger.Error("lock_event_append_failed", "type", ev.Type, "resource", ev.ResourceID, "error", err)
		return
	}
	if m.Publish != nil {
		m.Publish(persisted)
	}
}

func audit(event, resID, actorID string) {
	if logger.Audit == nil {
		return
	}
	logger.Audit.Info(event, "resource", resID, "actor", actorID)
}
