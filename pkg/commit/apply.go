package commit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
	"boardsync/pkg/telemetry"
	"boardsync/pkg/validation"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotAuthorized marks writes rejected by the lock or ownership
	// checks. The pipeline is fire-and-forget so the error surfaces in
	// logs and counters, never to the submitting client.
	ErrNotAuthorized = errors.New("actor not authorized for this mutation")
)

// Applier drains the commit queue and applies mutations to the store
// with the server-authority checks: only the lock holder writes a
// locked shape, only the owner deletes. Run exactly one Applier worker
// per process so commits apply in capture order.
type Applier struct {
	// Publish, when set, receives every persisted event for fanout.
	Publish func(models.Event)
	// Locks, when set, serializes applies with the lock authority so a
	// commit read cannot interleave with a grant or release on the same
	// record. Leave nil only when no lock manager writes the store.
	Locks *lock.Manager
}

// Run drains q until stop closes or the queue is closed.
func (a *Applier) Run(q *Queue, stop <-chan struct{}) {
	q.RunWorker(stop, func(op *Op) error {
		telemetry.QueueDepthGauge.Set(float64(q.Len()))
		if err := a.Apply(op); err != nil {
			telemetry.CommitFailuresTotal.Inc()
			logger.Warn("commit_rejected", "type", op.Type, "resource", op.Resource, "actor", op.Actor, "error", err)
			return err
		}
		telemetry.CommitsTotal.Inc()
		return nil
	})
}

// Apply executes a single operation. Stale targets (resource deleted or
// missing) are a silent no-op; authorization failures return
// ErrNotAuthorized.
func (a *Applier) Apply(op *Op) error {
	if a.Locks != nil {
		return a.Locks.Sync(func() error { return a.apply(op) })
	}
	return a.apply(op)
}

func (a *Applier) apply(op *Op) error {
	switch op.Type {
	case OpUpdateShape:
		return a.applyUpdateShape(op)
	case OpDeleteResource:
		return a.applyDelete(op)
	case OpContribute:
		return a.applyContribute(op)
	default:
		return fmt.Errorf("unknown op type %q", op.Type)
	}
}

func (a *Applier) applyUpdateShape(op *Op) error {
	r, err := store.GetResource(op.Resource)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			// deleted mid-edit by another actor; drop silently
			logger.Debug("commit_stale_target", "resource", op.Resource)
			return nil
		}
		return err
	}
	if r.Deleted {
		logger.Debug("commit_stale_target", "resource", op.Resource)
		return nil
	}
	if r.Kind != models.KindOwnedLockable {
		return fmt.Errorf("resource %s does not take shape updates", op.Resource)
	}
	if r.Locked() && r.LockHolderID != op.Actor {
		return fmt.Errorf("%w: locked by %s", ErrNotAuthorized, r.LockHolderID)
	}

	var shape models.ShapePayload
	if err := json.Unmarshal(op.Payload, &shape); err != nil {
		return fmt.Errorf("invalid shape payload: %w", err)
	}
	if err := validation.ValidateShape(shape); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	r.Shape = &shape
	r.Version++
	r.UpdatedTS = opTS(op)
	if err := store.SaveResource(r); err != nil {
		return err
	}
	payload, _ := json.Marshal(r)
	a.emit(models.Event{
		Type:       models.EventResourceUpdated,
		BoardID:    r.BoardID,
		ResourceID: r.ID,
		ActorID:    op.Actor,
		Payload:    payload,
	})
	return nil
}

func (a *Applier) applyDelete(op *Op) error {
	r, err := store.GetResource(op.Resource)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return err
	}
	if r.Deleted {
		return nil
	}
	if r.OwnerID != op.Actor {
		return fmt.Errorf("%w: delete requires owner %s", ErrNotAuthorized, r.OwnerID)
	}
	r.Deleted = true
	r.DeletedTS = opTS(op)
	r.UpdatedTS = r.DeletedTS
	r.LockHolderID = ""
	r.LockAcquiredTS = 0
	if err := store.SaveResource(r); err != nil {
		return err
	}
	a.emit(models.Event{
		Type:       models.EventResourceDeleted,
		BoardID:    r.BoardID,
		ResourceID: r.ID,
		ActorID:    op.Actor,
	})
	return nil
}

// contributePayload is the wire shape for shared-document writes.
type contributePayload struct {
	ActorName string `json:"actor_name,omitempty"`
	Content   string `json:"content"`
}

func (a *Applier) applyContribute(op *Op) error {
	doc, err := store.GetResource(op.Resource)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil
		}
		return err
	}
	if doc.Deleted {
		return nil
	}
	if doc.Kind != models.KindSharedMergeable {
		return fmt.Errorf("resource %s does not take contributions", op.Resource)
	}

	var p contributePayload
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("invalid contribution payload: %w", err)
	}
	if err := validation.ValidateContribution(p.ActorName, p.Content); err != nil {
		return fmt.Errorf("invalid contribution: %w", err)
	}

	now := opTS(op)
	c, err := store.GetContribution(op.Resource, op.Actor)
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			return err
		}
		// first write fixes this actor's merge position
		c = models.Contribution{
			DocID:    op.Resource,
			ActorID:  op.Actor,
			JoinedTS: now,
		}
	}
	if p.ActorName != "" {
		c.ActorName = p.ActorName
	}
	c.Content = p.Content
	c.UpdatedTS = now
	if err := store.SaveContribution(c); err != nil {
		return err
	}
	payload, _ := json.Marshal(c)
	a.emit(models.Event{
		Type:       models.EventContributionUpdated,
		BoardID:    doc.BoardID,
		ResourceID: doc.ID,
		ActorID:    op.Actor,
		Payload:    payload,
	})
	return nil
}

func (a *Applier) emit(ev models.Event) {
	persisted, err := store.AppendEvent(ev)
	if err != nil {
		logger.Error("commit_event_append_failed", "type", ev.Type, "resource", ev.ResourceID, "error", err)
		return
	}
	if a.Publish != nil {
		a.Publish(persisted)
	}
}

func opTS(op *Op) int64 {
	if op.TS != 0 {
		return op.TS
	}
	return time.Now().UTC().UnixNano()
}
