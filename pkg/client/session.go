package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
)

// Mutation operation names understood by the server's commit queue.
const (
	OpAcquireLock    = "acquire_lock"
	OpReleaseLock    = "release_lock"
	OpUpdateShape    = "update_shape"
	OpDeleteResource = "delete_resource"
	OpContribute     = "contribute"
)

// MutationArgs is the argument envelope for every board mutation.
type MutationArgs struct {
	BoardID    string          `json:"board_id,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	DocID      string          `json:"doc_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	ActorName  string          `json:"actor_name,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Session coordinates one actor's editing activity against a board:
// lock bookkeeping, optimistic buffers, debounced commits and the
// teardown path that flushes pending work and releases held locks.
type Session struct {
	caps      Capabilities
	actorID   string
	actorName string

	buffers *Buffers
	sched   *Scheduler
	journal *Journal

	mu   sync.Mutex
	ops  map[string]string // scheduler key -> operation name
	held map[string][]byte // resource id -> last staged payload
}

// SessionOption tweaks Session construction.
type SessionOption func(*Session)

// WithJournal persists staged payloads to j so a crash inside the
// debounce window does not lose the last edit.
func WithJournal(j *Journal) SessionOption {
	return func(s *Session) { s.journal = j }
}

// NewSession builds a Session for actor using caps for all server
// traffic.
func NewSession(caps Capabilities, actorID, actorName string, opts ...SessionOption) *Session {
	s := &Session{
		caps:      caps,
		actorID:   actorID,
		actorName: actorName,
		buffers:   NewBuffers(),
		ops:       make(map[string]string),
		held:      make(map[string][]byte),
	}
	for _, o := range opts {
		o(s)
	}
	s.sched = NewScheduler(s.deliver)
	return s
}

// ActorID returns the actor this session edits as.
func (s *Session) ActorID() string { return s.actorID }

// Buffers exposes the optimistic buffer set for display code.
func (s *Session) Buffers() *Buffers { return s.buffers }

// CanEdit reports whether res accepts edits from this actor right now:
// unlocked, or locked by this actor. A false result means the edit is
// suppressed locally instead of being sent and rejected.
func (s *Session) CanEdit(res models.Resource) bool {
	return res.LockHolderID == "" || res.LockHolderID == s.actorID
}

// BeginDrag requests the lock on res and starts tracking it as held.
// Returns false without sending anything when another actor holds the
// lock; the caller renders the locked affordance instead.
func (s *Session) BeginDrag(ctx context.Context, res models.Resource) bool {
	if !s.CanEdit(res) {
		return false
	}
	s.mu.Lock()
	_, already := s.held[res.ID]
	if !already {
		s.held[res.ID] = nil
	}
	s.mu.Unlock()
	if already {
		return true
	}
	s.caps.Mutator.Mutate(ctx, OpAcquireLock, MutationArgs{
		BoardID:    res.BoardID,
		ResourceID: res.ID,
		ActorID:    s.actorID,
	})
	return true
}

// StageShape records shape as the in-flight payload for res and arms
// the debounced commit. Edits on resources locked by others are
// dropped before they reach the wire.
func (s *Session) StageShape(res models.Resource, shape models.ShapePayload, delay time.Duration) {
	if !s.CanEdit(res) {
		return
	}
	payload, err := json.Marshal(shape)
	if err != nil {
		logger.Error("stage_shape_marshal_failed", "resource", res.ID, "error", err.Error())
		return
	}
	s.mu.Lock()
	s.ops[res.ID] = OpUpdateShape
	if _, ok := s.held[res.ID]; ok {
		s.held[res.ID] = payload
	}
	s.mu.Unlock()
	s.buffers.Edit(res.ID, shape.Text, len([]rune(shape.Text)))
	s.record(res.ID, payload)
	s.sched.Arm(res.ID, payload, delay)
}

// StageContribution records this actor's fragment for docID and arms
// the debounced commit.
func (s *Session) StageContribution(docID, content string, cursor int, delay time.Duration) {
	payload, err := json.Marshal(struct {
		ActorName string `json:"actor_name,omitempty"`
		Content   string `json:"content"`
	}{ActorName: s.actorName, Content: content})
	if err != nil {
		logger.Error("stage_contribution_marshal_failed", "doc", docID, "error", err.Error())
		return
	}
	s.mu.Lock()
	s.ops[docID] = OpContribute
	s.mu.Unlock()
	s.buffers.Edit(docID, content, cursor)
	s.record(docID, payload)
	s.sched.Arm(docID, payload, delay)
}

// Delete asks the server to remove res. Non-owners are suppressed
// locally; the server enforces the same rule regardless.
func (s *Session) Delete(ctx context.Context, res models.Resource) bool {
	if res.Kind != models.KindOwnedLockable || res.OwnerID != s.actorID {
		return false
	}
	s.sched.Cancel(res.ID)
	s.caps.Mutator.Mutate(ctx, OpDeleteResource, MutationArgs{
		BoardID:    res.BoardID,
		ResourceID: res.ID,
		ActorID:    s.actorID,
	})
	return true
}

// ApplyRemote folds a remote text value for key into the local buffer,
// preserving unsent keystrokes and re-deriving the caret.
func (s *Session) ApplyRemote(key, remote string) BufferState {
	buf, ok := s.buffers.Get(key)
	next := Reconcile(buf, ok, remote)
	s.buffers.Replace(key, next)
	return next
}

// EndDrag flushes any pending commit for res and releases its lock,
// carrying the last staged payload so the final position lands with
// the release.
func (s *Session) EndDrag(ctx context.Context, resID string) {
	s.sched.Cancel(resID)
	s.mu.Lock()
	payload, held := s.held[resID]
	delete(s.held, resID)
	s.mu.Unlock()
	if !held {
		return
	}
	s.clear(resID)
	s.buffers.MarkCommitted(resID)
	s.caps.Mutator.Mutate(ctx, OpReleaseLock, MutationArgs{
		ResourceID: resID,
		ActorID:    s.actorID,
		Payload:    payload,
	})
}

// Teardown is the leave-the-board path: every pending debounced commit
// fires immediately and every held lock is released with its last
// payload. Best-effort; failures are logged by the transport, never
// surfaced.
func (s *Session) Teardown(ctx context.Context) {
	s.sched.Close()
	s.mu.Lock()
	held := make(map[string][]byte, len(s.held))
	for id, p := range s.held {
		held[id] = p
	}
	s.held = make(map[string][]byte)
	s.mu.Unlock()
	for id, payload := range held {
		s.clear(id)
		s.caps.Mutator.Mutate(ctx, OpReleaseLock, MutationArgs{
			ResourceID: id,
			ActorID:    s.actorID,
			Payload:    payload,
		})
	}
}

// ReplayJournal resubmits payloads that survived a crash before their
// debounce window fired.
func (s *Session) ReplayJournal(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Replay(func(key string, payload []byte) error {
		op := s.opFor(key)
		if op == "" && strings.HasPrefix(key, "doc_") {
			// After a restart the op map is empty; doc keys are the
			// only contribute targets.
			op = OpContribute
		}
		s.deliverOp(ctx, key, op, payload)
		return nil
	})
}

// deliver is the scheduler's commit callback.
func (s *Session) deliver(key string, payload []byte) {
	s.clear(key)
	s.buffers.MarkCommitted(key)
	s.deliverOp(context.Background(), key, s.opFor(key), payload)
}

func (s *Session) deliverOp(ctx context.Context, key, op string, payload []byte) {
	args := MutationArgs{ActorID: s.actorID, Payload: payload}
	switch op {
	case OpContribute:
		args.DocID = key
		args.ActorName = s.actorName
	default:
		op = OpUpdateShape
		args.ResourceID = key
	}
	s.caps.Mutator.Mutate(ctx, op, args)
}

func (s *Session) opFor(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops[key]
}

func (s *Session) record(key string, payload []byte) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(key, payload); err != nil {
		logger.Warn("journal_record_failed", "key", key, "error", err.Error())
	}
}

func (s *Session) clear(key string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Clear(key); err != nil {
		logger.Warn("journal_clear_failed", "key", key, "error", err.Error())
	}
}
