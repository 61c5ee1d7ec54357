package client

import (
	"sync"
	"time"
)

// DefaultQuiescence is the debounce window used when a Scheduler is
// built with no explicit delay.
const DefaultQuiescence = 400 * time.Millisecond

type pendingCommit struct {
	timer   *time.Timer
	payload []byte
	// due marks a payload whose window expired while a commit for the
	// same key was still outstanding; it fires the moment that commit
	// returns.
	due bool
}

// Scheduler coalesces rapid edits into single commits. It owns at most
// one pending timer per resource key; arming a key that already has a
// timer replaces the payload and restarts the window, so a burst of N
// edits inside the window yields exactly one commit carrying the last
// payload. Commits for one key never overlap: a payload that comes due
// while a commit is outstanding waits and fires with zero delay when
// the outstanding commit returns.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*pendingCommit
	inflight map[string]bool
	commit   func(key string, payload []byte)
	closed   bool
}

// NewScheduler returns a Scheduler delivering coalesced payloads to
// commit. The commit callback runs on a timer goroutine; it must not
// call back into the scheduler under its own locks.
func NewScheduler(commit func(key string, payload []byte)) *Scheduler {
	return &Scheduler{
		pending:  make(map[string]*pendingCommit),
		inflight: make(map[string]bool),
		commit:   commit,
	}
}

// Arm schedules payload for key after delay, replacing any pending
// commit for the same key. A non-positive delay uses the default
// quiescence window.
func (s *Scheduler) Arm(key string, payload []byte, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultQuiescence
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if p, ok := s.pending[key]; ok {
		p.payload = append(p.payload[:0], payload...)
		p.due = false
		p.timer.Reset(delay)
		return
	}
	p := &pendingCommit{payload: append([]byte(nil), payload...)}
	p.timer = time.AfterFunc(delay, func() { s.fire(key) })
	s.pending[key] = p
}

// Cancel drops any pending commit for key without firing it.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[key]; ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
}

// FlushAll fires every pending commit immediately and stops the
// timers. Call on teardown so the last captured payload is committed
// rather than dropped. A key whose commit is still outstanding keeps
// its payload queued; the outstanding commit delivers it on return.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for k, p := range s.pending {
		p.timer.Stop()
		keys = append(keys, k)
	}
	for _, k := range keys {
		s.runDue(k)
	}
	s.mu.Unlock()
}

// Close flushes pending commits and refuses further arms.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.FlushAll()
}

// Pending reports whether key has an armed commit.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *Scheduler) fire(key string) {
	s.mu.Lock()
	s.runDue(key)
	s.mu.Unlock()
}

// runDue commits the pending payload for key. If a commit for key is
// already outstanding the payload is marked due instead and delivered
// when that commit returns, so per-key commits never overlap and stay
// in capture order. Caller holds mu; runDue drops and reacquires it
// around the commit callback.
func (s *Scheduler) runDue(key string) {
	p, ok := s.pending[key]
	if !ok {
		return
	}
	if s.inflight[key] {
		p.due = true
		return
	}
	s.inflight[key] = true
	for ok {
		delete(s.pending, key)
		payload := p.payload
		s.mu.Unlock()
		s.commit(key, payload)
		s.mu.Lock()
		p, ok = s.pending[key]
		if ok && !p.due {
			// re-armed with a fresh window; its own timer fires it
			break
		}
	}
	delete(s.inflight, key)
}
