package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"boardsync/pkg/commit"
	"boardsync/pkg/hub"
	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
)

type testEnv struct {
	ts *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := hub.New(hub.DefaultSendBuffer)
	locks := lock.NewManager()
	locks.Publish = h.Broadcast
	q := commit.NewQueue(128)
	stop := make(chan struct{})
	done := make(chan struct{})
	applier := &commit.Applier{Publish: h.Broadcast, Locks: locks}
	go func() {
		defer close(done)
		applier.Run(q, stop)
	}()
	// Wait for the worker to exit before later cleanups close the store;
	// otherwise an in-flight apply races store.Close.
	t.Cleanup(func() {
		close(stop)
		<-done
	})

	srv := New(locks, h, q, 100)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts}
}

// do issues a request as a trusted backend caller acting on behalf of
// actor, the same shape the auth gateway produces.
func (e *testEnv) do(t *testing.T, method, path, actor string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role-Name", "backend")
	req.Header.Set("X-Actor-ID", actor)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) newBoard(t *testing.T, owner string) models.Board {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/boards", owner, map[string]string{"title": "test board"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create board: status %d", resp.StatusCode)
	}
	var b models.Board
	decodeInto(t, resp, &b)
	return b
}

func (e *testEnv) newResource(t *testing.T, boardID, owner string, kind models.ResourceKind) models.Resource {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/v1/boards/"+boardID+"/resources", owner,
		map[string]any{"kind": kind, "shape": map[string]any{"x": 1, "y": 2, "w": 10, "h": 10}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create resource: status %d", resp.StatusCode)
	}
	var res models.Resource
	decodeInto(t, resp, &res)
	return res
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewWithoutQueueUsesPackageDefault(t *testing.T) {
	srv := New(lock.NewManager(), nil, nil, 0)
	if srv.Queue != commit.DefaultQueue {
		t.Fatalf("nil queue must fall back to commit.DefaultQueue")
	}
	if srv.ReplayLimit != 1000 {
		t.Fatalf("zero replay limit must default to 1000, got %d", srv.ReplayLimit)
	}
}

func TestBoardAndResourceLifecycle(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	if b.Owner != "alice" || !strings.HasPrefix(b.ID, "brd_") {
		t.Fatalf("unexpected board %+v", b)
	}
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)
	if res.OwnerID != "alice" || res.Version != 1 {
		t.Fatalf("unexpected resource %+v", res)
	}

	resp := e.do(t, http.MethodGet, "/v1/boards/"+b.ID+"/resources", "alice", nil)
	var listed struct {
		Resources []models.Resource `json:"resources"`
	}
	decodeInto(t, resp, &listed)
	if len(listed.Resources) != 1 || listed.Resources[0].ID != res.ID {
		t.Fatalf("list returned %+v", listed.Resources)
	}
}

func TestLockConflictReturnsHolder(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)

	resp := e.do(t, http.MethodPost, "/v1/resources/"+res.ID+"/lock", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alice acquire: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodPost, "/v1/resources/"+res.ID+"/lock", "bob", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("bob acquire: status %d, want 409", resp.StatusCode)
	}
	var denial struct {
		HeldBy string `json:"held_by"`
	}
	decodeInto(t, resp, &denial)
	if denial.HeldBy != "alice" {
		t.Fatalf("held_by = %q, want alice", denial.HeldBy)
	}
}

func TestReleaseWithFinalPayload(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)

	resp := e.do(t, http.MethodPost, "/v1/resources/"+res.ID+"/lock", "alice", nil)
	resp.Body.Close()

	resp = e.do(t, http.MethodDelete, "/v1/resources/"+res.ID+"/lock", "alice",
		map[string]any{"x": 50, "y": 60, "w": 10, "h": 10})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release: status %d", resp.StatusCode)
	}
	var released models.Resource
	decodeInto(t, resp, &released)
	if released.LockHolderID != "" {
		t.Fatalf("lock not cleared: %+v", released)
	}
	if released.Version != 2 || released.Shape == nil || released.Shape.X != 50 {
		t.Fatalf("final payload not applied: %+v", released)
	}
}

func TestDeleteResourceOwnerOnly(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)

	// Non-owner delete is accepted into the pipeline but never applied.
	resp := e.do(t, http.MethodDelete, "/v1/resources/"+res.ID, "bob", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("bob delete: status %d", resp.StatusCode)
	}
	resp.Body.Close()
	time.Sleep(100 * time.Millisecond)
	got, err := store.GetResource(res.ID)
	if err != nil || got.Deleted {
		t.Fatalf("non-owner delete removed the resource: %+v err=%v", got, err)
	}

	resp = e.do(t, http.MethodDelete, "/v1/resources/"+res.ID, "alice", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("alice delete: status %d", resp.StatusCode)
	}
	resp.Body.Close()
	waitFor(t, "owner delete to apply", func() bool {
		got, err := store.GetResource(res.ID)
		return err == nil && got.Deleted
	})

	resp = e.do(t, http.MethodGet, "/v1/resources/"+res.ID, "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted resource still served: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCommitAppliedThroughQueue(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)

	resp := e.do(t, http.MethodPost, "/v1/resources/"+res.ID+"/commit", "alice",
		map[string]any{"x": 99, "y": 2, "w": 10, "h": 10})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("commit: status %d", resp.StatusCode)
	}
	resp.Body.Close()
	waitFor(t, "commit to apply", func() bool {
		got, err := store.GetResource(res.ID)
		return err == nil && got.Version == 2 && got.Shape != nil && got.Shape.X == 99
	})
}

func TestContributionsAndMergedViews(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	doc := e.newResource(t, b.ID, "alice", models.KindSharedMergeable)

	put := func(actor, name, content string) {
		resp := e.do(t, http.MethodPut, "/v1/docs/"+doc.ID+"/contributions", actor,
			map[string]string{"actor_name": name, "content": content})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("put contribution: status %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
	put("a1", "A", "")
	put("b1", "B", "hi")
	put("c1", "C", " ")
	waitFor(t, "contributions to apply", func() bool {
		cs, err := store.ListContributions(doc.ID)
		return err == nil && len(cs) == 3
	})

	var labeled struct {
		Text         string `json:"text"`
		Contributors int    `json:"contributors"`
	}
	decodeInto(t, e.do(t, http.MethodGet, "/v1/docs/"+doc.ID+"/merged?view=labeled", "a1", nil), &labeled)
	if labeled.Text != "[B]: hi" || labeled.Contributors != 1 {
		t.Fatalf("labeled view %+v", labeled)
	}

	var plain struct {
		Text string `json:"text"`
	}
	decodeInto(t, e.do(t, http.MethodGet, "/v1/docs/"+doc.ID+"/merged?view=plain", "a1", nil), &plain)
	if plain.Text != "hi" {
		t.Fatalf("plain view %q", plain.Text)
	}

	var zone struct {
		Display  string `json:"display"`
		Boundary int    `json:"boundary"`
	}
	decodeInto(t, e.do(t, http.MethodGet, "/v1/docs/"+doc.ID+"/merged?view=zone&actor=b1", "b1", nil), &zone)
	if zone.Display != "hi" || zone.Boundary != 2 {
		t.Fatalf("zone view %+v", zone)
	}
}

func TestSubscribeReplaysAndStreams(t *testing.T) {
	e := newTestEnv(t)
	b := e.newBoard(t, "alice")
	res := e.newResource(t, b.ID, "alice", models.KindOwnedLockable)

	// Generate one event before connecting.
	resp := e.do(t, http.MethodPost, "/v1/resources/"+res.ID+"/lock", "alice", nil)
	resp.Body.Close()

	wsURL := strings.Replace(e.ts.URL, "http://", "ws://", 1) + "/v1/boards/" + b.ID + "/subscribe?since=0"
	hdr := http.Header{}
	hdr.Set("X-Role-Name", "backend")
	hdr.Set("X-Actor-ID", "watcher")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Replay covers the creation event and the lock acquisition, in
	// sequence order.
	var ev models.Event
	for _, wantType := range []string{models.EventResourceUpdated, models.EventLockAcquired} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read replayed event: %v", err)
		}
		prev := ev.Seq
		ev = models.Event{}
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != wantType || ev.ResourceID != res.ID {
			t.Fatalf("unexpected replayed event %+v, want type %s", ev, wantType)
		}
		if ev.Seq <= prev {
			t.Fatalf("replay out of order: seq %d after %d", ev.Seq, prev)
		}
	}

	// A live event after attach must arrive with a higher sequence.
	resp = e.do(t, http.MethodDelete, "/v1/resources/"+res.ID+"/lock", "alice", nil)
	resp.Body.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live event: %v", err)
	}
	var live models.Event
	if err := json.Unmarshal(msg, &live); err != nil {
		t.Fatalf("decode live event: %v", err)
	}
	if live.Type != models.EventLockReleased || live.Seq <= ev.Seq {
		t.Fatalf("live event out of order: %+v after %+v", live, ev)
	}
}
