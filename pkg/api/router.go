package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"boardsync/pkg/auth"
	"boardsync/pkg/commit"
	"boardsync/pkg/hub"
	"boardsync/pkg/lock"
)

// Server wires the HTTP surface to the coordination internals: the
// lock manager for the synchronous lock path, the commit queue for
// state mutations and the hub for websocket fanout.
type Server struct {
	Locks *lock.Manager
	Hub   *hub.Hub
	Queue *commit.Queue
	// ReplayLimit caps how many backlog events a subscriber may replay
	// in one connect.
	ReplayLimit int
}

// New returns a Server. A nil queue falls back to the package default
// queue; a zero replayLimit falls back to 1000.
func New(locks *lock.Manager, h *hub.Hub, q *commit.Queue, replayLimit int) *Server {
	if q == nil {
		q = commit.DefaultQueue
	}
	if replayLimit <= 0 {
		replayLimit = 1000
	}
	return &Server{Locks: locks, Hub: h, Queue: q, ReplayLimit: replayLimit}
}

// Handler returns the versioned API router. Reads hit the store
// directly; mutations are thin wrappers that enqueue into the commit
// pipeline and return 202. Lock acquire/release is synchronous because
// the caller needs the grant/deny answer.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedActor)

	// Boards
	v1.HandleFunc("/boards", s.createBoard).Methods(http.MethodPost)
	v1.HandleFunc("/boards", s.listBoards).Methods(http.MethodGet)
	v1.HandleFunc("/boards/{id}", s.getBoard).Methods(http.MethodGet)
	v1.HandleFunc("/boards/{id}", s.deleteBoard).Methods(http.MethodDelete)
	v1.HandleFunc("/boards/{boardID}/resources", s.createResource).Methods(http.MethodPost)
	v1.HandleFunc("/boards/{boardID}/resources", s.listResources).Methods(http.MethodGet)
	v1.HandleFunc("/boards/{boardID}/events", s.listEvents).Methods(http.MethodGet)
	v1.HandleFunc("/boards/{boardID}/subscribe", s.subscribe).Methods(http.MethodGet)

	// Resources
	v1.HandleFunc("/resources/{id}", s.getResource).Methods(http.MethodGet)
	v1.HandleFunc("/resources/{id}", s.deleteResource).Methods(http.MethodDelete)
	v1.HandleFunc("/resources/{id}/commit", s.commitResource).Methods(http.MethodPost)
	v1.HandleFunc("/resources/{id}/lock", s.acquireLock).Methods(http.MethodPost)
	v1.HandleFunc("/resources/{id}/lock", s.releaseLock).Methods(http.MethodDelete)

	// Shared documents
	v1.HandleFunc("/docs/{docID}/contributions", s.putContribution).Methods(http.MethodPut)
	v1.HandleFunc("/docs/{docID}/contributions", s.listContributions).Methods(http.MethodGet)
	v1.HandleFunc("/docs/{docID}/merged", s.mergedView).Methods(http.MethodGet)

	return r
}

// extras collects small request metadata carried through the commit
// pipeline for audit logs.
func extras(r *http.Request) map[string]string {
	return map[string]string{
		"role":   r.Header.Get("X-Role-Name"),
		"reqid":  r.Header.Get("X-Request-Id"),
		"remote": r.RemoteAddr,
	}
}
