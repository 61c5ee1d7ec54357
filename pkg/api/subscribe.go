package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
	"boardsync/pkg/utils"
)

// Origin policy is enforced by the auth gateway before the request
// reaches this handler.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscribe handles GET /v1/boards/{boardID}/subscribe, upgrading to a
// websocket event feed. ?since=<seq> replays the backlog after that
// sequence before live events flow; replayed and live streams are
// deduplicated by sequence so a client sees each event exactly once
// per connection, in order.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if b, err := store.GetBoard(boardID); err != nil || b.Deleted {
		utils.JSONError(w, http.StatusNotFound, "board not found")
		return
	}
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("subscribe_upgrade_failed", "board", boardID, "error", err.Error())
		return
	}
	defer conn.Close()

	// Attach before replaying so nothing falls between backlog and
	// live; the seq guard below drops the overlap.
	sub := s.Hub.Subscribe(boardID)
	defer sub.Close()

	lastSent := since
	backlog, err := store.ListEventsSince(boardID, since, s.ReplayLimit)
	if err != nil {
		logger.Error("subscribe_replay_failed", "board", boardID, "error", err.Error())
		return
	}
	for _, ev := range backlog {
		b, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
		lastSent = ev.Seq
	}
	logger.Info("subscriber_attached", "board", boardID, "replayed", len(backlog), "remote", r.RemoteAddr)

	// Reader goroutine: the client never sends data frames, but reads
	// must be serviced for close/ping handling.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.C:
			if !ok {
				// dropped as a slow consumer
				return
			}
			var ev models.Event
			if err := json.Unmarshal(msg, &ev); err == nil && ev.Seq <= lastSent {
				continue
			} else if err == nil {
				lastSent = ev.Seq
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}
