package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"boardsync/pkg/auth"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
	"boardsync/pkg/utils"
)

// createBoard handles POST /v1/boards. The verified actor becomes the
// board owner.
func (s *Server) createBoard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var b models.Board
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	actor, status, msg := auth.ResolveActorFromRequest(r, b.Owner)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	b.Owner = actor
	if b.ID == "" {
		b.ID = utils.GenBoardID()
	}
	if b.CreatedTS == 0 {
		b.CreatedTS = time.Now().UTC().UnixNano()
	}
	b.UpdatedTS = b.CreatedTS
	b.Deleted = false
	if err := store.SaveBoard(b); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("board_created", "board", b.ID, "owner", b.Owner)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(b)
}

// listBoards handles GET /v1/boards. Soft-deleted boards are skipped.
func (s *Server) listBoards(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	boards, err := store.ListBoards()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]models.Board, 0, len(boards))
	ownerQ := r.URL.Query().Get("owner")
	for _, b := range boards {
		if b.Deleted {
			continue
		}
		if ownerQ != "" && b.Owner != ownerQ {
			continue
		}
		out = append(out, b)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Boards []models.Board `json:"boards"`
	}{Boards: out})
}

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	b, err := store.GetBoard(id)
	if err != nil || b.Deleted {
		utils.JSONError(w, http.StatusNotFound, "board not found")
		return
	}
	_ = json.NewEncoder(w).Encode(b)
}

// deleteBoard handles DELETE /v1/boards/{id}. Only the owner may
// delete; the board is tombstoned, never removed.
func (s *Server) deleteBoard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	b, err := store.GetBoard(id)
	if err != nil || b.Deleted {
		utils.JSONError(w, http.StatusNotFound, "board not found")
		return
	}
	if b.Owner != actor {
		utils.JSONError(w, http.StatusForbidden, "not board owner")
		return
	}
	if err := store.SoftDeleteBoard(id); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("board_deleted", "board", id, "actor", actor)
	w.WriteHeader(http.StatusNoContent)
}

// listEvents handles GET /v1/boards/{boardID}/events?since=<seq>&limit=<n>.
// It is the poll-based fallback for clients that cannot hold a
// websocket open.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	boardID := mux.Vars(r)["boardID"]
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = n
	}
	limit := s.ReplayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	evs, err := store.ListEventsSince(boardID, since, limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Board  string         `json:"board"`
		Events []models.Event `json:"events"`
	}{Board: boardID, Events: evs})
}
