package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/gorilla/mux"

	"boardsync/pkg/auth"
	"boardsync/pkg/commit"
	"boardsync/pkg/lock"
	"boardsync/pkg/logger"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
	"boardsync/pkg/telemetry"
	"boardsync/pkg/utils"
	"boardsync/pkg/validation"
)

type createResourceBody struct {
	Kind  models.ResourceKind  `json:"kind"`
	Shape *models.ShapePayload `json:"shape,omitempty"`
}

// createResource handles POST /v1/boards/{boardID}/resources. Owned
// lockable resources get the verified actor as owner; shared mergeable
// documents have no owner and can never be deleted.
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	boardID := mux.Vars(r)["boardID"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if b, err := store.GetBoard(boardID); err != nil || b.Deleted {
		utils.JSONError(w, http.StatusNotFound, "board not found")
		return
	}
	var body createResourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.Shape != nil {
		if err := validation.ValidateShape(*body.Shape); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	now := time.Now().UTC().UnixNano()
	res := models.Resource{
		BoardID:   boardID,
		Kind:      body.Kind,
		Version:   1,
		CreatedTS: now,
		UpdatedTS: now,
		Shape:     body.Shape,
	}
	switch body.Kind {
	case models.KindOwnedLockable:
		res.ID = utils.GenResourceID()
		res.OwnerID = actor
	case models.KindSharedMergeable:
		res.ID = utils.GenDocID()
	default:
		utils.JSONError(w, http.StatusBadRequest, "unknown resource kind")
		return
	}
	if err := store.SaveResource(res); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("resource_created", "board", boardID, "resource", res.ID, "kind", string(res.Kind), "actor", actor)
	payload, _ := json.Marshal(res)
	if ev, err := store.AppendEvent(models.Event{
		Type:       models.EventResourceUpdated,
		BoardID:    boardID,
		ResourceID: res.ID,
		ActorID:    actor,
		Payload:    payload,
	}); err == nil && s.Hub != nil {
		s.Hub.Broadcast(ev)
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	boardID := mux.Vars(r)["boardID"]
	resources, err := store.ListBoardResources(boardID)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]models.Resource, 0, len(resources))
	for _, res := range resources {
		if res.Deleted {
			continue
		}
		out = append(out, res)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Board     string            `json:"board"`
		Resources []models.Resource `json:"resources"`
	}{Board: boardID, Resources: out})
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	res, err := store.GetResource(id)
	if err != nil || res.Deleted {
		utils.JSONError(w, http.StatusNotFound, "resource not found")
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// commitResource handles POST /v1/resources/{id}/commit: a thin
// enqueue-only wrapper. Lock and kind rules are enforced by the
// applier, not here.
func (s *Server) commitResource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	end := telemetry.StartSpan(r.Context(), "commit_resource")
	defer end()

	id := mux.Vars(r)["id"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "read body failed")
		return
	}
	op := &commit.Op{
		Type:     commit.OpUpdateShape,
		Resource: id,
		Actor:    actor,
		Payload:  payload,
		TS:       time.Now().UTC().UnixNano(),
		Extras:   extras(r),
	}
	if err := s.Queue.TryEnqueue(op); err != nil {
		if errors.Is(err, commit.ErrQueueFull) {
			utils.JSONError(w, http.StatusTooManyRequests, "server busy; try again")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// deleteResource handles DELETE /v1/resources/{id}. Enqueued like any
// other mutation; the applier rejects non-owners.
func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	op := &commit.Op{
		Type:     commit.OpDeleteResource,
		Resource: id,
		Actor:    actor,
		TS:       time.Now().UTC().UnixNano(),
		Extras:   extras(r),
	}
	if err := s.Queue.TryEnqueue(op); err != nil {
		if errors.Is(err, commit.ErrQueueFull) {
			utils.JSONError(w, http.StatusTooManyRequests, "server busy; try again")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// acquireLock handles POST /v1/resources/{id}/lock. This path is
// synchronous: the caller needs the grant/deny answer before applying
// any further local edit.
func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	res, err := s.Locks.Acquire(id, actor)
	if err != nil {
		var held *lock.HeldError
		switch {
		case errors.As(err, &held):
			telemetry.LockDeniedTotal.Inc()
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(struct {
				Error  string `json:"error"`
				HeldBy string `json:"held_by"`
			}{Error: "resource locked", HeldBy: held.HeldBy})
		case errors.Is(err, lock.ErrGone), errors.Is(err, pebble.ErrNotFound):
			utils.JSONError(w, http.StatusNotFound, "resource not found")
		case errors.Is(err, lock.ErrNotLockable):
			utils.JSONError(w, http.StatusBadRequest, "resource is not lockable")
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// releaseLock handles DELETE /v1/resources/{id}/lock. An optional JSON
// body supplies the final shape payload, applied atomically with the
// lock clear. Release by a non-holder is a silent no-op.
func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	id := mux.Vars(r)["id"]
	actor, status, msg := auth.ResolveActorFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	var final *models.ShapePayload
	body, err := io.ReadAll(r.Body)
	if err == nil && len(body) > 0 {
		var sp models.ShapePayload
		if err := json.Unmarshal(body, &sp); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid final payload")
			return
		}
		if err := validation.ValidateShape(sp); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		final = &sp
	}
	res, err := s.Locks.Release(id, actor, final)
	if err != nil {
		if errors.Is(err, lock.ErrGone) || errors.Is(err, pebble.ErrNotFound) {
			// released after deletion; nothing to do
			w.WriteHeader(http.StatusNoContent)
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}
