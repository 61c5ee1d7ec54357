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
	"boardsync/pkg/merge"
	"boardsync/pkg/models"
	"boardsync/pkg/store"
	"boardsync/pkg/utils"
)

// putContribution handles PUT /v1/docs/{docID}/contributions: upsert
// of the verified actor's fragment, enqueued through the commit
// pipeline. Empty content is a valid "cleared, still a participant"
// state.
func (s *Server) putContribution(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	docID := mux.Vars(r)["docID"]
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
		Type:     commit.OpContribute,
		Resource: docID,
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

func (s *Server) listContributions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	docID := mux.Vars(r)["docID"]
	if _, err := docResource(docID); err != nil {
		utils.JSONError(w, http.StatusNotFound, "document not found")
		return
	}
	contribs, err := store.ListContributions(docID)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Doc           string                `json:"doc"`
		Contributions []models.Contribution `json:"contributions"`
	}{Doc: docID, Contributions: contribs})
}

// mergedView handles GET /v1/docs/{docID}/merged?view=labeled|plain|zone.
// The zone view additionally takes actor=<id> and splits the merged
// text into that actor's editable segment and the read-only remainder.
func (s *Server) mergedView(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	docID := mux.Vars(r)["docID"]
	if _, err := docResource(docID); err != nil {
		utils.JSONError(w, http.StatusNotFound, "document not found")
		return
	}
	contribs, err := store.ListContributions(docID)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "labeled"
	}
	switch view {
	case "labeled":
		_ = json.NewEncoder(w).Encode(struct {
			Doc          string `json:"doc"`
			View         string `json:"view"`
			Text         string `json:"text"`
			Contributors int    `json:"contributors"`
		}{Doc: docID, View: view, Text: merge.Labeled(contribs), Contributors: merge.ContributorCount(contribs)})
	case "plain":
		_ = json.NewEncoder(w).Encode(struct {
			Doc          string `json:"doc"`
			View         string `json:"view"`
			Text         string `json:"text"`
			Contributors int    `json:"contributors"`
		}{Doc: docID, View: view, Text: merge.Plain(contribs), Contributors: merge.ContributorCount(contribs)})
	case "zone":
		actor := r.URL.Query().Get("actor")
		if actor == "" {
			actor = auth.ActorIDFromContext(r.Context())
		}
		if actor == "" {
			utils.JSONError(w, http.StatusBadRequest, "actor required for zone view")
			return
		}
		var local string
		for _, c := range contribs {
			if c.ActorID == actor {
				local = c.Content
				break
			}
		}
		z := merge.NewZone(local, merge.Others(contribs, actor))
		_ = json.NewEncoder(w).Encode(struct {
			Doc      string `json:"doc"`
			View     string `json:"view"`
			Display  string `json:"display"`
			Local    string `json:"local"`
			Boundary int    `json:"boundary"`
		}{Doc: docID, View: view, Display: z.Display(), Local: local, Boundary: z.Boundary()})
	default:
		utils.JSONError(w, http.StatusBadRequest, "unknown view")
	}
}

// docResource resolves docID to a live shared mergeable resource.
func docResource(docID string) (models.Resource, error) {
	res, err := store.GetResource(docID)
	if err != nil {
		return res, err
	}
	if res.Deleted || res.Kind != models.KindSharedMergeable {
		return res, pebble.ErrNotFound
	}
	return res, nil
}
