package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/plantedhq/venuescout/internal/models"
	"github.com/plantedhq/venuescout/internal/review"
	"github.com/plantedhq/venuescout/internal/syncer"
)

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	get := r.URL.Query().Get
	f := review.PendingFilter{
		Country:  get("country"),
		ChainID:  get("chain_id"),
		Platform: models.PlatformTag(get("platform")),
	}
	if raw := get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_confidence"})
			return
		}
		f.MinConfidence = v
	}
	if raw := get("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}
	if raw := get("offset"); raw != "" {
		f.Offset, _ = strconv.Atoi(raw)
	}

	venues, total, err := s.queue.ListPending(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"total": total, "venues": venues})
}

// reviewRequest is the shared mutation payload. LastSeen is the venue's
// updated_at the operator last read; a mismatch yields 409.
type reviewRequest struct {
	Actor    string    `json:"actor"`
	Reason   string    `json:"reason,omitempty"`
	Feedback string    `json:"feedback,omitempty"`
	DishIDs  []string  `json:"dish_ids,omitempty"`
	VenueIDs []string  `json:"venue_ids,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func (s *Server) decodeReview(w http.ResponseWriter, r *http.Request) (reviewRequest, bool) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload: " + err.Error()})
		return req, false
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	return req, true
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.queue.Approve(r.Context(), id, req.LastSeen, req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"venue_id": id, "status": string(models.VenueVerified)})
}

func (s *Server) handlePartialApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.queue.PartialApprove(r.Context(), id, req.DishIDs, req.Feedback, req.LastSeen, req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"venue_id": id, "dishes_verified": len(req.DishIDs)})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.queue.Reject(r.Context(), id, req.Reason, req.LastSeen, req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"venue_id": id, "status": string(models.VenueRejected)})
}

func (s *Server) handleBulkReject(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReview(w, r)
	if !ok {
		return
	}
	err := s.queue.BulkReject(r.Context(), req.VenueIDs, req.Reason, req.Actor)
	if err != nil {
		// Partial failure: report which ids failed but keep 200 since the
		// rest were rejected.
		s.writeJSON(w, http.StatusOK, map[string]any{"rejected": len(req.VenueIDs), "errors": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rejected": len(req.VenueIDs)})
}

func (s *Server) handleAutoVerify(w http.ResponseWriter, r *http.Request) {
	dryRun := boolParam(r.URL.Query().Get("dry_run"))
	rep, err := s.verifier.Run(r.Context(), dryRun)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSyncPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.sync.PreviewSync(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preview)
}

type syncExecuteRequest struct {
	Actor    string   `json:"actor"`
	VenueIDs []string `json:"venue_ids,omitempty"`
	DishIDs  []string `json:"dish_ids,omitempty"`
	SyncAll  bool     `json:"sync_all,omitempty"`
}

func (s *Server) handleSyncExecute(w http.ResponseWriter, r *http.Request) {
	var req syncExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload: " + err.Error()})
		return
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	rec, err := s.sync.Execute(r.Context(), syncer.Selection{
		VenueIDs: req.VenueIDs,
		DishIDs:  req.DishIDs,
		SyncAll:  req.SyncAll,
	}, req.Actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}
