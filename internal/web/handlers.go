package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/storesync/internal/core"
	"github.com/JonMunkholm/storesync/internal/logging"
)

// handleSync reconciles one batch for the entity in the URL.
//
// The report is returned whenever the batch ran, including when a chunk
// aborted; the status then reflects the failure (503 when the store was
// unreachable, 500 otherwise).
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidPayload, err))
		return
	}

	op, records, err := core.DecodeBatch(body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if q := r.URL.Query().Get("operation"); q != "" {
		op = core.ParseOperation(q)
	}

	report, err := s.service.Sync(r.Context(), core.BatchRequest{
		Entity:    entity,
		Operation: op,
		Records:   records,
	})
	if report == nil {
		respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		logging.FromContext(r.Context()).Error("batch finished with aborted chunks",
			"entity", entity,
			"batch_id", report.BatchID,
			"error", err,
		)
	}
	writeJSON(w, status, report)
}

// handleChanges returns rows of an entity modified after ?since=, oldest
// first. last_get_utime is accepted as an alias of since. ?cursor= takes the
// next value of a previous page and resumes exactly after its last row.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := core.ChangesRequest{
		Entity: chi.URLParam(r, "entity"),
		Since:  q.Get("since"),
		Cursor: q.Get("cursor"),
		Limit:  parseIntParam(r, "limit", 0),
	}
	if req.Since == "" {
		req.Since = q.Get("last_get_utime")
	}

	page, err := s.service.Changes(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleListEntities lists the registered entities.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Entities())
}

// handleStatus reports batch limiter occupancy.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"batches":   s.service.LimiterStatus(),
		"chunkSize": s.service.ChunkSize(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
