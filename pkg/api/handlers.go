package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vjranagit/tsengine/pkg/service"
	"github.com/vjranagit/tsengine/pkg/storage"
	"github.com/vjranagit/tsengine/pkg/transform"
	"github.com/vjranagit/tsengine/pkg/types"
)

// Query parameters of GET .../time_series/{id}
const (
	paramMinValue = "signal_min_value"
	paramMaxValue = "signal_max_value"
)

// errorResponse is the body of every non-2xx reply
type errorResponse struct {
	Error string `json:"error"`
}

// handleCreate stores a new series
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var series types.Series
	if err := json.NewDecoder(r.Body).Decode(&series); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	created, err := s.svc.Create(r.Context(), r.PathValue("dataset"), &series)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleList lists series; every query parameter is a property selector
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	selectors := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			selectors[key] = values[0]
		}
	}

	list, err := s.svc.List(r.Context(), r.PathValue("dataset"), selectors)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_series": list})
}

// handleGet returns one series, optionally narrowed to a value range
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var rng service.ValueRange
	var err error
	if rng.Min, err = floatQuery(r, paramMinValue); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if rng.Max, err = floatQuery(r, paramMaxValue); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	series, err := s.svc.Get(r.Context(), r.PathValue("dataset"), r.PathValue("id"), rng)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleDelete removes one series
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("dataset"), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTransform derives and stores a new series
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req service.TransformationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	derived, err := s.svc.Transform(r.Context(), r.PathValue("dataset"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, derived)
}

// handleMultidimensional aligns a comma separated list of series
func (s *Server) handleMultidimensional(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.PathValue("ids"), ",")
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}

	out, err := s.svc.Multidimensional(r.Context(), r.PathValue("dataset"), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProvenance lists the source samples behind a derived series
func (s *Server) handleProvenance(w http.ResponseWriter, r *http.Request) {
	links, err := s.svc.Provenance(r.Context(), r.PathValue("dataset"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// writeError maps service and engine errors onto HTTP status codes
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, transform.ErrPrecondition),
		errors.Is(err, transform.ErrMalformedParameter),
		errors.Is(err, transform.ErrUnsupported):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func floatQuery(r *http.Request, key string) (*float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number, got %q", key, raw)
	}
	return &f, nil
}
