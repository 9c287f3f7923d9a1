package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/custobar-insights/internal/logging"
)

const dateLayout = "2006-01-02"

// handleSync runs the full ingestion and aggregation pipeline for an
// integration. The run is synchronous: the response carries the per-stage
// outcome.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := s.pipelineService.Run(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.invalidateMetricsCache(r, id)
	respondJSON(w, http.StatusOK, result)
}

// handleRecomputeMetrics recomputes today's overall and segmented snapshots
// from already-ingested data, without refetching from Custobar.
func (s *Server) handleRecomputeMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.integrationRepo.GetByID(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	overall, err := s.metricsService.ComputeOverallMetrics(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	segmented, err := s.metricsService.ComputeSegmentedMetrics(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.invalidateMetricsCache(r, id)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overall":  overall,
		"segments": len(segmented),
	})
}

// handleGetMetrics returns the stored overall snapshots of an integration
// for a date range. Defaults to the last 30 days ending today.
func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -30)

	var err error
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid to date, expected YYYY-MM-DD")
			return
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(dateLayout, raw); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid from date, expected YYYY-MM-DD")
			return
		}
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must not be after to")
		return
	}

	cacheKey := fmt.Sprintf("metrics:%s:%s:%s", id, from.Format(dateLayout), to.Format(dateLayout))
	if s.serveFromCache(w, r, cacheKey) {
		return
	}

	metrics, err := s.metricsRepo.ListDaily(r.Context(), id, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response := map[string]interface{}{
		"metrics": metrics,
		"count":   len(metrics),
	}
	s.storeInCache(r, cacheKey, response)
	respondJSON(w, http.StatusOK, response)
}

// handleGetSegmentedMetrics returns the stored segment snapshots of an
// integration for one date. Defaults to today.
func (s *Server) handleGetSegmentedMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	now := time.Now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		if date, err = time.Parse(dateLayout, raw); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date, expected YYYY-MM-DD")
			return
		}
	}

	cacheKey := fmt.Sprintf("segmented-metrics:%s:%s", id, date.Format(dateLayout))
	if s.serveFromCache(w, r, cacheKey) {
		return
	}

	metrics, err := s.metricsRepo.ListSegmented(r.Context(), id, date)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	response := map[string]interface{}{
		"metrics": metrics,
		"count":   len(metrics),
	}
	s.storeInCache(r, cacheKey, response)
	respondJSON(w, http.StatusOK, response)
}

// serveFromCache writes a cached response if one exists. Cache failures are
// logged and treated as misses.
func (s *Server) serveFromCache(w http.ResponseWriter, r *http.Request, key string) bool {
	if s.cache == nil {
		return false
	}

	cached, err := s.cache.Get(r.Context(), key)
	if err != nil || cached == "" {
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cached))
	return true
}

// storeInCache caches a JSON response body under the key
func (s *Server) storeInCache(r *http.Request, key string, response interface{}) {
	if s.cache == nil || s.config.MetricsCacheTTL <= 0 {
		return
	}

	body, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(r.Context(), key, string(body), s.config.MetricsCacheTTL); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Failed to cache metrics response")
	}
}

// invalidateMetricsCache drops cached metric responses for an integration
// after new data lands
func (s *Server) invalidateMetricsCache(r *http.Request, id string) {
	if s.cache == nil {
		return
	}

	for _, pattern := range []string{
		fmt.Sprintf("metrics:%s:*", id),
		fmt.Sprintf("segmented-metrics:%s:*", id),
	} {
		keys, err := s.cache.Client().Keys(r.Context(), pattern).Result()
		if err != nil || len(keys) == 0 {
			continue
		}
		if err := s.cache.Del(r.Context(), keys...); err != nil {
			logging.FromContext(r.Context()).WithError(err).Warn("Failed to invalidate metrics cache")
		}
	}
}
