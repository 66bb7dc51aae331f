package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/WessleyAI/wessley-routing/engine/cost"
	"github.com/WessleyAI/wessley-routing/engine/domain"
	"github.com/WessleyAI/wessley-routing/engine/optimizer"
	"github.com/WessleyAI/wessley-routing/pkg/metrics"
)

var validate = validator.New()

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type coordinate struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

func (c coordinate) toDomain() domain.Coordinate {
	return domain.Coordinate{Lat: *c.Lat, Lon: *c.Lon}
}

type optimizeRequest struct {
	Src       coordinate `json:"src"`
	Dst       coordinate `json:"dst"`
	Scenario  string     `json:"scenario" validate:"required"`
	K         int        `json:"k" validate:"gte=0"`
	Departure *time.Time `json:"departure"`
}

type feedbackRequest struct {
	RouteIndex    *int     `json:"route_index" validate:"required"`
	ActualMinutes *float64 `json:"actual_minutes" validate:"required"`
}

type feedbackResponse struct {
	Ack bool `json:"ack"`
	*optimizer.FeedbackResult
}

func newMux(svc *optimizer.Service, met *metrics.Registry, health func() map[string]string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(health))
	mux.HandleFunc("POST /api/routes/optimize", handleOptimize(svc, logger))
	mux.HandleFunc("POST /api/routes/{session}/feedback", handleFeedback(svc, logger))
	mux.HandleFunc("GET /api/learning/stats", handleStats(svc.Learner()))
	mux.Handle("GET /metrics", met.Handler())
	return mux
}

func handleHealth(health func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, health())
	}
}

func handleOptimize(svc *optimizer.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req optimizeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, decodeStatus(err), "invalid JSON: "+err.Error())
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		scenario, err := domain.ParseScenario(req.Scenario)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		in := optimizer.Request{
			Source:      req.Src.toDomain(),
			Destination: req.Dst.toDomain(),
			Scenario:    scenario,
			K:           req.K,
		}
		if req.Departure != nil {
			in.Departure = *req.Departure
		}
		res, err := svc.Optimize(r.Context(), in)
		if err != nil {
			logger.Error("optimize failed", "err", err, "scenario", scenario)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleFeedback(svc *optimizer.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req feedbackRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, decodeStatus(err), "invalid JSON: "+err.Error())
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := svc.ProcessTripFeedback(r.Context(), r.PathValue("session"), *req.RouteIndex, *req.ActualMinutes)
		if err != nil {
			logger.Warn("feedback rejected", "err", err, "session", r.PathValue("session"))
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, feedbackResponse{Ack: true, FeedbackResult: res})
	}
}

// handleStats answers one scenario when ?scenario= is set, else all of them.
func handleStats(learner *cost.Learner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if name := r.URL.Query().Get("scenario"); name != "" {
			s, err := domain.ParseScenario(name)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			st, err := learner.Stats(s)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}

		all := make([]cost.Stats, 0, len(domain.Scenarios))
		for _, s := range domain.Scenarios {
			st, err := learner.Stats(s)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			all = append(all, st)
		}
		writeJSON(w, http.StatusOK, map[string]any{"scenarios": all})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownScenario),
		errors.Is(err, domain.ErrInvalidK),
		errors.Is(err, domain.ErrInvalidCoordinate):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidFeedback):
		return http.StatusConflict
	case errors.Is(err, domain.ErrGraphUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorStatus labels a failed optimization for metrics.
func errorStatus(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusServiceUnavailable:
		return "graph_unavailable"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
