// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/noderank/internal/domain/errkind"
	"github.com/okian/noderank/internal/domain/lifecycle"
	"github.com/okian/noderank/internal/domain/model"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateModel(ctx context.Context, name string, metadata *string) (model.Record, error)
	ListModels(ctx context.Context) ([]model.Record, error)
	GetModel(ctx context.Context, id string) (model.Record, error)
	TrainModel(ctx context.Context, id string, dataset []model.FeatureRecord) (lifecycle.TrainResult, error)
	RankCandidates(ctx context.Context, id string, candidates []model.FeatureRecord, topK int) ([]model.ScoredCandidate, error)
	FetchArtifact(ctx context.Context, id string) (io.ReadCloser, int64, error)
	DeleteModel(ctx context.Context, id string) (lifecycle.DeleteResult, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	modelsHandler *ModelsHandler
	rankHandler   *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		modelsHandler: NewModelsHandler(deps),
		rankHandler:   NewRankHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /models", MetricsMiddleware(s.modelsHandler.HandleCreate, "models_create"))
	mux.HandleFunc("GET /models", MetricsMiddleware(s.modelsHandler.HandleList, "models_list"))
	mux.HandleFunc("GET /models/{id}", MetricsMiddleware(s.modelsHandler.HandleGet, "models_get"))
	mux.HandleFunc("PUT /models/{id}/train", MetricsMiddleware(s.modelsHandler.HandleTrain, "models_train"))
	mux.HandleFunc("POST /models/{id}/test", MetricsMiddleware(s.rankHandler.HandleRank, "models_test"))
	mux.HandleFunc("GET /models/{id}/download", MetricsMiddleware(s.modelsHandler.HandleDownload, "models_download"))
	mux.HandleFunc("DELETE /models/{id}", MetricsMiddleware(s.modelsHandler.HandleDelete, "models_delete"))
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "noderank model service\n")
}

// CORS allows any origin, matching a public API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps an error kind to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", ErrBodyTooLarge)
		return
	}
	code := errkind.Code(err)
	switch errkind.KindOf(err) {
	case errkind.ErrEncoding, errkind.ErrValidation:
		writeError(w, http.StatusBadRequest, code, err)
	case errkind.ErrNotFound:
		writeError(w, http.StatusNotFound, code, err)
	case errkind.ErrBackpressure:
		writeError(w, http.StatusTooManyRequests, code, err)
	case errkind.ErrUnavailable:
		writeError(w, http.StatusServiceUnavailable, code, err)
	default:
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "timeout", err)
		case errors.Is(err, context.Canceled):
			// client went away; status is only recorded by metrics
			writeError(w, statusClientClosedRequest, "cancelled", err)
		default:
			writeError(w, http.StatusInternalServerError, code, err)
		}
	}
}

// pathID returns the {id} path value or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "validation_error", ErrMissingModelID)
		return "", false
	}
	return id, true
}
