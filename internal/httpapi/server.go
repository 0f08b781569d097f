package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"orchd/internal/orchestrator"
	"orchd/pkg/types"
)

// Service defines the orchestrator methods required by the HTTP admin API.
type Service interface {
	LoadModel(ctx context.Context, id string) (types.ModelInfo, error)
	UnloadModel(ctx context.Context, id string) (types.ModelInfo, error)
	ModelStatus(id string) (types.ModelInfo, bool, error)
	AllModels() (map[string]types.ModelInfo, types.VRAMUsage)
	SelectModel(ctx context.Context, taskType string, contextSize int) (types.ModelInfo, error)
	ObserveHeartbeat(id string) error
	Ready() bool
}

type selectRequest struct {
	TaskType    string `json:"task_type"`
	ContextSize int    `json:"context_size,omitempty"`
}

// NewMux builds the admin router: model listing and lifecycle, selection,
// heartbeat ingest, health probes and Prometheus metrics.
func NewMux(svc Service, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models, usage := svc.AllModels()
		writeJSON(w, http.StatusOK, map[string]any{"models": models, "vram_usage": usage})
	})

	r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		info, loaded, err := svc.ModelStatus(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": info, "is_loaded": loaded})
	})

	r.Post("/models/{id}/load", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		info, err := svc.LoadModel(r.Context(), id)
		if err != nil {
			log.Warn().Str("model", id).Err(err).Msg("load via admin api failed")
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": info})
	})

	r.Post("/models/{id}/unload", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		info, err := svc.UnloadModel(r.Context(), id)
		if err != nil {
			log.Warn().Str("model", id).Err(err).Msg("unload via admin api failed")
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": info})
	})

	r.Post("/select", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req selectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		info, err := svc.SelectModel(r.Context(), req.TaskType, req.ContextSize)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"selected_model": info.ID, "model": info})
	})

	r.Post("/heartbeat/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.ObserveHeartbeat(id); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		models, usage := svc.AllModels()
		counts := make(map[string]int)
		for _, m := range models {
			counts[string(m.Status)]++
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ready":      svc.Ready(),
			"vram_usage": usage,
			"by_status":  counts,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already out; nothing useful left to do.
		return
	}
}

// writeServiceError maps orchestrator errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case orchestrator.IsUnknownModel(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case orchestrator.IsBudgetExceeded(err):
		writeJSONError(w, http.StatusConflict, err.Error())
	case orchestrator.IsMisconfigured(err), orchestrator.IsLifecycleUnsupported(err):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case orchestrator.IsBackendUnreachable(err):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
