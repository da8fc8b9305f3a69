package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/dispatch"
	"github.com/jo-hoe/gosubgen/internal/jobs"
	"github.com/jo-hoe/gosubgen/internal/media"
	"github.com/jo-hoe/gosubgen/internal/metrics"
)

// EventHandler runs a normalized notification through admission.
type EventHandler interface {
	Handle(ctx context.Context, ev media.Event) dispatch.Outcome
}

// InFlightLister reports the paths currently owned by a job.
type InFlightLister interface {
	InFlight() []string
}

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Store    jobs.Store
	Events   EventHandler
	InFlight InFlightLister
	Metrics  *metrics.Metrics
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if svc.Metrics != nil {
		mux.Handle(http.MethodGet+" "+common.PathMetrics, svc.Metrics.Handler())
	}

	// Media servers cannot send custom headers, so webhooks skip the API key.
	mux.HandleFunc(http.MethodPost+" "+common.PathTautulli, svc.withBodyLimit(svc.webhook(decodeTautulli)))
	mux.HandleFunc(http.MethodPost+" "+common.PathPlex, svc.withBodyLimit(svc.webhook(decodePlex)))
	mux.HandleFunc(http.MethodPost+" "+common.PathJellyfin, svc.withBodyLimit(svc.webhook(decodeJellyfin)))
	mux.HandleFunc(http.MethodPost+" "+common.PathLegacy, svc.handleLegacyWebhook)

	mux.HandleFunc(http.MethodGet+" "+common.PathJobs, svc.withAPIKey(svc.handleListJobs))
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs+"/{id}", svc.withAPIKey(svc.handleGetJob))

	s := &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      loggingMiddleware(recoveryMiddleware(mux, svc.Log), svc.Log),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
	return s
}

func (svc *Service) withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	}
}

func (svc *Service) withBodyLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if max := safeInt64(svc.Cfg.Server.MaxBodySize); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	}
}

// webhook adapts a provider decoder into a handler. Every outcome is
// answered with 200 so media servers do not retry or disable the hook.
func (svc *Service) webhook(decode decoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, rej := decode(r)
		if rej != nil {
			level := slog.LevelWarn
			if rej.quiet {
				level = slog.LevelDebug
			}
			svc.Log.Log(r.Context(), level, rej.logMessage, "path", r.URL.Path, "reason", rej.reason, "detail", rej.detail)
			writeJSON(w, http.StatusOK, dispatch.Outcome{Status: rej.status, Reason: rej.reason})
			return
		}
		if svc.Metrics != nil {
			svc.Metrics.WebhookReceived(string(ev.Provider), string(ev.Kind))
		}
		svc.Log.Debug("webhook received", "event", ev.String())
		// Probing and resolution finish even if the media server hangs up.
		writeJSON(w, http.StatusOK, svc.Events.Handle(context.WithoutCancel(r.Context()), ev))
	}
}

func (svc *Service) handleLegacyWebhook(w http.ResponseWriter, r *http.Request) {
	svc.Log.Warn("legacy webhook called; point the media server at /plex, /tautulli or /jellyfin instead", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, dispatch.Outcome{Status: dispatch.StatusIgnored, Reason: "legacy webhook"})
}

type listResponse struct {
	InFlight []string         `json:"in_flight"`
	Jobs     []map[string]any `json:"jobs"`
}

func (svc *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := common.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := svc.Store.ListJobs(limit)
	if err != nil {
		svc.Log.Error("list jobs", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := listResponse{InFlight: []string{}, Jobs: make([]map[string]any, 0, len(list))}
	if svc.InFlight != nil {
		resp.InFlight = append(resp.InFlight, svc.InFlight.InFlight()...)
	}
	for _, j := range list {
		resp.Jobs = append(resp.Jobs, jobToOut(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := svc.Store.GetJob(r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, jobs.ErrJobNotFound) {
			svc.Log.Error("get job", "err", err)
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, jobToOut(job))
}

func jobToOut(job *jobs.Job) map[string]any {
	var errVal any = nil
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		errVal = *job.ErrorMessage
	}
	return map[string]any{
		"job_id":        job.ID,
		"path":          job.Path,
		"artifact_path": job.ArtifactPath,
		"provider":      job.Provider,
		"event":         job.Event,
		"stage":         string(job.Stage),
		"created_at":    job.CreatedAt,
		"started_at":    job.StartedAt,
		"completed_at":  job.CompletedAt,
		"error":         errVal,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if log != nil {
					log.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				}
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
