package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/engine"
	"github.com/jo-hoe/gosubgen/internal/jobs"
)

// Recorder receives job results. *metrics.Metrics implements it.
type Recorder interface {
	JobFinished(result string, took time.Duration)
}

// Worker implements jobs.Processor: one engine call and one artifact write
// per job. Failures are terminal; nothing is retried.
type Worker struct {
	Log     *slog.Logger
	Cfg     *config.Config
	Store   jobs.Store
	Engine  engine.Engine
	Metrics Recorder
	HTTP    *http.Client
}

// Ensure Worker implements jobs.Processor and jobs.Dropper
var (
	_ jobs.Processor = (*Worker)(nil)
	_ jobs.Dropper   = (*Worker)(nil)
)

func New(log *slog.Logger, cfg *config.Config, store jobs.Store, eng engine.Engine, rec Recorder) *Worker {
	return &Worker{
		Log:     log,
		Cfg:     cfg,
		Store:   store,
		Engine:  eng,
		Metrics: rec,
		HTTP:    http.DefaultClient,
	}
}

func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) (err error) {
	job := item.Job
	log := w.Log.With("job_id", job.ID, "path", job.Path)

	now := time.Now().UTC()
	if err := w.Store.UpdateStage(job.ID, jobs.StageRunning, &now); err != nil {
		w.finish(ctx, log, job, now, err)
		return fmt.Errorf("update stage to running: %w", err)
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = engine.Wrap("transcribe", job.Path, fmt.Errorf("panic: %v", rec))
			w.finish(ctx, log, job, start, err)
		}
	}()

	tc := w.Cfg.Transcription
	log.Info("transcription started", "engine", w.Engine.Name(), "model", tc.Model, "device", tc.Device)

	runCtx := ctx
	if tc.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, tc.Timeout)
		defer cancel()
	}

	result, err := w.Engine.Transcribe(runCtx, job.Path)
	if err != nil {
		w.finish(ctx, log, job, start, err)
		return err
	}
	if err := w.Engine.Serialize(runCtx, result, job.ArtifactPath, tc.WordLevelHighlight); err != nil {
		w.finish(ctx, log, job, start, err)
		return err
	}

	w.finish(ctx, log, job, start, nil)
	return nil
}

// Drop marks a job that was discarded at shutdown as failed so the history
// does not keep it queued forever.
func (w *Worker) Drop(item jobs.WorkItem, reason error) {
	log := w.Log.With("job_id", item.Job.ID, "path", item.Job.Path)
	if err := w.Store.SaveError(item.Job.ID, reason.Error(), time.Now().UTC()); err != nil {
		log.Warn("failed to record dropped job", "err", err)
	}
	if w.Metrics != nil {
		w.Metrics.JobFinished(common.StatusDropped, 0)
	}
}

// finish records the terminal stage, metrics and callback. jobErr nil means success.
func (w *Worker) finish(ctx context.Context, log *slog.Logger, job jobs.Job, start time.Time, jobErr error) {
	done := time.Now().UTC()
	took := done.Sub(start)

	payload := callbackPayload{
		JobID:    job.ID,
		Path:     job.Path,
		Status:   common.StatusCompleted,
		Stage:    string(jobs.StageCompleted),
		Artifact: job.ArtifactPath,
	}

	if jobErr != nil {
		if errors.Is(jobErr, context.DeadlineExceeded) {
			jobErr = fmt.Errorf("timed out after %s: %w", w.Cfg.Transcription.Timeout, jobErr)
		}
		log.Error("transcription failed", "took", took, "err", jobErr)
		if err := w.Store.SaveError(job.ID, jobErr.Error(), done); err != nil {
			log.Warn("failed to record job failure", "err", err)
		}
		msg := jobErr.Error()
		payload.Status = common.StatusFailed
		payload.Stage = string(jobs.StageFailed)
		payload.Artifact = ""
		payload.Error = &msg
	} else {
		size := "unknown"
		if info, err := os.Stat(job.ArtifactPath); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		log.Info("transcription finished", "took", took.Round(time.Millisecond), "artifact", job.ArtifactPath, "size", size)
		if err := w.Store.SaveResult(job.ID, done); err != nil {
			log.Warn("failed to record job result", "err", err)
		}
	}

	if w.Metrics != nil {
		w.Metrics.JobFinished(payload.Status, took)
	}

	if url := w.Cfg.Server.CallbackURL; url != "" {
		if err := w.sendCallbackWithRetry(ctx, url, payload); err != nil {
			log.Warn("callback failed after retries", "err", err)
		}
	}
}

type callbackPayload struct {
	JobID    string  `json:"job_id"`
	Path     string  `json:"path"`
	Status   string  `json:"status"` // completed|failed
	Stage    string  `json:"stage"`
	Artifact string  `json:"artifact,omitempty"`
	Error    *string `json:"error,omitempty"`
}

func (w *Worker) sendCallbackWithRetry(ctx context.Context, url string, payload callbackPayload) error {
	max := w.Cfg.Server.CallbackRetries
	if max <= 0 {
		max = 3
	}
	backoff := w.Cfg.Server.CallbackBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if err := w.postJSON(ctx, url, payload); err != nil {
			lastErr = err
			if attempt == max {
				break
			}
			// linear backoff, abandoned on shutdown
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(attempt) * backoff):
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (w *Worker) postJSON(ctx context.Context, url string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", common.ContentTypeJSON)

	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}
