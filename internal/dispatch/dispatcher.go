// Package dispatch admits media paths for transcription. It owns the
// admission table and hands admitted jobs to the worker queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/gosubgen/internal/jobs"
	"github.com/jo-hoe/gosubgen/internal/media"
	"github.com/jo-hoe/gosubgen/internal/metrics"
	"github.com/jo-hoe/gosubgen/internal/util"
)

// Veto is the reason an admission was refused. It is a normal outcome, not
// an error.
type Veto string

const (
	VetoNone             Veto = ""
	VetoInFlight         Veto = "already in transcription list"
	VetoInternalSubtitle Veto = "internal subtitle in skip language present"
	VetoArtifactExists   Veto = "subtitle already generated"
	VetoProbeFailed      Veto = "container probe failed"
)

// Decision is the result of the admission checks for one path.
type Decision struct {
	Admitted     bool
	Veto         Veto
	ArtifactPath string
}

// Checker answers the two "already has subtitles" questions.
type Checker interface {
	HasInternalLanguage(ctx context.Context, mediaPath string) (bool, error)
	ArtifactExists(mediaPath string) bool
	ArtifactPath(mediaPath string) string
}

// Enqueuer accepts admitted work without blocking.
type Enqueuer interface {
	Enqueue(item jobs.WorkItem) error
}

// Recorder receives admission metrics. *metrics.Metrics implements it.
type Recorder interface {
	Admission(outcome, reason string)
	SetInFlight(n int)
}

var _ Recorder = (*metrics.Metrics)(nil)

// Dispatcher runs admission and owns its AdmissionTable. Nothing else may
// insert into or remove from the table.
type Dispatcher struct {
	log     *slog.Logger
	table   *jobs.AdmissionTable
	checker Checker
	queue   Enqueuer
	store   jobs.Store
	metrics Recorder
	now     func() time.Time
}

// New creates a dispatcher with an empty admission table. rec may be nil.
func New(log *slog.Logger, checker Checker, queue Enqueuer, store jobs.Store, rec Recorder) *Dispatcher {
	return &Dispatcher{
		log:     log,
		table:   jobs.NewAdmissionTable(),
		checker: checker,
		queue:   queue,
		store:   store,
		metrics: rec,
		now:     time.Now,
	}
}

// InFlight returns a sorted snapshot of the paths currently owned by a job.
func (d *Dispatcher) InFlight() []string { return d.table.Paths() }

// TryAdmit reserves path and runs the admission checks. On admission the
// reservation is kept and the caller must eventually hand the path to the
// queue or release it. On a veto the reservation is already released.
//
// The reservation comes first so two concurrent callers for the same path
// cannot both pass the checks.
func (d *Dispatcher) TryAdmit(ctx context.Context, path string) Decision {
	if !d.table.Reserve(path) {
		d.log.Info("skipping, already in transcription list", "path", path)
		return d.veto(VetoInFlight, path, false)
	}
	d.setInFlight()

	found, err := d.checker.HasInternalLanguage(ctx, path)
	if err != nil {
		d.log.Warn("skipping, container could not be probed", "path", path, "err", err)
		return d.veto(VetoProbeFailed, path, true)
	}
	if found {
		d.log.Info("skipping, file already has an internal subtitle", "path", path)
		return d.veto(VetoInternalSubtitle, path, true)
	}

	artifact := d.checker.ArtifactPath(path)
	if d.checker.ArtifactExists(path) {
		d.log.Info("skipping, subtitle already generated", "path", path, "artifact", artifact)
		return d.veto(VetoArtifactExists, path, true)
	}
	return Decision{Admitted: true, ArtifactPath: artifact}
}

// Check runs the admission checks without keeping the reservation.
func (d *Dispatcher) Check(ctx context.Context, path string) Decision {
	dec := d.TryAdmit(ctx, path)
	if dec.Admitted {
		d.release(path)
	}
	return dec
}

// Dispatch admits path for ev and enqueues a job. The returned Outcome is
// StatusQueued or StatusSkipped; an error means the path was admitted but
// could not be handed off, in which case it has been released again.
func (d *Dispatcher) Dispatch(ctx context.Context, ev media.Event, path string) (Outcome, error) {
	dec := d.TryAdmit(ctx, path)
	if !dec.Admitted {
		return Outcome{Status: StatusSkipped, Reason: string(dec.Veto), Path: path}, nil
	}

	job := jobs.Job{
		ID:           util.NewID(),
		Path:         path,
		ArtifactPath: dec.ArtifactPath,
		Provider:     string(ev.Provider),
		Event:        string(ev.Kind),
		Stage:        jobs.StageQueued,
		CreatedAt:    d.now().UTC(),
	}
	if err := d.store.CreateJob(&job); err != nil {
		d.reject(path, "history unavailable")
		return Outcome{Status: StatusError, Path: path}, fmt.Errorf("record job: %w", err)
	}

	item := jobs.WorkItem{
		Job: job,
		Cleanup: func() error {
			if !d.release(path) {
				return fmt.Errorf("path %s was not in the admission table", path)
			}
			return nil
		},
	}
	if err := d.queue.Enqueue(item); err != nil {
		d.reject(path, err.Error())
		if serr := d.store.SaveError(job.ID, err.Error(), d.now().UTC()); serr != nil {
			d.log.Warn("failed to record rejected job", "job_id", job.ID, "err", serr)
		}
		return Outcome{Status: StatusError, Path: path, JobID: job.ID}, fmt.Errorf("enqueue %s: %w", path, err)
	}

	d.record(metrics.OutcomeAdmitted, "")
	d.log.Info("transcription queued", "job_id", job.ID, "path", path, "artifact", job.ArtifactPath, "event", ev.String())
	return Outcome{Status: StatusQueued, JobID: job.ID, Path: path, ArtifactPath: job.ArtifactPath}, nil
}

func (d *Dispatcher) veto(v Veto, path string, reserved bool) Decision {
	if reserved {
		d.release(path)
	}
	d.record(metrics.OutcomeVetoed, string(v))
	return Decision{Veto: v}
}

func (d *Dispatcher) reject(path, reason string) {
	d.release(path)
	d.record(metrics.OutcomeRejected, reason)
}

func (d *Dispatcher) release(path string) bool {
	ok := d.table.Release(path)
	d.setInFlight()
	return ok
}

func (d *Dispatcher) record(outcome, reason string) {
	if d.metrics != nil {
		d.metrics.Admission(outcome, reason)
	}
}

func (d *Dispatcher) setInFlight() {
	if d.metrics != nil {
		d.metrics.SetInFlight(d.table.Len())
	}
}
