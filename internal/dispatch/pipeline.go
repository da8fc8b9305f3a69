package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/media"
	"github.com/jo-hoe/gosubgen/internal/resolver"
)

// Status summarizes what happened to one webhook notification.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusSkipped Status = "skipped"
	StatusIgnored Status = "ignored"
	StatusError   Status = "error"
)

// Outcome is reported back to the webhook caller. Reason never carries
// internal error detail.
type Outcome struct {
	Status       Status `json:"status"`
	Reason       string `json:"reason,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	Path         string `json:"-"`
	ArtifactPath string `json:"-"`
}

// PathResolver turns an event into a media server path.
type PathResolver interface {
	Resolve(ctx context.Context, ev media.Event) (string, error)
}

// Pipeline takes a normalized event through filtering, resolution, path
// mapping and dispatch.
type Pipeline struct {
	log        *slog.Logger
	events     config.EventsConfig
	resolver   PathResolver
	mapper     media.PathMapper
	dispatcher *Dispatcher
}

func NewPipeline(log *slog.Logger, events config.EventsConfig, res PathResolver, mapper media.PathMapper, d *Dispatcher) *Pipeline {
	return &Pipeline{log: log, events: events, resolver: res, mapper: mapper, dispatcher: d}
}

// Enabled reports whether notifications of kind trigger transcription.
func (p *Pipeline) Enabled(kind media.Kind) bool {
	switch kind {
	case media.KindAdded:
		return p.events.ProcessAdded
	case media.KindPlayed:
		return p.events.ProcessPlayed
	default:
		return false
	}
}

// Handle never returns an error: failures are logged here and summarized in
// the Outcome so the HTTP layer can always answer 200.
func (p *Pipeline) Handle(ctx context.Context, ev media.Event) Outcome {
	log := p.log.With("provider", ev.Provider, "event", ev.Kind)
	if !p.Enabled(ev.Kind) {
		log.Debug("event type disabled, ignoring")
		return Outcome{Status: StatusIgnored, Reason: "event type disabled"}
	}

	path, err := p.resolver.Resolve(ctx, ev)
	if err != nil {
		var resErr *resolver.ResolutionError
		if errors.As(err, &resErr) {
			log.Error("could not resolve media path", "identifier", resErr.Identifier, "err", resErr.Err)
		} else {
			log.Error("could not resolve media path", "identifier", ev.Identifier, "err", err)
		}
		return Outcome{Status: StatusError, Reason: "path resolution failed"}
	}

	local := p.mapper.Map(path)
	if local != path {
		log.Debug("path mapped", "from", path, "to", local)
	}

	out, err := p.dispatcher.Dispatch(ctx, ev, local)
	if err != nil {
		log.Error("could not queue transcription", "path", local, "err", err)
		out.Status = StatusError
		out.Reason = "transcription queue unavailable"
	}
	return out
}
