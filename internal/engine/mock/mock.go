package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Engine is a stand-in that sleeps for a configured delay and returns a
// short synthetic transcript. Useful for wiring tests and demos.
type Engine struct {
	delay time.Duration
}

func New(cfg config.MockSettings) *Engine {
	return &Engine{delay: cfg.Delay}
}

func (e *Engine) Name() string { return "mock" }

func (e *Engine) Transcribe(ctx context.Context, mediaPath string) (engine.Result, error) {
	if e.delay > 0 {
		timer := time.NewTimer(e.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return engine.Result{}, engine.Wrap("transcribe", mediaPath, ctx.Err())
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return engine.Result{}, engine.Wrap("transcribe", mediaPath, err)
	}

	name := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	words := []string{"mock", "transcript", "for", name}
	seg := engine.Segment{Start: 0, End: float64(len(words)), Text: strings.Join(words, " ")}
	for i, w := range words {
		seg.Words = append(seg.Words, engine.Word{Text: w, Start: float64(i), End: float64(i) + 0.9, Timed: true})
	}
	return engine.Result{Language: "en", Segments: []engine.Segment{seg}}, nil
}

func (e *Engine) Serialize(ctx context.Context, result engine.Result, outputPath string, wordLevel bool) error {
	if err := engine.WriteArtifact(ctx, result, outputPath, wordLevel); err != nil {
		return engine.Wrap("serialize", outputPath, fmt.Errorf("mock: %w", err))
	}
	return nil
}
