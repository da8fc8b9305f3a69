package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/config"
	"github.com/jo-hoe/gosubgen/internal/engine"
	"github.com/jo-hoe/gosubgen/internal/storage"
)

var _ engine.Engine = (*Engine)(nil)

const (
	outputFormat   = "json"
	cpuDevice      = "cpu"
	cpuComputeType = "int8"
)

// CommandRunner executes name with args. Replaced in tests.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Engine runs the whisperx CLI once per media file.
type Engine struct {
	log     *slog.Logger
	cfg     config.TranscriptionConfig
	scratch *storage.Scratch
	run     CommandRunner
}

// New creates a whisperx engine that writes intermediate output below scratch.
func New(logger *slog.Logger, cfg config.TranscriptionConfig, scratch *storage.Scratch) *Engine {
	e := &Engine{
		log:     logger,
		cfg:     cfg,
		scratch: scratch,
	}
	e.run = e.exec
	return e
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Engine) WithCommandRunner(runner CommandRunner) {
	e.run = runner
}

func (e *Engine) Name() string { return "whisperx" }

func (e *Engine) Transcribe(ctx context.Context, mediaPath string) (engine.Result, error) {
	if mediaPath == "" {
		return engine.Result{}, engine.Wrap("transcribe", mediaPath, fmt.Errorf("media path required"))
	}
	outDir, cleanup, err := e.scratch.Dir()
	if err != nil {
		return engine.Result{}, engine.Wrap("transcribe", mediaPath, err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			e.log.Warn("failed to remove whisperx scratch dir", "dir", outDir, "err", err)
		}
	}()

	args := e.buildArgs(mediaPath, outDir)
	e.log.Debug("running whisperx", "command", e.cfg.Command, "args", strings.Join(args, " "))
	if err := e.run(ctx, e.cfg.Command, args...); err != nil {
		return engine.Result{}, engine.Wrap("transcribe", mediaPath, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	result, err := loadResult(filepath.Join(outDir, baseName+"."+outputFormat))
	if err != nil {
		return engine.Result{}, engine.Wrap("transcribe", mediaPath, err)
	}
	return result, nil
}

func (e *Engine) Serialize(ctx context.Context, result engine.Result, outputPath string, wordLevel bool) error {
	return engine.Wrap("serialize", outputPath, engine.WriteArtifact(ctx, result, outputPath, wordLevel))
}

func (e *Engine) buildArgs(source, outputDir string) []string {
	args := []string{
		source,
		"--model", e.cfg.Model,
		"--model_dir", e.cfg.ModelDir,
		"--output_dir", outputDir,
		"--output_format", outputFormat,
		"--threads", strconv.Itoa(e.cfg.Threads),
		"--device", e.cfg.Device,
	}
	if e.cfg.Device == cpuDevice {
		args = append(args, "--compute_type", cpuComputeType)
	}
	return args
}

func (e *Engine) exec(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load to weights_only=true, which breaks the
	// pyannote checkpoints whisperx loads.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, truncate(strings.TrimSpace(string(output)), 400))
	}
	return nil
}

type payload struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string   `json:"word"`
			Start *float64 `json:"start"`
			End   *float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
}

func loadResult(jsonPath string) (engine.Result, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return engine.Result{}, fmt.Errorf("read whisperx output: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return engine.Result{}, fmt.Errorf("decode whisperx output: %w", err)
	}

	result := engine.Result{Language: p.Language}
	for _, s := range p.Segments {
		seg := engine.Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)}
		for _, w := range s.Words {
			word := engine.Word{Text: w.Word}
			// whisperx leaves numerals and symbols unaligned
			if w.Start != nil && w.End != nil {
				word.Start, word.End, word.Timed = *w.Start, *w.End, true
			}
			seg.Words = append(seg.Words, word)
		}
		result.Segments = append(result.Segments, seg)
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
