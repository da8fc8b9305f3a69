// Package subtitles decides whether a media file already has the subtitle we
// would generate, either embedded in the container or as a sidecar artifact.
package subtitles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/common"
	"github.com/jo-hoe/gosubgen/internal/probe"
)

// StreamReader lists the streams of a media container.
type StreamReader interface {
	Streams(ctx context.Context, path string) ([]probe.Stream, error)
}

// Options configures a Checker.
type Options struct {
	Model        string // ASR model name, part of the artifact name
	NameLanguage string // language code written into the artifact name
	SkipLanguage string // embedded subtitle language that makes generation unnecessary; "" disables the check
	FailOpen     bool   // treat unreadable containers as having no subtitles
}

// Checker implements the embedded-language and artifact-exists checks.
type Checker struct {
	log    *slog.Logger
	reader StreamReader
	opts   Options
	suffix string
}

func NewChecker(log *slog.Logger, reader StreamReader, opts Options) *Checker {
	return &Checker{
		log:    log,
		reader: reader,
		opts:   opts,
		suffix: ArtifactSuffix(opts.Model, opts.NameLanguage),
	}
}

// ArtifactSuffix is ".subgen.<model>.<lang>.srt".
func ArtifactSuffix(model, lang string) string {
	return "." + common.ArtifactMarker + "." + model + "." + lang + common.ArtifactExtension
}

// ArtifactPath derives the sidecar path: the media path without its extension
// followed by the artifact suffix.
func ArtifactPath(mediaPath, model, lang string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	return base + ArtifactSuffix(model, lang)
}

// ArtifactPath returns the sidecar path for mediaPath under this checker's naming.
func (c *Checker) ArtifactPath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + c.suffix
}

// ArtifactExists reports whether a generated subtitle is already on disk. The
// file content is not validated, so a partially written artifact counts.
func (c *Checker) ArtifactExists(mediaPath string) bool {
	_, err := os.Stat(c.ArtifactPath(mediaPath))
	return err == nil
}

// SkipLanguage returns the configured embedded subtitle language.
func (c *Checker) SkipLanguage() string { return c.opts.SkipLanguage }

// HasInternalLanguage reports whether any subtitle stream carries exactly the
// configured language tag. "eng" and "en" are different tags here.
//
// When the container cannot be read the result depends on FailOpen: true
// logs and reports no subtitle, false returns the error.
func (c *Checker) HasInternalLanguage(ctx context.Context, mediaPath string) (bool, error) {
	want := c.opts.SkipLanguage
	if want == "" {
		return false, nil
	}
	streams, err := c.reader.Streams(ctx, mediaPath)
	if err != nil {
		if c.opts.FailOpen {
			c.logger().Warn("container probe failed; assuming no embedded subtitles", "path", mediaPath, "err", err)
			return false, nil
		}
		return false, fmt.Errorf("probe container: %w", err)
	}
	for _, s := range streams {
		if s.Type == probe.TypeSubtitle && s.Language == want {
			c.logger().Debug("embedded subtitle found", "path", mediaPath, "language", want, "stream", s.Index)
			return true, nil
		}
	}
	c.logger().Debug("no embedded subtitle in language", "path", mediaPath, "language", want)
	return false, nil
}

func (c *Checker) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default()
	}
	return c.log
}
