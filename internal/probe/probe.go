// Package probe reads container stream metadata through ffprobe's JSON output.
//
// Only the fields needed for subtitle decisions are decoded: stream type,
// codec and the language tag exactly as stored in the container.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Stream types as reported in ffprobe's codec_type field.
const (
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeSubtitle = "subtitle"
)

// Stream describes a single stream in the media container.
type Stream struct {
	Index    int
	Type     string
	Codec    string
	Language string
}

// Prober executes ffprobe against media files.
type Prober struct {
	binary string
	output func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New returns a Prober for the given ffprobe binary ("" selects "ffprobe" on PATH).
func New(binary string) *Prober {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary, output: runOutput}
}

// WithCommandOutput replaces process execution (for testing).
func (p *Prober) WithCommandOutput(fn func(ctx context.Context, name string, args ...string) ([]byte, error)) *Prober {
	p.output = fn
	return p
}

// Streams lists the streams of the container at path.
func (p *Prober) Streams(ctx context.Context, path string) ([]Stream, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ffprobe: empty path")
	}
	out, err := p.output(ctx, p.binary, "-v", "error", "-hide_banner", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Tags      map[string]string `json:"tags"`
}

// ParseJSON converts raw ffprobe JSON output into streams.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) ([]Stream, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	streams := make([]Stream, 0, len(raw.Streams))
	for _, s := range raw.Streams {
		streams = append(streams, Stream{
			Index:    s.Index,
			Type:     s.CodecType,
			Codec:    s.CodecName,
			Language: languageTag(s.Tags),
		})
	}
	return streams, nil
}

// languageTag returns the "language" tag. Matroska muxers sometimes emit
// upper-case tag keys; the value itself is never altered.
func languageTag(tags map[string]string) string {
	if v, ok := tags["language"]; ok {
		return v
	}
	for k, v := range tags {
		if strings.EqualFold(k, "language") {
			return v
		}
	}
	return ""
}
