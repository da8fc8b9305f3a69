package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jo-hoe/gosubgen/internal/storage"
)

const (
	highlightOpen  = `<font color="#00ff00">`
	highlightClose = `</font>`
)

// WriteSRT renders segments as SubRip. Segments without timed words fall
// back to a single cue even when wordLevel is set.
func WriteSRT(w io.Writer, result Result, wordLevel bool) error {
	index := 1
	cue := func(start, end float64, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", index, formatTimestamp(start), formatTimestamp(end), text)
		index++
		return err
	}

	for _, seg := range result.Segments {
		if !wordLevel || !hasTimedWords(seg) {
			if err := cue(seg.Start, seg.End, seg.Text); err != nil {
				return err
			}
			continue
		}
		for i, word := range seg.Words {
			if !word.Timed {
				continue
			}
			if err := cue(word.Start, word.End, highlighted(seg.Words, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteArtifact serializes result to outputPath. Shared by all engines.
func WriteArtifact(ctx context.Context, result Result, outputPath string, wordLevel bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteSRT(&buf, result, wordLevel); err != nil {
		return fmt.Errorf("render srt: %w", err)
	}
	if _, err := storage.WriteArtifact(outputPath, &buf); err != nil {
		return err
	}
	return nil
}

func hasTimedWords(seg Segment) bool {
	for _, w := range seg.Words {
		if w.Timed {
			return true
		}
	}
	return false
}

func highlighted(words []Word, current int) string {
	parts := make([]string, 0, len(words))
	for i, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		if i == current {
			text = highlightOpen + text + highlightClose
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// formatTimestamp renders seconds as HH:MM:SS,mmm.
func formatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	ms %= 3_600_000
	m := ms / 60_000
	ms %= 60_000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
