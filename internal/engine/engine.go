package engine

import (
	"context"
	"fmt"
)

// Engine turns the audio of a media file into timed text.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string
	// Transcribe runs speech recognition on mediaPath. It blocks until the
	// engine finishes or ctx is done.
	Transcribe(ctx context.Context, mediaPath string) (Result, error)
	// Serialize renders result as SRT at outputPath. With wordLevel set,
	// every timed word gets its own cue with that word highlighted.
	Serialize(ctx context.Context, result Result, outputPath string, wordLevel bool) error
}

// Result is the timed transcript produced by an engine.
type Result struct {
	Language string
	Segments []Segment
}

// Segment is one cue worth of speech.
type Segment struct {
	Start float64 // seconds
	End   float64 // seconds
	Text  string
	Words []Word
}

// Word carries per-word timing when the engine aligned it.
type Word struct {
	Text  string
	Start float64
	End   float64
	Timed bool
}

// Error reports a failed engine call for a media file.
type Error struct {
	Op   string // transcribe or serialize
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error unless it is nil.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Err: err}
}
