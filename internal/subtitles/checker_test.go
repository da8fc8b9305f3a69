package subtitles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jo-hoe/gosubgen/internal/probe"
)

type fakeReader struct {
	streams []probe.Stream
	err     error
	calls   int
}

func (f *fakeReader) Streams(ctx context.Context, path string) ([]probe.Stream, error) {
	f.calls++
	return f.streams, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestArtifactPath(t *testing.T) {
	cases := map[string]string{
		"/Volumes/TV/show/ep1.mkv":     "/Volumes/TV/show/ep1.subgen.medium.aa.srt",
		"/media/Movie.2020.1080p.mp4":  "/media/Movie.2020.1080p.subgen.medium.aa.srt",
		"/media/no-extension":          "/media/no-extension.subgen.medium.aa.srt",
		"/media/dir.with.dots/episode": "/media/dir.with.dots/episode.subgen.medium.aa.srt",
	}
	for in, want := range cases {
		if got := ArtifactPath(in, "medium", "aa"); got != want {
			t.Fatalf("ArtifactPath(%q) = %q, want %q", in, got, want)
		}
	}
	c := NewChecker(discardLogger(), &fakeReader{}, Options{Model: "medium", NameLanguage: "aa"})
	if got := c.ArtifactPath("/tv/a.mkv"); got != "/tv/a.subgen.medium.aa.srt" {
		t.Fatalf("Checker.ArtifactPath = %q", got)
	}
}

func TestArtifactExists(t *testing.T) {
	dir := t.TempDir()
	media := filepath.Join(dir, "ep1.mkv")
	c := NewChecker(discardLogger(), &fakeReader{}, Options{Model: "small", NameLanguage: "en"})
	if c.ArtifactExists(media) {
		t.Fatalf("artifact should not exist yet")
	}
	if err := os.WriteFile(filepath.Join(dir, "ep1.subgen.small.en.srt"), nil, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	if !c.ArtifactExists(media) {
		t.Fatalf("empty artifact file should still count as existing")
	}
}

func TestHasInternalLanguage_ExactMatchOnSubtitleStreams(t *testing.T) {
	reader := &fakeReader{streams: []probe.Stream{
		{Index: 0, Type: probe.TypeVideo},
		{Index: 1, Type: probe.TypeAudio, Language: "eng"},
		{Index: 2, Type: probe.TypeSubtitle, Language: "en"},
		{Index: 3, Type: probe.TypeSubtitle, Language: "ENG"},
	}}
	c := NewChecker(discardLogger(), reader, Options{SkipLanguage: "eng", FailOpen: true})
	found, err := c.HasInternalLanguage(context.Background(), "/a.mkv")
	if err != nil {
		t.Fatalf("HasInternalLanguage: %v", err)
	}
	if found {
		t.Fatalf("audio eng, subtitle en and ENG must not match eng")
	}

	reader.streams = append(reader.streams, probe.Stream{Index: 4, Type: probe.TypeSubtitle, Language: "eng"})
	found, err = c.HasInternalLanguage(context.Background(), "/a.mkv")
	if err != nil || !found {
		t.Fatalf("expected match, got %v, %v", found, err)
	}
}

func TestHasInternalLanguage_ProbeFailure(t *testing.T) {
	reader := &fakeReader{err: errors.New("moov atom not found")}

	open := NewChecker(discardLogger(), reader, Options{SkipLanguage: "eng", FailOpen: true})
	found, err := open.HasInternalLanguage(context.Background(), "/a.mkv")
	if err != nil || found {
		t.Fatalf("fail-open should report absence, got %v, %v", found, err)
	}

	closed := NewChecker(discardLogger(), reader, Options{SkipLanguage: "eng", FailOpen: false})
	if _, err := closed.HasInternalLanguage(context.Background(), "/a.mkv"); err == nil {
		t.Fatalf("fail-closed should return the probe error")
	}
}

func TestHasInternalLanguage_DisabledSkipsProbe(t *testing.T) {
	reader := &fakeReader{err: errors.New("should not be called")}
	c := NewChecker(discardLogger(), reader, Options{SkipLanguage: ""})
	found, err := c.HasInternalLanguage(context.Background(), "/a.mkv")
	if err != nil || found {
		t.Fatalf("disabled check = %v, %v", found, err)
	}
	if reader.calls != 0 {
		t.Fatalf("reader should not be called, got %d calls", reader.calls)
	}
}
