package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScratch_DirAndCleanup(t *testing.T) {
	base := t.TempDir()
	s := NewScratch(base)

	dir, cleanup, err := s.Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if filepath.Dir(dir) != filepath.Join(base, "scratch") {
		t.Fatalf("scratch dir %q not under %q", dir, s.BaseDir())
	}
	if err := os.WriteFile(filepath.Join(dir, "out.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write into scratch: %v", err)
	}

	other, otherCleanup, err := s.Dir()
	if err != nil {
		t.Fatalf("second Dir: %v", err)
	}
	defer func() { _ = otherCleanup() }()
	if other == dir {
		t.Fatalf("scratch dirs must be unique")
	}

	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir removed, stat err=%v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(s.BaseDir()); !os.IsNotExist(err) {
		t.Fatalf("expected scratch base removed, stat err=%v", err)
	}
}

func TestWriteArtifact_CreatesAndTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Show", "ep1.subgen.medium.aa.srt")

	n, err := WriteArtifact(path, strings.NewReader("a much longer first version"))
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if n != int64(len("a much longer first version")) {
		t.Fatalf("bytes written = %d", n)
	}
	if _, err := WriteArtifact(path, strings.NewReader("short")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "short" {
		t.Fatalf("artifact content = %q, want truncated overwrite", got)
	}
}
