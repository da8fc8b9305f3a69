package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jo-hoe/gosubgen/internal/common"
)

// Scratch hands out private working directories for engine output.
type Scratch struct {
	baseDir string
}

// NewScratch creates a scratch area under baseDir/scratch.
func NewScratch(baseDir string) *Scratch {
	return &Scratch{baseDir: filepath.Join(baseDir, common.ScratchDirName)}
}

// BaseDir returns the root of all scratch directories.
func (s *Scratch) BaseDir() string { return s.baseDir }

// Dir creates a fresh directory and returns it with a cleanup function that
// removes it. The caller should always invoke the cleanup function.
func (s *Scratch) Dir() (string, func() error, error) {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("ensure scratch dir: %w", err)
	}
	dir := filepath.Join(s.baseDir, randomHex(16))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	cleanup := func() error {
		return os.RemoveAll(dir)
	}
	return dir, cleanup, nil
}

// Reset removes leftovers from a previous run.
func (s *Scratch) Reset() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("reset scratch dir: %w", err)
	}
	return nil
}

// WriteArtifact writes r to path next to the media file, truncating any
// existing file. The write is not atomic: a crash mid-copy leaves a partial
// file behind, which later admission checks treat as already generated.
func WriteArtifact(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("ensure artifact dir: %w", err)
	}
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create artifact: %w", err)
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		_ = dst.Close()
		return n, fmt.Errorf("write artifact: %w", err)
	}
	if err := dst.Close(); err != nil {
		return n, fmt.Errorf("close artifact: %w", err)
	}
	return n, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
