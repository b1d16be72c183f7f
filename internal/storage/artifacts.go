// Package storage persists synthesized waveforms as WAV artifacts on local disk, with an
// optional mirror to an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/tts/audio"
	"github.com/book-expert/narration-service/internal/tts/ttsutils"
	"github.com/google/uuid"
)

const (
	timestampLayout = "20060102_150405"
	wavExtension    = ".wav"
	suffixLength    = 8
	maxNameAttempts = 4
)

const (
	logFmtArtifactWritten = "Wrote artifact %s (%s, %d Hz)"
	logFmtNameTaken       = "Artifact name %s already exists, adding a unique suffix"
	logFmtMirrorFailed    = "Failed to mirror artifact %s to object store: %v"
	errFmtStore           = "%w: failed to store artifact: %w"
)

var (
	// ErrNameExhausted is returned when no free artifact name could be found.
	ErrNameExhausted = errors.New("could not find a free artifact name")
	// ErrInvalidFilename is returned by Load for names that are not plain file names.
	ErrInvalidFilename = errors.New("invalid artifact filename")
)

// Option configures an ArtifactStore.
type Option func(*ArtifactStore)

// WithClock replaces the clock used for filename timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ArtifactStore) { s.now = now }
}

// WithMirror uploads every stored artifact to store under its filename. Mirror failures
// are logged; the local artifact remains authoritative.
func WithMirror(store core.ObjectStore) Option {
	return func(s *ArtifactStore) { s.mirror = store }
}

// ArtifactStore writes waveforms to an output directory. Names follow
// "{YYYYMMDD_HHMMSS}_{snippet}.wav"; a name that is already taken gets a short random
// suffix, so an existing artifact is never overwritten.
type ArtifactStore struct {
	dir    string
	mirror core.ObjectStore
	now    func() time.Time
	log    *logger.Logger
}

// NewArtifactStore creates the store, creating dir when missing.
func NewArtifactStore(dir string, log *logger.Logger, opts ...Option) (*ArtifactStore, error) {
	dirErr := ttsutils.EnsureDir(dir)
	if dirErr != nil {
		return nil, dirErr
	}

	store := &ArtifactStore{
		dir: dir,
		now: time.Now,
		log: log,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Dir returns the output directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Store encodes waveform as 16-bit mono WAV and writes it under a name derived from
// sourceText. Failures wrap core.ErrGenerationFailed.
func (s *ArtifactStore) Store(ctx context.Context, waveform core.Waveform, sourceText string) (core.AudioArtifact, error) {
	base := s.now().Format(timestampLayout) + "_" + ttsutils.SanitizeSnippet(sourceText)

	filename, err := s.writeUnique(base, waveform)
	if err != nil {
		return core.AudioArtifact{}, fmt.Errorf(errFmtStore, core.ErrGenerationFailed, err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return core.AudioArtifact{}, fmt.Errorf(errFmtStore, core.ErrGenerationFailed, err)
	}

	artifact := core.AudioArtifact{
		Bytes:      data,
		SampleRate: waveform.SampleRate,
		Filename:   filename,
		SizeBytes:  int64(len(data)),
	}

	s.log.Info(logFmtArtifactWritten, filename, ttsutils.FormatFileSize(artifact.SizeBytes), artifact.SampleRate)

	if s.mirror != nil {
		mirrorErr := s.mirror.Upload(ctx, filename, data)
		if mirrorErr != nil {
			s.log.Warn(logFmtMirrorFailed, filename, mirrorErr)
		}
	}

	return artifact, nil
}

// writeUnique tries base first, then base with a uuid suffix, creating each candidate
// exclusively.
func (s *ArtifactStore) writeUnique(base string, waveform core.Waveform) (string, error) {
	candidate := base + wavExtension

	for range maxNameAttempts {
		writeErr := audio.WriteWAVFile(filepath.Join(s.dir, candidate), waveform)
		if writeErr == nil {
			return candidate, nil
		}

		if !errors.Is(writeErr, fs.ErrExist) {
			return "", writeErr
		}

		s.log.Warn(logFmtNameTaken, candidate)

		candidate = base + "_" + uniqueSuffix() + wavExtension
	}

	return "", fmt.Errorf("%w: %s", ErrNameExhausted, base)
}

func uniqueSuffix() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	return id[:suffixLength]
}

// Load reads a stored artifact back by filename.
func (s *ArtifactStore) Load(filename string) ([]byte, error) {
	if filename == "" || filepath.Base(filename) != filename || filepath.Ext(filename) != wavExtension {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", filename, err)
	}

	return data, nil
}
