package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	uploadsDir     = "uploads"
	normalizedDir  = "normalized"
	transcriptsDir = "transcripts"
)

// LocalStore lays out derived files under a managed media root:
// uploads/<stored>, normalized/<stem>.wav, transcripts/<jobid>.json.
// Per-job file names are server-generated, so jobs never contend for
// the same path.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{uploadsDir, normalizedDir, transcriptsDir} {
		if err := os.MkdirAll(filepath.Join(abs, dir), os.ModePerm); err != nil {
			return nil, err
		}
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

// SaveUpload writes the stream under uploads/ with a generated name.
// The original filename only contributes its extension; it is never
// used for path construction.
func (s *LocalStore) SaveUpload(r io.Reader, originalName string) (absPath, storedName string, err error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	storedName = strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	absPath = filepath.Join(s.root, uploadsDir, storedName)

	f, err := os.Create(absPath)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(absPath)
		return "", "", err
	}
	return absPath, storedName, nil
}

// NormalizedPathFor maps a stored upload name to its normalized WAV path.
func (s *LocalStore) NormalizedPathFor(storedName string) string {
	stem := strings.TrimSuffix(storedName, filepath.Ext(storedName))
	return filepath.Join(s.root, normalizedDir, stem+".wav")
}

func (s *LocalStore) TranscriptPathFor(jobID uuid.UUID) string {
	return filepath.Join(s.root, transcriptsDir, fmt.Sprintf("%s.json", jobID))
}

// Rel converts an absolute path under the media root into the
// storage-relative mirror kept on the job record.
func (s *LocalStore) Rel(absPath string) string {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

// WriteTranscript caches the raw transcript next to the other
// artifacts so exports survive a lost full_text column.
func (s *LocalStore) WriteTranscript(jobID uuid.UUID, v any) (string, error) {
	path := s.TranscriptPathFor(jobID)
	blob, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *LocalStore) ReadTranscript(jobID uuid.UUID, v any) error {
	raw, err := os.ReadFile(s.TranscriptPathFor(jobID))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Remove deletes the given artifact paths best-effort and returns how
// many could not be removed. A missing file is not a failure; the job
// row is the source of truth and cleanup is advisory.
func (s *LocalStore) Remove(ctx context.Context, paths ...string) int {
	failed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("path", p).Msg("failed to remove artifact")
			failed++
		}
	}
	return failed
}
