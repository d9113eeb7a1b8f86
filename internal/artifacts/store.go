// Package artifacts implements a content-addressed blob store for tool
// outputs: files, images, or any other byte payload a tool wants to hand
// back to the caller by reference instead of inline content.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexusengine/core/pkg/models"
)

// ErrNotFound is returned when an artifact's content is requested but no
// blob exists for its SHA-256 digest.
var ErrNotFound = errors.New("artifacts: not found")

// ErrInvalidDigest is returned when a digest string is not a 64-character
// lowercase hex SHA-256, or would resolve outside the store's base
// directory.
var ErrInvalidDigest = errors.New("artifacts: invalid digest")

// Store is a content-addressed, filesystem-backed artifact store. Blobs
// live at <base>/<sha[0:2]>/<sha>, so the base directory holds at most
// 256 shard directories; each shard holds every blob with that prefix.
type Store struct {
	base   string
	logger *slog.Logger
}

// New returns a Store rooted at base. base is created with 0700
// permissions if it does not already exist.
func New(base string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return nil, fmt.Errorf("artifacts: create base dir: %w", err)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("artifacts: resolve base dir: %w", err)
	}
	return &Store{base: abs, logger: logger}, nil
}

// Put writes payload.Content and returns its ArtifactRef. Writing is
// idempotent: storing identical content twice returns the same digest and
// leaves the existing blob untouched.
func (s *Store) Put(ctx context.Context, payload models.ArtifactPayload) (models.ArtifactRef, error) {
	sum := sha256.Sum256(payload.Content)
	digest := hex.EncodeToString(sum[:])

	path, err := s.pathFor(digest)
	if err != nil {
		return models.ArtifactRef{}, err
	}

	if _, err := os.Stat(path); err == nil {
		s.logger.Debug("artifact already stored", "sha256", digest)
		return s.refFor(digest, path, payload), nil
	} else if !os.IsNotExist(err) {
		return models.ArtifactRef{}, fmt.Errorf("artifacts: stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifacts: create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+digest+"-*")
	if err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifacts: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(payload.Content); err != nil {
		tmp.Close()
		return models.ArtifactRef{}, fmt.Errorf("artifacts: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return models.ArtifactRef{}, fmt.Errorf("artifacts: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifacts: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return models.ArtifactRef{}, fmt.Errorf("artifacts: rename into place: %w", err)
	}

	s.logger.Info("artifact stored", "sha256", digest, "bytes", len(payload.Content))
	return s.refFor(digest, path, payload), nil
}

// Get returns the content of the artifact with the given digest.
func (s *Store) Get(ctx context.Context, digest string) ([]byte, error) {
	path, err := s.pathFor(digest)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %s: %w", path, err)
	}
	return b, nil
}

// Open streams the content of the artifact with the given digest.
func (s *Store) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	path, err := s.pathFor(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: open %s: %w", path, err)
	}
	return f, nil
}

// Exists reports whether a blob for digest is already stored.
func (s *Store) Exists(ctx context.Context, digest string) (bool, error) {
	path, err := s.pathFor(digest)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("artifacts: stat %s: %w", path, err)
	}
	return false, nil
}

// Delete removes the blob for digest, if present. Deleting a missing
// digest is not an error.
func (s *Store) Delete(ctx context.Context, digest string) error {
	path, err := s.pathFor(digest)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: delete %s: %w", path, err)
	}
	return nil
}

// pathFor validates digest and returns its on-disk path, guaranteed to
// resolve strictly inside s.base.
func (s *Store) pathFor(digest string) (string, error) {
	if len(digest) != 64 || strings.ToLower(digest) != digest {
		return "", ErrInvalidDigest
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", ErrInvalidDigest
		}
	}

	path := filepath.Join(s.base, digest[:2], digest)
	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidDigest
	}
	return path, nil
}

func (s *Store) refFor(digest, path string, payload models.ArtifactPayload) models.ArtifactRef {
	return models.ArtifactRef{
		SHA256:       digest,
		StoredPath:   path,
		OriginalName: payload.OriginalName,
		MediaType:    payload.MediaType,
		Description:  payload.Description,
		SizeBytes:    int64(len(payload.Content)),
	}
}
