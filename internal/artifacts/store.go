// Package artifacts stores generated images under stable per-job keys and
// maps them to public references.
//
// Keys follow book_<jobID>_<identifier>.<ext>. Writing the same key twice
// replaces the earlier file, so retried uploads never leave duplicates.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"bookture/internal/config"
	"bookture/internal/fileutil"
	"bookture/internal/services"
)

// Identifiers used by the pipeline stages.
const (
	CharacterSheet = "character_sheet"
	BookCover      = "book_cover"
)

// PageIdentifier returns the identifier for a unit's illustration.
func PageIdentifier(ordinal int) string {
	return fmt.Sprintf("page_%d", ordinal)
}

// Artifact is a generated binary ready for storage.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Store persists artifacts and returns a publicly resolvable reference.
type Store interface {
	Put(ctx context.Context, jobID, identifier string, artifact Artifact) (string, error)
	Fetch(ctx context.Context, ref string) (Artifact, error)
}

var identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// Key builds the storage key for an artifact.
func Key(jobID, identifier, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("book_%s_%s.%s", jobID, identifier, ext)
}

// Extension maps an image content type to a file extension.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "bin"
	}
}

// Local writes artifacts into a directory and publishes them under baseURL.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal returns a Local store rooted at dir.
func NewLocal(dir, baseURL string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "init", "artifact directory is empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// NewFromConfig builds the local store from [paths] and [storage].
func NewFromConfig(cfg *config.Config) (*Local, error) {
	if cfg == nil {
		return nil, errors.New("artifacts: config is nil")
	}
	return NewLocal(cfg.Paths.ArtifactDir, cfg.ArtifactBaseURL())
}

// Dir returns the directory holding stored artifacts.
func (l *Local) Dir() string {
	return l.dir
}

// Put stores the artifact and returns its public reference.
func (l *Local) Put(ctx context.Context, jobID, identifier string, artifact Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return "", services.Wrap(services.ErrValidation, "artifacts", "put", "invalid job id", nil)
	}
	if !identifierPattern.MatchString(identifier) {
		return "", services.Wrap(services.ErrValidation, "artifacts", "put", fmt.Sprintf("invalid identifier %q", identifier), nil)
	}
	if len(artifact.Data) == 0 {
		return "", services.Wrap(services.ErrValidation, "artifacts", "put", "artifact is empty", nil)
	}

	key := Key(jobID, identifier, Extension(artifact.ContentType))
	if err := fileutil.WriteFileAtomic(filepath.Join(l.dir, key), artifact.Data, 0o644); err != nil {
		return "", fmt.Errorf("store artifact %s: %w", key, err)
	}
	return l.Ref(key), nil
}

// Ref maps a key to its public reference.
func (l *Local) Ref(key string) string {
	if l.baseURL == "" {
		return filepath.Join(l.dir, key)
	}
	return l.baseURL + "/" + path.Clean(key)
}

// Read returns a stored artifact by key.
func (l *Local) Read(key string) ([]byte, error) {
	if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return nil, services.Wrap(services.ErrValidation, "artifacts", "read", "invalid key", nil)
	}
	data, err := os.ReadFile(filepath.Join(l.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, services.Wrap(services.ErrNotFound, "artifacts", "read", key, err)
	}
	return data, err
}

// Fetch loads an artifact previously returned by Put.
func (l *Local) Fetch(ctx context.Context, ref string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	key, ok := l.keyForRef(ref)
	if !ok {
		return Artifact{}, services.Wrap(services.ErrNotFound, "artifacts", "fetch", "reference is not held by this store: "+ref, nil)
	}
	data, err := l.Read(key)
	if err != nil {
		return Artifact{}, err
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Artifact{Data: data, ContentType: contentType}, nil
}

func (l *Local) keyForRef(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if l.baseURL != "" && strings.HasPrefix(ref, l.baseURL+"/") {
		return strings.TrimPrefix(ref, l.baseURL+"/"), true
	}
	if filepath.Dir(ref) == filepath.Clean(l.dir) {
		return filepath.Base(ref), true
	}
	return "", false
}
