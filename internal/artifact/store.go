package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dgnsrekt/web_agent/internal/backend"
)

var idRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Artifact kinds.
const (
	KindScreenshot = "screenshot"
	KindPDF        = "pdf"
)

// Meta describes one stored artifact. The ID doubles as the opaque handle
// returned to tool callers; collaborators resolve it to bytes through Read.
type Meta struct {
	ID        string    `json:"id"`
	TabID     string    `json:"tab_id"`
	Kind      string    `json:"kind"`
	Format    string    `json:"format"`
	URL       string    `json:"url,omitempty"`
	FullPage  bool      `json:"full_page,omitempty"`
	Landscape bool      `json:"landscape,omitempty"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages artifact files on disk, one payload file plus a JSON
// metadata sidecar per artifact.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !idRe.MatchString(id) {
		return backend.NewError(backend.KindValidation, fmt.Sprintf("invalid artifact id: %q", id), nil)
	}
	return nil
}

// Save writes both the payload file and metadata sidecar.
func (s *Store) Save(meta Meta, payload []byte) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payloadPath := filepath.Join(s.dir, meta.ID+"."+meta.Format)
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	if err := os.WriteFile(payloadPath, payload, 0o644); err != nil {
		return fmt.Errorf("artifact store: write payload: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(payloadPath)
		return fmt.Errorf("artifact store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(payloadPath)
		return fmt.Errorf("artifact store: write meta: %w", err)
	}

	return nil
}

// Get reads artifact metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := s.validateID(id); err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMetaLocked(id)
}

// Read resolves an artifact handle to its payload bytes and content type.
func (s *Store) Read(id string) ([]byte, string, error) {
	if err := s.validateID(id); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.readMetaLocked(id)
	if err != nil {
		return nil, "", err
	}

	payload, err := os.ReadFile(filepath.Join(s.dir, meta.ID+"."+meta.Format))
	if err != nil {
		return nil, "", fmt.Errorf("artifact store: read payload: %w", err)
	}

	contentType := "application/octet-stream"
	switch meta.Format {
	case "png":
		contentType = "image/png"
	case "jpeg":
		contentType = "image/jpeg"
	case "pdf":
		contentType = "application/pdf"
	}
	return payload, contentType, nil
}

// List returns all artifacts sorted by creation time, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("artifact store: glob: %w", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("artifact meta read failed", "path", path, "error", err)
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("artifact meta unmarshal failed", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// Delete removes an artifact's payload and metadata.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMetaLocked(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dir, id+".json")); err != nil {
		return fmt.Errorf("artifact store: delete meta: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, id+"."+meta.Format)); err != nil && !os.IsNotExist(err) {
		slog.Debug("artifact payload cleanup failed", "id", id, "error", err)
	}
	return nil
}

func (s *Store) readMetaLocked(id string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, backend.NewError(backend.KindNotFound, "artifact not found: "+id, nil)
		}
		return Meta{}, fmt.Errorf("artifact store: read meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("artifact store: unmarshal meta: %w", err)
	}
	return meta, nil
}
