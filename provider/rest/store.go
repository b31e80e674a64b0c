package rest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-errors"
)

// SessionStore persists the current session between process runs. Load
// returns nil, nil when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*auth.ProviderSession, error)
	Save(ctx context.Context, session *auth.ProviderSession) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu      sync.Mutex
	session *auth.ProviderSession
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*auth.ProviderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.session), nil
}

func (s *MemoryStore) Save(_ context.Context, session *auth.ProviderSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = cloneSession(session)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// FileStore keeps the session as a JSON file readable by the owner only.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(context.Context) (*auth.ProviderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "read session file").
			WithMetadata(map[string]any{"path": s.path})
	}

	var session auth.ProviderSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "decode session file").
			WithMetadata(map[string]any{"path": s.path})
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

func (s *FileStore) Save(_ context.Context, session *auth.ProviderSession) error {
	if session == nil {
		return s.Clear(context.Background())
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "encode session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create session dir").
			WithMetadata(map[string]any{"path": dir})
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create session file")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.CategoryInternal, "chmod session file")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.CategoryInternal, "write session file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "close session file")
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "replace session file").
			WithMetadata(map[string]any{"path": s.path})
	}
	return nil
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CategoryInternal, "remove session file").
			WithMetadata(map[string]any{"path": s.path})
	}
	return nil
}
