package store

import (
	"path/filepath"
	"sort"
	"sync"

	"healthrelay/internal/domain"
)

const connectionsFile = "connections.json"

// ConnectionFileStore caches the sessions a consumer has created. It lives
// in its own file so clearing it never touches the key store.
type ConnectionFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewConnectionFileStore returns a ConnectionFileStore rooted at dir.
func NewConnectionFileStore(dir string) *ConnectionFileStore {
	return &ConnectionFileStore{dir: dir}
}

// UpsertConnection stores or replaces conn by id.
func (s *ConnectionFileStore) UpsertConnection(conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, connectionsFile)
	conns := make(map[string]domain.Connection)
	if err := readJSON(path, &conns); err != nil {
		return err
	}
	if prev, ok := conns[conn.ID]; ok && conn.CreatedAt.IsZero() {
		conn.CreatedAt = prev.CreatedAt
	}
	conns[conn.ID] = conn
	return writeJSON(path, conns, 0o600)
}

// GetConnection looks up a connection by id.
func (s *ConnectionFileStore) GetConnection(id string) (domain.Connection, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make(map[string]domain.Connection)
	if err := readJSON(filepath.Join(s.dir, connectionsFile), &conns); err != nil {
		return domain.Connection{}, false, err
	}
	conn, ok := conns[id]
	return conn, ok, nil
}

// ListConnections returns every cached connection, oldest first.
func (s *ConnectionFileStore) ListConnections() ([]domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make(map[string]domain.Connection)
	if err := readJSON(filepath.Join(s.dir, connectionsFile), &conns); err != nil {
		return nil, err
	}
	out := make([]domain.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteAllConnections removes the cache file.
func (s *ConnectionFileStore) DeleteAllConnections() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return removeFile(filepath.Join(s.dir, connectionsFile))
}

// Compile-time assertion that ConnectionFileStore implements domain.ConnectionStore.
var _ domain.ConnectionStore = (*ConnectionFileStore)(nil)
