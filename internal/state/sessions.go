// internal/state/sessions.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/urbanflow/internal/types"
)

// SessionStore is a JSON-file-backed index of workspace sessions.
// It stores index data in sessions/sessions.json and creates per-session
// directories at sessions/<sessionID>/.
type SessionStore struct {
	root string
	mu   sync.RWMutex
}

// NewSessionStore creates a file-backed SessionStore rooted at the given
// directory.
func NewSessionStore(root string) *SessionStore {
	return &SessionStore{root: root}
}

func (s *SessionStore) indexPath() string {
	return filepath.Join(s.root, "sessions", "sessions.json")
}

func (s *SessionStore) sessionsDir() string {
	return filepath.Join(s.root, "sessions")
}

func (s *SessionStore) sessionDir(id types.SessionID) string {
	return filepath.Join(s.root, "sessions", string(id))
}

func (s *SessionStore) loadIndex() (map[types.SessionKey]*types.SessionIndex, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[types.SessionKey]*types.SessionIndex), nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}

	var sessions []*types.SessionIndex
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("unmarshal session index: %w", err)
	}

	index := make(map[types.SessionKey]*types.SessionIndex, len(sessions))
	for _, sess := range sessions {
		index[sess.SessionKey] = sess
	}
	return index, nil
}

func (s *SessionStore) saveIndex(index map[types.SessionKey]*types.SessionIndex) error {
	sessions := make([]*types.SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}

	if err := os.MkdirAll(s.sessionsDir(), 0o755); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, s.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp index: %w", err)
	}
	return nil
}

// Record registers a session in the index, creating its directory. Mode is
// "live" or "demo" at the time the session was opened. Recording an already
// indexed key updates the existing entry.
func (s *SessionStore) Record(_ context.Context, id types.SessionID, key types.SessionKey, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}

	now := time.Now()
	if existing, ok := index[key]; ok {
		existing.Mode = mode
		existing.UpdatedAt = now
	} else {
		index[key] = &types.SessionIndex{
			SessionID:  id,
			SessionKey: key,
			Mode:       mode,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	if err := s.saveIndex(index); err != nil {
		return err
	}
	if err := os.MkdirAll(s.sessionDir(id), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return nil
}

// Lookup returns the indexed session for a key, if any.
func (s *SessionStore) Lookup(_ context.Context, key types.SessionKey) (*types.SessionIndex, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, false, err
	}
	sess, ok := index[key]
	return sess, ok, nil
}

// Get returns the session with the given ID.
func (s *SessionStore) Get(_ context.Context, id types.SessionID) (*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	for _, sess := range index {
		if sess.SessionID == id {
			return sess, nil
		}
	}
	return nil, fmt.Errorf("session not found: %s", id)
}

// List returns all indexed sessions.
func (s *SessionStore) List(_ context.Context) ([]*types.SessionIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	sessions := make([]*types.SessionIndex, 0, len(index))
	for _, sess := range index {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Touch bumps UpdatedAt and the archived message count for a session.
func (s *SessionStore) Touch(_ context.Context, id types.SessionID, messageCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, sess := range index {
		if sess.SessionID == id {
			sess.UpdatedAt = time.Now()
			sess.MessageCount = messageCount
			return s.saveIndex(index)
		}
	}
	return fmt.Errorf("session not found: %s", id)
}

// Remove deletes a session from the index along with its directory.
func (s *SessionStore) Remove(_ context.Context, id types.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	for key, sess := range index {
		if sess.SessionID == id {
			delete(index, key)
			if err := s.saveIndex(index); err != nil {
				return err
			}
			return os.RemoveAll(s.sessionDir(id))
		}
	}
	return fmt.Errorf("session not found: %s", id)
}
