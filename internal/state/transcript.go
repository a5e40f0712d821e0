// internal/state/transcript.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/urbanflow/internal/types"
)

// TranscriptStore is a JSONL-backed append-only archive of conversation
// messages, one file per session at sessions/<sessionID>/messages.jsonl.
type TranscriptStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewTranscriptStore creates a file-backed TranscriptStore rooted at the
// given directory.
func NewTranscriptStore(root string) *TranscriptStore {
	return &TranscriptStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

func (t *TranscriptStore) getLock(sessionID types.SessionID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lock, ok := t.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	t.locks[sessionID] = lock
	return lock
}

func (t *TranscriptStore) path(sessionID types.SessionID) string {
	return filepath.Join(t.root, "sessions", string(sessionID), "messages.jsonl")
}

// Append archives one message at the end of the session's transcript file.
func (t *TranscriptStore) Append(_ context.Context, sessionID types.SessionID, msg types.Message) error {
	lock := t.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(t.path(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	f, err := os.OpenFile(t.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// List returns the archived messages for a session in append order.
func (t *TranscriptStore) List(_ context.Context, sessionID types.SessionID) ([]types.Message, error) {
	lock := t.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(t.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	defer f.Close()

	var messages []types.Message
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var msg types.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript file: %w", err)
	}
	return messages, nil
}

// Count returns the number of archived messages for a session.
func (t *TranscriptStore) Count(ctx context.Context, sessionID types.SessionID) (int64, error) {
	messages, err := t.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return int64(len(messages)), nil
}
