// Package workspace manages the live orchestrator sessions behind the
// daemon's transport surfaces, serializing intents per session and writing
// conversations through to the on-disk archive.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/internal/orchestrator"
	"github.com/user/urbanflow/internal/state"
	"github.com/user/urbanflow/internal/types"
)

// Registry resolves transport-level session keys to live orchestrator
// sessions, creating them on first use. Each created session's log is
// subscribed to the transcript archive.
type Registry struct {
	gw          *gateway.Gateway
	sessions    *state.SessionStore
	transcripts *state.TranscriptStore
	opts        []orchestrator.Option

	mu   sync.RWMutex
	live map[types.SessionKey]*orchestrator.Session
	byID map[types.SessionID]*orchestrator.Session
}

// NewRegistry creates a Registry. The stores may be nil to disable
// archiving (used by the ephemeral chat REPL).
func NewRegistry(gw *gateway.Gateway, sessions *state.SessionStore, transcripts *state.TranscriptStore, opts ...orchestrator.Option) *Registry {
	return &Registry{
		gw:          gw,
		sessions:    sessions,
		transcripts: transcripts,
		opts:        opts,
		live:        make(map[types.SessionKey]*orchestrator.Session),
		byID:        make(map[types.SessionID]*orchestrator.Session),
	}
}

// ResolveOrCreate returns the live session for the key, creating and
// indexing one if needed. A freshly created session is seeded with the demo
// conversation when seed is true.
func (r *Registry) ResolveOrCreate(ctx context.Context, key types.SessionKey, seed bool) (*orchestrator.Session, error) {
	r.mu.Lock()
	if sess, ok := r.live[key]; ok {
		r.mu.Unlock()
		return sess, nil
	}

	sess := orchestrator.New(key, r.gw, r.opts...)
	r.live[key] = sess
	r.byID[sess.ID] = sess
	r.mu.Unlock()

	if r.transcripts != nil {
		id := sess.ID
		sess.Log().Subscribe(func(msg types.Message) {
			if err := r.transcripts.Append(context.Background(), id, msg); err != nil {
				slog.Error("archive message failed", "session_id", string(id), "error", err)
			}
		})
	}
	if r.sessions != nil {
		mode := "demo"
		if r.gw.Configured() {
			mode = "live"
		}
		if err := r.sessions.Record(ctx, sess.ID, key, mode); err != nil {
			return nil, fmt.Errorf("record session: %w", err)
		}
	}

	if seed {
		sess.SeedDemo()
	}
	return sess, nil
}

// Get returns the live session with the given id.
func (r *Registry) Get(id types.SessionID) (*orchestrator.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[id]
	return sess, ok
}

// All returns every live session.
func (r *Registry) All() []*orchestrator.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*orchestrator.Session, 0, len(r.byID))
	for _, sess := range r.byID {
		out = append(out, sess)
	}
	return out
}
