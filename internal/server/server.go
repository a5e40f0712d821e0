// Package server exposes the workspace over HTTP: session management,
// conversation intents, workflow and simulation views, and report export.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/user/urbanflow/internal/monitor"
	"github.com/user/urbanflow/internal/orchestrator"
	"github.com/user/urbanflow/internal/simulation"
	"github.com/user/urbanflow/internal/state"
	"github.com/user/urbanflow/internal/types"
	"github.com/user/urbanflow/internal/workspace"
)

// Server is the HTTP handler for the workspace API. Mutating intents are
// routed through the per-session queue so no two intents for the same
// session interleave.
type Server struct {
	registry    *workspace.Registry
	queue       *workspace.Queue
	sessions    *state.SessionStore
	transcripts *state.TranscriptStore
	reports     *state.ReportStore
	monitor     *monitor.Monitor
	mux         *http.ServeMux
}

// NewServer creates a Server. The monitor may be nil, in which case /health
// reports no backend mode.
func NewServer(registry *workspace.Registry, queue *workspace.Queue, sessions *state.SessionStore, transcripts *state.TranscriptStore, reports *state.ReportStore, mon *monitor.Monitor) *Server {
	s := &Server{
		registry:    registry,
		queue:       queue,
		sessions:    sessions,
		transcripts: transcripts,
		reports:     reports,
		monitor:     mon,
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleMessages)
	s.mux.HandleFunc("GET /api/sessions/{id}/workflow", s.handleWorkflow)
	s.mux.HandleFunc("GET /api/sessions/{id}/simulation", s.handleSimulation)
	s.mux.HandleFunc("POST /api/sessions/{id}/messages", s.handlePostMessage)
	s.mux.HandleFunc("POST /api/sessions/{id}/form", s.handleResolveForm)
	s.mux.HandleFunc("POST /api/sessions/{id}/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/sessions/{id}/export", s.handleExport)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.monitor != nil {
		resp["mode"] = string(s.monitor.Mode())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type sessionResponse struct {
	SessionID    string `json:"session_id"`
	SessionKey   string `json:"session_key"`
	Mode         string `json:"mode"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int64  `json:"message_count"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		slog.Error("list sessions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionResponse{
			SessionID:    string(sess.SessionID),
			SessionKey:   string(sess.SessionKey),
			Mode:         sess.Mode,
			CreatedAt:    sess.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:    sess.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			MessageCount: sess.MessageCount,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// createSessionRequest is the JSON body for POST /api/sessions.
type createSessionRequest struct {
	SessionKey string `json:"session_key"`
	Seed       bool   `json:"seed"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SessionKey == "" {
		http.Error(w, `{"error":"session_key is required"}`, http.StatusBadRequest)
		return
	}

	sess, err := s.registry.ResolveOrCreate(r.Context(), types.SessionKey(req.SessionKey), req.Seed)
	if err != nil {
		slog.Error("resolve session failed", "session_key", req.SessionKey, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"session_id":  string(sess.ID),
		"session_key": string(sess.Key),
	})
}

// resolveSession returns the live session for the path id, writing a 404
// when the id is unknown.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (*orchestrator.Session, bool) {
	id := types.SessionID(r.PathValue("id"))
	sess, ok := s.registry.Get(id)
	if !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(r.PathValue("id"))
	sess, ok := s.registry.Get(id)
	if !ok {
		// Not live; serve the archived transcript if one exists.
		msgs, err := s.transcripts.List(r.Context(), id)
		if err != nil || len(msgs) == 0 {
			http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
			return
		}
		writeMessages(w, msgs)
		return
	}
	writeMessages(w, sess.Messages())
}

func writeMessages(w http.ResponseWriter, msgs []types.Message) {
	if msgs == nil {
		msgs = []types.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Steps())
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.Simulation())
}

// postMessageRequest is the JSON body for POST /api/sessions/{id}/messages.
type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var (
		reply    types.Message
		replyErr error
	)
	err := s.queue.Do(sess.ID, func(ctx context.Context) {
		reply, replyErr = sess.OnUserText(ctx, req.Text)
	})
	if err != nil {
		slog.Error("enqueue message failed", "session_id", string(sess.ID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if replyErr != nil {
		if errors.Is(replyErr, orchestrator.ErrEmptyInput) {
			http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
			return
		}
		slog.Error("message intent failed", "session_id", string(sess.ID), "error", replyErr)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	s.touch(r, sess)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// resolveFormRequest is the JSON body for POST /api/sessions/{id}/form.
type resolveFormRequest struct {
	FormID   int64  `json:"form_id"`
	OptionID string `json:"option_id"`
}

func (s *Server) handleResolveForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req resolveFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var formErr error
	err := s.queue.Do(sess.ID, func(ctx context.Context) {
		formErr = sess.OnFormResolved(ctx, types.MessageID(req.FormID), req.OptionID)
	})
	if err != nil {
		slog.Error("enqueue form resolution failed", "session_id", string(sess.ID), "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if formErr != nil {
		switch {
		case errors.Is(formErr, orchestrator.ErrUnknownForm):
			http.Error(w, `{"error":"form not found"}`, http.StatusNotFound)
		case errors.Is(formErr, orchestrator.ErrUnknownOption):
			http.Error(w, `{"error":"unknown option"}`, http.StatusBadRequest)
		case errors.Is(formErr, simulation.ErrAlreadyRunning):
			http.Error(w, `{"error":"simulation already running"}`, http.StatusConflict)
		default:
			slog.Error("form intent failed", "session_id", string(sess.ID), "error", formErr)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		}
		return
	}

	s.touch(r, sess)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	sess.RequestComparison()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

var exportContentTypes = map[string]string{
	"pdf": "application/pdf",
	"csv": "text/csv",
	"vtk": "application/octet-stream",
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pdf"
	}
	contentType, ok := exportContentTypes[format]
	if !ok {
		http.Error(w, `{"error":"unknown format"}`, http.StatusBadRequest)
		return
	}

	data := sess.ExportReport(r.Context(), format)
	if data == nil {
		http.Error(w, `{"error":"no report available"}`, http.StatusNotFound)
		return
	}

	if s.reports != nil {
		snap := sess.Simulation()
		if _, err := s.reports.Put(r.Context(), sess.ID, snap.SessionID, format, data); err != nil {
			slog.Warn("archive report failed", "session_id", string(sess.ID), "error", err)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// touch refreshes the session index after a successful mutating intent.
func (s *Server) touch(r *http.Request, sess *orchestrator.Session) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.Touch(r.Context(), sess.ID, int64(sess.Log().Len())); err != nil {
		slog.Warn("touch session failed", "session_id", string(sess.ID), "error", err)
	}
}
