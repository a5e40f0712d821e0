package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/internal/state"
	"github.com/user/urbanflow/internal/types"
	"github.com/user/urbanflow/internal/workspace"
)

type testEnv struct {
	srv   *Server
	queue *workspace.Queue
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	sessions := state.NewSessionStore(dir)
	transcripts := state.NewTranscriptStore(dir)
	reports := state.NewReportStore(dir)

	at := time.Date(2024, 5, 12, 15, 0, 0, 0, time.UTC)
	gw := gateway.New(nil, gateway.WithClock(func() time.Time { return at }))

	registry := workspace.NewRegistry(gw, sessions, transcripts)
	queue := workspace.NewQueue(2)
	queue.Start(context.Background())
	t.Cleanup(queue.Stop)

	return &testEnv{
		srv:   NewServer(registry, queue, sessions, transcripts, reports, nil),
		queue: queue,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T, key string, seed bool) string {
	t.Helper()
	body := fmt.Sprintf(`{"session_key":%q,"seed":%v}`, key, seed)
	w := e.do(t, http.MethodPost, "/api/sessions", body)
	if w.Code != http.StatusOK {
		t.Fatalf("create session: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["session_id"] == "" {
		t.Fatal("expected session_id in response")
	}
	return resp["session_id"]
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestCreateSessionRequiresKey(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodPost, "/api/sessions", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestPostMessageRoundTrip(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":"audit the eastern sector"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var reply types.Message
	if err := json.NewDecoder(w.Body).Decode(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Sender != types.SenderAgent {
		t.Errorf("expected agent reply, got %s", reply.Sender)
	}
	if !strings.Contains(reply.Text, "audit the eastern sector") {
		t.Errorf("demo reply should echo the message, got %q", reply.Text)
	}

	// Both the user message and the reply are in the log.
	w = env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var msgs []types.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestPostMessageEmptyText(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", `{"text":""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, http.MethodGet, "/api/sessions/nope/workflow", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestSeededSessionWorkflowAndForm(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:seeded", true)

	w := env.do(t, http.MethodGet, "/api/sessions/"+id+"/workflow", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var steps []types.WorkflowStep
	if err := json.NewDecoder(w.Body).Decode(&steps); err != nil {
		t.Fatal(err)
	}
	if len(steps) != 4 {
		t.Fatalf("expected 4 workflow stages, got %d", len(steps))
	}

	// The seeded conversation ends with the resolution form.
	w = env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	var msgs []types.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	form := msgs[len(msgs)-1]
	if form.Kind != types.MessageForm {
		t.Fatalf("expected form message, got %s", form.Kind)
	}

	body := fmt.Sprintf(`{"form_id":%d,"option_id":"std"}`, form.ID)
	w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/form", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	// Run is now in flight.
	w = env.do(t, http.MethodGet, "/api/sessions/"+id+"/simulation", "")
	var snap map[string]any
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap["state"] == "not_started" {
		t.Errorf("expected run in flight, got state %v", snap["state"])
	}
}

func TestResolveFormUnknownOption(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:seeded", true)

	w := env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	var msgs []types.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	form := msgs[len(msgs)-1]

	body := fmt.Sprintf(`{"form_id":%d,"option_id":"ultra"}`, form.ID)
	w = env.do(t, http.MethodPost, "/api/sessions/"+id+"/form", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	// Nothing was appended by the rejected intent.
	w = env.do(t, http.MethodGet, "/api/sessions/"+id+"/messages", "")
	var after []types.Message
	if err := json.NewDecoder(w.Body).Decode(&after); err != nil {
		t.Fatal(err)
	}
	if len(after) != len(msgs) {
		t.Errorf("rejected form intent must not append messages: %d != %d", len(after), len(msgs))
	}
}

func TestResolveFormUnknownMessage(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/form", `{"form_id":999,"option_id":"std"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestCompareSignal(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/compare", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestExportWithoutRun(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/export?format=pdf", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 without a finished run, got %d", w.Code)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	env := setupServer(t)
	id := env.createSession(t, "api:alpha", false)

	w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/export?format=docx", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	env := setupServer(t)
	env.createSession(t, "api:one", false)
	env.createSession(t, "api:two", false)

	w := env.do(t, http.MethodGet, "/api/sessions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var result []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(result))
	}
	for _, sess := range result {
		if sess["mode"] != "demo" {
			t.Errorf("expected demo mode, got %v", sess["mode"])
		}
	}
}
