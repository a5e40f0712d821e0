package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/internal/state"
	"github.com/user/urbanflow/internal/types"
)

func testGateway() *gateway.Gateway {
	at := time.Date(2024, 5, 12, 15, 0, 0, 0, time.UTC)
	return gateway.New(nil, gateway.WithClock(func() time.Time { return at }))
}

func TestRegistryResolveOrCreate(t *testing.T) {
	dir := t.TempDir()
	sessions := state.NewSessionStore(dir)
	transcripts := state.NewTranscriptStore(dir)
	reg := NewRegistry(testGateway(), sessions, transcripts)
	ctx := context.Background()

	key := types.NewSessionKey("api", "alpha")
	sess, err := reg.ResolveOrCreate(ctx, key, false)
	if err != nil {
		t.Fatal(err)
	}

	// Same key resolves to the same live session.
	again, err := reg.ResolveOrCreate(ctx, key, false)
	if err != nil {
		t.Fatal(err)
	}
	if again != sess {
		t.Error("expected same session instance for same key")
	}

	// Indexed as demo (no backend configured).
	idx, ok, err := sessions.Lookup(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected indexed session, got %v", err)
	}
	if idx.Mode != "demo" {
		t.Errorf("expected demo mode, got %q", idx.Mode)
	}

	got, ok := reg.Get(sess.ID)
	if !ok || got != sess {
		t.Error("expected lookup by id to find the session")
	}
}

func TestRegistryArchivesAppends(t *testing.T) {
	dir := t.TempDir()
	sessions := state.NewSessionStore(dir)
	transcripts := state.NewTranscriptStore(dir)
	reg := NewRegistry(testGateway(), sessions, transcripts)
	ctx := context.Background()

	sess, err := reg.ResolveOrCreate(ctx, types.NewSessionKey("api", "beta"), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.OnUserText(ctx, "archive me"); err != nil {
		t.Fatal(err)
	}

	archived, err := transcripts.List(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 2 {
		t.Fatalf("expected user + agent messages archived, got %d", len(archived))
	}
	if archived[0].Text != "archive me" {
		t.Errorf("unexpected archived message %+v", archived[0])
	}
}

func TestRegistrySeededSession(t *testing.T) {
	reg := NewRegistry(testGateway(), nil, nil)
	sess, err := reg.ResolveOrCreate(context.Background(), types.NewSessionKey("cli", "1"), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Messages()) != 4 {
		t.Errorf("expected seeded conversation, got %d messages", len(sess.Messages()))
	}
}
