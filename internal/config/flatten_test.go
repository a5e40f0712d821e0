package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"backend": map[string]any{
			"base_url": "http://localhost:8000",
			"api_key":  "key-test123",
		},
		"log_level": "info",
	}
	got := Flatten(m)
	if got["backend.base_url"] != "http://localhost:8000" {
		t.Errorf("expected backend.base_url, got %v", got["backend.base_url"])
	}
	if got["backend.api_key"] != "key-test123" {
		t.Errorf("expected backend.api_key=key-test123, got %v", got["backend.api_key"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
	if len(got) != 3 {
		t.Errorf("expected 3 keys, got %d", len(got))
	}
}

func TestFlatten_DeeplyNested(t *testing.T) {
	m := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
	}
	got := Flatten(m)
	if got["a.b.c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", got["a.b.c"])
	}
	if len(got) != 1 {
		t.Errorf("expected 1 key, got %d", len(got))
	}
}

func TestUnflatten_Nested(t *testing.T) {
	flat := map[string]any{
		"backend.base_url": "http://localhost:8000",
		"backend.api_key":  "key-test123",
		"log_level":        "info",
	}
	got := Unflatten(flat)
	backend, ok := got["backend"].(map[string]any)
	if !ok {
		t.Fatalf("expected backend to be map, got %T", got["backend"])
	}
	if backend["base_url"] != "http://localhost:8000" {
		t.Errorf("expected backend.base_url, got %v", backend["base_url"])
	}
	if backend["api_key"] != "key-test123" {
		t.Errorf("expected backend.api_key=key-test123, got %v", backend["api_key"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.urbanflow",
		"log_level": "debug",
		"backend": map[string]any{
			"base_url": "http://localhost:8000",
			"api_key":  "key-test123456",
		},
		"telegram": map[string]any{
			"token": "bot-token-abc",
		},
	}

	flat := Flatten(original)
	restored := Unflatten(flat)

	if restored["data_dir"] != original["data_dir"] {
		t.Errorf("data_dir mismatch: %v != %v", restored["data_dir"], original["data_dir"])
	}
	if restored["log_level"] != original["log_level"] {
		t.Errorf("log_level mismatch: %v != %v", restored["log_level"], original["log_level"])
	}

	backend := restored["backend"].(map[string]any)
	origBackend := original["backend"].(map[string]any)
	if backend["base_url"] != origBackend["base_url"] {
		t.Errorf("backend.base_url mismatch: %v != %v", backend["base_url"], origBackend["base_url"])
	}
	if backend["api_key"] != origBackend["api_key"] {
		t.Errorf("backend.api_key mismatch: %v != %v", backend["api_key"], origBackend["api_key"])
	}

	tg := restored["telegram"].(map[string]any)
	origTg := original["telegram"].(map[string]any)
	if tg["token"] != origTg["token"] {
		t.Errorf("telegram.token mismatch: %v != %v", tg["token"], origTg["token"])
	}
}

func TestMaskSecrets_AllSecrets(t *testing.T) {
	flat := map[string]any{
		"backend.base_url": "http://localhost:8000",
		"backend.api_key":  "key-test123456",
		"telegram.token":   "123456:ABCdefGHIjkl",
		"log_level":        "info",
	}
	got := MaskSecrets(flat)

	if got["backend.base_url"] != "http://localhost:8000" {
		t.Errorf("expected backend.base_url unchanged, got %v", got["backend.base_url"])
	}
	if got["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", got["log_level"])
	}

	if got["backend.api_key"] != "***3456" {
		t.Errorf("expected backend.api_key=***3456, got %v", got["backend.api_key"])
	}
	if got["telegram.token"] != "***Ijkl" {
		t.Errorf("expected telegram.token=***Ijkl, got %v", got["telegram.token"])
	}
}

func TestMaskSecrets_EmptySecret(t *testing.T) {
	flat := map[string]any{
		"backend.api_key": "",
	}
	got := MaskSecrets(flat)
	if got["backend.api_key"] != "" {
		t.Errorf("expected empty string to remain empty, got %v", got["backend.api_key"])
	}
}

func TestMaskSecrets_ShortSecret(t *testing.T) {
	flat := map[string]any{
		"backend.api_key": "ab",
	}
	got := MaskSecrets(flat)
	if got["backend.api_key"] != "***ab" {
		t.Errorf("expected ***ab for short secret, got %v", got["backend.api_key"])
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("backend.api_key") {
		t.Error("backend.api_key should be secret")
	}
	if !IsSecretKey("telegram.token") {
		t.Error("telegram.token should be secret")
	}
	if IsSecretKey("backend.base_url") {
		t.Error("backend.base_url should not be secret")
	}
}
