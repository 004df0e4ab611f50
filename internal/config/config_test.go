package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestParseMinimal(t *testing.T) {
	raw := json.RawMessage(`{"models": {"default": {"type": "open_ai", "model": "gpt-4"}}}`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Models["default"].Type != ModelTypeOpenAI {
		t.Fatalf("got %+v", cfg.Models["default"])
	}
}

func TestParseMissingOptions(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected an error for missing initializationOptions")
	}
}

func TestParseUnknownModelType(t *testing.T) {
	raw := json.RawMessage(`{"models": {"default": {"type": "not_a_real_backend"}}}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for unknown model type")
	}
}

func TestParseNoModels(t *testing.T) {
	raw := json.RawMessage(`{"models": {}}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error when models is empty")
	}
}

func TestParseCompletionReferencesUnknownModel(t *testing.T) {
	raw := json.RawMessage(`{
		"models": {"default": {"type": "ollama"}},
		"completion": {"model": "missing"}
	}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for an unresolvable completion.model")
	}
}

func TestParseCrawlDefaults(t *testing.T) {
	raw := json.RawMessage(`{
		"models": {"default": {"type": "ollama"}},
		"memory": {"file_store": {"crawl": {}}}
	}`)
	cfg, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	cr := cfg.Memory.FileStore.Crawl
	if cr.MaxFileSize != defaultMaxFileSize || cr.MaxCrawlMemory != defaultMaxCrawlMemory {
		t.Fatalf("defaults not applied: %+v", cr)
	}
	if len(cr.IgnoreGlobs) == 0 {
		t.Fatal("expected default ignore globs")
	}
}

func TestPostProcessDefaults(t *testing.T) {
	cc := &CompletionConfig{Model: "default"}
	if !cc.RemoveDuplicateStart() || !cc.RemoveDuplicateEnd() {
		t.Fatal("expected both trims to default true")
	}
}

func TestResolveAuthTokenFromEnv(t *testing.T) {
	os.Setenv("LSPAID_TEST_TOKEN", "secret")
	defer os.Unsetenv("LSPAID_TEST_TOKEN")

	m := ModelConfig{AuthTokenEnvVarName: "LSPAID_TEST_TOKEN"}
	if m.ResolveAuthToken() != "secret" {
		t.Fatalf("got %q", m.ResolveAuthToken())
	}
}

func TestResolveAuthTokenLiteralWins(t *testing.T) {
	m := ModelConfig{AuthToken: "literal", AuthTokenEnvVarName: "LSPAID_TEST_TOKEN_UNSET"}
	if m.ResolveAuthToken() != "literal" {
		t.Fatalf("got %q", m.ResolveAuthToken())
	}
}
