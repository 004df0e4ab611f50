package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

func TestNewUnknownType(t *testing.T) {
	_, err := New("x", config.ModelConfig{Type: "not_real"})
	if err == nil {
		t.Fatal("expected an error for an unknown model type")
	}
}

// TestRequireShapeRejectsFIMOnlyWithWrongShape confirms a FIM-only adapter
// called with a non-FIM prompt fails with PromptShapeMismatch.
func TestRequireShapeRejectsFIMOnlyWithWrongShape(t *testing.T) {
	b, err := New("mistral", config.ModelConfig{Type: config.ModelTypeMistralFIM, FimEndpoint: "http://example.invalid"})
	if err != nil {
		t.Fatal(err)
	}
	err = RequireShape(b, "mistral", prompt.Prompt{Shape: prompt.ShapeContextAndCode})
	if err == nil {
		t.Fatal("expected PromptShapeMismatch")
	}
	if _, ok := err.(*lspaierrors.PromptShapeMismatchError); !ok {
		t.Fatalf("expected *PromptShapeMismatchError, got %T", err)
	}
}

func TestRequireShapeAcceptsMatchingFIM(t *testing.T) {
	b, _ := New("mistral", config.ModelConfig{Type: config.ModelTypeMistralFIM})
	if err := RequireShape(b, "mistral", prompt.Prompt{Shape: prompt.ShapeFIM}); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAICompletions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": "hello"}},
		})
	}))
	defer srv.Close()

	b, _ := New("oa", config.ModelConfig{Type: config.ModelTypeOpenAI, CompletionsEndpoint: srv.URL, Model: "gpt"})
	out, err := b.DoGenerate(context.Background(), prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello" {
		t.Fatalf("got %q", out)
	}
}

func TestOpenAIChatAndErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "rate limited"}})
	}))
	defer srv.Close()

	b, _ := New("oa", config.ModelConfig{Type: config.ModelTypeOpenAI, ChatEndpoint: srv.URL, Model: "gpt"})
	params := map[string]any{"messages": []any{map[string]any{"role": "user", "content": "{CODE}"}}}
	_, err := b.DoGenerate(context.Background(), prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "x"}, params)
	pe, ok := err.(*lspaierrors.ProviderError)
	if !ok {
		t.Fatalf("expected *ProviderError, got %T (%v)", err, err)
	}
	if pe.Body != "rate limited" {
		t.Fatalf("got %q", pe.Body)
	}
}

func TestOpenAIUnknownResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totally": "unexpected"}`))
	}))
	defer srv.Close()

	b, _ := New("oa", config.ModelConfig{Type: config.ModelTypeOpenAI, CompletionsEndpoint: srv.URL})
	_, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, nil)
	if _, ok := err.(*lspaierrors.UnknownResponseError); !ok {
		t.Fatalf("expected *UnknownResponseError, got %T", err)
	}
}

func TestOpenAITransportError(t *testing.T) {
	b, _ := New("oa", config.ModelConfig{Type: config.ModelTypeOpenAI, CompletionsEndpoint: "http://127.0.0.1:0"})
	_, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, nil)
	if _, ok := err.(*lspaierrors.TransportError); !ok {
		t.Fatalf("expected *TransportError, got %T", err)
	}
}

func TestAnthropicRequiresSystemFirst(t *testing.T) {
	b, _ := New("anthro", config.ModelConfig{Type: config.ModelTypeAnthropic})
	params := map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}}
	_, err := b.DoGenerate(context.Background(), prompt.Prompt{}, params)
	if err == nil {
		t.Fatal("expected an error when the first message is not role system")
	}
}

func TestAnthropicSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("missing anthropic-version header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"text": "answer"}},
		})
	}))
	defer srv.Close()

	b, _ := New("anthro", config.ModelConfig{Type: config.ModelTypeAnthropic, ChatEndpoint: srv.URL})
	params := map[string]any{"messages": []any{
		map[string]any{"role": "system", "content": "sys"},
		map[string]any{"role": "user", "content": "{CODE}"},
	}}
	out, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, params)
	if err != nil {
		t.Fatal(err)
	}
	if out != "answer" {
		t.Fatalf("got %q", out)
	}
}

func TestMistralFIMSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["prompt"] != "pre" || body["suffix"] != "suf" {
			t.Errorf("unexpected body: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "mid"}}},
		})
	}))
	defer srv.Close()

	b, _ := New("mistral", config.ModelConfig{Type: config.ModelTypeMistralFIM, FimEndpoint: srv.URL})
	out, err := b.DoGenerate(context.Background(), prompt.Prompt{Shape: prompt.ShapeFIM, Prefix: "pre", Suffix: "suf"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "mid" {
		t.Fatalf("got %q", out)
	}
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": "done"})
	}))
	defer srv.Close()

	b, _ := New("ollama", config.ModelConfig{Type: config.ModelTypeOllama, GenerateEndpoint: srv.URL})
	out, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "done" {
		t.Fatalf("got %q", out)
	}
}

func TestGeminiSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "gen"}}},
			}},
		})
	}))
	defer srv.Close()

	b, _ := New("gemini", config.ModelConfig{Type: config.ModelTypeGemini, ChatEndpoint: srv.URL, Model: "gemini-pro", AuthToken: "tok"})
	params := map[string]any{"contents": []any{
		map[string]any{"role": "user", "parts": []any{map[string]any{"text": "{CODE}"}}},
	}}
	out, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, params)
	if err != nil {
		t.Fatal(err)
	}
	if out != "gen" {
		t.Fatalf("got %q", out)
	}
}

func TestGGUFStubFails(t *testing.T) {
	b, _ := New("local", config.ModelConfig{Type: config.ModelTypeLlamaCpp})
	_, err := b.DoGenerate(context.Background(), prompt.Prompt{Code: "x"}, nil)
	if err == nil {
		t.Fatal("expected the stub runtime to fail")
	}
}
