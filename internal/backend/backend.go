// Package backend implements the six provider adapters: each one turns a
// Prompt into a provider-specific HTTP request (or, for the in-process GGUF
// case, a direct call into a local runtime) and decodes the provider's
// response back into the generated text the Orchestrator returns to the
// editor.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/standardbeagle/lspaid/internal/backend/ggufrt"
	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// Backend is the contract every adapter satisfies: do_generate(prompt,
// params) -> generated_text
type Backend interface {
	// PromptShape is the shape this backend requires. Adapters that accept
	// either shape (everything but Mistral-style FIM-only) return
	// ShapeContextAndCode as their declared default
	PromptShape() prompt.Shape
	DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error)
}

// sharedClient is the one *http.Client every HTTP-backed adapter shares. Its
// 2-minute Timeout bounds every request; earlier cancellation is left to the
// caller's context.
var sharedClient = &http.Client{Timeout: 2 * time.Minute}

// New constructs the adapter named by cfg.Type.
func New(name string, cfg config.ModelConfig) (Backend, error) {
	switch cfg.Type {
	case config.ModelTypeOpenAI:
		return &openAIAdapter{name: name, cfg: cfg, client: sharedClient}, nil
	case config.ModelTypeAnthropic:
		return &anthropicAdapter{name: name, cfg: cfg, client: sharedClient}, nil
	case config.ModelTypeMistralFIM:
		return &mistralFIMAdapter{name: name, cfg: cfg, client: sharedClient}, nil
	case config.ModelTypeOllama:
		return &ollamaAdapter{name: name, cfg: cfg, client: sharedClient}, nil
	case config.ModelTypeGemini:
		return &geminiAdapter{name: name, cfg: cfg, client: sharedClient}, nil
	case config.ModelTypeLlamaCpp:
		return &ggufAdapter{name: name, cfg: cfg, rt: ggufrt.NewStub()}, nil
	default:
		return nil, lspaierrors.NewConfigError("type", fmt.Errorf("unknown model type %q", cfg.Type))
	}
}

// RequireShape rejects a FIM-only adapter called with a non-FIM Prompt,
// returning a PromptShapeMismatch error naming the adapter and the shapes
// involved.
func RequireShape(b Backend, name string, p prompt.Prompt) error {
	if b.PromptShape() == prompt.ShapeFIM && p.Shape != prompt.ShapeFIM {
		return lspaierrors.NewPromptShapeMismatchError(name, prompt.ShapeFIM.String(), p.Shape.String())
	}
	return nil
}

// Parameter defaults applied when the caller omits them
const (
	defaultMaxTokens        = 64
	defaultTopP             = 0.95
	defaultTemperature      = 0.1
	defaultPresencePenalty  = 0.0
	defaultFrequencyPenalty = 0.0
)

func getFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func getInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func getString(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// chatMessage is the wire shape for the family of adapters that send
// role/content message arrays.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// substitute replaces the {CONTEXT} and {CODE} placeholders in a configured
// message template with the Prompt's fields
func substitute(s string, p prompt.Prompt) string {
	s = strings.ReplaceAll(s, "{CONTEXT}", p.Context)
	s = strings.ReplaceAll(s, "{CODE}", p.Code)
	return s
}

// buildMessages reads params["messages"] (a []any of {role, content} maps,
// as the editor configured it) and substitutes placeholders in each one.
func buildMessages(params map[string]any, p prompt.Prompt) ([]chatMessage, error) {
	raw, ok := params["messages"]
	if !ok {
		return nil, fmt.Errorf("backend: params.messages is required for a chat-shaped request")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("backend: params.messages must be an array")
	}
	msgs := make([]chatMessage, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		msgs = append(msgs, chatMessage{Role: role, Content: substitute(content, p)})
	}
	return msgs, nil
}

// errorEnvelope captures the handful of `{"error": ...}` shapes the six
// provider families use for their recognized error bodies.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

func (e errorEnvelope) message() (string, bool) {
	if len(e.Error) == 0 {
		return "", false
	}
	var asString string
	if err := json.Unmarshal(e.Error, &asString); err == nil {
		return asString, true
	}
	var asObject struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Error, &asObject); err == nil && asObject.Message != "" {
		return asObject.Message, true
	}
	return "", false
}

// httpPost sends a JSON POST and returns the raw response body and status
// code. Network-level failures are the caller's TransportError to wrap.
func httpPost(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) ([]byte, int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// decodeError builds the ProviderError for a non-2xx response, extracting a
// message from the provider's error envelope when one is present and
// falling back to the raw body otherwise.
func decodeError(backendName string, status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if msg, ok := env.message(); ok {
			return lspaierrors.NewProviderError(backendName, status, msg)
		}
	}
	return lspaierrors.NewProviderError(backendName, status, string(body))
}
