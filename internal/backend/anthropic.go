package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// anthropicAdapter implements the Chat-only (Anthropic-style) adapter: the
// first configured message must be role "system" and is lifted out as the
// top-level system prompt rather than sent in messages[].
type anthropicAdapter struct {
	name   string
	cfg    config.ModelConfig
	client *http.Client
}

func (a *anthropicAdapter) PromptShape() prompt.Shape { return prompt.ShapeContextAndCode }

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a *anthropicAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	msgs, err := buildMessages(params, p)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || msgs[0].Role != "system" {
		return "", fmt.Errorf("backend: anthropic params.messages[0].role must be \"system\"")
	}
	system := msgs[0].Content
	msgs = msgs[1:]

	body := map[string]any{
		"model":       a.cfg.Model,
		"system":      system,
		"messages":    msgs,
		"max_tokens":  getInt(params, "max_tokens", defaultMaxTokens),
		"top_p":       getFloat(params, "top_p", defaultTopP),
		"temperature": getFloat(params, "temperature", defaultTemperature),
	}

	headers := map[string]string{
		"anthropic-version": "2023-06-01",
	}
	if token := a.cfg.ResolveAuthToken(); token != "" {
		headers["x-api-key"] = token
	}

	raw, status, err := httpPost(ctx, a.client, a.cfg.ChatEndpoint, headers, body)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	if status < 200 || status >= 300 {
		return "", decodeError(a.name, status, raw)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Content) == 0 {
		return "", lspaierrors.NewUnknownResponseError(a.name, string(raw))
	}
	return resp.Content[0].Text, nil
}
