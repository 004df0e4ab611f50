package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// mistralFIMAdapter implements the FIM-only (Mistral-style) adapter. It is
// the one adapter family that rejects a ContextAndCode prompt, enforced by
// RequireShape before DoGenerate is ever called.
type mistralFIMAdapter struct {
	name   string
	cfg    config.ModelConfig
	client *http.Client
}

func (a *mistralFIMAdapter) PromptShape() prompt.Shape { return prompt.ShapeFIM }

type mistralResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *mistralFIMAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	body := map[string]any{
		"model":       a.cfg.Model,
		"prompt":      p.Prefix,
		"suffix":      p.Suffix,
		"max_tokens":  getInt(params, "max_tokens", defaultMaxTokens),
		"top_p":       getFloat(params, "top_p", defaultTopP),
		"temperature": getFloat(params, "temperature", defaultTemperature),
	}
	if v, ok := params["min_tokens"]; ok {
		body["min_tokens"] = v
	}
	if v, ok := params["random_seed"]; ok {
		body["random_seed"] = v
	}
	if v, ok := params["stop"]; ok {
		body["stop"] = v
	}

	headers := map[string]string{}
	if token := a.cfg.ResolveAuthToken(); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	raw, status, err := httpPost(ctx, a.client, a.cfg.FimEndpoint, headers, body)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	if status < 200 || status >= 300 {
		return "", decodeError(a.name, status, raw)
	}

	var resp mistralResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		return "", lspaierrors.NewUnknownResponseError(a.name, string(raw))
	}
	return resp.Choices[0].Message.Content, nil
}
