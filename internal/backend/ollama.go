package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// ollamaAdapter implements the local chat/generate (Ollama-style) adapter.
// It needs no auth header since the endpoint is local.
type ollamaAdapter struct {
	name   string
	cfg    config.ModelConfig
	client *http.Client
}

func (a *ollamaAdapter) PromptShape() prompt.Shape { return prompt.ShapeContextAndCode }

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string `json:"response"`
}

func (a *ollamaAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	body := map[string]any{
		"model": a.cfg.Model,
	}
	if v, ok := params["options"]; ok {
		body["options"] = v
	}
	if v, ok := params["system"]; ok {
		body["system"] = v
	}
	if v, ok := params["template"]; ok {
		body["template"] = v
	}
	if v, ok := params["keep_alive"]; ok {
		body["keep_alive"] = v
	}

	endpoint := a.cfg.GenerateEndpoint
	if _, chat := params["messages"]; chat {
		endpoint = a.cfg.ChatEndpoint
		msgs, err := buildMessages(params, p)
		if err != nil {
			return "", err
		}
		body["messages"] = msgs
	} else {
		body["prompt"] = p.Context + p.Code
	}

	raw, status, err := httpPost(ctx, a.client, endpoint, nil, body)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	if status < 200 || status >= 300 {
		return "", decodeError(a.name, status, raw)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", lspaierrors.NewUnknownResponseError(a.name, string(raw))
	}
	if resp.Message.Content != "" {
		return resp.Message.Content, nil
	}
	if resp.Response != "" {
		return resp.Response, nil
	}
	return "", lspaierrors.NewUnknownResponseError(a.name, string(raw))
}
