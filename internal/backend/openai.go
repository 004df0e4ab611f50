package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// openAIAdapter implements the chat-completion (OpenAI-style) adapter:
// chat_endpoint when params carries "messages", otherwise
// completions_endpoint with a raw prompt string.
type openAIAdapter struct {
	name   string
	cfg    config.ModelConfig
	client *http.Client
}

func (a *openAIAdapter) PromptShape() prompt.Shape { return prompt.ShapeContextAndCode }

type openAIResponse struct {
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *openAIAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	body := map[string]any{
		"model":             a.cfg.Model,
		"max_tokens":        getInt(params, "max_tokens", defaultMaxTokens),
		"n":                 1,
		"top_p":             getFloat(params, "top_p", defaultTopP),
		"presence_penalty":  getFloat(params, "presence_penalty", defaultPresencePenalty),
		"frequency_penalty": getFloat(params, "frequency_penalty", defaultFrequencyPenalty),
		"temperature":       getFloat(params, "temperature", defaultTemperature),
		"echo":              false,
	}

	endpoint := a.cfg.CompletionsEndpoint
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

	headers := map[string]string{}
	if token := a.cfg.ResolveAuthToken(); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	raw, status, err := httpPost(ctx, a.client, endpoint, headers, body)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	if status < 200 || status >= 300 {
		return "", decodeError(a.name, status, raw)
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Choices) == 0 {
		return "", lspaierrors.NewUnknownResponseError(a.name, string(raw))
	}
	if c := resp.Choices[0].Message.Content; c != "" {
		return c, nil
	}
	return resp.Choices[0].Text, nil
}
