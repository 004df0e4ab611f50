package backend

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// geminiAdapter implements the Gemini adapter: the auth token travels as a
// query-string key, and the chat content array uses Gemini's own {role,
// parts:[{text}]} shape rather than the OpenAI-style {role, content} pair
// the other chat families use.
type geminiAdapter struct {
	name   string
	cfg    config.ModelConfig
	client *http.Client
}

func (a *geminiAdapter) PromptShape() prompt.Shape { return prompt.ShapeContextAndCode }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a *geminiAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	raw, ok := params["contents"]
	if !ok {
		return "", lspaierrors.NewPromptShapeMismatchError(a.name, "chat-shaped params.contents", "none")
	}
	list, ok := raw.([]any)
	if !ok {
		return "", lspaierrors.NewPromptShapeMismatchError(a.name, "chat-shaped params.contents", "non-array")
	}

	contents := make([]geminiContent, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, _ := m["role"].(string)
		var parts []geminiPart
		if rawParts, ok := m["parts"].([]any); ok {
			for _, rp := range rawParts {
				pm, ok := rp.(map[string]any)
				if !ok {
					continue
				}
				text, _ := pm["text"].(string)
				parts = append(parts, geminiPart{Text: substitute(text, p)})
			}
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	body := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"maxOutputTokens": getInt(params, "max_tokens", defaultMaxTokens),
			"topP":            getFloat(params, "top_p", defaultTopP),
			"temperature":     getFloat(params, "temperature", defaultTemperature),
		},
	}
	if v, ok := params["systemInstruction"]; ok {
		body["systemInstruction"] = v
	}

	endpoint := a.cfg.ChatEndpoint + "/" + a.cfg.Model + ":generateContent?key=" + a.cfg.ResolveAuthToken()

	respRaw, status, err := httpPost(ctx, a.client, endpoint, nil, body)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	if status < 200 || status >= 300 {
		return "", decodeError(a.name, status, respRaw)
	}

	var resp geminiResponse
	if err := json.Unmarshal(respRaw, &resp); err != nil || len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", lspaierrors.NewUnknownResponseError(a.name, string(respRaw))
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
