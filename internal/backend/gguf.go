package backend

import (
	"context"

	"github.com/standardbeagle/lspaid/internal/backend/ggufrt"
	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/prompt"
)

// ggufAdapter runs generation through an in-process ggufrt.Runtime instead
// of an HTTP round trip. It accepts either prompt shape and flattens
// whichever one it receives into a single prompt string, applying FIM
// sentinel tokens when given a FIM prompt.
type ggufAdapter struct {
	name string
	cfg  config.ModelConfig
	rt   ggufrt.Runtime
}

func (a *ggufAdapter) PromptShape() prompt.Shape { return prompt.ShapeContextAndCode }

func (a *ggufAdapter) DoGenerate(ctx context.Context, p prompt.Prompt, params map[string]any) (string, error) {
	maxTokens := getInt(params, "max_tokens", defaultMaxTokens)

	var text string
	switch p.Shape {
	case prompt.ShapeFIM:
		// llama.cpp-family FIM tokens; the exact token strings are a model
		// property the config could override, but no field for that exists
		// yet, so the common <PRE>/<SUF>/<MID> convention is used directly.
		text = "<PRE>" + p.Prefix + "<SUF>" + p.Suffix + "<MID>"
	default:
		text = p.Context + p.Code
	}

	out, err := a.rt.Generate(ctx, text, maxTokens)
	if err != nil {
		return "", lspaierrors.NewTransportError(a.name, err)
	}
	return out, nil
}
