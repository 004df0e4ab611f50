// Package prompt builds the two prompt shapes backend adapters consume —
// Context-and-Code and FIM — from a Mirror code window
package prompt

import (
	"context"
	"unicode/utf8"

	"github.com/standardbeagle/lspaid/internal/mirror"
)

// Sentinel is the literal cursor marker inserted into chat-shaped
// Context-and-Code prompts. It is assumed never to collide with real buffer
// contents; it is not escaped or detected in the source text.
const Sentinel = "<CURSOR>"

// charsPerToken is the single conservative token-to-character conversion
// constant used throughout.
const charsPerToken = 4

// Shape distinguishes the two prompt families a backend adapter may require.
type Shape int

const (
	ShapeContextAndCode Shape = iota
	ShapeFIM
)

func (s Shape) String() string {
	if s == ShapeFIM {
		return "FIM"
	}
	return "ContextAndCode"
}

// Prompt is a tagged union: exactly one of the two shapes is populated,
// named by Shape.
type Prompt struct {
	Shape Shape

	// ContextAndCode fields.
	Context string
	Code    string

	// FIM fields.
	Prefix string
	Suffix string
}

// IsChatShaped reports whether params signals a chat-shaped request by
// containing a "messages" or "contents" array
func IsChatShaped(params map[string]any) bool {
	if params == nil {
		return false
	}
	if _, ok := params["messages"]; ok {
		return true
	}
	if _, ok := params["contents"]; ok {
		return true
	}
	return false
}

// MaxContextTokens extracts params.max_context (a token count), defaulting
// to 2048 when absent or not numeric: a conservative middle ground matching
// the char-budget magnitudes backend adapters typically request.
func MaxContextTokens(params map[string]any) int {
	const fallback = 2048
	if params == nil {
		return fallback
	}
	v, ok := params["max_context"]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ContextFetcher supplies supplementary context text for a Context-and-Code
// prompt from queryText (a window of source around the cursor), typically
// backed by internal/retrieval's nearest-neighbor lookup. A nil
// ContextFetcher, or one returning "", leaves Prompt.Context empty.
type ContextFetcher func(ctx context.Context, queryText string) (string, error)

// queryWindowRunes bounds how much of the surrounding code window is used as
// the retrieval query text, mirroring the "short window centered on the
// cursor" a nearest-neighbor lookup needs rather than the full char budget.
const queryWindowRunes = 512

// Build produces a Prompt for the given shape from the Mirror's code window
// at position. maxContextTokens is params.max_context; pullFromMultipleFiles
// and chatShaped are resolved by the caller from configuration and params.
// fetchContext, if non-nil, is consulted for the ContextAndCode shape to
// populate Prompt.Context from a retrieval-store query; it is never called
// for the FIM shape.
//
// The Mirror's own code_window char budget is the token count converted to
// characters up front (maxContextTokens*charsPerToken), keeping code_window's
// own character-length accounting consistent with what's passed to it.
func Build(ctx context.Context, m *mirror.Mirror, uri string, pos mirror.Position, shape Shape, maxContextTokens int, pullFromMultipleFiles, chatShaped bool, fetchContext ContextFetcher) (Prompt, error) {
	charBudget := maxContextTokens * charsPerToken

	r, cursor, err := m.CodeWindow(uri, pos, charBudget, pullFromMultipleFiles)
	if err != nil {
		return Prompt{}, err
	}

	runes := []rune(r.String())
	L := maxContextTokens * charsPerToken

	switch shape {
	case ShapeFIM:
		start := clamp(cursor-L/2, 0, len(runes))
		end := clamp(cursor+(L-(cursor-start)), 0, len(runes))
		return Prompt{
			Shape:  ShapeFIM,
			Prefix: string(runes[start:cursor]),
			Suffix: string(runes[cursor:end]),
		}, nil

	default:
		var retrieved string
		if fetchContext != nil {
			qStart := clamp(cursor-queryWindowRunes/2, 0, len(runes))
			qEnd := clamp(qStart+queryWindowRunes, 0, len(runes))
			retrieved, err = fetchContext(ctx, string(runes[qStart:qEnd]))
			if err != nil {
				retrieved = ""
			}
		}

		if chatShaped {
			start := clamp(cursor-L/2, 0, len(runes))
			rawEnd := clamp(cursor+(L-(cursor-start)), 0, len(runes))

			withCursor := make([]rune, 0, len(runes)+utf8.RuneCountInString(Sentinel))
			withCursor = append(withCursor, runes[:cursor]...)
			withCursor = append(withCursor, []rune(Sentinel)...)
			withCursor = append(withCursor, runes[cursor:]...)

			end := clamp(rawEnd+utf8.RuneCountInString(Sentinel), 0, len(withCursor))
			if start > end {
				start = end
			}
			return Prompt{Shape: ShapeContextAndCode, Context: retrieved, Code: string(withCursor[start:end])}, nil
		}

		start := clamp(cursor-L, 0, len(runes))
		return Prompt{Shape: ShapeContextAndCode, Context: retrieved, Code: string(runes[start:cursor])}, nil
	}
}
