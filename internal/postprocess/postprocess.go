// Package postprocess implements the two overlap-trimming passes applied to
// a backend's raw completion text before it reaches the editor: LLMs
// frequently echo the surrounding buffer, and these trims remove the part
// the editor would otherwise insert redundantly.
package postprocess

import (
	"strings"

	"github.com/standardbeagle/lspaid/internal/prompt"
)

// Options controls which trim passes run. The zero Options runs neither;
// callers take both flags from config, where each defaults to true.
type Options struct {
	RemoveDuplicateStart bool
	RemoveDuplicateEnd   bool
}

// Process applies start/end dedup trimming to response, given the Prompt
// that produced it.
func Process(response string, p prompt.Prompt, opts Options) string {
	front, back, endEligible := frontBack(p)

	if opts.RemoveDuplicateStart {
		response = trimStart(response, front)
	}
	if opts.RemoveDuplicateEnd && endEligible {
		response = trimEnd(response, back)
	}
	return response
}

// frontBack returns the buffers immediately preceding and following the
// cursor, and whether an end-trim is even eligible (ContextAndCode prompts
// with no <CURSOR> sentinel skip end trim entirely).
func frontBack(p prompt.Prompt) (front, back string, endEligible bool) {
	if p.Shape == prompt.ShapeFIM {
		return p.Prefix, p.Suffix, true
	}

	idx := strings.Index(p.Code, prompt.Sentinel)
	if idx == -1 {
		return p.Code, "", false
	}
	return p.Code[:idx], p.Code[idx+len(prompt.Sentinel):], true
}

// trimStart finds the longest non-empty prefix of response that is a suffix
// of front, and drops it from response.
func trimStart(response, front string) string {
	maxLen := len(response)
	if len(front) < maxLen {
		maxLen = len(front)
	}
	for l := maxLen; l > 0; l-- {
		candidate := response[:l]
		if strings.HasSuffix(front, candidate) {
			return response[l:]
		}
	}
	return response
}

// trimEnd finds the shortest prefix of response whose remainder is itself a
// prefix of back, and keeps only that prefix.
func trimEnd(response, back string) string {
	for k := 0; k <= len(response); k++ {
		remainder := response[k:]
		if strings.HasPrefix(back, remainder) {
			return response[:k]
		}
	}
	return response
}
