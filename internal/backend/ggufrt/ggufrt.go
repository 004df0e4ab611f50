// Package ggufrt is the narrow interface the in-process GGUF backend runs
// its inference through. No pure-Go GGUF inference engine is available, and
// a cgo binding to llama.cpp is a grammar-loader-style external
// collaborator kept out of this build. The interface itself is real and
// load-bearing: backend.New wires it into every llama_cpp adapter, and only
// the token-sampling loop behind it is a documented stub.
package ggufrt

import (
	"context"
	"fmt"
)

// Runtime runs a single generation against an in-process model.
type Runtime interface {
	// Generate produces up to maxTokens of text continuing promptText.
	Generate(ctx context.Context, promptText string, maxTokens int) (string, error)
}

// Stub is a placeholder Runtime. It always fails: wiring a real GGUF
// inference loop behind this interface would need either a pure-Go tensor
// runtime or a cgo dependency on llama.cpp, neither of which this build
// carries.
type Stub struct{}

// NewStub returns the placeholder Runtime.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Generate(ctx context.Context, promptText string, maxTokens int) (string, error) {
	return "", fmt.Errorf("ggufrt: in-process GGUF inference is not implemented in this build")
}
