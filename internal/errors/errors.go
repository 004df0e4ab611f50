// Package errors defines the typed error taxonomy shared by every layer of the
// daemon, from the document mirror up through the orchestrator's LSP responses.
package errors

import (
	"fmt"
	"time"
)

// ErrorType classifies an error for logging and for LSP error-code selection.
type ErrorType string

const (
	ErrorTypeConfig             ErrorType = "config"
	ErrorTypeMirror             ErrorType = "mirror"
	ErrorTypePromptShapeMismatch ErrorType = "prompt_shape_mismatch"
	ErrorTypeProvider           ErrorType = "provider"
	ErrorTypeTransport          ErrorType = "transport"
	ErrorTypeUnknownResponse    ErrorType = "unknown_response"
	ErrorTypeCrawl              ErrorType = "crawl"
	ErrorTypeInternal           ErrorType = "internal"
)

// MirrorErrorKind distinguishes the mirror-specific failure modes.
type MirrorErrorKind string

const (
	MirrorFileNotFound          MirrorErrorKind = "file_not_found"
	MirrorLineOutOfBounds       MirrorErrorKind = "line_out_of_bounds"
	MirrorSliceRangeOutOfBounds MirrorErrorKind = "slice_range_out_of_bounds"
	MirrorRopeEdit              MirrorErrorKind = "rope_edit"
)

// ConfigError reports a problem parsing or validating initializationOptions.
type ConfigError struct {
	Field      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{Field: field, Underlying: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Underlying)
	}
	return fmt.Sprintf("config error for field %s: %v", e.Field, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// MirrorError reports a failure inside the document mirror.
type MirrorError struct {
	Kind       MirrorErrorKind
	URI        string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewMirrorError(kind MirrorErrorKind, op, uri string, err error) *MirrorError {
	return &MirrorError{Kind: kind, Operation: op, URI: uri, Underlying: err, Timestamp: time.Now()}
}

func (e *MirrorError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("mirror %s failed for %s during %s: %v", e.Kind, e.URI, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("mirror %s failed for %s during %s", e.Kind, e.URI, e.Operation)
}

func (e *MirrorError) Unwrap() error { return e.Underlying }

// PromptShapeMismatchError fires when a backend receives a Prompt shape it cannot consume.
type PromptShapeMismatchError struct {
	Backend  string
	Wanted   string
	Got      string
	Timestamp time.Time
}

func NewPromptShapeMismatchError(backend, wanted, got string) *PromptShapeMismatchError {
	return &PromptShapeMismatchError{Backend: backend, Wanted: wanted, Got: got, Timestamp: time.Now()}
}

func (e *PromptShapeMismatchError) Error() string {
	return fmt.Sprintf("backend %s requires a %s prompt, got %s", e.Backend, e.Wanted, e.Got)
}

// ProviderError wraps a recognized error body returned by a backend provider.
type ProviderError struct {
	Backend    string
	StatusCode int
	Body       string
	Timestamp  time.Time
}

func NewProviderError(backend string, status int, body string) *ProviderError {
	return &ProviderError{Backend: backend, StatusCode: status, Body: body, Timestamp: time.Now()}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (status %d): %s", e.Backend, e.StatusCode, e.Body)
}

// TransportError wraps a network-level failure talking to a provider.
type TransportError struct {
	Backend    string
	Underlying error
	Timestamp  time.Time
}

func NewTransportError(backend string, err error) *TransportError {
	return &TransportError{Backend: backend, Underlying: err, Timestamp: time.Now()}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.Backend, e.Underlying)
}

func (e *TransportError) Unwrap() error { return e.Underlying }

// UnknownModelError fires when a request names a model not present in the
// configured models map.
type UnknownModelError struct {
	Name      string
	Timestamp time.Time
}

func NewUnknownModelError(name string) *UnknownModelError {
	return &UnknownModelError{Name: name, Timestamp: time.Now()}
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Name)
}

// UnknownResponseError wraps an HTTP 2xx body that could not be decoded as
// either the provider's success shape or its recognized error shape.
type UnknownResponseError struct {
	Backend   string
	Body      string
	Timestamp time.Time
}

func NewUnknownResponseError(backend, body string) *UnknownResponseError {
	return &UnknownResponseError{Backend: backend, Body: body, Timestamp: time.Now()}
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("%s returned an unrecognized response body: %s", e.Backend, e.Body)
}

// CrawlError reports a bubbled-up workspace-walk failure. Per-file I/O errors
// are logged and swallowed by the crawler itself; this type is for walk-level
// failures (bad root URI, walker library error) that callers may want to see.
type CrawlError struct {
	Root       string
	Underlying error
	Timestamp  time.Time
}

func NewCrawlError(root string, err error) *CrawlError {
	return &CrawlError{Root: root, Underlying: err, Timestamp: time.Now()}
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl of %s failed: %v", e.Root, e.Underlying)
}

func (e *CrawlError) Unwrap() error { return e.Underlying }

// InternalError reports a channel send/receive failure or other invariant
// violation that isn't attributable to config, the mirror, or a provider.
type InternalError struct {
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Operation: op, Underlying: err, Timestamp: time.Now()}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Operation, e.Underlying)
}

func (e *InternalError) Unwrap() error { return e.Underlying }

// LSPCode maps an error produced anywhere in the daemon to the JSON-RPC error
// code the orchestrator should report back to the editor. Every case other
// than UnknownModel/PromptShapeMismatch falls back to -32603 (Internal error)
// step 7.
func LSPCode(err error) int {
	switch err.(type) {
	case *PromptShapeMismatchError, *UnknownModelError:
		return -32602 // Invalid params: unresolvable backend or shape mismatch.
	default:
		return -32603
	}
}
