// Package config decodes and validates the daemon's configuration, which
// arrives as the LSP `initializationOptions` JSON object rather than a file
// on disk: an LSP server has no config file of its own, so the editor
// supplies options at initialize time instead.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/jsonschema-go/jsonschema"

	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
)

// Model type tags
const (
	ModelTypeLlamaCpp   = "llama_cpp"
	ModelTypeOpenAI     = "open_ai"
	ModelTypeAnthropic  = "anthropic"
	ModelTypeMistralFIM = "mistral_fim"
	ModelTypeOllama     = "ollama"
	ModelTypeGemini     = "gemini"
)

var validModelTypes = map[string]bool{
	ModelTypeLlamaCpp:   true,
	ModelTypeOpenAI:     true,
	ModelTypeAnthropic:  true,
	ModelTypeMistralFIM: true,
	ModelTypeOllama:     true,
	ModelTypeGemini:     true,
}

// Config is the fully parsed and validated initializationOptions payload.
type Config struct {
	Memory     Memory                 `json:"memory"`
	Models     map[string]ModelConfig `json:"models"`
	Completion *CompletionConfig      `json:"completion,omitempty"`
}

// Memory selects the Prompt Builder's retrieval backend: either a crawled
// in-memory file store, or a Postgres-backed nearest-neighbor store.
type Memory struct {
	FileStore  *FileStoreConfig  `json:"file_store,omitempty"`
	Postgresml *PostgresmlConfig `json:"postgresml,omitempty"`
}

// FileStoreConfig configures the Crawler.
type FileStoreConfig struct {
	Crawl *CrawlConfig `json:"crawl,omitempty"`
}

// CrawlConfig is the crawl configuration block, with defaults applied by
// Parse when a field is left at its zero value.
type CrawlConfig struct {
	MaxFileSize    int64    `json:"max_file_size,omitempty"`
	MaxCrawlMemory int64    `json:"max_crawl_memory,omitempty"`
	AllFiles       bool     `json:"all_files,omitempty"`
	IgnoreGlobs    []string `json:"ignore_globs,omitempty"`
}

const (
	defaultMaxFileSize    = 10 * 1024 * 1024
	defaultMaxCrawlMemory = 100 * 1024 * 1024
)

var defaultIgnoreGlobs = []string{".git/**", "node_modules/**", "vendor/**", "target/**", "dist/**", "build/**"}

// PostgresmlConfig configures the internal/retrieval store.
type PostgresmlConfig struct {
	DatabaseURL string `json:"database_url,omitempty"`
}

// ModelConfig configures one entry of the `models` map. Fields irrelevant to
// a given Type are simply left zero; the backend adapter for that Type is
// responsible for knowing which fields it needs.
type ModelConfig struct {
	Type string `json:"type"`

	ChatEndpoint        string `json:"chat_endpoint,omitempty"`
	CompletionsEndpoint string `json:"completions_endpoint,omitempty"`
	FimEndpoint         string `json:"fim_endpoint,omitempty"`
	GenerateEndpoint    string `json:"generate_endpoint,omitempty"`

	Model string `json:"model,omitempty"`

	AuthToken           string `json:"auth_token,omitempty"`
	AuthTokenEnvVarName string `json:"auth_token_env_var_name,omitempty"`

	MaxRequestsPerSecond float64 `json:"max_requests_per_second,omitempty"`

	// In-process GGUF fields (llama_cpp).
	NCtx       int `json:"n_ctx,omitempty"`
	NGpuLayers int `json:"n_gpu_layers,omitempty"`
}

// ResolveAuthToken returns the literal auth token, or the value of the named
// environment variable when only AuthTokenEnvVarName is set. Returns "" if
// neither is configured (some adapters, e.g. Ollama, need no auth at all).
func (m ModelConfig) ResolveAuthToken() string {
	if m.AuthToken != "" {
		return m.AuthToken
	}
	if m.AuthTokenEnvVarName != "" {
		return os.Getenv(m.AuthTokenEnvVarName)
	}
	return ""
}

// CompletionConfig names the model used for textDocument/completion and its
// forwarded parameters.
type CompletionConfig struct {
	Model      string                 `json:"model"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	PostProcess *PostProcessConfig    `json:"post_process,omitempty"`
}

// PostProcessConfig controls the Post-Processor's two dedup trims; both
// default to true.
type PostProcessConfig struct {
	RemoveDuplicateStart *bool `json:"remove_duplicate_start,omitempty"`
	RemoveDuplicateEnd   *bool `json:"remove_duplicate_end,omitempty"`
}

// EffectiveRemoveDuplicateStart reports the effective start-trim flag,
// defaulting to true when p is nil or the field was omitted.
func (p *PostProcessConfig) EffectiveRemoveDuplicateStart() bool {
	if p == nil || p.RemoveDuplicateStart == nil {
		return true
	}
	return *p.RemoveDuplicateStart
}

// EffectiveRemoveDuplicateEnd reports the effective end-trim flag, defaulting
// to true when p is nil or the field was omitted.
func (p *PostProcessConfig) EffectiveRemoveDuplicateEnd() bool {
	if p == nil || p.RemoveDuplicateEnd == nil {
		return true
	}
	return *p.RemoveDuplicateEnd
}

// RemoveDuplicateStart reports the effective start-trim flag, applying the
// default-true when the field was omitted.
func (c *CompletionConfig) RemoveDuplicateStart() bool {
	return c.PostProcess.EffectiveRemoveDuplicateStart()
}

// RemoveDuplicateEnd reports the effective end-trim flag.
func (c *CompletionConfig) RemoveDuplicateEnd() bool {
	return c.PostProcess.EffectiveRemoveDuplicateEnd()
}

// schema describes the top-level shape of initializationOptions. It is
// intentionally loose (additionalProperties is left unset, i.e. allowed):
// unknown fields are tolerated rather than rejected.
var schema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"models": {
			Type: "object",
			AdditionalProperties: &jsonschema.Schema{
				Type:     "object",
				Required: []string{"type"},
				Properties: map[string]*jsonschema.Schema{
					"type": {Type: "string"},
				},
			},
		},
		"memory":     {Type: "object"},
		"completion": {Type: "object"},
	},
	Required: []string{"models"},
}

var resolvedSchema *jsonschema.Resolved

func init() {
	r, err := schema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("config: invalid built-in schema: %v", err))
	}
	resolvedSchema = r
}

// Parse decodes and validates raw initializationOptions JSON.
func Parse(raw json.RawMessage) (*Config, error) {
	if len(raw) == 0 {
		return nil, lspaierrors.NewConfigError("", fmt.Errorf("initializationOptions is required"))
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, lspaierrors.NewConfigError("", err)
	}
	if err := resolvedSchema.Validate(generic); err != nil {
		return nil, lspaierrors.NewConfigError("", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, lspaierrors.NewConfigError("", err)
	}

	if err := cfg.validateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateAndSetDefaults() error {
	if len(c.Models) == 0 {
		return lspaierrors.NewConfigError("models", fmt.Errorf("at least one model must be configured"))
	}
	for name, m := range c.Models {
		if !validModelTypes[m.Type] {
			return lspaierrors.NewConfigError(fmt.Sprintf("models.%s.type", name), fmt.Errorf("unknown model type %q", m.Type))
		}
	}

	if c.Completion != nil {
		if c.Completion.Model == "" {
			return lspaierrors.NewConfigError("completion.model", fmt.Errorf("completion.model is required"))
		}
		if _, ok := c.Models[c.Completion.Model]; !ok {
			return lspaierrors.NewConfigError("completion.model", fmt.Errorf("references unknown model %q", c.Completion.Model))
		}
	}

	if fs := c.Memory.FileStore; fs != nil && fs.Crawl != nil {
		cr := fs.Crawl
		if cr.MaxFileSize == 0 {
			cr.MaxFileSize = defaultMaxFileSize
		}
		if cr.MaxCrawlMemory == 0 {
			cr.MaxCrawlMemory = defaultMaxCrawlMemory
		}
		if len(cr.IgnoreGlobs) == 0 {
			cr.IgnoreGlobs = append([]string(nil), defaultIgnoreGlobs...)
		}
	}

	return nil
}
