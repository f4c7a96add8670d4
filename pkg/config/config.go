package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoProvider is returned when no LLM provider is enabled.
var ErrNoProvider = errors.New("no enabled provider found in config")

type Config struct {
	App          AppConfig                 `json:"app" yaml:"app"`
	Gateways     map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers    map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Models       map[string]ModelProfile   `json:"models" yaml:"models"`
	Memory       MemoryConfig              `json:"memory" yaml:"memory"`
	Sandbox      SandboxConfig             `json:"sandbox" yaml:"sandbox"`
	Search       SearchConfig              `json:"search" yaml:"search"`
	Codegen      CodegenConfig             `json:"codegen" yaml:"codegen"`
	Orchestrator OrchestratorConfig        `json:"orchestrator" yaml:"orchestrator"`
	Metrics      MetricsConfig             `json:"metrics" yaml:"metrics"`
	Log          LogConfig                 `json:"log" yaml:"log"`
}

type AppConfig struct {
	Name       string `json:"name" yaml:"name"`
	Workspace  string `json:"workspace" yaml:"workspace"`
	PromptsDir string `json:"prompts_dir" yaml:"prompts_dir"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// ModelProfile tunes one class of LLM call (planning, code_gen, ...).
type ModelProfile struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	JSONMode    bool    `json:"json_mode" yaml:"json_mode"`
}

type MemoryConfig struct {
	Type  string `json:"type" yaml:"type"`
	Path  string `json:"path" yaml:"path"`
	Limit int    `json:"limit" yaml:"limit"`
	// ArchiveLimit caps the rows kept in the sqlite archive. Zero keeps everything.
	ArchiveLimit int `json:"archive_limit" yaml:"archive_limit"`
}

type SandboxConfig struct {
	Python         string   `json:"python" yaml:"python"`
	BuildDir       string   `json:"build_dir" yaml:"build_dir"`
	ExecTimeout    Duration `json:"exec_timeout" yaml:"exec_timeout"`
	CompileTimeout Duration `json:"compile_timeout" yaml:"compile_timeout"`
	InstallTimeout Duration `json:"install_timeout" yaml:"install_timeout"`
	// DeniedKinds turns off whole request kinds in the safety policy:
	// "generated_code" or "code_block_execution".
	DeniedKinds []string `json:"denied_kinds,omitempty" yaml:"denied_kinds,omitempty"`
}

type SearchConfig struct {
	MaxResults        int      `json:"max_results" yaml:"max_results"`
	ContextTokenLimit int      `json:"context_token_limit" yaml:"context_token_limit"`
	SummaryMaxTokens  int      `json:"summary_max_tokens" yaml:"summary_max_tokens"`
	Language          string   `json:"language" yaml:"language"`
	Fetcher           string   `json:"fetcher" yaml:"fetcher"`
	FetchTimeout      Duration `json:"fetch_timeout" yaml:"fetch_timeout"`
}

type CodegenConfig struct {
	OutputDir       string `json:"output_dir" yaml:"output_dir"`
	DefaultLanguage string `json:"default_language" yaml:"default_language"`
}

type OrchestratorConfig struct {
	// AutoExecPolicy is one of "defer", "always" or "never".
	AutoExecPolicy string `json:"auto_exec_policy" yaml:"auto_exec_policy"`
}

type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	LLMLogPath string `json:"llm_log_path" yaml:"llm_log_path"`
}

// Duration accepts "30s" style strings or plain seconds in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case float64:
		d.Duration = time.Duration(val * float64(time.Second))
	case int:
		d.Duration = time.Duration(val) * time.Second
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// Default returns the configuration used when a field is not set in the file.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:       "codemate",
			Workspace:  ".",
			PromptsDir: "./prompts",
		},
		Gateways:  map[string]GatewayConfig{},
		Providers: map[string]ProviderConfig{},
		Models: map[string]ModelProfile{
			"planning":      {Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 1024, JSONMode: true},
			"code_gen":      {Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 1500},
			"correction":    {Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 1500},
			"summarization": {Model: "gpt-3.5-turbo", Temperature: 0.2, MaxTokens: 200},
			"default":       {Model: "gpt-4o-mini", Temperature: 0.3, MaxTokens: 1024},
		},
		Memory: MemoryConfig{
			Type:  "sqlite",
			Path:  "codemate.db",
			Limit: 10,
		},
		Sandbox: SandboxConfig{
			Python:         "python3",
			ExecTimeout:    Duration{30 * time.Second},
			CompileTimeout: Duration{60 * time.Second},
			InstallTimeout: Duration{120 * time.Second},
		},
		Search: SearchConfig{
			MaxResults:        2,
			ContextTokenLimit: 4000,
			SummaryMaxTokens:  200,
			Language:          "en",
			Fetcher:           "http",
			FetchTimeout:      Duration{10 * time.Second},
		},
		Codegen: CodegenConfig{
			OutputDir:       "output",
			DefaultLanguage: "python",
		},
		Orchestrator: OrchestratorConfig{AutoExecPolicy: "defer"},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			LLMLogPath: filepath.Join("logs", "llm.jsonl"),
		},
	}
}

// LoadConfig reads a JSON or YAML file (chosen by extension) over the defaults.
// A missing file is not an error; the defaults plus environment overrides are used.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		cfg.fillMaps()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// fillMaps restores maps that a file section with no entries decoded to nil.
func (c *Config) fillMaps() {
	if c.Gateways == nil {
		c.Gateways = map[string]GatewayConfig{}
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if c.Models == nil {
		c.Models = Default().Models
	}
}

// applyEnv fills secrets that are commonly kept out of config files.
func (c *Config) applyEnv() {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return
	}
	p, ok := c.Providers["openai"]
	if !ok {
		p = ProviderConfig{Model: os.Getenv("CODEMATE_MODEL"), Enabled: true}
		if p.Model == "" {
			p.Model = c.Profile("default").Model
		}
	}
	if p.APIKey == "" {
		p.APIKey = key
	}
	c.Providers["openai"] = p
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Memory.Limit <= 0 {
		return fmt.Errorf("memory.limit must be positive, got %d", c.Memory.Limit)
	}
	switch c.Orchestrator.AutoExecPolicy {
	case "", "defer", "always", "never":
	default:
		return fmt.Errorf("orchestrator.auto_exec_policy must be defer, always or never, got %q", c.Orchestrator.AutoExecPolicy)
	}
	switch c.Search.Fetcher {
	case "", "http", "browser":
	default:
		return fmt.Errorf("search.fetcher must be http or browser, got %q", c.Search.Fetcher)
	}
	return nil
}

// Profile returns the model profile for a task type, falling back to "default".
func (c *Config) Profile(taskType string) ModelProfile {
	if p, ok := c.Models[taskType]; ok {
		return p
	}
	return c.Models["default"]
}

// GetDefaultProvider returns the first enabled provider, in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig, error) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			if p.APIKey == "" {
				return "", ProviderConfig{}, fmt.Errorf("provider %s has no api key", name)
			}
			return name, p, nil
		}
	}
	return "", ProviderConfig{}, ErrNoProvider
}

// GetGatewayConfig returns the named gateway config if enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	gw, ok := c.Gateways[name]
	if ok && gw.Enabled && gw.Token != "" {
		return gw, true
	}
	return GatewayConfig{}, false
}
