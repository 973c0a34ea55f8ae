package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/quadrant/internal/inference"
	"github.com/normanking/quadrant/internal/llm"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
	"github.com/normanking/quadrant/internal/server"
)

// Config holds all application configuration for quadrant.
// It is loaded from ~/.quadrant/config.yaml and can be overridden by environment variables.
type Config struct {
	Router    RouterConfig    `mapstructure:"router" yaml:"router"`
	Pattern   PatternConfig   `mapstructure:"pattern" yaml:"pattern"`
	Inference InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Neural    NeuralConfig    `mapstructure:"neural" yaml:"neural"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Benchmark BenchmarkConfig `mapstructure:"benchmark" yaml:"benchmark"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// RouterConfig controls escalation between the provider tiers.
type RouterConfig struct {
	// ConfidenceThreshold is the confidence at which a tier's answer is accepted (default 0.7)
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" validate:"gt=0,lte=1"`
	// NeuralTimeout bounds one neural call
	NeuralTimeout time.Duration `mapstructure:"neural_timeout" yaml:"neural_timeout" validate:"gt=0"`
	// RemoteTimeout bounds one remote call
	RemoteTimeout time.Duration `mapstructure:"remote_timeout" yaml:"remote_timeout" validate:"gt=0"`
	// InitTimeout bounds provider initialization (model load included)
	InitTimeout time.Duration `mapstructure:"init_timeout" yaml:"init_timeout" validate:"gt=0"`
	// InitWait is how long a request waits on a pending initialization
	InitWait time.Duration `mapstructure:"init_wait" yaml:"init_wait" validate:"gte=0"`
	// NeuralConcurrency caps simultaneous neural calls
	NeuralConcurrency int `mapstructure:"neural_concurrency" yaml:"neural_concurrency" validate:"gte=1,lte=64"`
	// WarmupOnStart initializes the neural tier before serving
	WarmupOnStart bool `mapstructure:"warmup_on_start" yaml:"warmup_on_start"`
}

// PatternConfig tunes the deterministic classifier.
type PatternConfig struct {
	// SignalStep is added to the confidence per matched signal beyond the first
	SignalStep float64 `mapstructure:"signal_step" yaml:"signal_step" validate:"gte=0,lte=0.2"`
	// SoonWindow is how close a due date must be to count as a soon deadline
	SoonWindow time.Duration `mapstructure:"soon_window" yaml:"soon_window" validate:"gt=0"`
	// RuleOrder reorders the precedence table; unnamed rules keep their order after it
	RuleOrder []string `mapstructure:"rule_order" yaml:"rule_order,omitempty" validate:"unique,dive,rule"`
}

// InferenceConfig describes the on-device model and its runtime.
type InferenceConfig struct {
	// Backend is "auto", "llamaserver" or "simulated"
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=auto llamaserver simulated"`
	// ModelPath is the GGUF weights file
	ModelPath string `mapstructure:"model_path" yaml:"model_path"`
	// ExpectedSize, when positive, must match the weights file size in bytes
	ExpectedSize int64 `mapstructure:"expected_size" yaml:"expected_size" validate:"gte=0"`
	// ContextSize is the model context window in tokens
	ContextSize int `mapstructure:"context_size" yaml:"context_size" validate:"gte=128"`
	// Threads is the CPU thread count for generation
	Threads int `mapstructure:"threads" yaml:"threads" validate:"gte=1,lte=256"`
	// GenerateTimeout bounds one generation
	GenerateTimeout time.Duration `mapstructure:"generate_timeout" yaml:"generate_timeout" validate:"gt=0"`
	// LoadTimeout bounds one model load
	LoadTimeout time.Duration `mapstructure:"load_timeout" yaml:"load_timeout" validate:"gt=0"`
	// LlamaServer configures the llama.cpp server backend
	LlamaServer LlamaServerConfig `mapstructure:"llama_server" yaml:"llama_server"`
}

// LlamaServerConfig configures the llama-server backend.
type LlamaServerConfig struct {
	// Binary is the llama-server executable
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Endpoint attaches to a running server instead of launching one
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	// Port for a launched server (0 picks a free port)
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	// LogFile receives the server output
	LogFile string `mapstructure:"log_file" yaml:"log_file,omitempty"`
	// StartupTimeout bounds the health wait after launch
	StartupTimeout time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout" validate:"gte=0"`
}

// NeuralConfig configures the on-device classification tier.
type NeuralConfig struct {
	// Enabled registers the neural tier with the router
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Strategy is the prompt formulation
	Strategy    string  `mapstructure:"strategy" yaml:"strategy" validate:"strategy"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"gte=16,lte=4096"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `mapstructure:"top_p" yaml:"top_p" validate:"gt=0,lte=1"`
}

// RemoteConfig configures the remote fallback tier. It is off unless
// explicitly enabled.
type RemoteConfig struct {
	// Enabled allows escalation to the remote tier
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Provider names the OpenAI-compatible service (openai, groq, openrouter, ollama)
	Provider string `mapstructure:"provider" yaml:"provider" validate:"required"`
	// Endpoint is the API base URL; empty uses the provider's default
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	// APIKey is the authentication key; prefer QUADRANT_REMOTE_API_KEY
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the model to request; empty uses the provider's default
	Model string `mapstructure:"model" yaml:"model"`
	// Strategy is the prompt formulation
	Strategy string `mapstructure:"strategy" yaml:"strategy" validate:"strategy"`
	// RequestsPerMinute and Burst configure client-side rate limiting
	RequestsPerMinute float64 `mapstructure:"requests_per_minute" yaml:"requests_per_minute" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
	// Streaming reads the answer as server-sent chunks
	Streaming bool `mapstructure:"streaming" yaml:"streaming"`
}

// BenchmarkConfig configures the strategy benchmark.
type BenchmarkConfig struct {
	// Dataset is a dataset file; empty uses the embedded dataset
	Dataset string `mapstructure:"dataset" yaml:"dataset,omitempty"`
	// Strategies to evaluate; empty evaluates all
	Strategies []string `mapstructure:"strategies" yaml:"strategies,omitempty" validate:"unique,dive,strategy"`
	// Target is the accuracy the best strategy should reach
	Target float64 `mapstructure:"target" yaml:"target" validate:"gt=0,lte=1"`
	// Excellent is the accuracy considered excellent
	Excellent float64 `mapstructure:"excellent" yaml:"excellent" validate:"gtefield=Target,lte=1"`
}

// MetricsConfig configures routing history.
type MetricsConfig struct {
	// Enabled persists route events to SQLite
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DBPath is the SQLite database path
	DBPath string `mapstructure:"db_path" yaml:"db_path" validate:"required_if=Enabled true"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	MaxBatch        int           `mapstructure:"max_batch" yaml:"max_batch" validate:"gte=1,lte=1000"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the default configuration: pattern and neural tiers on,
// remote tier off.
func Default() *Config {
	remote := llm.DefaultConfig("openai")
	return &Config{
		Router: RouterConfig{
			ConfidenceThreshold: 0.7,
			NeuralTimeout:       4 * time.Second,
			RemoteTimeout:       10 * time.Second,
			InitTimeout:         2 * time.Minute,
			InitWait:            100 * time.Millisecond,
			NeuralConcurrency:   1,
		},
		Pattern: PatternConfig{
			SignalStep: quadrant.DefaultSignalStep,
			SoonWindow: quadrant.DefaultSoonWindow,
		},
		Inference: InferenceConfig{
			Backend:         inference.ModeAuto,
			ModelPath:       "~/.quadrant/models/classifier.gguf",
			ContextSize:     2048,
			Threads:         4,
			GenerateTimeout: inference.DefaultGenerateTimeout,
			LoadTimeout:     inference.DefaultLoadTimeout,
			LlamaServer: LlamaServerConfig{
				Binary:         inference.DefaultLlamaServerBinary,
				LogFile:        "~/.quadrant/logs/llama-server.log",
				StartupTimeout: time.Minute,
			},
		},
		Neural: NeuralConfig{
			Enabled:     true,
			Strategy:    string(prompts.Structured),
			MaxTokens:   150,
			Temperature: 0.1,
			TopP:        0.9,
		},
		Remote: RemoteConfig{
			Enabled:           false,
			Provider:          remote.Name,
			Strategy:          string(remote.Strategy),
			RequestsPerMinute: remote.RequestsPerMinute,
			Burst:             remote.Burst,
		},
		Benchmark: BenchmarkConfig{
			Target:    0.70,
			Excellent: 0.80,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			DBPath:  "~/.quadrant/metrics.db",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7890",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBatch:        50,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.quadrant/logs/quadrant.log",
		},
	}
}

// Load reads configuration from ~/.quadrant/config.yaml and merges
// environment variables.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".quadrant", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Missing keys fall back to the defaults, so an older file keeps working.
	setDefaults(v, Default())

	// Example: QUADRANT_ROUTER_CONFIDENCE_THRESHOLD=0.8
	v.SetEnvPrefix("QUADRANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("remote.api_key", "QUADRANT_REMOTE_API_KEY", "OPENAI_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()
	return &cfg, nil
}

// setDefaults registers every key of d with v.
func setDefaults(v *viper.Viper, d *Config) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return
	}
	for section, values := range m {
		if inner, ok := values.(map[string]interface{}); ok {
			for key, val := range inner {
				v.SetDefault(section+"."+key, val)
			}
			continue
		}
		v.SetDefault(section, values)
	}
}

func (c *Config) expandPaths() {
	c.Inference.ModelPath = expandPath(c.Inference.ModelPath)
	c.Inference.LlamaServer.LogFile = expandPath(c.Inference.LlamaServer.LogFile)
	c.Benchmark.Dataset = expandPath(c.Benchmark.Dataset)
	c.Metrics.DBPath = expandPath(c.Metrics.DBPath)
	c.Logging.File = expandPath(c.Logging.File)
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	return c.SaveToPath(c.GetConfigPath())
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// GetDataDir returns the quadrant data directory path (~/.quadrant).
func (c *Config) GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".quadrant")
}

// GetConfigPath returns the full path to the config file.
func (c *Config) GetConfigPath() string {
	return filepath.Join(c.GetDataDir(), "config.yaml")
}

// EnsureDirectories creates the data, log and metrics directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.GetDataDir()}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	if c.Metrics.Enabled && c.Metrics.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.Metrics.DBPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ═══════════════════════════════════════════════════════════════════════════════

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
			return prompts.Default().Has(prompts.Strategy(fl.Field().String()))
		})
		_ = validate.RegisterValidation("rule", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			for _, known := range quadrant.RuleNames() {
				if name == known {
					return true
				}
			}
			return false
		})
	})
	return validate
}

// Validate checks the configuration against its field constraints and
// reports every violation by its YAML key.
func (c *Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", key, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMPONENT CONFIGS
// ═══════════════════════════════════════════════════════════════════════════════

// PatternOptions returns the classifier options for the pattern section.
func (c *Config) PatternOptions() ([]quadrant.PatternOption, error) {
	opts := []quadrant.PatternOption{
		quadrant.WithSignalStep(c.Pattern.SignalStep),
		quadrant.WithSoonWindow(c.Pattern.SoonWindow),
	}
	if len(c.Pattern.RuleOrder) > 0 {
		rules, err := quadrant.OrderRules(c.Pattern.RuleOrder)
		if err != nil {
			return nil, err
		}
		opts = append(opts, quadrant.WithRules(rules))
	}
	return opts, nil
}

// BackendConfig converts the inference section for inference.NewBackend.
func (c *Config) BackendConfig() inference.BackendConfig {
	return inference.BackendConfig{
		Mode: c.Inference.Backend,
		LlamaServer: inference.LlamaServerConfig{
			Binary:         c.Inference.LlamaServer.Binary,
			Endpoint:       c.Inference.LlamaServer.Endpoint,
			Port:           c.Inference.LlamaServer.Port,
			LogPath:        c.Inference.LlamaServer.LogFile,
			StartupTimeout: c.Inference.LlamaServer.StartupTimeout,
		},
	}
}

// BridgeConfig converts the inference timeouts for inference.NewBridge.
func (c *Config) BridgeConfig() inference.Config {
	return inference.Config{
		GenerateTimeout: c.Inference.GenerateTimeout,
		LoadTimeout:     c.Inference.LoadTimeout,
	}
}

// LoadSpec describes the configured weights.
func (c *Config) LoadSpec() inference.LoadSpec {
	return inference.LoadSpec{
		Path:         c.Inference.ModelPath,
		ContextSize:  c.Inference.ContextSize,
		Threads:      c.Inference.Threads,
		ExpectedSize: c.Inference.ExpectedSize,
	}
}

// NeuralProviderConfig converts the neural section for llm.NewNeuralProvider.
func (c *Config) NeuralProviderConfig() *llm.ProviderConfig {
	return &llm.ProviderConfig{
		Name:        "neural",
		Strategy:    prompts.Strategy(c.Neural.Strategy),
		MaxTokens:   c.Neural.MaxTokens,
		Temperature: c.Neural.Temperature,
		TopP:        c.Neural.TopP,
		Timeout:     c.Router.NeuralTimeout,
	}
}

// RemoteProviderConfig converts the remote section for llm.NewRemoteProvider.
// Sampling follows the provider defaults.
func (c *Config) RemoteProviderConfig() *llm.ProviderConfig {
	pc := llm.DefaultConfig(c.Remote.Provider)
	pc.Name = c.Remote.Provider
	if c.Remote.Endpoint != "" {
		pc.Endpoint = c.Remote.Endpoint
	}
	if c.Remote.Model != "" {
		pc.Model = c.Remote.Model
	}
	if c.Remote.Strategy != "" {
		pc.Strategy = prompts.Strategy(c.Remote.Strategy)
	}
	pc.APIKey = c.Remote.APIKey
	pc.RequestsPerMinute = c.Remote.RequestsPerMinute
	pc.Burst = c.Remote.Burst
	pc.Streaming = c.Remote.Streaming
	pc.Timeout = c.Router.RemoteTimeout
	return pc
}

// ServerConfig converts the server section for server.New.
func (c *Config) ServerConfig(version string) *server.Config {
	return &server.Config{
		Addr:            c.Server.Addr,
		RequestTimeout:  c.Server.RequestTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		MaxBatch:        c.Server.MaxBatch,
		Version:         version,
	}
}

// BenchmarkStrategies returns the configured strategies, or every strategy
// when none is configured.
func (c *Config) BenchmarkStrategies() []prompts.Strategy {
	if len(c.Benchmark.Strategies) == 0 {
		return prompts.Default().Strategies()
	}
	out := make([]prompts.Strategy, len(c.Benchmark.Strategies))
	for i, s := range c.Benchmark.Strategies {
		out[i] = prompts.Strategy(s)
	}
	return out
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may carry an API key.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
