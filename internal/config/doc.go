// Package config provides configuration management for quadrant.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// struct-tag validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.quadrant/config.yaml and is automatically
// created with defaults on first use. Keys missing from an existing file
// fall back to the defaults.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the QUADRANT_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - QUADRANT_ROUTER_CONFIDENCE_THRESHOLD=0.8
//   - QUADRANT_REMOTE_ENABLED=true
//   - QUADRANT_INFERENCE_MODEL_PATH=/models/tiny.gguf
//   - QUADRANT_LOGGING_LEVEL=debug
//
// The remote API key is also read from OPENAI_API_KEY. Keep keys out of
// the config file:
//
//	export QUADRANT_REMOTE_API_KEY=sk-...
//
// # Configuration Sections
//
//   - Router: confidence threshold, per-tier timeouts, neural concurrency
//   - Pattern: signal step, soon window, rule precedence
//   - Inference: backend mode, weights file, llama-server settings
//   - Neural: on-device tier switch and sampling
//   - Remote: OpenAI-compatible fallback (disabled by default)
//   - Benchmark: dataset, strategies, accuracy targets
//   - Metrics: SQLite routing history
//   - Server: HTTP listen address and limits
//   - Logging: log level and output file
//
// # Validation
//
// Validate() checks every field against its `validate` tag and reports
// violations by YAML key, e.g. "router.confidence_threshold: failed lte=1".
//
// Config instances are not safe for concurrent mutation.
package config
