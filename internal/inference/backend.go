package inference

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BACKEND INTERFACES
// ═══════════════════════════════════════════════════════════════════════════════

// Backend is a model runtime the Bridge drives. Implementations do not need
// to be safe for concurrent use; the Bridge serializes every call.
type Backend interface {
	// Name identifies the backend ("llamaserver", "simulated").
	Name() string

	// Degraded reports whether this backend is a stand-in for a real runtime.
	Degraded() bool

	// Init runs once before the first Open.
	Init() error

	// Open loads weights and returns a live handle.
	Open(ctx context.Context, spec LoadSpec) (Handle, error)

	// Shutdown releases runtime-wide state. Called once from Bridge.Close.
	Shutdown() error
}

// Handle is a loaded model plus its execution context.
type Handle interface {
	// Generate produces text for the prompt and reports how many tokens it emitted.
	Generate(ctx context.Context, params GenerateParams) (text string, tokens int, err error)

	// MemoryBytes reports the resident size of the loaded model.
	MemoryBytes() int64

	// Close frees the handle. It must be safe to call once after any Generate.
	Close() error
}

// ═══════════════════════════════════════════════════════════════════════════════
// BACKEND SELECTION
// ═══════════════════════════════════════════════════════════════════════════════

// Backend modes accepted by NewBackend.
const (
	ModeAuto        = "auto"
	ModeLlamaServer = "llamaserver"
	ModeSimulated   = "simulated"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Mode        string
	LlamaServer LlamaServerConfig
	Simulated   SimulatedConfig
}

// NewBackend builds the backend for cfg.Mode. In auto mode llama-server is
// used when its binary is on PATH or an endpoint is configured; otherwise
// the simulated backend stands in.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case ModeLlamaServer:
		return NewLlamaServer(cfg.LlamaServer), nil
	case ModeSimulated:
		return NewSimulated(cfg.Simulated), nil
	case "", ModeAuto:
		if cfg.LlamaServer.Endpoint != "" || llamaServerInstalled(cfg.LlamaServer.Binary) {
			return NewLlamaServer(cfg.LlamaServer), nil
		}
		return NewSimulated(cfg.Simulated), nil
	default:
		return nil, fmt.Errorf("unknown inference backend %q", cfg.Mode)
	}
}

func llamaServerInstalled(binary string) bool {
	if binary == "" {
		binary = DefaultLlamaServerBinary
	}
	_, err := exec.LookPath(binary)
	return err == nil
}
