package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/normanking/quadrant/internal/logging"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LLAMA-SERVER BACKEND - Runs weights in a llama.cpp server process
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DefaultLlamaServerBinary = "llama-server"
	defaultStartupTimeout    = 90 * time.Second
	defaultHealthInterval    = 500 * time.Millisecond
)

// LlamaServerConfig configures the llama-server backend.
type LlamaServerConfig struct {
	// Binary is the llama-server executable (looked up on PATH).
	Binary string

	// Endpoint attaches to an already running server instead of launching one.
	Endpoint string

	// Port for a launched server. Zero picks a free port.
	Port int

	// LogPath receives the server's stdout/stderr when set.
	LogPath string

	StartupTimeout time.Duration
	HealthInterval time.Duration
}

// LlamaServer launches (or attaches to) a llama.cpp HTTP server per handle.
type LlamaServer struct {
	cfg        LlamaServerConfig
	httpClient *http.Client
	log        *logging.Logger
}

// NewLlamaServer creates a llama-server backend.
func NewLlamaServer(cfg LlamaServerConfig) *LlamaServer {
	if cfg.Binary == "" {
		cfg.Binary = DefaultLlamaServerBinary
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &LlamaServer{
		cfg:        cfg,
		httpClient: &http.Client{},
		log:        logging.Global().WithComponent("llamaserver"),
	}
}

func (s *LlamaServer) Name() string    { return ModeLlamaServer }
func (s *LlamaServer) Degraded() bool  { return false }
func (s *LlamaServer) Shutdown() error { return nil }

// Init checks that the binary exists when no endpoint is configured.
func (s *LlamaServer) Init() error {
	if s.cfg.Endpoint != "" {
		return nil
	}
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return fmt.Errorf("%s not found: %w", s.cfg.Binary, err)
	}
	return nil
}

// Open starts a server for spec (or attaches) and waits until it is healthy.
func (s *LlamaServer) Open(ctx context.Context, spec LoadSpec) (Handle, error) {
	var size int64
	if fi, err := os.Stat(spec.Path); err == nil {
		size = fi.Size()
	}

	if s.cfg.Endpoint != "" {
		h := &llamaHandle{backend: s, endpoint: s.cfg.Endpoint, memory: size}
		if err := s.waitForHealth(ctx, h.endpoint); err != nil {
			return nil, err
		}
		s.log.Info("[LlamaServer] Attached to %s", h.endpoint)
		return h, nil
	}

	port := s.cfg.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, fmt.Errorf("pick port: %w", err)
		}
		port = p
	}

	cmd := exec.Command(s.cfg.Binary,
		"-m", spec.Path,
		"-c", strconv.Itoa(spec.ContextSize),
		"-t", strconv.Itoa(spec.Threads),
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	)

	var logFile *os.File
	if s.cfg.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.cfg.LogPath), 0755); err == nil {
			if f, err := os.OpenFile(s.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				logFile = f
				cmd.Stdout = f
				cmd.Stderr = f
			}
		}
	}

	s.log.Info("[LlamaServer] Launching: %s -m %s -c %d -t %d --port %d",
		s.cfg.Binary, spec.Path, spec.ContextSize, spec.Threads, port)

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, fmt.Errorf("start %s: %w", s.cfg.Binary, err)
	}

	h := &llamaHandle{
		backend:  s,
		endpoint: fmt.Sprintf("http://127.0.0.1:%d", port),
		cmd:      cmd,
		logFile:  logFile,
		memory:   size,
	}
	if err := s.waitForHealth(ctx, h.endpoint); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// waitForHealth polls GET /health until it answers 200.
func (s *LlamaServer) waitForHealth(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		if s.healthy(ctx, endpoint) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("llama-server at %s not healthy: %w", endpoint, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *LlamaServer) healthy(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HANDLE
// ═══════════════════════════════════════════════════════════════════════════════

type llamaHandle struct {
	backend  *LlamaServer
	endpoint string
	cmd      *exec.Cmd
	logFile  *os.File
	memory   int64
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stream      bool    `json:"stream"`
}

type completionResponse struct {
	Content         string `json:"content"`
	TokensPredicted int    `json:"tokens_predicted"`
}

func (h *llamaHandle) MemoryBytes() int64 { return h.memory }

func (h *llamaHandle) Generate(ctx context.Context, params GenerateParams) (string, int, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      params.Prompt,
		NPredict:    params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.backend.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("llama-server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Content, out.TokensPredicted, nil
}

// Close stops a launched server. Attached servers are left running.
func (h *llamaHandle) Close() error {
	var err error
	if h.cmd != nil && h.cmd.Process != nil {
		if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill llama-server: %w", kerr)
		}
		h.cmd.Wait()
		h.cmd = nil
	}
	if h.logFile != nil {
		h.logFile.Close()
		h.logFile = nil
	}
	return err
}
