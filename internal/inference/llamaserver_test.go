package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLlamaServer mimics the llama.cpp HTTP server.
func fakeLlamaServer(t *testing.T, healthyAfter int32) (*httptest.Server, func() completionRequest) {
	t.Helper()
	var healthChecks atomic.Int32
	var mu sync.Mutex
	var last completionRequest

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if healthChecks.Add(1) <= healthyAfter {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("POST /completion", func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		last = req
		mu.Unlock()
		if req.Prompt == "fail" {
			http.Error(w, "slot unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content":          `{"category": "SCHEDULE", "confidence": 0.8}`,
			"tokens_predicted": 12,
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() completionRequest {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestLlamaServer_AttachAndGenerate(t *testing.T) {
	srv, lastRequest := fakeLlamaServer(t, 2)

	backend := NewLlamaServer(LlamaServerConfig{Endpoint: srv.URL + "/", HealthInterval: 5 * time.Millisecond})
	b := NewBridge(backend, DefaultConfig())
	defer b.Close()

	out := b.Load(context.Background(), validSpec(writeWeights(t, 256)))
	require.True(t, out.Success, out.Reason)
	assert.False(t, out.Degraded)
	assert.Equal(t, int64(256), out.MemoryBytes)

	gen := b.Generate(context.Background(), GenerateParams{Prompt: "Task: x", MaxTokens: 150, Temperature: 0.1, TopP: 0.9})
	require.True(t, gen.Success, gen.Reason)
	assert.Equal(t, 12, gen.Tokens)
	assert.Contains(t, gen.Text, "SCHEDULE")

	last := lastRequest()
	assert.Equal(t, "Task: x", last.Prompt)
	assert.Equal(t, 150, last.NPredict)
	assert.Equal(t, 0.1, last.Temperature)
	assert.Equal(t, 0.9, last.TopP)
	assert.False(t, last.Stream)
}

func TestLlamaServer_ErrorStatus(t *testing.T) {
	srv, _ := fakeLlamaServer(t, 0)

	b := NewBridge(NewLlamaServer(LlamaServerConfig{Endpoint: srv.URL}), DefaultConfig())
	defer b.Close()
	require.True(t, b.Load(context.Background(), validSpec(writeWeights(t, 8))).Success)

	gen := b.Generate(context.Background(), GenerateParams{Prompt: "fail", MaxTokens: 10})
	assert.False(t, gen.Success)
	assert.Contains(t, gen.Reason, "500")
	assert.Equal(t, int64(1), b.Stats().GenerateFailures)
}

func TestLlamaServer_UnhealthyFailsLoad(t *testing.T) {
	srv, _ := fakeLlamaServer(t, 1<<30)

	backend := NewLlamaServer(LlamaServerConfig{
		Endpoint:       srv.URL,
		StartupTimeout: 50 * time.Millisecond,
		HealthInterval: 5 * time.Millisecond,
	})
	b := NewBridge(backend, DefaultConfig())
	defer b.Close()

	out := b.Load(context.Background(), validSpec(writeWeights(t, 8)))
	assert.False(t, out.Success)
	assert.Contains(t, out.Reason, "not healthy")
}

func TestLlamaServer_MissingBinary(t *testing.T) {
	b := NewBridge(NewLlamaServer(LlamaServerConfig{Binary: "definitely-not-llama-server"}), DefaultConfig())
	defer b.Close()

	out := b.Load(context.Background(), validSpec(writeWeights(t, 8)))
	assert.False(t, out.Success)
	assert.Contains(t, out.Reason, "not found")
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend(BackendConfig{Mode: "simulated"})
	require.NoError(t, err)
	assert.Equal(t, ModeSimulated, b.Name())
	assert.True(t, b.Degraded())

	b, err = NewBackend(BackendConfig{Mode: "auto", LlamaServer: LlamaServerConfig{Endpoint: "http://127.0.0.1:8080"}})
	require.NoError(t, err)
	assert.Equal(t, ModeLlamaServer, b.Name())

	b, err = NewBackend(BackendConfig{Mode: "auto", LlamaServer: LlamaServerConfig{Binary: "definitely-not-llama-server"}})
	require.NoError(t, err)
	assert.Equal(t, ModeSimulated, b.Name())

	_, err = NewBackend(BackendConfig{Mode: "cuda-magic"})
	assert.Error(t, err)
}
