package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/normanking/quadrant/internal/logging"
	"github.com/normanking/quadrant/internal/prompts"
	"github.com/normanking/quadrant/internal/quadrant"
)

const remoteSystemPrompt = "You are a precise task triage assistant. Answer with the requested format only."

// RemoteProvider classifies through an OpenAI-compatible chat endpoint.
type RemoteProvider struct {
	cfg     *ProviderConfig
	client  *openai.Client
	limiter *rate.Limiter
	log     *logging.Logger

	promptTokens     atomic.Int64
	completionTokens atomic.Int64
}

// NewRemoteProvider creates a remote provider from cfg.
func NewRemoteProvider(cfg *ProviderConfig) *RemoteProvider {
	if cfg == nil {
		cfg = DefaultConfig("openai")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = prompts.Structured
	}

	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		cc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RemoteProvider{
		cfg:     cfg,
		client:  openai.NewClientWithConfig(cc),
		limiter: rate.NewLimiter(limit, burst),
		log:     logging.Global().WithComponent("remote"),
	}
}

func (p *RemoteProvider) Name() string                { return p.cfg.Name }
func (p *RemoteProvider) Kind() quadrant.ProviderKind { return quadrant.KindRemote }
func (p *RemoteProvider) Capabilities() []quadrant.Capability {
	return []quadrant.Capability{quadrant.CapabilityClassify, quadrant.CapabilityExtract, quadrant.CapabilityGenerate}
}

// Initialize checks that the provider has what it needs to make calls.
func (p *RemoteProvider) Initialize(ctx context.Context) error {
	if p.cfg.Model == "" {
		return fmt.Errorf("%w: %s has no model configured", quadrant.ErrProviderUnavailable, p.cfg.Name)
	}
	if p.cfg.APIKey == "" && !IsLocalProvider(p.cfg.Name) {
		return fmt.Errorf("%w: %s has no API key", quadrant.ErrProviderUnavailable, p.cfg.Name)
	}
	return nil
}

func (p *RemoteProvider) Release() error { return nil }

// Execute sends one classification prompt and parses the answer.
func (p *RemoteProvider) Execute(ctx context.Context, req quadrant.Request) (quadrant.Result, error) {
	prompt, err := prompts.Build(p.cfg.Strategy, req.Text())
	if err != nil {
		return quadrant.Result{}, fmt.Errorf("build prompt: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return quadrant.Result{}, fmt.Errorf("%w: rate limit wait: %v", quadrant.ErrProviderUnavailable, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: remoteSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: float32(p.cfg.Temperature),
		TopP:        float32(p.cfg.TopP),
	}

	var content string
	if p.cfg.Streaming {
		content, err = p.stream(ctx, chatReq)
	} else {
		content, err = p.complete(ctx, chatReq)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return quadrant.Result{}, fmt.Errorf("%w: %s: %v", quadrant.ErrProviderTimeout, p.cfg.Name, err)
		}
		return quadrant.Result{}, fmt.Errorf("%w: %s: %v", quadrant.ErrProviderUnavailable, p.cfg.Name, err)
	}

	parsed, err := prompts.Parse(content)
	if err != nil {
		return quadrant.Result{}, err
	}
	res := parsed.Result(p.cfg.Name, quadrant.KindRemote)
	res.CorrelationID = req.CorrelationID()
	return res, nil
}

func (p *RemoteProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	p.promptTokens.Add(int64(resp.Usage.PromptTokens))
	p.completionTokens.Add(int64(resp.Usage.CompletionTokens))
	p.log.Debug("[Remote] %s finish=%s tokens=%d", p.cfg.Model, resp.Choices[0].FinishReason, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func (p *RemoteProvider) stream(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	req.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		for _, choice := range chunk.Choices {
			sb.WriteString(choice.Delta.Content)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	p.completionTokens.Add(int64(EstimateTokens(sb.String())))
	return sb.String(), nil
}

// EstimateCost prices the prompt plus a full-length answer.
func (p *RemoteProvider) EstimateCost(req quadrant.Request) Cost {
	prompt, err := prompts.Build(p.cfg.Strategy, req.Text())
	if err != nil {
		prompt = req.Text()
	}
	in := EstimateTokens(remoteSystemPrompt) + EstimateTokens(prompt)
	return Cost{
		USD:   PriceTokens(p.cfg.Name, in, p.cfg.MaxTokens),
		Local: IsLocalProvider(p.cfg.Name),
	}
}

// Usage returns the tokens reported by the endpoint so far.
func (p *RemoteProvider) Usage() (prompt, completion int64) {
	return p.promptTokens.Load(), p.completionTokens.Load()
}
