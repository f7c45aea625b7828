// Package llm implements the LLM Gateway: a single point of entry for
// every stage that needs a model completion (planner, writer, reviewer
// flavors, verifier, rewriter). It wraps the Anthropic SDK with retry and
// circuit-breaking so stage handlers never deal with transient-provider
// plumbing directly — the same separation of concerns the model repo
// keeps between its agent package and its (here replaced) LLM client.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// AgentRole identifies which pipeline stage is calling the gateway, used
// for prompt selection and for metrics/log correlation.
type AgentRole string

const (
	RolePlanner  AgentRole = "planner"
	RoleWriter   AgentRole = "writer"
	RoleReviewer AgentRole = "reviewer"
	RoleVerifier AgentRole = "verifier"
	RoleRewriter AgentRole = "rewriter"
)

// Request is one generation request to the gateway.
type Request struct {
	Role        AgentRole
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// TokenUsage reports token counts for cost/telemetry tracking.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the gateway's normalized result.
type Response struct {
	Text   string
	Tokens TokenUsage
	Model  string
}

// Gateway is the interface every stage handler depends on. Request/
// Response are gateway-owned types so swapping the underlying SDK never
// ripples into stage code.
type Gateway interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// AnthropicGateway implements Gateway against the Claude API, with
// exponential backoff on transient errors and a circuit breaker per
// model to stop hammering a provider that is already failing.
type AnthropicGateway struct {
	client   anthropic.Client
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewAnthropicGateway builds a gateway using the given API key. Additional
// client options (base URL override for testing, custom HTTP client) can
// be passed through opts.
func NewAnthropicGateway(apiKey string, opts ...option.RequestOption) *AnthropicGateway {
	allOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicGateway{
		client:   anthropic.NewClient(allOpts...),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (g *AnthropicGateway) breakerFor(model string) *gobreaker.CircuitBreaker {
	if b, ok := g.breakers[model]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + model,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	g.breakers[model] = b
	return b
}

// Generate calls the Anthropic Messages API, retrying transient failures
// with jittered exponential backoff and tripping the per-model circuit
// breaker after repeated consecutive failures.
func (g *AnthropicGateway) Generate(ctx context.Context, req Request) (*Response, error) {
	breaker := g.breakerFor(req.Model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return g.generateWithRetry(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("llm generate (role=%s model=%s): %w", req.Role, req.Model, err)
	}
	return result.(*Response), nil
}

func (g *AnthropicGateway) generateWithRetry(ctx context.Context, req Request) (*Response, error) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	var resp *Response
	operation := func() error {
		r, err := g.doGenerate(ctx, req)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.RetryNotify(operation, policy, func(err error, d time.Duration) {
		slog.Warn("llm request failed, retrying", "role", req.Role, "model", req.Model, "backoff", d, "error", err)
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *AnthropicGateway) doGenerate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  messages,
	})
	if err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text:  text,
		Model: string(resp.Model),
		Tokens: TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// isRetryable decides whether a failed call should be retried. Context
// cancellation and deadline errors are never retried; everything else
// from the SDK (5xx, 429, connection resets) is treated as transient.
func isRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
