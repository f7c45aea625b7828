package metrics

import (
	"context"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
)

// instrumentedGateway wraps an llm.Gateway, recording token usage and
// request outcomes without the wrapped gateway knowing metrics exist.
type instrumentedGateway struct {
	inner llm.Gateway
}

// InstrumentGateway wraps g so every Generate call records token usage
// (TokensTotal) and request outcome (LLMRequestsTotal), labeled by
// req.Role.
func InstrumentGateway(g llm.Gateway) llm.Gateway {
	return &instrumentedGateway{inner: g}
}

func (g *instrumentedGateway) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := g.inner.Generate(ctx, req)

	role := string(req.Role)
	if err != nil {
		LLMRequestsTotal.WithLabelValues(role, "error").Inc()
		return resp, err
	}

	LLMRequestsTotal.WithLabelValues(role, "ok").Inc()
	TokensTotal.WithLabelValues(role, "input").Add(float64(resp.Tokens.InputTokens))
	TokensTotal.WithLabelValues(role, "output").Add(float64(resp.Tokens.OutputTokens))
	return resp, nil
}
