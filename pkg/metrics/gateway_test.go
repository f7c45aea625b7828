package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
)

type fakeGateway struct {
	resp *llm.Response
	err  error
}

func (f *fakeGateway) Generate(_ context.Context, _ llm.Request) (*llm.Response, error) {
	return f.resp, f.err
}

func TestInstrumentGateway_RecordsTokensOnSuccess(t *testing.T) {
	inner := &fakeGateway{resp: &llm.Response{
		Text:   "draft",
		Tokens: llm.TokenUsage{InputTokens: 120, OutputTokens: 340},
	}}
	g := InstrumentGateway(inner)

	resp, err := g.Generate(context.Background(), llm.Request{Role: llm.RoleWriter})
	require.NoError(t, err)
	assert.Equal(t, "draft", resp.Text)

	assert.Equal(t, float64(120), testutil.ToFloat64(TokensTotal.WithLabelValues("writer", "input")))
	assert.Equal(t, float64(340), testutil.ToFloat64(TokensTotal.WithLabelValues("writer", "output")))
}

func TestInstrumentGateway_RecordsErrorOutcome(t *testing.T) {
	inner := &fakeGateway{err: errors.New("circuit open")}
	g := InstrumentGateway(inner)

	before := testutil.ToFloat64(LLMRequestsTotal.WithLabelValues("verifier", "error"))

	_, err := g.Generate(context.Background(), llm.Request{Role: llm.RoleVerifier})
	require.Error(t, err)

	after := testutil.ToFloat64(LLMRequestsTotal.WithLabelValues("verifier", "error"))
	assert.Equal(t, before+1, after)
}
