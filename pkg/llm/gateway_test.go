package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/docwriter/pkg/llm"
)

func TestFakeGatewayReplaysScriptedResponsesInOrder(t *testing.T) {
	gw := llm.NewFakeGateway().
		WithResponse(llm.RoleWriter, llm.Response{Text: "draft one"}).
		WithResponse(llm.RoleWriter, llm.Response{Text: "draft two"})

	r1, err := gw.Generate(context.Background(), llm.Request{Role: llm.RoleWriter})
	require.NoError(t, err)
	require.Equal(t, "draft one", r1.Text)

	r2, err := gw.Generate(context.Background(), llm.Request{Role: llm.RoleWriter})
	require.NoError(t, err)
	require.Equal(t, "draft two", r2.Text)

	r3, err := gw.Generate(context.Background(), llm.Request{Role: llm.RoleWriter})
	require.NoError(t, err)
	require.Equal(t, "draft two", r3.Text, "exhausted scripts repeat the last response")

	require.Equal(t, 3, gw.Calls(llm.RoleWriter))
}

func TestFakeGatewayPropagatesScriptedError(t *testing.T) {
	sentinel := errors.New("provider unavailable")
	gw := llm.NewFakeGateway().WithError(llm.RoleReviewer, sentinel)

	_, err := gw.Generate(context.Background(), llm.Request{Role: llm.RoleReviewer})
	require.ErrorIs(t, err, sentinel)
}

func TestFakeGatewayErrorsWithoutScript(t *testing.T) {
	gw := llm.NewFakeGateway()
	_, err := gw.Generate(context.Background(), llm.Request{Role: llm.RoleVerifier})
	require.Error(t, err)
}
