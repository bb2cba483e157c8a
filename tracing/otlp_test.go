package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, tp)
}

func TestInitTracerWithEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracer(ctx, "http://127.0.0.1:4318")
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, tp.Shutdown(ctx))
}
