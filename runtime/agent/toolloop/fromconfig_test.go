package toolloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcline-ai/arcline/runtime/agent/config"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

func TestNewLoopFromConfig(t *testing.T) {
	client := &scriptedClient{}
	ts := []*tools.Tool{staticTool("lookup", "ok")}

	loop := NewLoop(client, ts, config.Default().ToolLoop)
	require.Same(t, client, loop.Client.(*scriptedClient))
	require.Equal(t, ts, loop.Tools)
	require.Equal(t, config.DefaultMaxIterations, loop.MaxIterations)
	require.Nil(t, loop.Parallel, "parallel execution is opt-in")
}

func TestNewLoopFromConfigParallel(t *testing.T) {
	cfg := config.ToolLoop{
		MaxIterations: 5,
		Parallel: config.Parallel{
			Enabled:        true,
			MaxConcurrency: 3,
			PerToolTimeout: config.Duration(30 * time.Second),
			BatchTimeout:   config.Duration(2 * time.Minute),
		},
	}
	loop := NewLoop(&scriptedClient{}, nil, cfg)
	require.Equal(t, 5, loop.MaxIterations)
	require.NotNil(t, loop.Parallel)
	require.Equal(t, 3, loop.Parallel.MaxConcurrency)
	require.Equal(t, 30*time.Second, loop.Parallel.PerToolTimeout)
	require.Equal(t, 2*time.Minute, loop.Parallel.BatchTimeout)
}
