package toolloop

import (
	"github.com/arcline-ai/arcline/runtime/agent/config"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// NewLoop builds a loop from the configured tool loop options. Parallel
// execution is enabled only when the configuration asks for it.
func NewLoop(client model.Client, ts []*tools.Tool, cfg config.ToolLoop) *Loop {
	loop := &Loop{
		Client:        client,
		Tools:         ts,
		MaxIterations: cfg.MaxIterations,
	}
	if cfg.Parallel.Enabled {
		loop.Parallel = &ParallelOptions{
			MaxConcurrency: cfg.Parallel.MaxConcurrency,
			PerToolTimeout: cfg.Parallel.PerToolTimeout.Std(),
			BatchTimeout:   cfg.Parallel.BatchTimeout.Std(),
		}
	}
	return loop
}
