package anthropic

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

// streamer adapts an Anthropic Messages event stream to model.Streamer.
// Recv is pull-based: each call advances the underlying SSE stream until a
// chunk-producing event arrives.
type streamer struct {
	stream  *ssestream.Stream[sdk.MessageStreamEventUnion]
	modelID string

	mu      sync.Mutex
	pending []model.Chunk
	done    bool

	// toolID/toolName/toolArgs accumulate the current tool_use block; the
	// chunk is emitted on content_block_stop when the argument JSON is whole.
	toolID   string
	toolName string
	toolArgs strings.Builder
}

func newStreamer(stream *ssestream.Stream[sdk.MessageStreamEventUnion], modelID string) model.Streamer {
	return &streamer{stream: stream, modelID: modelID}
}

// Recv returns the next chunk or io.EOF when the stream is exhausted.
func (s *streamer) Recv() (model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.pending) > 0 {
			chunk := s.pending[0]
			s.pending = s.pending[1:]
			return chunk, nil
		}
		if s.done {
			return model.Chunk{}, io.EOF
		}
		if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				return model.Chunk{}, err
			}
			return model.Chunk{}, io.EOF
		}
		s.handle(s.stream.Current())
	}
}

// Close releases the underlying SSE stream.
func (s *streamer) Close() error { return s.stream.Close() }

// Metadata reports the provider and model.
func (s *streamer) Metadata() map[string]any {
	return map[string]any{"provider": "anthropic", "model": s.modelID}
}

func (s *streamer) handle(event sdk.MessageStreamEventUnion) {
	switch event.Type {
	case "content_block_start":
		block := event.ContentBlock
		if block.Type == "tool_use" {
			s.toolID = block.ID
			s.toolName = block.Name
			s.toolArgs.Reset()
		}
	case "content_block_delta":
		delta := event.Delta
		switch delta.Type {
		case "text_delta":
			if delta.Text != "" {
				s.pending = append(s.pending, model.Chunk{Type: model.ChunkTypeText, Text: delta.Text})
			}
		case "thinking_delta":
			if delta.Thinking != "" {
				s.pending = append(s.pending, model.Chunk{Type: model.ChunkTypeThinking, Thinking: delta.Thinking})
			}
		case "input_json_delta":
			s.toolArgs.WriteString(delta.PartialJSON)
		}
	case "content_block_stop":
		if s.toolName != "" {
			args := s.toolArgs.String()
			if args == "" {
				args = "{}"
			}
			s.pending = append(s.pending, model.Chunk{
				Type: model.ChunkTypeToolCall,
				ToolCall: &model.ToolCall{
					ID:        s.toolID,
					Name:      tools.Ident(s.toolName),
					Arguments: json.RawMessage(args),
				},
			})
			s.toolID, s.toolName = "", ""
			s.toolArgs.Reset()
		}
	case "message_delta":
		if u := event.Usage; u.OutputTokens > 0 || u.InputTokens > 0 {
			s.pending = append(s.pending, model.Chunk{
				Type: model.ChunkTypeUsage,
				UsageDelta: &model.TokenUsage{
					InputTokens:  int(u.InputTokens),
					OutputTokens: int(u.OutputTokens),
					TotalTokens:  int(u.InputTokens + u.OutputTokens),
				},
			})
		}
		if reason := string(event.Delta.StopReason); reason != "" {
			s.pending = append(s.pending, model.Chunk{Type: model.ChunkTypeStop, StopReason: reason})
		}
	}
}
