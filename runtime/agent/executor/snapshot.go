package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/store"
)

type (
	// Record is the serialized form of a process, written to the store at
	// suspension and at every terminal transition. Blackboard values are
	// serialized best-effort: values that do not marshal are recorded as
	// their string rendering.
	Record struct {
		ID          string              `json:"id"`
		ParentID    string              `json:"parentId,omitempty"`
		Agent       string              `json:"agent"`
		Status      agent.ProcessStatus `json:"status"`
		RunningTime time.Duration       `json:"runningTime"`
		ActionCount int                 `json:"actionCount"`
		Usage       model.TokenUsage    `json:"usage"`
		Ran         []string            `json:"ran,omitempty"`
		Conditions  map[string]bool     `json:"conditions,omitempty"`
		Entries     []RecordEntry       `json:"entries,omitempty"`
		History     []HistoryEntry      `json:"history,omitempty"`
		AwaitableID string              `json:"awaitableId,omitempty"`
		SavedAt     time.Time           `json:"savedAt"`
	}

	// RecordEntry is one serialized blackboard entry.
	RecordEntry struct {
		ID     string          `json:"id"`
		Name   string          `json:"name,omitempty"`
		Hidden bool            `json:"hidden,omitempty"`
		Value  json.RawMessage `json:"value"`
	}

	// AwaitableRecord is the serialized form of a persistent awaitable. The
	// response handler is rebuilt from the kind and payload on load.
	AwaitableRecord struct {
		ID        string         `json:"id"`
		ProcessID string         `json:"processId"`
		Kind      await.Kind     `json:"kind"`
		Payload   map[string]any `json:"payload,omitempty"`
		SavedAt   time.Time      `json:"savedAt"`
	}
)

// Snapshot serializes the process state.
func (p *Process) Snapshot() (*Record, error) {
	p.mu.Lock()
	rec := &Record{
		ID:          p.id,
		ParentID:    p.parentID,
		Agent:       p.agent.Name,
		Status:      p.status,
		RunningTime: p.runningTime,
		ActionCount: p.actionCount,
		Usage:       p.usage,
		Conditions:  p.bb.Conditions(),
		History:     append([]HistoryEntry(nil), p.history...),
		SavedAt:     time.Now().UTC(),
	}
	for name, ok := range p.ran {
		if ok {
			rec.Ran = append(rec.Ran, name)
		}
	}
	if p.pending != nil {
		rec.AwaitableID = p.pending.ID
	}
	p.mu.Unlock()

	for _, e := range p.bb.Entries() {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			raw, _ = json.Marshal(fmt.Sprintf("%v", e.Value))
		}
		rec.Entries = append(rec.Entries, RecordEntry{ID: e.ID, Name: e.Name, Hidden: e.Hidden, Value: raw})
	}
	return rec, nil
}

// snapshot writes the process record to the store, when one is configured.
// Persistence failures are logged, never fatal: the in-memory process is the
// source of truth.
func (p *Process) snapshot(ctx context.Context) {
	if p.persist == nil {
		return
	}
	rec, err := p.Snapshot()
	if err != nil {
		p.logger.Error(ctx, "process snapshot failed", "process_id", p.id, "error", err.Error())
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error(ctx, "process snapshot encoding failed", "process_id", p.id, "error", err.Error())
		return
	}
	if err := p.persist.Put(ctx, store.KindProcess, p.id, data); err != nil {
		p.logger.Error(ctx, "process snapshot write failed", "process_id", p.id, "error", err.Error())
	}
}

func (p *Process) persistAwaitable(ctx context.Context, aw *await.Awaitable) {
	if p.persist == nil || aw == nil || !aw.Persistent {
		return
	}
	rec := AwaitableRecord{
		ID:        aw.ID,
		ProcessID: p.id,
		Kind:      aw.Kind,
		Payload:   aw.Payload,
		SavedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error(ctx, "awaitable encoding failed", "awaitable_id", aw.ID, "error", err.Error())
		return
	}
	if err := p.persist.Put(ctx, store.KindAwaitable, aw.ID, data); err != nil {
		p.logger.Error(ctx, "awaitable write failed", "awaitable_id", aw.ID, "error", err.Error())
	}
}

// LoadRecord reads a process record from the store.
func LoadRecord(ctx context.Context, s store.Store, processID string) (*Record, error) {
	data, err := s.Get(ctx, store.KindProcess, processID)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("executor: decode process record %s: %w", processID, err)
	}
	return &rec, nil
}

// LoadAwaitable reads a persistent awaitable record and rebuilds its
// response handler from the kind and payload.
func LoadAwaitable(ctx context.Context, s store.Store, awaitableID string) (*await.Awaitable, error) {
	data, err := s.Get(ctx, store.KindAwaitable, awaitableID)
	if err != nil {
		return nil, err
	}
	var rec AwaitableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("executor: decode awaitable record %s: %w", awaitableID, err)
	}
	return rehydrate(&rec), nil
}

// rehydrate reconstructs an awaitable from its record. Handlers are rebuilt
// by kind; unknown kinds yield an awaitable whose responses leave the
// blackboard unchanged.
func rehydrate(rec *AwaitableRecord) *await.Awaitable {
	var aw *await.Awaitable
	switch rec.Kind {
	case await.KindConfirmation:
		condition, _ := rec.Payload["condition"].(string)
		aw = await.NewConfirmation(condition, rec.Payload)
	case await.KindTypeRequest:
		typeName, _ := rec.Payload["type"].(string)
		bindName, _ := rec.Payload["bind"].(string)
		aw = await.NewTypeRequest(typeName, bindName, rec.Payload)
	case await.KindFormBinding:
		var fields []string
		if raw, ok := rec.Payload["fields"].([]any); ok {
			for _, f := range raw {
				if s, ok := f.(string); ok {
					fields = append(fields, s)
				}
			}
		}
		aw = await.NewFormBinding(fields, rec.Payload)
	default:
		aw = &await.Awaitable{Kind: rec.Kind, Payload: rec.Payload}
	}
	aw.ID = rec.ID
	aw.Persistent = true
	return aw
}
