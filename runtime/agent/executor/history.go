package executor

import (
	"time"

	"github.com/arcline-ai/arcline/runtime/agent/model"
)

// EntryKind classifies history entries.
type EntryKind string

const (
	// EntryPlan records a formulated plan.
	EntryPlan EntryKind = "plan"
	// EntryAction records one action execution outcome.
	EntryAction EntryKind = "action"
	// EntryReplan records a replan control-flow signal.
	EntryReplan EntryKind = "replan"
	// EntryResponse records an awaitable response delivery.
	EntryResponse EntryKind = "response"
	// EntryUsage records a model usage increment.
	EntryUsage EntryKind = "usage"
	// EntryTermination records an early termination policy firing.
	EntryTermination EntryKind = "termination"
)

// HistoryEntry is one record in a process's execution history. Fields are
// populated according to Kind.
type HistoryEntry struct {
	Kind EntryKind `json:"kind"`
	Time time.Time `json:"time"`
	// Plan and Goal are set for plan entries.
	Plan []string `json:"plan,omitempty"`
	Goal string   `json:"goal,omitempty"`
	// Action, Attempts, Status, and Error are set for action entries.
	Action   string `json:"action,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	// Reason is set for replan, response, and termination entries.
	Reason string `json:"reason,omitempty"`
	// Usage is set for usage entries.
	Usage *model.TokenUsage `json:"usage,omitempty"`
}

// History returns a copy of the process history in append order.
func (p *Process) History() []HistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]HistoryEntry, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Process) appendHistory(entry HistoryEntry) {
	entry.Time = time.Now().UTC()
	p.mu.Lock()
	p.history = append(p.history, entry)
	p.mu.Unlock()
}
