// Package executor drives agent processes: it owns the process lifecycle,
// asks the planner for plans, runs actions inside the QoS retry envelope,
// routes control-flow signals (replan, await, kill), enforces early
// termination policies, and records history.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arcline-ai/arcline/runtime/agent"
	"github.com/arcline-ai/arcline/runtime/agent/await"
	"github.com/arcline-ai/arcline/runtime/agent/blackboard"
	"github.com/arcline-ai/arcline/runtime/agent/config"
	"github.com/arcline-ai/arcline/runtime/agent/domain"
	"github.com/arcline-ai/arcline/runtime/agent/hooks"
	"github.com/arcline-ai/arcline/runtime/agent/model"
	"github.com/arcline-ai/arcline/runtime/agent/planner"
	"github.com/arcline-ai/arcline/runtime/agent/store"
	"github.com/arcline-ai/arcline/runtime/agent/telemetry"
	"github.com/arcline-ai/arcline/runtime/agent/tools"
)

type (
	// Options wires the collaborators of a process. Planner is required;
	// everything else defaults to a no-op or in-memory implementation.
	Options struct {
		// Planner selects the next actions each tick.
		Planner planner.Planner
		// Types backs the process blackboard. Nil creates an empty registry.
		Types *domain.Registry
		// Model is the LLM client handed to actions. May be nil for agents
		// that never call models.
		Model model.Client
		// Groups resolves the tool groups actions declare.
		Groups *tools.GroupResolver
		// Events receives lifecycle events. Nil creates a private bus.
		Events hooks.Bus
		// Logger, Metrics, and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
		// Store persists process snapshots and persistent awaitables when
		// non-nil.
		Store store.Store
		// Config holds the per-process runtime options.
		Config config.Options
		// ParentID links a spawned child process to its parent.
		ParentID string
		// Inputs seeds the blackboard with named bindings before the first
		// tick.
		Inputs map[string]any
	}

	// Process is a running instance of an agent. All exported methods are
	// safe for concurrent use; execution itself is single-threaded per
	// process.
	Process struct {
		id       string
		parentID string
		agent    *agent.Agent
		plan     planner.Planner
		bb       *blackboard.Blackboard

		model   model.Client
		groups  *tools.GroupResolver
		events  hooks.Bus
		logger  telemetry.Logger
		metrics telemetry.Metrics
		tracer  telemetry.Tracer
		persist store.Store
		cfg     config.Options

		mu          sync.Mutex
		status      agent.ProcessStatus
		history     []HistoryEntry
		ran         map[string]bool
		usage       model.TokenUsage
		actionCount int
		runningTime time.Duration
		pending     *await.Awaitable
		// lastFailure guards against a planner re-selecting the action that
		// just business-failed in an unchanged world.
		lastFailure struct {
			action string
			wsKey  string
		}

		killed atomic.Bool
		paused atomic.Bool
	}
)

// errSuspended is the internal sentinel ending a Run when the process
// transitioned WAITING or PAUSED.
var errSuspended = errors.New("executor: process suspended")

// New validates the agent and constructs a READY process with a blackboard
// seeded from the caller inputs.
func New(ag *agent.Agent, opts Options) (*Process, error) {
	if opts.Planner == nil {
		return nil, &agent.ConfigurationError{Agent: ag.Name, Problems: []string{"a planner is required"}}
	}
	if err := ag.Validate(opts.Types); err != nil {
		return nil, err
	}
	if opts.Events == nil {
		opts.Events = hooks.NewBus()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.NewNoopMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NewNoopTracer()
	}
	if opts.Config.Verbosity.Debug {
		sub := hooks.NewLoggingSubscriber(opts.Logger)
		sub.Debug = true
		if _, err := opts.Events.Register(sub); err != nil {
			return nil, fmt.Errorf("executor: register debug subscriber: %w", err)
		}
	}

	bb := blackboard.New(opts.Types)
	for name, v := range opts.Inputs {
		bb.Bind(name, v)
	}

	p := &Process{
		id:       uuid.NewString(),
		parentID: opts.ParentID,
		agent:    ag,
		plan:     opts.Planner,
		bb:       bb,
		model:    opts.Model,
		groups:   opts.Groups,
		events:   opts.Events,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		persist:  opts.Store,
		cfg:      opts.Config,
		status:   agent.StatusReady,
		ran:      make(map[string]bool),
	}
	// Inputs are seeded before observation starts so the event stream opens
	// with process_created.
	bb.Observe(func(e blackboard.Entry) {
		typeName := ""
		if dt, ok := bb.Types().TypeOf(e.Value); ok {
			typeName = dt.Name
		}
		if e.Name == "" {
			p.publish(context.Background(), hooks.NewObjectAddedEvent(p.id, e.ID, typeName))
			return
		}
		p.publish(context.Background(), hooks.NewObjectBoundEvent(p.id, e.Name, e.ID, typeName))
	})
	p.publish(context.Background(), hooks.NewProcessCreatedEvent(p.id, ag.Name, p.parentID))
	return p, nil
}

// ID returns the process identifier.
func (p *Process) ID() string { return p.id }

// Agent returns the immutable agent descriptor.
func (p *Process) Agent() *agent.Agent { return p.agent }

// Blackboard returns the process blackboard. On FAILED and STUCK the
// blackboard is preserved for inspection.
func (p *Process) Blackboard() *blackboard.Blackboard { return p.bb }

// Status returns the current lifecycle status.
func (p *Process) Status() agent.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Usage returns the accumulated model usage.
func (p *Process) Usage() model.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// RunningTime returns the total active execution time.
func (p *Process) RunningTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningTime
}

// Awaitable returns the awaitable the process is WAITING on, or nil.
func (p *Process) Awaitable() *await.Awaitable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Result returns the most recent blackboard value of the named type, the
// conventional way to read a completed process's goal output.
func (p *Process) Result(typeName string) any {
	return p.bb.Last(typeName)
}

// Kill requests cooperative termination. The process reaches KILLED at the
// next tick boundary or pre-call check.
func (p *Process) Kill() { p.killed.Store(true) }

// Pause requests an external pause at the next tick boundary.
func (p *Process) Pause() { p.paused.Store(true) }

// Resume clears a pause and continues execution.
func (p *Process) Resume(ctx context.Context) error {
	p.paused.Store(false)
	p.mu.Lock()
	if p.status == agent.StatusPaused {
		p.status = agent.StatusRunning
		p.mu.Unlock()
		p.publish(ctx, hooks.NewProcessResumedEvent(p.id))
		return p.Run(ctx)
	}
	p.mu.Unlock()
	return nil
}

// Run drives the process until it reaches a terminal status or suspends
// (WAITING or PAUSED). Each loop iteration is one plan-act-observe tick.
func (p *Process) Run(ctx context.Context) error {
	p.mu.Lock()
	switch p.status {
	case agent.StatusReady, agent.StatusRunning:
		p.status = agent.StatusRunning
	default:
		status := p.status
		p.mu.Unlock()
		return fmt.Errorf("executor: cannot run process in status %s", status)
	}
	p.mu.Unlock()

	started := time.Now()
	defer func() {
		p.mu.Lock()
		p.runningTime += time.Since(started)
		p.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.tick(ctx); err != nil {
			if errors.Is(err, errSuspended) {
				return nil
			}
			return err
		}
		if p.Status().Terminal() {
			return nil
		}
	}
}

// tick is one plan-act-observe cycle. A nil return with a non-terminal
// status means another tick follows.
func (p *Process) tick(ctx context.Context) error {
	if p.killed.Load() {
		p.finish(ctx, agent.StatusKilled)
		return nil
	}
	if p.paused.Load() {
		p.setStatus(agent.StatusPaused)
		p.publish(ctx, hooks.NewProcessPausedEvent(p.id, "external pause"))
		return errSuspended
	}
	if policy, reason := p.exceededPolicy(); policy != "" {
		p.publish(ctx, hooks.NewEarlyTerminationEvent(p.id, policy, reason))
		p.appendHistory(HistoryEntry{Kind: EntryTermination, Reason: reason})
		p.finish(ctx, agent.StatusFailed)
		return nil
	}

	ws := p.project()
	p.publish(ctx, hooks.NewReadyToPlanEvent(p.id, ws))

	pl, err := p.plan.Plan(ctx, p.agent, ws)
	if err != nil {
		p.appendHistory(HistoryEntry{Kind: EntryAction, Error: err.Error()})
		p.finish(ctx, agent.StatusFailed)
		return nil
	}
	if pl == nil {
		p.publish(ctx, hooks.NewProcessStuckEvent(p.id, ws, p.actionNames()))
		p.finish(ctx, agent.StatusStuck)
		return nil
	}
	if len(pl.Actions) == 0 {
		// The planner reports a goal as already satisfied; confirm against
		// the blackboard before completing.
		if goal := p.achievedGoal(); goal != nil {
			p.complete(ctx, goal)
			return nil
		}
		p.publish(ctx, hooks.NewProcessStuckEvent(p.id, ws, p.actionNames()))
		p.finish(ctx, agent.StatusStuck)
		return nil
	}

	next := pl.Actions[0]
	if !ws.Satisfies(next.Preconditions()) {
		// Raced by an event or response between projection and planning;
		// discard and replan.
		return nil
	}
	if p.lastFailure.action == next.Name && p.lastFailure.wsKey == ws.Key() {
		p.appendHistory(HistoryEntry{Kind: EntryAction, Action: next.Name,
			Error: "action failed and the world state did not change"})
		p.finish(ctx, agent.StatusFailed)
		return nil
	}

	p.publish(ctx, hooks.NewPlanFormulatedEvent(p.id, pl.ActionNames(), pl.Goal, string(p.plan.Type())))
	p.appendHistory(HistoryEntry{Kind: EntryPlan, Plan: pl.ActionNames(), Goal: pl.Goal})
	p.logPlan(ctx, pl)

	if err := p.runAction(ctx, next, ws); err != nil {
		return err
	}
	if p.Status().Terminal() || p.Status() == agent.StatusWaiting {
		if p.Status() == agent.StatusWaiting {
			return errSuspended
		}
		return nil
	}

	p.reportProgress(ctx, len(pl.Actions))
	if goal := p.achievedGoal(); goal != nil {
		p.complete(ctx, goal)
	}
	return nil
}

// reportProgress publishes a progress update after each executed plan step.
// Percent is the executed share of the steps known so far; a replan that
// discovers new work moves it backwards.
func (p *Process) reportProgress(ctx context.Context, planned int) {
	p.mu.Lock()
	done := p.actionCount
	p.mu.Unlock()
	remaining := planned - 1
	if remaining < 0 {
		remaining = 0
	}
	percent := 100.0
	if done+remaining > 0 {
		percent = float64(done) / float64(done+remaining) * 100
	}
	p.publish(ctx, hooks.NewProgressUpdateEvent(p.id,
		fmt.Sprintf("%d actions executed, %d planned steps remaining", done, remaining), percent))
}

// longPlanLen is the plan length above which debug logging truncates the
// action list unless verbosity asks for long plans in full.
const longPlanLen = 5

func (p *Process) logPlan(ctx context.Context, pl *planner.Plan) {
	names := pl.ActionNames()
	if len(names) > longPlanLen && !p.cfg.Verbosity.ShowLongPlans {
		extra := len(names) - longPlanLen
		names = append(append([]string(nil), names[:longPlanLen]...), fmt.Sprintf("(+%d more)", extra))
	}
	p.logger.Debug(ctx, "plan formulated", "goal", pl.Goal, "actions", names)
}

// runAction executes one action inside the QoS envelope. Control-flow
// signals bypass retry classification entirely.
func (p *Process) runAction(ctx context.Context, act *agent.Action, ws agent.WorldState) error {
	maxAttempts := act.QoS.Attempts()
	start := time.Now()
	usageBefore := p.Usage()

	var (
		status agent.ActionStatus
		err    error
	)
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if p.killed.Load() {
			p.finish(ctx, agent.StatusKilled)
			return nil
		}
		p.publish(ctx, hooks.NewActionStartedEvent(p.id, act.Name, attempt))

		pctx := &processContext{process: p, action: act}
		status, err = act.Execute(ctx, pctx)
		if err == nil {
			break
		}
		if agent.IsControlFlow(err) {
			return p.handleSignal(ctx, act, err)
		}
		kind := agent.KindOf(err)
		if !act.QoS.Retriable(kind) || attempt >= maxAttempts {
			break
		}
		p.logger.Debug(ctx, "retrying action", "action", act.Name, "attempt", attempt, "kind", string(kind))
		select {
		case <-time.After(act.QoS.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tel := p.actionTelemetry(start, attempt, usageBefore)
	p.mu.Lock()
	p.actionCount++
	p.mu.Unlock()

	switch {
	case err != nil:
		p.publish(ctx, hooks.NewActionCompletedEvent(p.id, act.Name, string(agent.ActionFailed), err.Error(), tel))
		p.appendHistory(HistoryEntry{Kind: EntryAction, Action: act.Name, Attempts: attempt,
			Status: string(agent.ActionFailed), Error: err.Error()})
		p.finish(ctx, agent.StatusFailed)
	case status.Code == agent.ActionFailed:
		// Business failure: the action is failed but the process replans and
		// may pick a different action.
		p.publish(ctx, hooks.NewActionCompletedEvent(p.id, act.Name, string(status.Code), status.Message, tel))
		p.appendHistory(HistoryEntry{Kind: EntryAction, Action: act.Name, Attempts: attempt,
			Status: string(status.Code), Error: status.Message})
		p.mu.Lock()
		p.lastFailure.action = act.Name
		p.lastFailure.wsKey = ws.Key()
		p.mu.Unlock()
	default:
		p.publish(ctx, hooks.NewActionCompletedEvent(p.id, act.Name, string(agent.ActionCompleted), "", tel))
		p.appendHistory(HistoryEntry{Kind: EntryAction, Action: act.Name, Attempts: attempt,
			Status: string(agent.ActionCompleted)})
		p.mu.Lock()
		p.ran[act.Name] = true
		p.lastFailure.action = ""
		p.mu.Unlock()
	}
	p.metrics.RecordTimer("arcline.action.duration", tel.Duration, "action", act.Name)
	return nil
}

// handleSignal routes a control-flow signal from an action or tool loop.
func (p *Process) handleSignal(ctx context.Context, act *agent.Action, err error) error {
	var (
		replan *agent.ReplanRequestedError
		aw     *agent.AwaitableError
		killed *agent.ProcessKilledError
	)
	switch {
	case errors.As(err, &aw):
		p.mu.Lock()
		p.pending = aw.Awaitable
		p.status = agent.StatusWaiting
		p.mu.Unlock()
		p.publish(ctx, hooks.NewProcessWaitingEvent(p.id, aw.Awaitable.ID, string(aw.Awaitable.Kind)))
		p.snapshot(ctx)
		p.persistAwaitable(ctx, aw.Awaitable)
		return errSuspended
	case errors.As(err, &replan):
		if replan.Update != nil {
			replan.Update(p.bb)
		}
		p.appendHistory(HistoryEntry{Kind: EntryReplan, Action: act.Name, Reason: replan.Reason})
		p.publish(ctx, hooks.NewReplanRequestedEvent(p.id, replan.Reason))
		return nil
	case errors.As(err, &killed):
		p.finish(ctx, agent.StatusKilled)
		return nil
	default:
		return err
	}
}

// Respond delivers an external response to the pending awaitable, applies
// its handler to the blackboard, and resumes execution. Scenario: WAITING →
// RUNNING → next suspension or terminal status.
func (p *Process) Respond(ctx context.Context, response any) (await.Disposition, error) {
	p.mu.Lock()
	if p.status != agent.StatusWaiting || p.pending == nil {
		status := p.status
		p.mu.Unlock()
		return await.Unchanged, fmt.Errorf("executor: process %s is not waiting (status %s)", p.id, status)
	}
	pending := p.pending
	p.mu.Unlock()

	disp, err := pending.Respond(response, p.bb)
	if err != nil {
		return disp, err
	}
	p.appendHistory(HistoryEntry{Kind: EntryResponse, Reason: string(disp)})

	p.mu.Lock()
	p.pending = nil
	p.status = agent.StatusRunning
	p.mu.Unlock()
	if p.persist != nil {
		_ = p.persist.Delete(ctx, store.KindAwaitable, pending.ID)
	}
	p.publish(ctx, hooks.NewProcessResumedEvent(p.id))
	return disp, p.Run(ctx)
}

func (p *Process) project() agent.WorldState {
	p.mu.Lock()
	ran := make(map[string]bool, len(p.ran))
	for k, v := range p.ran {
		ran[k] = v
	}
	p.mu.Unlock()
	return agent.Project(p.bb, p.agent, ran)
}

// achievedGoal returns the highest-priority goal whose preconditions hold
// and whose output value, when declared, is present on the blackboard.
func (p *Process) achievedGoal() *agent.Goal {
	ws := p.project()
	var best *agent.Goal
	for _, g := range p.agent.Goals {
		if !ws.Satisfies(g.Pre) {
			continue
		}
		if g.OutputType != "" && p.bb.Last(g.OutputType) == nil {
			continue
		}
		if best == nil || g.Priority > best.Priority || (g.Priority == best.Priority && g.Name < best.Name) {
			best = g
		}
	}
	return best
}

func (p *Process) complete(ctx context.Context, goal *agent.Goal) {
	p.publish(ctx, hooks.NewGoalAchievedEvent(p.id, goal.Name))
	p.finish(ctx, agent.StatusCompleted)
}

func (p *Process) finish(ctx context.Context, status agent.ProcessStatus) {
	p.setStatus(status)
	p.publish(ctx, hooks.NewProcessFinishedEvent(p.id, string(status), p.RunningTime()))
	p.snapshot(ctx)
}

func (p *Process) setStatus(status agent.ProcessStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

// exceededPolicy checks the early termination policies in a fixed order:
// action count, wall clock, cost.
func (p *Process) exceededPolicy() (policy, reason string) {
	et := p.cfg.EarlyTermination
	p.mu.Lock()
	defer p.mu.Unlock()
	if et.MaxActions > 0 && p.actionCount >= et.MaxActions {
		return "max_actions", fmt.Sprintf("action count %d reached limit %d", p.actionCount, et.MaxActions)
	}
	if et.MaxWallClock > 0 && p.runningTime >= et.MaxWallClock.Std() {
		return "wall_clock", fmt.Sprintf("running time %s reached limit %s", p.runningTime, et.MaxWallClock.Std())
	}
	if et.MaxCost > 0 && p.usage.CostUSD >= et.MaxCost {
		return "cost", fmt.Sprintf("model cost %.4f USD reached limit %.4f", p.usage.CostUSD, et.MaxCost)
	}
	return "", ""
}

func (p *Process) actionTelemetry(start time.Time, attempts int, before model.TokenUsage) telemetry.ActionTelemetry {
	after := p.Usage()
	return telemetry.ActionTelemetry{
		Duration:     time.Since(start),
		Attempts:     attempts,
		InputTokens:  after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
	}
}

func (p *Process) actionNames() []string {
	names := make([]string, len(p.agent.Actions))
	for i, a := range p.agent.Actions {
		names[i] = a.Name
	}
	return names
}

func (p *Process) publish(ctx context.Context, event hooks.Event) {
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn(ctx, "event publication failed", "event", string(event.Type()), "error", err.Error())
	}
}
