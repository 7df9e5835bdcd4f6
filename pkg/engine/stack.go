package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stack is one instance of a resource graph under orchestration. It owns its
// resources, its dependency graph, and its hook gate; the engine is the only
// writer of its aggregate (action, status).
type Stack struct {
	// Name identifies the stack.
	Name string

	// Action and Status mirror the aggregate of the stack's resources.
	Action Action
	Status Status

	// StatusReason explains the latest stack transition.
	StatusReason string

	// DisableRollback leaves the stack FAILED instead of rolling back when a
	// create or update fails partway.
	DisableRollback bool

	// GraphVersion increments on every successful update.
	GraphVersion int64

	// Resources maps logical names to their lifecycle state.
	Resources map[string]*Resource

	// Graph is the dependency graph of the current definitions.
	Graph *DependencyGraph

	// mu guards the aggregate state (Action, Status, StatusReason), the
	// definition maps, and the Resources map against concurrent Signal
	// callers while a run is in flight.
	mu sync.RWMutex

	defs     map[string]*Definition
	prevDefs map[string]*Definition
	hooks    *HookGate
}

// NewStack creates a stack from its resolved resource definitions. No
// provider calls happen until an action is run.
func NewStack(name string, defs []*Definition, disableRollback bool) *Stack {
	defMap := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		defMap[def.Name] = def
	}
	return &Stack{
		Name:            name,
		Action:          ActionInit,
		Status:          StatusComplete,
		DisableRollback: disableRollback,
		Resources:       make(map[string]*Resource),
		defs:            defMap,
		hooks:           NewHookGate(),
	}
}

// Resource returns the named resource, or nil if the stack does not own it.
func (s *Stack) Resource(name string) *Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Resources[name]
}

// State returns the stack's aggregate (action, status) pair.
func (s *Stack) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Action: s.Action, Status: s.Status}
}

// Definitions returns the current definitions, sorted by name.
func (s *Stack) Definitions() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Hooks exposes the stack's hook gate for inspection.
func (s *Stack) Hooks() *HookGate {
	return s.hooks
}

// Instrumentation counts engine activity. The telemetry package provides the
// Prometheus implementation; a nil instrumentation disables counting.
type Instrumentation interface {
	ObserveStackRun(action Action, status Status, duration time.Duration)
	ObserveResourceAction(action Action, status Status, duration time.Duration)
}

// Engine orchestrates the dependency graph and the per-resource state
// machines across a whole stack for one top-level action at a time.
type Engine struct {
	registry       *Registry
	sink           StateSink
	logger         zerolog.Logger
	metrics        Instrumentation
	tracer         trace.Tracer
	stepWait       time.Duration
	defaultTimeout time.Duration
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateSink durably records every state transition.
func WithStateSink(sink StateSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithInstrumentation sets the metrics implementation.
func WithInstrumentation(m Instrumentation) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer enables tracing spans around runs and resource actions.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithStepWait sets the sleep between scheduler passes. Zero disables the
// sleep, which is what the tests use.
func WithStepWait(wait time.Duration) Option {
	return func(e *Engine) { e.stepWait = wait }
}

// WithDefaultTimeout sets the stack-wide completion-poll budget applied to
// resources without their own timeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(e *Engine) { e.defaultTimeout = timeout }
}

// WithClock overrides the time source, used by the timeout tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over an explicit resource type registry.
func NewEngine(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:       registry,
		logger:         zerolog.Nop(),
		stepWait:       50 * time.Millisecond,
		defaultTimeout: 30 * time.Minute,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Hydrate reconstructs a stack from durable records so actions can continue
// in a fresh process. Each record becomes a resource definition plus its last
// recorded lifecycle state and physical ID.
func (e *Engine) Hydrate(stackRecord *StackRecord, resourceRecords []*ResourceRecord) (*Stack, error) {
	defs := make([]*Definition, 0, len(resourceRecords))
	for _, record := range resourceRecords {
		defs = append(defs, &Definition{
			Name:       record.Name,
			Type:       record.Type,
			Properties: record.Properties,
			DependsOn:  record.DependsOn,
			Hooks:      record.Hooks,
		})
	}

	stack := NewStack(stackRecord.Name, defs, stackRecord.DisableRollback)
	stack.Action = stackRecord.Action
	stack.Status = stackRecord.Status
	stack.StatusReason = stackRecord.StatusReason
	stack.GraphVersion = stackRecord.GraphVersion

	for _, record := range resourceRecords {
		spec, err := e.registry.Lookup(record.Type)
		if err != nil {
			return nil, err
		}
		res := newResource(stack.defs[record.Name], spec, e.runtimeFor(stack))
		res.PhysicalID = record.PhysicalID
		res.Action = record.Action
		res.Status = record.Status
		res.StatusReason = record.StatusReason
		stack.Resources[record.Name] = res
	}
	return stack, nil
}

// Validate instantiates the stack's resources and builds its validated
// dependency graph without running any action. It catches unknown types,
// unknown depends_on targets, and cycles.
func (e *Engine) Validate(stack *Stack) (*DependencyGraph, error) {
	graph, err := e.prepare(stack, stack.defs)
	if err != nil {
		return nil, err
	}
	stack.Graph = graph
	return graph, nil
}

// Create drives every resource of the stack through CREATE, children before
// parents, rolling back on failure unless disabled.
func (e *Engine) Create(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionCreate)
}

// Delete drives every resource through DELETE in reverse dependency order.
// Delete never rolls back; re-running it retries the remaining resources.
func (e *Engine) Delete(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionDelete)
}

// Suspend pauses every resource, dependents before their dependencies.
func (e *Engine) Suspend(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionSuspend)
}

// Resume reactivates every resource of a suspended stack.
func (e *Engine) Resume(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionResume)
}

// Check verifies every resource against its recorded state.
func (e *Engine) Check(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionCheck)
}

// Snapshot captures a point-in-time copy of every resource that supports it.
func (e *Engine) Snapshot(ctx context.Context, stack *Stack) error {
	return e.runLifecycle(ctx, stack, ActionSnapshot)
}

// Signal clears an armed hook, releasing the held resource at its next step.
// Signals are rejected while the stack action is SUSPEND. Safe to call from a
// goroutine other than the one running the stack action.
func (e *Engine) Signal(stack *Stack, resourceName, hookName string) error {
	stack.mu.RLock()
	action := stack.Action
	_, defined := stack.defs[resourceName]
	_, instantiated := stack.Resources[resourceName]
	stack.mu.RUnlock()

	if action == ActionSuspend {
		return NewValidationError(
			fmt.Sprintf("signal rejected: stack %s is suspended", stack.Name), nil,
		).WithCode(ErrCodeHookRejected).WithResource(resourceName)
	}
	if !defined && !instantiated {
		return NewValidationError(
			fmt.Sprintf("unknown resource: %s", resourceName), nil,
		).WithCode(ErrCodeNotFound).WithResource(resourceName)
	}
	if err := stack.hooks.Clear(resourceName, hookName); err != nil {
		return err
	}
	e.logger.Info().
		Str("stack", stack.Name).
		Str("resource", resourceName).
		Str("hook", hookName).
		Msg("hook cleared")
	return nil
}

// runLifecycle executes one uniform action (create, delete, suspend, resume,
// check, snapshot) across the whole stack.
func (e *Engine) runLifecycle(ctx context.Context, stack *Stack, action Action) error {
	started := e.now()
	graph, err := e.prepare(stack, stack.defs)
	if err != nil {
		e.setStackState(stack, action, StatusFailed, err.Error())
		return err
	}
	stack.Graph = graph

	e.armHooks(stack, stack.defs)
	defer stack.hooks.Reset()

	tasks := make(map[string]Task, len(stack.defs))
	participants := make([]string, 0, len(stack.defs))
	for name := range stack.defs {
		tasks[name] = stack.Resources[name].actionTask(action)
		participants = append(participants, name)
	}
	sort.Strings(participants)

	e.setStackState(stack, action, StatusInProgress, fmt.Sprintf("%s started", action))
	runErr := e.dispatch(ctx, stack, action, graph, tasks, participants)

	switch {
	case runErr == nil:
		e.setStackState(stack, action, StatusComplete, fmt.Sprintf("%s complete", action))
	case IsCancelled(runErr):
		e.setStackState(stack, action, StatusFailed, fmt.Sprintf("%s action cancelled", action))
	case action == ActionCreate && !stack.DisableRollback:
		e.setStackState(stack, action, StatusFailed, runErr.Error())
		e.rollbackCreate(ctx, stack)
	default:
		e.setStackState(stack, action, StatusFailed, runErr.Error())
	}

	e.observeRun(stack, action, e.now().Sub(started))
	return runErr
}

// Update reconciles the stack toward a new set of definitions: new resources
// are created, changed ones updated in place or replaced per their policy
// tables, and removed ones deleted afterwards in reverse order. A failure
// rolls the stack back to the previous known-good definitions unless
// rollback is disabled.
func (e *Engine) Update(ctx context.Context, stack *Stack, newDefs []*Definition) error {
	return e.update(ctx, stack, newDefs, ActionUpdate, stack.DisableRollback)
}

func (e *Engine) update(ctx context.Context, stack *Stack, newDefs []*Definition, label Action, disableRollback bool) error {
	started := e.now()
	newMap := make(map[string]*Definition, len(newDefs))
	for _, def := range newDefs {
		newMap[def.Name] = def
	}

	oldDefs := stack.defs

	// Fail-fast validation: restricted updates are refused before any
	// provider state is touched.
	decisions := make(map[string]updateDecision)
	for name, newDef := range newMap {
		res, exists := stack.Resources[name]
		if !exists || res.needsCreate() {
			continue // created or recreated below
		}
		decision := res.decideUpdate(newDef)
		if err := res.checkUpdateRestrictions(newDef, decision); err != nil {
			e.setStackState(stack, label, StatusFailed, err.Error())
			return err
		}
		decisions[name] = decision
	}

	graph, err := e.prepare(stack, newMap)
	if err != nil {
		e.setStackState(stack, label, StatusFailed, err.Error())
		return err
	}
	stack.Graph = graph

	e.armHooks(stack, newMap)
	defer stack.hooks.Reset()

	tasks := make(map[string]Task, len(newMap))
	participants := make([]string, 0, len(newMap))
	for name, newDef := range newMap {
		res := stack.Resources[name]
		switch {
		case !res.needsCreate():
			tasks[name] = res.updateTask(newDef, decisions[name])
		case res.PhysicalID != "":
			// Dead resource still holding a provider object from a failed
			// run: replace it so the stale object is cleaned up first.
			tasks[name] = res.updateTask(newDef, updateReplace)
		default:
			res.Definition = newDef
			tasks[name] = res.actionTask(ActionCreate)
		}
		participants = append(participants, name)
	}
	sort.Strings(participants)

	e.setStackState(stack, label, StatusInProgress, fmt.Sprintf("%s started", label))
	runErr := e.dispatch(ctx, stack, label, graph, tasks, participants)

	if runErr == nil {
		runErr = e.deleteRemoved(ctx, stack, oldDefs, newMap)
	}

	switch {
	case runErr == nil:
		stack.mu.Lock()
		stack.prevDefs = oldDefs
		stack.defs = newMap
		stack.GraphVersion++
		stack.mu.Unlock()
		e.setStackState(stack, label, StatusComplete, fmt.Sprintf("%s complete", label))
	case IsCancelled(runErr):
		e.setStackState(stack, label, StatusFailed, fmt.Sprintf("%s action cancelled", label))
	case !disableRollback && label == ActionUpdate:
		e.setStackState(stack, label, StatusFailed, runErr.Error())
		e.rollbackUpdate(ctx, stack, oldDefs)
	default:
		e.setStackState(stack, label, StatusFailed, runErr.Error())
	}

	e.observeRun(stack, label, e.now().Sub(started))
	return runErr
}

// deleteRemoved deletes the resources present in the old definitions but
// absent from the new ones, in reverse dependency order of the old graph.
func (e *Engine) deleteRemoved(ctx context.Context, stack *Stack, oldDefs, newDefs map[string]*Definition) error {
	removed := make(map[string]*Definition)
	for name, def := range oldDefs {
		if _, kept := newDefs[name]; !kept {
			removed[name] = def
		}
	}
	if len(removed) == 0 {
		return nil
	}

	// Order the deletes by the full old graph: removed resources may depend
	// on kept ones, so a graph over the removed subset alone would reject
	// those edges as unknown. The dispatcher only runs the removed
	// participants; kept neighbors are treated as already settled.
	graph, err := e.buildGraph(stack, oldDefs)
	if err != nil {
		return err
	}

	tasks := make(map[string]Task, len(removed))
	participants := make([]string, 0, len(removed))
	for name := range removed {
		res := stack.Resources[name]
		if res == nil {
			continue
		}
		tasks[name] = res.actionTask(ActionDelete)
		participants = append(participants, name)
	}
	sort.Strings(participants)

	if err := e.dispatch(ctx, stack, ActionDelete, graph, tasks, participants); err != nil {
		return err
	}

	for name := range removed {
		stack.mu.Lock()
		delete(stack.Resources, name)
		stack.mu.Unlock()
		if e.sink != nil {
			if err := e.sink.DeleteResource(stack.Name, name); err != nil {
				e.logger.Warn().Err(err).Str("resource", name).Msg("failed to delete resource record")
			}
		}
	}
	return nil
}

// rollbackCreate deletes the resources created during a failed create run,
// in reverse dependency order, landing the stack in ROLLBACK/COMPLETE or
// ROLLBACK/FAILED.
func (e *Engine) rollbackCreate(ctx context.Context, stack *Stack) {
	e.setStackState(stack, ActionRollback, StatusInProgress, "rollback started")

	tasks := make(map[string]Task)
	participants := make([]string, 0)
	for name, res := range stack.Resources {
		// Resources never dispatched stay INIT and need no compensation.
		if res.Action == ActionInit {
			continue
		}
		tasks[name] = res.actionTask(ActionDelete)
		participants = append(participants, name)
	}
	sort.Strings(participants)

	if err := e.dispatch(ctx, stack, ActionDelete, stack.Graph, tasks, participants); err != nil {
		e.setStackState(stack, ActionRollback, StatusFailed, err.Error())
		return
	}
	e.setStackState(stack, ActionRollback, StatusComplete, "rollback complete")
}

// rollbackUpdate re-runs the update toward the previous known-good
// definitions with rollback disabled.
func (e *Engine) rollbackUpdate(ctx context.Context, stack *Stack, oldDefs map[string]*Definition) {
	e.setStackState(stack, ActionRollback, StatusInProgress, "rollback started")

	prev := make([]*Definition, 0, len(oldDefs))
	for _, def := range oldDefs {
		prev = append(prev, def)
	}
	sort.Slice(prev, func(i, j int) bool { return prev[i].Name < prev[j].Name })

	if err := e.update(ctx, stack, prev, ActionRollback, true); err != nil {
		e.setStackState(stack, ActionRollback, StatusFailed, err.Error())
		return
	}
}

// prepare instantiates missing resources and builds the validated dependency
// graph for the given definitions.
func (e *Engine) prepare(stack *Stack, defs map[string]*Definition) (*DependencyGraph, error) {
	for name, def := range defs {
		if _, exists := stack.Resources[name]; exists {
			continue
		}
		spec, err := e.registry.Lookup(def.Type)
		if err != nil {
			return nil, err
		}
		res := newResource(def, spec, e.runtimeFor(stack))
		stack.mu.Lock()
		stack.Resources[name] = res
		stack.mu.Unlock()
	}
	return e.buildGraph(stack, defs)
}

// buildGraph runs the two-phase graph construction: the node set and the
// explicit depends_on edges first, then handler-contributed implicit edges
// from read-only sibling inspection. The result is validated acyclic.
func (e *Engine) buildGraph(stack *Stack, defs map[string]*Definition) (*DependencyGraph, error) {
	graph := NewDependencyGraph()
	siblings := make([]*Definition, 0, len(defs))
	for name, def := range defs {
		graph.AddNode(name)
		siblings = append(siblings, def)
	}
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].Name < siblings[j].Name })

	for name, def := range defs {
		for _, required := range def.DependsOn {
			if _, ok := defs[required]; !ok {
				return nil, NewValidationError(
					fmt.Sprintf("resource %s depends on unknown resource %s", name, required), nil,
				).WithCode(ErrCodeGraph).WithResource(name)
			}
			graph.AddEdge(name, required)
		}
	}

	for _, def := range siblings {
		res := stack.Resources[def.Name]
		if res == nil {
			continue
		}
		if contributor, ok := res.handler.(DependencyContributor); ok {
			if err := contributor.AddDependencies(graph, def, siblings); err != nil {
				return nil, NewValidationError(
					fmt.Sprintf("resource %s failed to contribute dependencies", def.Name), err,
				).WithCode(ErrCodeGraph).WithResource(def.Name)
			}
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// dispatch is the cooperative scheduler loop: it starts a task runner for
// every resource whose action-direction predecessors are COMPLETE, steps all
// in-flight runners, and stops dispatching after the first failure while
// letting started work drain. At most one runner exists per resource.
func (e *Engine) dispatch(
	ctx context.Context,
	stack *Stack,
	action Action,
	graph *DependencyGraph,
	tasks map[string]Task,
	participants []string,
) error {
	dir := action.Direction()
	inSet := make(map[string]bool, len(participants))
	for _, name := range participants {
		inSet[name] = true
	}

	runners := make(map[string]*TaskRunner, len(participants))
	startedAt := make(map[string]time.Time, len(participants))
	var firstErr error

	ctx, span := e.startSpan(ctx, stack, action)
	defer e.endSpan(span)

	ready := func(name string) bool {
		for _, neighbor := range graph.Neighbors(name, dir) {
			if !inSet[neighbor] {
				continue
			}
			runner, dispatched := runners[neighbor]
			if !dispatched || !runner.Done() {
				return false
			}
			if stack.Resources[neighbor].Status != StatusComplete {
				return false
			}
		}
		return true
	}

	for {
		if ctx.Err() != nil {
			for _, runner := range runners {
				runner.Cancel()
			}
			e.logger.Info().Str("stack", stack.Name).Str("action", string(action)).
				Msg("action cancelled")
			return NewCancelledError(fmt.Sprintf("%s action cancelled", action), ctx.Err())
		}

		// Dispatch every ready resource unless a failure already occurred.
		if firstErr == nil {
			for _, name := range participants {
				if _, dispatched := runners[name]; dispatched {
					continue
				}
				if !ready(name) {
					continue
				}
				runner := NewTaskRunner(tasks[name])
				runners[name] = runner
				startedAt[name] = e.now()
				e.logger.Debug().Str("stack", stack.Name).Str("resource", name).
					Str("action", string(action)).Msg("dispatching resource action")
				if err := runner.Start(ctx); err != nil {
					return err
				}
			}
		}

		// Step all in-flight runners once.
		inFlight := 0
		for _, name := range participants {
			runner, dispatched := runners[name]
			if !dispatched || runner.Done() {
				continue
			}
			done, err := runner.Step(ctx)
			if err != nil {
				return err
			}
			if !done {
				inFlight++
			}
		}

		// Collect failures from finished runners.
		finished := 0
		for _, name := range participants {
			runner, dispatched := runners[name]
			if !dispatched || !runner.Done() {
				continue
			}
			finished++
			res := stack.Resources[name]
			if res.Status == StatusFailed && firstErr == nil {
				firstErr = NewPermanentError(res.StatusReason, nil).
					WithCode(ErrCodeProvider).WithResource(name).WithOperation(string(action))
			}
			if _, observed := startedAt[name]; observed {
				e.observeResource(res, e.now().Sub(startedAt[name]))
				delete(startedAt, name)
			}
		}

		if finished == len(participants) {
			break
		}
		if firstErr != nil && inFlight == 0 {
			// Nothing left to drain; undispatched resources stay pending.
			break
		}

		if e.stepWait > 0 {
			select {
			case <-time.After(e.stepWait):
			case <-ctx.Done():
			}
		}
	}

	return firstErr
}

// runtimeFor binds the per-run collaborators for resources of a stack.
func (e *Engine) runtimeFor(stack *Stack) *runtime {
	return &runtime{
		stackName:      stack.Name,
		gate:           stack.hooks,
		defaultTimeout: e.defaultTimeout,
		now:            e.now,
		observe: func(r *Resource, reason string) {
			e.logger.Info().
				Str("stack", stack.Name).
				Str("resource", r.Name).
				Str("action", string(r.Action)).
				Str("status", string(r.Status)).
				Str("reason", reason).
				Msg("resource state transition")
			e.record(stack, r, reason)
		},
	}
}

// armHooks arms every hook declared by the participating definitions.
func (e *Engine) armHooks(stack *Stack, defs map[string]*Definition) {
	for name, def := range defs {
		for _, hook := range def.Hooks {
			stack.hooks.Arm(name, hook)
			e.logger.Info().Str("stack", stack.Name).Str("resource", name).
				Str("hook", hook).Msg("hook armed")
		}
	}
}

// setStackState records a stack-level transition.
func (e *Engine) setStackState(stack *Stack, action Action, status Status, reason string) {
	stack.mu.Lock()
	stack.Action = action
	stack.Status = status
	stack.StatusReason = reason
	stack.mu.Unlock()

	e.logger.Info().
		Str("stack", stack.Name).
		Str("action", string(action)).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("stack state transition")

	if e.sink == nil {
		return
	}
	record := &StackRecord{
		Name:            stack.Name,
		Action:          action,
		Status:          status,
		StatusReason:    reason,
		DisableRollback: stack.DisableRollback,
		GraphVersion:    stack.GraphVersion,
		UpdatedAt:       e.now(),
	}
	if err := e.sink.SaveStack(record); err != nil {
		e.logger.Warn().Err(err).Str("stack", stack.Name).Msg("failed to persist stack state")
	}
	e.appendEvent(stack, "", action, status, reason, "")
}

// record persists a resource transition and its timeline event.
func (e *Engine) record(stack *Stack, r *Resource, reason string) {
	if e.sink == nil {
		return
	}
	record := &ResourceRecord{
		StackName:    stack.Name,
		Name:         r.Name,
		Type:         r.Type,
		PhysicalID:   r.PhysicalID,
		Action:       r.Action,
		Status:       r.Status,
		StatusReason: reason,
		Properties:   r.Definition.Properties,
		DependsOn:    r.Definition.DependsOn,
		Hooks:        r.Definition.Hooks,
		UpdatedAt:    e.now(),
	}
	if err := e.sink.SaveResource(record); err != nil {
		e.logger.Warn().Err(err).Str("resource", r.Name).Msg("failed to persist resource state")
	}
	e.appendEvent(stack, r.Name, r.Action, r.Status, reason, r.PhysicalID)
}

func (e *Engine) appendEvent(stack *Stack, resource string, action Action, status Status, reason, physicalID string) {
	event := &Event{
		ID:           uuid.New().String(),
		StackName:    stack.Name,
		ResourceName: resource,
		Action:       action,
		Status:       status,
		Reason:       reason,
		PhysicalID:   physicalID,
		Timestamp:    e.now(),
	}
	if err := e.sink.AppendEvent(event); err != nil {
		e.logger.Warn().Err(err).Str("stack", stack.Name).Msg("failed to append event")
	}
}

func (e *Engine) observeRun(stack *Stack, action Action, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveStackRun(action, stack.Status, duration)
	}
}

func (e *Engine) observeResource(r *Resource, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveResourceAction(r.Action, r.Status, duration)
	}
}

func (e *Engine) startSpan(ctx context.Context, stack *Stack, action Action) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, nil
	}
	return e.tracer.Start(ctx, "stack.dispatch",
		trace.WithAttributes(
			attribute.String("stack.name", stack.Name),
			attribute.String("stack.action", string(action)),
		))
}

func (e *Engine) endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}
