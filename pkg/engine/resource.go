package engine

import (
	"context"
	"fmt"
	"time"
)

// Resource is one managed infrastructure object plus its lifecycle state.
// The stack engine is the only writer of the (Action, Status) pair; handlers
// read and write the physical ID and provider attributes only.
type Resource struct {
	// Name is the logical name, stable across replacement.
	Name string

	// Type is the registered resource type name.
	Type string

	// PhysicalID is the provider-assigned identifier, empty until created.
	// Replacement assigns a fresh one under the same logical name.
	PhysicalID string

	// Action and Status form the lifecycle state. Initial state is
	// INIT/COMPLETE.
	Action Action
	Status Status

	// StatusReason explains the latest transition.
	StatusReason string

	// Definition is the current declared definition.
	Definition *Definition

	// PriorDefinition is the frozen previous definition, set during update.
	PriorDefinition *Definition

	handler ResourceHandler
	policy  UpdatePolicy
	rt      *runtime
}

// runtime carries the per-run collaborators a resource needs to execute an
// action: the hook gate, the transition observer, and timing configuration.
type runtime struct {
	stackName      string
	gate           *HookGate
	observe        func(r *Resource, reason string)
	defaultTimeout time.Duration
	now            func() time.Time
}

// newResource builds a resource in its initial INIT/COMPLETE state.
func newResource(def *Definition, spec TypeSpec, rt *runtime) *Resource {
	return &Resource{
		Name:       def.Name,
		Type:       def.Type,
		Action:     ActionInit,
		Status:     StatusComplete,
		Definition: def,
		handler:    spec.New(),
		policy:     spec.UpdatePolicy,
		rt:         rt,
	}
}

// State returns the current (action, status) pair.
func (r *Resource) State() State {
	return State{Action: r.Action, Status: r.Status}
}

// needsCreate reports whether the resource lacks a live provider object, so
// an update must create it rather than diff its definitions. This covers
// fresh resources, resources deleted by a rollback, and failed runs.
func (r *Resource) needsCreate() bool {
	if r.PhysicalID == "" {
		return true
	}
	return r.Action == ActionDelete || r.Status != StatusComplete
}

// setState records a lifecycle transition and notifies the observer.
func (r *Resource) setState(action Action, status Status, reason string) {
	r.Action = action
	r.Status = status
	r.StatusReason = reason
	if r.rt != nil && r.rt.observe != nil {
		r.rt.observe(r, reason)
	}
}

// request builds the handler request for the current definition.
func (r *Resource) request() *ActionRequest {
	req := &ActionRequest{
		StackName:    r.rt.stackName,
		ResourceName: r.Name,
		ResourceType: r.Type,
		PhysicalID:   r.PhysicalID,
		Properties:   r.Definition.Properties,
		setPhysicalID: func(id string) {
			r.PhysicalID = id
		},
	}
	if r.PriorDefinition != nil {
		req.PriorProperties = r.PriorDefinition.Properties
	}
	return req
}

// timeout returns the completion-poll budget for one action.
func (r *Resource) timeout() time.Duration {
	if r.Definition.Timeout > 0 {
		return r.Definition.Timeout
	}
	return r.rt.defaultTimeout
}

// fail converts a handler error into a FAILED transition with a readable
// reason. Handler errors never propagate past the state machine.
func (r *Resource) fail(action Action, err error) {
	reason := fmt.Sprintf("%s failed: %v", action, err)
	if IsTimeout(err) {
		reason = fmt.Sprintf("%s timed out: %v", action, err)
	}
	r.setState(action, StatusFailed, reason)
}

// Attribute resolves a named provider attribute through the handler.
func (r *Resource) Attribute(ctx context.Context, name string) (any, error) {
	return r.handler.GetAttribute(ctx, r.request(), name)
}

// Show returns the provider-reported attribute map.
func (r *Resource) Show(ctx context.Context) (map[string]any, error) {
	return r.handler.Show(ctx, r.request())
}

// The per-action state machine phases. Each task step advances at most one
// phase; polling re-enters phasePoll until the handler reports completion.
const (
	phaseDispatch = iota
	phaseHookWait
	phaseStart
	phasePoll
	phaseDone
)

// actionTask builds the task driving one simple action (create, delete,
// suspend, resume, check, snapshot) through dispatch, hook wait, provider
// start, and completion polling.
func (r *Resource) actionTask(action Action) Task {
	phase := phaseDispatch
	var token ActionToken
	var deadline time.Time

	step := func(ctx context.Context) (bool, error) {
		switch phase {
		case phaseDispatch:
			r.setState(action, StatusInProgress, fmt.Sprintf("%s started", action))

			// Idempotent delete: nothing was ever created, so there is
			// nothing to ask the provider about.
			if action == ActionDelete && r.PhysicalID == "" {
				r.setState(action, StatusComplete, "delete complete (no physical id)")
				phase = phaseDone
				return true, nil
			}

			deadline = r.rt.now().Add(r.timeout())
			phase = phaseHookWait
			return false, nil

		case phaseHookWait:
			// Hook interception happens-before the handler's start call.
			if r.rt.gate != nil && r.rt.gate.Blocked(r.Name) {
				return false, nil
			}
			phase = phaseStart
			return false, nil

		case phaseStart:
			props, err := r.handler.PrepareProperties(r.Definition.Properties)
			if err != nil {
				r.fail(action, err)
				phase = phaseDone
				return true, nil
			}
			req := r.request()
			req.Properties = props

			token, err = r.handler.HandleAction(ctx, action, req)
			if err != nil {
				if err == ErrActionNotSupported {
					r.setState(action, StatusComplete, fmt.Sprintf("%s complete (not supported by type, no-op)", action))
					phase = phaseDone
					return true, nil
				}
				if action == ActionDelete && IsNotFound(err) {
					r.PhysicalID = ""
					r.setState(action, StatusComplete, "delete complete (not found)")
					phase = phaseDone
					return true, nil
				}
				r.fail(action, err)
				phase = phaseDone
				return true, nil
			}
			phase = phasePoll
			return false, nil

		case phasePoll:
			if r.rt.now().After(deadline) {
				r.fail(action, NewTimeoutError(
					fmt.Sprintf("completion poll exceeded %s", r.timeout()), nil,
				).WithResource(r.Name).WithOperation(string(action)))
				phase = phaseDone
				return true, nil
			}
			done, err := r.handler.CheckComplete(ctx, action, r.request(), token)
			if err != nil {
				if action == ActionDelete && IsNotFound(err) {
					r.PhysicalID = ""
					r.setState(action, StatusComplete, "delete complete (not found)")
					phase = phaseDone
					return true, nil
				}
				r.fail(action, err)
				phase = phaseDone
				return true, nil
			}
			if !done {
				return false, nil
			}
			if action == ActionDelete {
				r.PhysicalID = ""
			}
			r.setState(action, StatusComplete, fmt.Sprintf("%s complete", action))
			phase = phaseDone
			return true, nil

		default:
			return true, nil
		}
	}

	return Task{
		Description: fmt.Sprintf("%s %s", action, r.Name),
		Run:         step,
	}
}

// updateDecision is the outcome of comparing the new definition against the
// frozen prior one.
type updateDecision int

const (
	updateNoop updateDecision = iota
	updateInPlace
	updateReplace
)

// decideUpdate applies the type's per-property policy table to the diff
// between the prior and new definitions. A changed type always replaces.
func (r *Resource) decideUpdate(newDef *Definition) updateDecision {
	if newDef.Type != r.Definition.Type {
		return updateReplace
	}
	changed := r.Definition.Diff(newDef)
	if len(changed) == 0 {
		return updateNoop
	}
	for _, name := range changed {
		if r.policy.Effect(name) == UpdateReplace {
			return updateReplace
		}
	}
	return updateInPlace
}

// checkUpdateRestrictions validates an intended update against the
// administrative restrictions before any provider state is touched.
func (r *Resource) checkUpdateRestrictions(newDef *Definition, decision updateDecision) error {
	if decision == updateNoop {
		return nil
	}
	if newDef.DisableUpdate || r.Definition.DisableUpdate {
		return NewValidationError(
			fmt.Sprintf("update of resource %s is administratively restricted (disable_update)", r.Name), nil,
		).WithCode(ErrCodeRestricted).WithResource(r.Name).WithOperation(string(ActionUpdate))
	}
	if decision == updateReplace && (newDef.DisableReplace || r.Definition.DisableReplace) {
		return NewValidationError(
			fmt.Sprintf("replacement of resource %s is administratively restricted (disable_replace)", r.Name), nil,
		).WithCode(ErrCodeRestricted).WithResource(r.Name).WithOperation(string(ActionUpdate))
	}
	return nil
}

// updateTask builds the task driving an update. The decision between no-op,
// in-place update, and replacement was made before dispatch; replacement runs
// delete-then-create as one composite task, keeping the logical name while
// the physical ID changes.
func (r *Resource) updateTask(newDef *Definition, decision updateDecision) Task {
	started := false
	var inner *TaskRunner

	freeze := func() {
		r.PriorDefinition = r.Definition
		r.Definition = newDef
	}

	step := func(ctx context.Context) (bool, error) {
		if !started {
			started = true
			r.setState(ActionUpdate, StatusInProgress, "UPDATE started")

			switch decision {
			case updateNoop:
				// No property changed: no provider calls, physical ID and
				// attributes stay as they are.
				r.setState(ActionUpdate, StatusComplete, "update complete (no changes)")
				return true, nil
			case updateInPlace:
				freeze()
				inner = NewTaskRunner(r.inPlaceUpdateTask())
			case updateReplace:
				freeze()
				inner = NewTaskRunner(r.replaceTask())
			}
			if err := inner.Start(ctx); err != nil {
				return true, err
			}
			return inner.Done(), nil
		}
		return inner.Step(ctx)
	}

	return Task{
		Description: fmt.Sprintf("UPDATE %s", r.Name),
		Run:         step,
	}
}

// inPlaceUpdateTask drives the handler's update path. A handler that does
// not support in-place update falls back to replacement, subject to the
// replace restriction.
func (r *Resource) inPlaceUpdateTask() Task {
	phase := phaseHookWait
	var token ActionToken
	deadline := r.rt.now().Add(r.timeout())
	var replacement *TaskRunner

	step := func(ctx context.Context) (bool, error) {
		if replacement != nil {
			return replacement.Step(ctx)
		}

		switch phase {
		case phaseHookWait:
			if r.rt.gate != nil && r.rt.gate.Blocked(r.Name) {
				return false, nil
			}
			phase = phaseStart
			return false, nil

		case phaseStart:
			props, err := r.handler.PrepareProperties(r.Definition.Properties)
			if err != nil {
				r.fail(ActionUpdate, err)
				return true, nil
			}
			req := r.request()
			req.Properties = props

			token, err = r.handler.HandleAction(ctx, ActionUpdate, req)
			if err != nil {
				if err == ErrActionNotSupported {
					if restricted := r.checkUpdateRestrictions(r.Definition, updateReplace); restricted != nil {
						r.fail(ActionUpdate, restricted)
						return true, nil
					}
					replacement = NewTaskRunner(r.replaceTask())
					if startErr := replacement.Start(ctx); startErr != nil {
						return true, startErr
					}
					return replacement.Done(), nil
				}
				r.fail(ActionUpdate, err)
				return true, nil
			}
			phase = phasePoll
			return false, nil

		case phasePoll:
			if r.rt.now().After(deadline) {
				r.fail(ActionUpdate, NewTimeoutError(
					fmt.Sprintf("completion poll exceeded %s", r.timeout()), nil,
				).WithResource(r.Name).WithOperation(string(ActionUpdate)))
				return true, nil
			}
			done, err := r.handler.CheckComplete(ctx, ActionUpdate, r.request(), token)
			if err != nil {
				r.fail(ActionUpdate, err)
				return true, nil
			}
			if !done {
				return false, nil
			}
			r.setState(ActionUpdate, StatusComplete, "UPDATE complete")
			return true, nil

		default:
			return true, nil
		}
	}

	return Task{
		Description: fmt.Sprintf("UPDATE (in place) %s", r.Name),
		Run:         step,
	}
}

// replaceTask deletes the old provider object and creates a fresh one under
// the same logical name. The overall resource state stays UPDATE; only on
// full success does it reach UPDATE/COMPLETE.
func (r *Resource) replaceTask() Task {
	const (
		replaceDeleting = iota
		replaceCreating
	)
	phase := replaceDeleting
	var shadow *Resource
	var inner *TaskRunner

	// The delete leg runs against the prior definition; the create leg runs
	// against the new one. Both reuse the simple action machinery on a
	// detached shadow copy so the visible state stays UPDATE/IN_PROGRESS.
	step := func(ctx context.Context) (bool, error) {
		if inner == nil {
			shadow = r.shadow(r.PriorDefinition, r.PhysicalID)
			inner = NewTaskRunner(shadow.actionTask(ActionDelete))
			if err := inner.Start(ctx); err != nil {
				return true, err
			}
		}

		done, err := inner.Step(ctx)
		if err != nil {
			return true, err
		}
		if !done {
			return false, nil
		}

		switch phase {
		case replaceDeleting:
			if shadow.Status == StatusFailed {
				r.setState(ActionUpdate, StatusFailed,
					fmt.Sprintf("replacement failed deleting old resource: %s", shadow.StatusReason))
				return true, nil
			}
			r.PhysicalID = ""
			phase = replaceCreating
			shadow = r.shadow(r.Definition, "")
			inner = NewTaskRunner(shadow.actionTask(ActionCreate))
			if err := inner.Start(ctx); err != nil {
				return true, err
			}
			return false, nil

		default:
			if shadow.Status == StatusFailed {
				r.setState(ActionUpdate, StatusFailed,
					fmt.Sprintf("replacement failed creating new resource: %s", shadow.StatusReason))
				return true, nil
			}
			r.PhysicalID = shadow.PhysicalID
			r.setState(ActionUpdate, StatusComplete, "UPDATE complete (replaced)")
			return true, nil
		}
	}

	return Task{
		Description: fmt.Sprintf("UPDATE (replace) %s", r.Name),
		Run:         step,
	}
}

// shadow builds a detached copy of the resource bound to the given definition
// and physical ID, with transitions and hooks kept private to the
// replacement legs.
func (r *Resource) shadow(def *Definition, physicalID string) *Resource {
	clone := *r
	if def != nil {
		clone.Definition = def
	}
	clone.PhysicalID = physicalID
	clone.PriorDefinition = nil
	rt := *r.rt
	rt.observe = nil
	rt.gate = nil
	clone.rt = &rt
	return &clone
}
