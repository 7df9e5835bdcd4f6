package engine

import (
	"encoding/json"
	"fmt"
)

// Action represents a lifecycle action applied to a stack or resource.
type Action string

const (
	// ActionInit is the state of a resource before any action has run.
	ActionInit Action = "INIT"

	// ActionCreate provisions a new resource with the provider.
	ActionCreate Action = "CREATE"

	// ActionUpdate reconfigures an existing resource, in place or by replacement.
	ActionUpdate Action = "UPDATE"

	// ActionDelete removes a resource from the provider.
	ActionDelete Action = "DELETE"

	// ActionRollback is the compensating run after a failed create or update.
	ActionRollback Action = "ROLLBACK"

	// ActionSuspend pauses a resource without destroying it.
	ActionSuspend Action = "SUSPEND"

	// ActionResume reactivates a suspended resource.
	ActionResume Action = "RESUME"

	// ActionCheck verifies that a resource still matches its recorded state.
	ActionCheck Action = "CHECK"

	// ActionSnapshot captures a point-in-time copy of a resource.
	ActionSnapshot Action = "SNAPSHOT"
)

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionInit, ActionCreate, ActionUpdate, ActionDelete, ActionRollback,
		ActionSuspend, ActionResume, ActionCheck, ActionSnapshot:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// Direction returns the graph traversal direction for the action.
// Delete and suspend walk dependents before their dependencies; every other
// action walks dependencies first.
func (a Action) Direction() Direction {
	switch a {
	case ActionDelete, ActionSuspend:
		return DirectionReverse
	default:
		return DirectionForward
	}
}

// UnmarshalJSON implements JSON unmarshaling with validation.
func (a *Action) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*a = Action(str)
	return a.Validate()
}

// Status represents the progress of the current action on a stack or resource.
type Status string

const (
	// StatusInProgress indicates the action has been dispatched and is not yet terminal.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusComplete indicates the action finished successfully.
	StatusComplete Status = "COMPLETE"

	// StatusFailed indicates the action ended with an error.
	StatusFailed Status = "FAILED"
)

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusInProgress, StatusComplete, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid status: %s", s)
	}
}

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// UnmarshalJSON implements JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// State is an (action, status) pair, the unit of lifecycle bookkeeping for
// both stacks and resources.
type State struct {
	Action Action `json:"action"`
	Status Status `json:"status"`
}

func (s State) String() string {
	return fmt.Sprintf("%s/%s", s.Action, s.Status)
}

// Direction selects the traversal order over the dependency graph.
type Direction int

const (
	// DirectionForward visits required resources before the resources that
	// require them (create, update).
	DirectionForward Direction = iota

	// DirectionReverse visits requiring resources before the resources they
	// require (delete, suspend).
	DirectionReverse
)

func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}
