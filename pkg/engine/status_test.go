package engine

import "testing"

// TestActionDirection checks traversal direction per action
func TestActionDirection(t *testing.T) {
	tests := []struct {
		action Action
		want   Direction
	}{
		{ActionCreate, DirectionForward},
		{ActionUpdate, DirectionForward},
		{ActionResume, DirectionForward},
		{ActionCheck, DirectionForward},
		{ActionSnapshot, DirectionForward},
		{ActionRollback, DirectionForward},
		{ActionDelete, DirectionReverse},
		{ActionSuspend, DirectionReverse},
	}
	for _, tt := range tests {
		if got := tt.action.Direction(); got != tt.want {
			t.Errorf("%s direction = %s, want %s", tt.action, got, tt.want)
		}
	}
}

// TestActionValidate rejects unknown actions
func TestActionValidate(t *testing.T) {
	if err := ActionCreate.Validate(); err != nil {
		t.Errorf("CREATE invalid: %v", err)
	}
	if err := Action("DESTROY").Validate(); err == nil {
		t.Error("expected error for unknown action")
	}
}

// TestStatusTerminal checks terminal detection
func TestStatusTerminal(t *testing.T) {
	if StatusInProgress.IsTerminal() {
		t.Error("IN_PROGRESS reported terminal")
	}
	if !StatusComplete.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("terminal status not reported terminal")
	}
}

// TestStateString checks the ACTION/STATUS rendering
func TestStateString(t *testing.T) {
	s := State{Action: ActionCreate, Status: StatusInProgress}
	if got := s.String(); got != "CREATE/IN_PROGRESS" {
		t.Errorf("state string = %s", got)
	}
}
