package engine

import (
	"fmt"
	"sort"
	"sync"
)

// hookKey identifies one armed pause point.
type hookKey struct {
	resource string
	hook     string
}

// HookGate tracks the named pause points armed for the current stack action.
// An armed hook holds its resource in IN_PROGRESS after dispatch and before
// the handler's start call, until an external signal clears it.
//
// The gate is safe for concurrent use: the dispatch loop polls it while
// signals arrive from the front end.
type HookGate struct {
	mu    sync.Mutex
	armed map[hookKey]struct{}
}

// NewHookGate creates an empty hook gate.
func NewHookGate() *HookGate {
	return &HookGate{armed: make(map[hookKey]struct{})}
}

// Arm inserts a pause point for the resource. Arming the same hook twice is
// a no-op.
func (h *HookGate) Arm(resource, hook string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armed[hookKey{resource: resource, hook: hook}] = struct{}{}
}

// Clear removes an armed hook, releasing the held resource at its next step.
// Clearing a hook that is not armed is an error so operators notice typos.
func (h *HookGate) Clear(resource, hook string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := hookKey{resource: resource, hook: hook}
	if _, ok := h.armed[key]; !ok {
		return NewValidationError(
			fmt.Sprintf("hook %s is not armed on resource %s", hook, resource), nil,
		).WithCode(ErrCodeHookRejected)
	}
	delete(h.armed, key)
	return nil
}

// Pending returns the armed hook names for the resource, sorted.
func (h *HookGate) Pending(resource string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var hooks []string
	for key := range h.armed {
		if key.resource == resource {
			hooks = append(hooks, key.hook)
		}
	}
	sort.Strings(hooks)
	return hooks
}

// Blocked reports whether any hook is armed for the resource.
func (h *HookGate) Blocked(resource string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key := range h.armed {
		if key.resource == resource {
			return true
		}
	}
	return false
}

// Reset drops every armed hook. Called when a stack action completes or
// fails so stale hooks never leak into the next run.
func (h *HookGate) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armed = make(map[hookKey]struct{})
}
