package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fabric is the fake provider backing the engine tests. It records every
// HandleAction call and supports one-shot failure injection per
// "ACTION:resource" key.
type fabric struct {
	mu           sync.Mutex
	seq          int
	ops          []string
	failures     map[string]error
	pollFailures map[string]error
	unsupported  map[Action]bool
	polls        int
}

func newFabric() *fabric {
	return &fabric{
		failures:     make(map[string]error),
		pollFailures: make(map[string]error),
		unsupported:  make(map[Action]bool),
	}
}

func opKey(action Action, resource string) string {
	return string(action) + ":" + resource
}

func (f *fabric) failNext(action Action, resource string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[opKey(action, resource)] = err
}

func (f *fabric) opList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fabric) hasOp(action Action, resource string) bool {
	key := opKey(action, resource)
	for _, op := range f.opList() {
		if op == key {
			return true
		}
	}
	return false
}

// opIndex returns the position of the first matching op, or -1.
func (f *fabric) opIndex(action Action, resource string) int {
	key := opKey(action, resource)
	for i, op := range f.opList() {
		if op == key {
			return i
		}
	}
	return -1
}

type fabricHandler struct {
	f *fabric
}

func (h *fabricHandler) PrepareProperties(props Properties) (Properties, error) {
	return props, nil
}

func (h *fabricHandler) HandleAction(_ context.Context, action Action, req *ActionRequest) (ActionToken, error) {
	f := h.f
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unsupported[action] {
		return nil, ErrActionNotSupported
	}
	key := opKey(action, req.ResourceName)
	if err, ok := f.failures[key]; ok {
		delete(f.failures, key)
		return nil, err
	}
	f.ops = append(f.ops, key)
	if action == ActionCreate {
		f.seq++
		req.SetPhysicalID(fmt.Sprintf("phys-%04d", f.seq))
	}
	remaining := f.polls
	return &remaining, nil
}

func (h *fabricHandler) CheckComplete(_ context.Context, action Action, req *ActionRequest, token ActionToken) (bool, error) {
	f := h.f
	f.mu.Lock()
	defer f.mu.Unlock()

	key := opKey(action, req.ResourceName)
	if err, ok := f.pollFailures[key]; ok {
		delete(f.pollFailures, key)
		return false, err
	}
	remaining := token.(*int)
	if *remaining > 0 {
		*remaining--
		return false, nil
	}
	return true, nil
}

func (h *fabricHandler) Show(_ context.Context, req *ActionRequest) (map[string]any, error) {
	return map[string]any{"id": req.PhysicalID}, nil
}

func (h *fabricHandler) GetAttribute(ctx context.Context, req *ActionRequest, name string) (any, error) {
	attrs, err := h.Show(ctx, req)
	if err != nil {
		return nil, err
	}
	value, ok := attrs[name]
	if !ok {
		return nil, NewValidationError("unknown attribute "+name, nil).WithCode(ErrCodeUnknownAttr)
	}
	return value, nil
}

// memorySink records transitions for assertions. Safe for concurrent use so
// tests can observe a run from another goroutine.
type memorySink struct {
	mu        sync.Mutex
	stacks    []*StackRecord
	resources map[string]*ResourceRecord
	events    []*Event
	deleted   []string
}

func newMemorySink() *memorySink {
	return &memorySink{resources: make(map[string]*ResourceRecord)}
}

func (s *memorySink) SaveStack(record *StackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks = append(s.stacks, record)
	return nil
}

func (s *memorySink) SaveResource(record *ResourceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[record.Name] = record
	return nil
}

func (s *memorySink) AppendEvent(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) DeleteResource(stackName, resourceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, resourceName)
	return nil
}

func (s *memorySink) hasEvent(resource string, action Action, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.ResourceName == resource && event.Action == action && event.Status == status {
			return true
		}
	}
	return false
}

// newTestEngine wires an engine over one fabric-backed type with "mutable" as
// the only in-place updatable property.
func newTestEngine(t *testing.T, f *fabric, opts ...Option) *Engine {
	t.Helper()
	registry := NewRegistry()
	err := registry.Register(TypeSpec{
		Name:         "fabric.object",
		New:          func() ResourceHandler { return &fabricHandler{f: f} },
		UpdatePolicy: UpdatePolicy{"mutable": UpdateInPlace},
	})
	if err != nil {
		t.Fatalf("failed to register type: %v", err)
	}
	opts = append([]Option{WithStepWait(0)}, opts...)
	return NewEngine(registry, opts...)
}

// chainDefs builds network <- subnet <- server via explicit depends_on.
func chainDefs() []*Definition {
	return []*Definition{
		{Name: "network", Type: "fabric.object", Properties: Properties{"cidr": "10.0.0.0/16", "mutable": "x"}},
		{Name: "subnet", Type: "fabric.object", DependsOn: []string{"network"}, Properties: Properties{"cidr": "10.0.1.0/24", "mutable": "x"}},
		{Name: "server", Type: "fabric.object", DependsOn: []string{"subnet"}, Properties: Properties{"flavor": "small", "mutable": "x"}},
	}
}

func mustCreate(t *testing.T, e *Engine, stack *Stack) {
	t.Helper()
	if err := e.Create(context.Background(), stack); err != nil {
		t.Fatalf("create failed: %v", err)
	}
}

// TestStackCreateOrder verifies dependency-ordered creation and the final
// stack and resource states
func TestStackCreateOrder(t *testing.T) {
	f := newFabric()
	f.polls = 2
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)

	mustCreate(t, e, stack)

	if got := stack.State().String(); got != "CREATE/COMPLETE" {
		t.Errorf("stack state = %s, want CREATE/COMPLETE", got)
	}
	network := f.opIndex(ActionCreate, "network")
	subnet := f.opIndex(ActionCreate, "subnet")
	server := f.opIndex(ActionCreate, "server")
	if network == -1 || subnet == -1 || server == -1 {
		t.Fatalf("missing create ops: %v", f.opList())
	}
	if !(network < subnet && subnet < server) {
		t.Errorf("creation order violated dependencies: %v", f.opList())
	}
	for _, name := range []string{"network", "subnet", "server"} {
		res := stack.Resource(name)
		if res.State().String() != "CREATE/COMPLETE" {
			t.Errorf("resource %s state = %s", name, res.State())
		}
		if res.PhysicalID == "" {
			t.Errorf("resource %s has no physical id", name)
		}
	}
}

// TestStackCreateFailureRollsBack verifies the compensating delete run
func TestStackCreateFailureRollsBack(t *testing.T) {
	f := newFabric()
	f.failNext(ActionCreate, "subnet", NewPermanentError("quota exceeded", nil).WithCode(ErrCodeProvider))
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)

	err := e.Create(context.Background(), stack)
	if err == nil {
		t.Fatal("expected create error, got nil")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error does not carry failure reason: %v", err)
	}

	if stack.Action != ActionRollback || stack.Status != StatusComplete {
		t.Errorf("stack state = %s/%s, want ROLLBACK/COMPLETE", stack.Action, stack.Status)
	}
	if !f.hasOp(ActionDelete, "network") {
		t.Errorf("created resource was not rolled back: %v", f.opList())
	}
	if f.hasOp(ActionCreate, "server") {
		t.Errorf("dependent resource dispatched after failure: %v", f.opList())
	}
}

// TestStackCreateFailureRollbackDisabled leaves the stack FAILED
func TestStackCreateFailureRollbackDisabled(t *testing.T) {
	f := newFabric()
	f.failNext(ActionCreate, "subnet", NewPermanentError("quota exceeded", nil))
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), true)

	if err := e.Create(context.Background(), stack); err == nil {
		t.Fatal("expected create error, got nil")
	}
	if stack.Action != ActionCreate || stack.Status != StatusFailed {
		t.Errorf("stack state = %s/%s, want CREATE/FAILED", stack.Action, stack.Status)
	}
	if f.hasOp(ActionDelete, "network") {
		t.Errorf("rollback ran despite being disabled: %v", f.opList())
	}
}

// TestStackDeleteReverseOrder verifies deletion mirrors creation
func TestStackDeleteReverseOrder(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	if err := e.Delete(context.Background(), stack); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := stack.State().String(); got != "DELETE/COMPLETE" {
		t.Errorf("stack state = %s, want DELETE/COMPLETE", got)
	}

	server := f.opIndex(ActionDelete, "server")
	subnet := f.opIndex(ActionDelete, "subnet")
	network := f.opIndex(ActionDelete, "network")
	if server == -1 || subnet == -1 || network == -1 {
		t.Fatalf("missing delete ops: %v", f.opList())
	}
	if !(server < subnet && subnet < network) {
		t.Errorf("deletion order is not the reverse of creation: %v", f.opList())
	}
}

// TestStackDeleteIdempotent covers the two not-found shapes: provider
// reports not-found, and nothing was ever created
func TestStackDeleteIdempotent(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	f.failNext(ActionDelete, "server", NewPermanentError("gone", nil).WithCode(ErrCodeNotFound))
	if err := e.Delete(context.Background(), stack); err != nil {
		t.Fatalf("delete with not-found failed: %v", err)
	}
	res := stack.Resource("server")
	if res.Status != StatusComplete {
		t.Errorf("not-found delete did not complete: %s (%s)", res.State(), res.StatusReason)
	}

	// A never-created resource completes without touching the provider.
	stack2 := NewStack("fresh", chainDefs(), false)
	opsBefore := len(f.opList())
	if err := e.Delete(context.Background(), stack2); err != nil {
		t.Fatalf("delete of never-created stack failed: %v", err)
	}
	if got := f.opList(); len(got) != opsBefore {
		t.Errorf("delete of never-created resources called the provider: %v", got[opsBefore:])
	}
}

// TestStackUpdateNoChanges verifies the no-op update path
func TestStackUpdateNoChanges(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	ids := map[string]string{}
	for name, res := range stack.Resources {
		ids[name] = res.PhysicalID
	}
	opsBefore := len(f.opList())

	if err := e.Update(context.Background(), stack, chainDefs()); err != nil {
		t.Fatalf("no-change update failed: %v", err)
	}
	if got := stack.State().String(); got != "UPDATE/COMPLETE" {
		t.Errorf("stack state = %s, want UPDATE/COMPLETE", got)
	}
	if got := f.opList(); len(got) != opsBefore {
		t.Errorf("no-change update called the provider: %v", got[opsBefore:])
	}
	for name, res := range stack.Resources {
		if res.PhysicalID != ids[name] {
			t.Errorf("resource %s changed physical id on no-op update", name)
		}
		if res.State().String() != "UPDATE/COMPLETE" {
			t.Errorf("resource %s state = %s, want UPDATE/COMPLETE", name, res.State())
		}
	}
}

// TestStackUpdateInPlace changes a property the policy marks updatable
func TestStackUpdateInPlace(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)
	oldID := stack.Resource("network").PhysicalID

	newDefs := chainDefs()
	newDefs[0].Properties["mutable"] = "y"

	if err := e.Update(context.Background(), stack, newDefs); err != nil {
		t.Fatalf("in-place update failed: %v", err)
	}
	if !f.hasOp(ActionUpdate, "network") {
		t.Errorf("expected UPDATE op on network: %v", f.opList())
	}
	if f.hasOp(ActionDelete, "network") {
		t.Errorf("in-place update replaced the resource: %v", f.opList())
	}
	if stack.Resource("network").PhysicalID != oldID {
		t.Error("in-place update changed the physical id")
	}
	if stack.GraphVersion != 1 {
		t.Errorf("graph version = %d, want 1", stack.GraphVersion)
	}
}

// TestStackUpdateReplace changes a property that forces replacement
func TestStackUpdateReplace(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)
	oldID := stack.Resource("network").PhysicalID

	newDefs := chainDefs()
	newDefs[0].Properties["cidr"] = "172.16.0.0/16"

	if err := e.Update(context.Background(), stack, newDefs); err != nil {
		t.Fatalf("replacing update failed: %v", err)
	}

	deleteIdx := f.opIndex(ActionDelete, "network")
	if deleteIdx == -1 {
		t.Fatalf("replacement did not delete the old object: %v", f.opList())
	}
	res := stack.Resource("network")
	if res.PhysicalID == oldID || res.PhysicalID == "" {
		t.Errorf("replacement kept physical id %q", res.PhysicalID)
	}
	if res.Name != "network" {
		t.Errorf("replacement changed the logical name to %s", res.Name)
	}
	if res.State().String() != "UPDATE/COMPLETE" {
		t.Errorf("resource state = %s, want UPDATE/COMPLETE", res.State())
	}
	if !strings.Contains(res.StatusReason, "replaced") {
		t.Errorf("status reason does not mention replacement: %s", res.StatusReason)
	}
}

// TestStackUpdateAddsAndRemoves covers resource set changes
func TestStackUpdateAddsAndRemoves(t *testing.T) {
	f := newFabric()
	sink := newMemorySink()
	e := newTestEngine(t, f, WithStateSink(sink))
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	// Drop the server, add a volume.
	newDefs := chainDefs()[:2]
	newDefs = append(newDefs, &Definition{
		Name: "volume", Type: "fabric.object",
		DependsOn:  []string{"subnet"},
		Properties: Properties{"size": 10},
	})

	if err := e.Update(context.Background(), stack, newDefs); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !f.hasOp(ActionCreate, "volume") {
		t.Errorf("added resource was not created: %v", f.opList())
	}
	if !f.hasOp(ActionDelete, "server") {
		t.Errorf("removed resource was not deleted: %v", f.opList())
	}
	if stack.Resource("server") != nil {
		t.Error("removed resource still present in stack")
	}
	if len(sink.deleted) != 1 || sink.deleted[0] != "server" {
		t.Errorf("sink deletions = %v, want [server]", sink.deleted)
	}
}

// TestStackUpdateRemovesChain deletes removed resources in reverse order of
// the old graph, including removed resources that depend on kept ones
func TestStackUpdateRemovesChain(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	// Keep only the network; subnet and server both go, and the server's
	// depends_on still points at the kept network's dependent subnet.
	newDefs := chainDefs()[:1]
	if err := e.Update(context.Background(), stack, newDefs); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	server := f.opIndex(ActionDelete, "server")
	subnet := f.opIndex(ActionDelete, "subnet")
	if server == -1 || subnet == -1 {
		t.Fatalf("removed resources not deleted: %v", f.opList())
	}
	if server > subnet {
		t.Errorf("removed resources deleted out of order: %v", f.opList())
	}
	if f.hasOp(ActionDelete, "network") {
		t.Errorf("kept resource was deleted: %v", f.opList())
	}
	if got := stack.State().String(); got != "UPDATE/COMPLETE" {
		t.Errorf("stack state = %s, want UPDATE/COMPLETE", got)
	}
}

// TestStackUpdateRecreatesAfterRollback converges a rolled-back stack by
// re-creating the resources the rollback deleted
func TestStackUpdateRecreatesAfterRollback(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)

	f.failNext(ActionCreate, "subnet", NewPermanentError("quota exceeded", nil))
	if err := e.Create(context.Background(), stack); err == nil {
		t.Fatal("expected create error, got nil")
	}
	if stack.Action != ActionRollback || stack.Status != StatusComplete {
		t.Fatalf("stack state = %s/%s, want ROLLBACK/COMPLETE", stack.Action, stack.Status)
	}
	if id := stack.Resource("network").PhysicalID; id != "" {
		t.Errorf("rolled-back resource still holds physical id %q", id)
	}

	if err := e.Update(context.Background(), stack, chainDefs()); err != nil {
		t.Fatalf("converging update failed: %v", err)
	}
	if got := stack.State().String(); got != "UPDATE/COMPLETE" {
		t.Errorf("stack state = %s, want UPDATE/COMPLETE", got)
	}
	for _, name := range []string{"network", "subnet", "server"} {
		res := stack.Resource(name)
		if res.PhysicalID == "" {
			t.Errorf("resource %s not recreated: %s (%s)", name, res.State(), res.StatusReason)
		}
	}
	if !f.hasOp(ActionCreate, "subnet") || !f.hasOp(ActionCreate, "server") {
		t.Errorf("recreation skipped provider calls: %v", f.opList())
	}
}

// TestStackUpdateReplacesFailedResource replaces a resource left FAILED with
// a stale provider object instead of diffing its definitions
func TestStackUpdateReplacesFailedResource(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), true)
	mustCreate(t, e, stack)
	oldID := stack.Resource("network").PhysicalID

	newDefs := chainDefs()
	newDefs[0].Properties["mutable"] = "y"
	f.failNext(ActionUpdate, "network", NewPermanentError("conflict", nil))
	if err := e.Update(context.Background(), stack, newDefs); err == nil {
		t.Fatal("expected update error, got nil")
	}
	if res := stack.Resource("network"); res.Status != StatusFailed || res.PhysicalID != oldID {
		t.Fatalf("failed resource state = %s, physical id %q", res.State(), res.PhysicalID)
	}

	retry := chainDefs()
	retry[0].Properties["mutable"] = "y"
	if err := e.Update(context.Background(), stack, retry); err != nil {
		t.Fatalf("retry update failed: %v", err)
	}
	if !f.hasOp(ActionDelete, "network") {
		t.Errorf("stale provider object was not cleaned up: %v", f.opList())
	}
	res := stack.Resource("network")
	if res.PhysicalID == oldID || res.PhysicalID == "" {
		t.Errorf("retry kept stale physical id %q", res.PhysicalID)
	}
	if res.State().String() != "UPDATE/COMPLETE" {
		t.Errorf("resource state = %s, want UPDATE/COMPLETE", res.State())
	}
}

// TestStackUpdateRestricted verifies fail-fast before any provider call
func TestStackUpdateRestricted(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)
	opsBefore := len(f.opList())

	newDefs := chainDefs()
	newDefs[0].Properties["mutable"] = "y"
	newDefs[0].DisableUpdate = true

	err := e.Update(context.Background(), stack, newDefs)
	if err == nil {
		t.Fatal("expected restriction error, got nil")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeRestricted {
		t.Errorf("expected RESTRICTED error, got %v", err)
	}
	if !strings.Contains(err.Error(), "disable_update") {
		t.Errorf("error does not name the restriction: %v", err)
	}
	if got := f.opList(); len(got) != opsBefore {
		t.Errorf("restricted update touched the provider: %v", got[opsBefore:])
	}
	if stack.Status != StatusFailed {
		t.Errorf("stack status = %s, want FAILED", stack.Status)
	}
}

// TestStackUpdateReplaceRestricted verifies disable_replace blocks a
// replacing update up front
func TestStackUpdateReplaceRestricted(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	newDefs := chainDefs()
	newDefs[0].Properties["cidr"] = "172.16.0.0/16"
	newDefs[0].DisableReplace = true

	err := e.Update(context.Background(), stack, newDefs)
	if err == nil {
		t.Fatal("expected restriction error, got nil")
	}
	if !strings.Contains(err.Error(), "disable_replace") {
		t.Errorf("error does not name the restriction: %v", err)
	}
	if f.hasOp(ActionDelete, "network") {
		t.Errorf("restricted replacement deleted the resource: %v", f.opList())
	}
}

// TestStackUpdateFailureRollsBack re-runs the update toward the previous
// definitions
func TestStackUpdateFailureRollsBack(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	newDefs := chainDefs()
	newDefs[0].Properties["mutable"] = "y"
	f.failNext(ActionUpdate, "network", NewPermanentError("conflict", nil))

	err := e.Update(context.Background(), stack, newDefs)
	if err == nil {
		t.Fatal("expected update error, got nil")
	}
	if stack.Action != ActionRollback || stack.Status != StatusComplete {
		t.Errorf("stack state = %s/%s, want ROLLBACK/COMPLETE", stack.Action, stack.Status)
	}
	got := stack.Resource("network").Definition.Properties["mutable"]
	if got != "x" {
		t.Errorf("rollback did not restore property: mutable = %v, want x", got)
	}
}

// TestStackUpdateFallbackToReplace covers a handler without an in-place
// update path
func TestStackUpdateFallbackToReplace(t *testing.T) {
	f := newFabric()
	f.unsupported[ActionUpdate] = true
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)
	oldID := stack.Resource("network").PhysicalID

	newDefs := chainDefs()
	newDefs[0].Properties["mutable"] = "y"

	if err := e.Update(context.Background(), stack, newDefs); err != nil {
		t.Fatalf("fallback update failed: %v", err)
	}
	if !f.hasOp(ActionDelete, "network") {
		t.Errorf("fallback did not replace: %v", f.opList())
	}
	if stack.Resource("network").PhysicalID == oldID {
		t.Error("fallback replacement kept the physical id")
	}
}

// TestStackLifecycleNoop verifies unsupported uniform actions complete as
// no-ops
func TestStackLifecycleNoop(t *testing.T) {
	f := newFabric()
	f.unsupported[ActionSnapshot] = true
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	if err := e.Snapshot(context.Background(), stack); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if got := stack.State().String(); got != "SNAPSHOT/COMPLETE" {
		t.Errorf("stack state = %s, want SNAPSHOT/COMPLETE", got)
	}
	res := stack.Resource("network")
	if !strings.Contains(res.StatusReason, "no-op") {
		t.Errorf("unsupported action reason = %q", res.StatusReason)
	}
}

// TestStackSuspendResume verifies suspend runs in reverse order and resume
// forward
func TestStackSuspendResume(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	if err := e.Suspend(context.Background(), stack); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	server := f.opIndex(ActionSuspend, "server")
	network := f.opIndex(ActionSuspend, "network")
	if server == -1 || network == -1 || server > network {
		t.Errorf("suspend order not reversed: %v", f.opList())
	}

	if err := e.Resume(context.Background(), stack); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	netResume := f.opIndex(ActionResume, "network")
	serverResume := f.opIndex(ActionResume, "server")
	if netResume == -1 || serverResume == -1 || netResume > serverResume {
		t.Errorf("resume order not forward: %v", f.opList())
	}
}

// TestStackCreateCancelled verifies context cancellation fails the run
func TestStackCreateCancelled(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Create(ctx, stack)
	if !IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if stack.Action != ActionCreate || stack.Status != StatusFailed {
		t.Errorf("stack state = %s/%s, want CREATE/FAILED", stack.Action, stack.Status)
	}
	if !strings.Contains(stack.StatusReason, "cancelled") {
		t.Errorf("status reason = %q", stack.StatusReason)
	}
}

// TestStackResourceTimeout verifies the completion-poll budget
func TestStackResourceTimeout(t *testing.T) {
	f := newFabric()
	f.polls = 100

	current := time.Unix(0, 0)
	clock := func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
	e := newTestEngine(t, f, WithClock(clock), WithDefaultTimeout(time.Second))
	stack := NewStack("web", chainDefs(), true)

	err := e.Create(context.Background(), stack)
	if err == nil {
		t.Fatal("expected timeout failure, got nil")
	}
	res := stack.Resource("network")
	if res.Status != StatusFailed || !strings.Contains(res.StatusReason, "timed out") {
		t.Errorf("resource state = %s (%s)", res.State(), res.StatusReason)
	}
}

// TestStackHooksHoldAndSignal verifies a hook holds the resource before the
// provider call until signalled
func TestStackHooksHoldAndSignal(t *testing.T) {
	f := newFabric()
	sink := newMemorySink()
	e := newTestEngine(t, f, WithStateSink(sink), WithStepWait(time.Millisecond))

	defs := chainDefs()
	defs[0].Hooks = []string{"pre-create"}
	stack := NewStack("web", defs, false)

	done := make(chan error, 1)
	go func() { done <- e.Create(context.Background(), stack) }()

	// Wait until the resource is dispatched, then confirm it is held.
	deadline := time.After(5 * time.Second)
	for !sink.hasEvent("network", ActionCreate, StatusInProgress) {
		select {
		case <-deadline:
			t.Fatal("resource never dispatched")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	if f.hasOp(ActionCreate, "network") {
		t.Fatal("held resource reached the provider before signal")
	}
	if got := stack.Hooks().Pending("network"); len(got) != 1 || got[0] != "pre-create" {
		t.Fatalf("pending hooks = %v, want [pre-create]", got)
	}

	if err := e.Signal(stack, "network", "pre-create"); err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("create failed after signal: %v", err)
	}
	if !f.hasOp(ActionCreate, "network") {
		t.Error("resource never created after signal")
	}
}

// TestSignalRejections covers suspended stacks, unknown resources, and
// unarmed hooks
func TestSignalRejections(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	if err := e.Suspend(context.Background(), stack); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	err := e.Signal(stack, "network", "pre-create")
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeHookRejected {
		t.Errorf("signal during suspend: expected HOOK_REJECTED, got %v", err)
	}

	if err := e.Resume(context.Background(), stack); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	err = e.Signal(stack, "ghost", "pre-create")
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeNotFound {
		t.Errorf("signal on unknown resource: expected NOT_FOUND, got %v", err)
	}

	err = e.Signal(stack, "network", "never-armed")
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeHookRejected {
		t.Errorf("signal on unarmed hook: expected HOOK_REJECTED, got %v", err)
	}
}

// TestSignalConcurrentWithUpdate drives signals from another goroutine while
// an update with removals is in flight, the way the CLI does
func TestSignalConcurrentWithUpdate(t *testing.T) {
	f := newFabric()
	f.polls = 3
	e := newTestEngine(t, f, WithStepWait(time.Millisecond))
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	newDefs := chainDefs()[:2] // drop the server
	done := make(chan error, 1)
	go func() { done <- e.Update(context.Background(), stack, newDefs) }()

	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}
			if got := stack.State().String(); got != "UPDATE/COMPLETE" {
				t.Errorf("stack state = %s, want UPDATE/COMPLETE", got)
			}
			if stack.Resource("server") != nil {
				t.Error("removed resource still present in stack")
			}
			return
		default:
		}
		for _, name := range []string{"network", "server", "ghost"} {
			err := e.Signal(stack, name, "pre-create")
			if err == nil {
				continue
			}
			var engineErr *EngineError
			if !errors.As(err, &engineErr) {
				t.Fatalf("unexpected signal error type: %v", err)
			}
			switch engineErr.Code {
			case ErrCodeHookRejected, ErrCodeNotFound:
			default:
				t.Fatalf("unexpected signal error: %v", err)
			}
		}
	}
}

// TestStackDeleteClearsPhysicalID verifies deleted resources drop their
// provider identifiers
func TestStackDeleteClearsPhysicalID(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	if err := e.Delete(context.Background(), stack); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	for _, name := range []string{"network", "subnet", "server"} {
		if id := stack.Resource(name).PhysicalID; id != "" {
			t.Errorf("resource %s still holds physical id %q after delete", name, id)
		}
	}
}

// TestStackUnknownDependency rejects depends_on targets outside the stack
func TestStackUnknownDependency(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	defs := []*Definition{
		{Name: "a", Type: "fabric.object", DependsOn: []string{"missing"}},
	}
	stack := NewStack("web", defs, false)

	err := e.Create(context.Background(), stack)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !IsValidation(err) || !strings.Contains(err.Error(), "missing") {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestStackUnknownType rejects unregistered resource types
func TestStackUnknownType(t *testing.T) {
	f := newFabric()
	e := newTestEngine(t, f)
	defs := []*Definition{{Name: "a", Type: "no.such.type"}}
	stack := NewStack("web", defs, false)

	err := e.Create(context.Background(), stack)
	if err == nil {
		t.Fatal("expected unknown type error, got nil")
	}
	var engineErr *EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != ErrCodeUnknownType {
		t.Errorf("expected UNKNOWN_TYPE, got %v", err)
	}
}

// TestEngineHydrate round-trips a stack through durable records
func TestEngineHydrate(t *testing.T) {
	f := newFabric()
	sink := newMemorySink()
	e := newTestEngine(t, f, WithStateSink(sink))
	stack := NewStack("web", chainDefs(), false)
	mustCreate(t, e, stack)

	sink.mu.Lock()
	stackRecord := sink.stacks[len(sink.stacks)-1]
	records := make([]*ResourceRecord, 0, len(sink.resources))
	for _, record := range sink.resources {
		records = append(records, record)
	}
	sink.mu.Unlock()

	restored, err := e.Hydrate(stackRecord, records)
	if err != nil {
		t.Fatalf("hydrate failed: %v", err)
	}
	if restored.State().String() != "CREATE/COMPLETE" {
		t.Errorf("restored stack state = %s", restored.State())
	}
	for name, original := range stack.Resources {
		res := restored.Resource(name)
		if res == nil {
			t.Fatalf("resource %s missing after hydrate", name)
		}
		if res.PhysicalID != original.PhysicalID {
			t.Errorf("resource %s physical id = %q, want %q", name, res.PhysicalID, original.PhysicalID)
		}
	}

	// The restored stack is actionable.
	if err := e.Delete(context.Background(), restored); err != nil {
		t.Fatalf("delete of restored stack failed: %v", err)
	}
}
