package catalog

import (
	"maps"
	"slices"
	"sync"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/timely"
)

// Registry holds registered dataflows by name.
type Registry struct {
	mu         sync.RWMutex
	dataflows  map[string]dataflow.Dataflow
	dependents map[string]map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		dataflows:  make(map[string]dataflow.Dataflow),
		dependents: make(map[string]map[string]bool),
	}
}

// Register adds a dataflow whose dependencies are all registered.
func (r *Registry) Register(d dataflow.Dataflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(d, nil); err != nil {
		return err
	}
	r.insert(d)
	return nil
}

// RegisterAll adds a batch of dataflows given in any order. Dependencies
// may be satisfied by the registry or by other members of the batch. The
// batch is added entirely or not at all.
func (r *Registry) RegisterAll(ds []dataflow.Dataflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]dataflow.Dataflow, len(ds))
	for _, d := range ds {
		if d == nil {
			return newError(ErrCodeInvalid, "", "nil dataflow")
		}
		if _, dup := batch[d.Name()]; dup {
			return newError(ErrCodeDuplicate, d.Name(), "defined twice in batch")
		}
		batch[d.Name()] = d
	}

	if warnings := AnalyzeCycles(ds); len(warnings) > 0 {
		w := warnings[0]
		return newError(ErrCodeCycle, w.Path[0], "%s", w.Message)
	}

	for _, name := range batchOrder(batch) {
		if err := r.check(batch[name], batch); err != nil {
			return err
		}
	}
	for _, name := range batchOrder(batch) {
		r.insert(batch[name])
	}
	return nil
}

// batchOrder orders an acyclic batch so that members come after the
// members they use.
func batchOrder(batch map[string]dataflow.Dataflow) []string {
	deps := make(map[string][]string, len(batch))
	for name, d := range batch {
		for _, use := range d.Uses() {
			if _, ok := batch[use]; ok {
				deps[name] = append(deps[name], use)
			}
		}
	}
	return kahn(slices.Collect(maps.Keys(batch)), deps)
}

// check validates d against the registry plus pending batch members.
// Caller must hold r.mu.
func (r *Registry) check(d dataflow.Dataflow, pending map[string]dataflow.Dataflow) error {
	if d == nil {
		return newError(ErrCodeInvalid, "", "nil dataflow")
	}
	if err := dataflow.Validate(d); err != nil {
		return &Error{Code: ErrCodeInvalid, Name: d.Name(), Err: err}
	}
	if _, exists := r.dataflows[d.Name()]; exists {
		return newError(ErrCodeDuplicate, d.Name(), "already registered")
	}

	lookup := func(name string) (dataflow.Dataflow, bool) {
		if up, ok := r.dataflows[name]; ok {
			return up, true
		}
		up, ok := pending[name]
		return up, ok
	}

	for _, use := range d.Uses() {
		up, ok := lookup(use)
		if !ok {
			return newError(ErrCodeUnknownDependency, d.Name(), "uses unregistered %q", use)
		}
		if _, isSink := up.(dataflow.Sink); isSink {
			return newError(ErrCodeUnknownDependency, d.Name(), "uses sink %q, which produces no rows", use)
		}
	}

	if sink, ok := d.(dataflow.Sink); ok {
		up, _ := lookup(sink.From())
		desc, err := dataflow.DescOf(up)
		if err == nil && desc.Arity() != sink.FromDesc().Arity() {
			return newError(ErrCodeShapeMismatch, d.Name(), "upstream %q has arity %d, sink expects %d",
				sink.From(), desc.Arity(), sink.FromDesc().Arity())
		}
	}
	return nil
}

// insert records d. Caller must hold r.mu and have checked d.
func (r *Registry) insert(d dataflow.Dataflow) {
	r.dataflows[d.Name()] = d
	for _, use := range d.Uses() {
		if r.dependents[use] == nil {
			r.dependents[use] = make(map[string]bool)
		}
		r.dependents[use][d.Name()] = true
	}
}

// Get returns the named dataflow.
func (r *Registry) Get(name string) (dataflow.Dataflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dataflows[name]
	return d, ok
}

// View returns the named dataflow if it is a view.
func (r *Registry) View(name string) (dataflow.View, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewLocked(name)
}

func (r *Registry) viewLocked(name string) (dataflow.View, error) {
	d, ok := r.dataflows[name]
	if !ok {
		return dataflow.View{}, newError(ErrCodeNotFound, name, "not registered")
	}
	v, ok := d.(dataflow.View)
	if !ok {
		return dataflow.View{}, newError(ErrCodeNotView, name, "is a %s", d.Kind())
	}
	return v, nil
}

// Remove deletes a dataflow that nothing depends on.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dataflows[name]
	if !ok {
		return newError(ErrCodeNotFound, name, "not registered")
	}
	if deps := r.dependents[name]; len(deps) > 0 {
		return newError(ErrCodeHasDependents, name, "used by %v", sortedKeys(deps))
	}
	delete(r.dataflows, name)
	delete(r.dependents, name)
	for _, use := range d.Uses() {
		delete(r.dependents[use], name)
	}
	return nil
}

// Dependents returns the names that use name directly, sorted.
func (r *Registry) Dependents(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.dependents[name])
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.dataflows))
}

// Len returns the number of registered dataflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dataflows)
}

// BuildOrder returns every registered name with dependencies before
// dependents. Among names whose dependencies are all listed, the
// smallest comes first.
func (r *Registry) BuildOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := make(map[string][]string, len(r.dataflows))
	for name, d := range r.dataflows {
		deps[name] = d.Uses()
	}
	return kahn(slices.Collect(maps.Keys(r.dataflows)), deps)
}

// Sources returns the names of the sources the named dataflow reads,
// directly or through other dataflows, sorted. A source is its own
// upstream.
func (r *Registry) Sources(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.dataflows[name]; !ok {
		return nil, newError(ErrCodeNotFound, name, "not registered")
	}
	found := make(map[string]bool)
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		d := r.dataflows[n]
		if d.Kind() == dataflow.KindSource {
			found[n] = true
			return
		}
		for _, use := range d.Uses() {
			walk(use)
		}
	}
	walk(name)
	return sortedKeys(found), nil
}

// TightenAsOf advances the as-of of a registered view. Loosening is
// rejected and leaves the view unchanged.
func (r *Registry) TightenAsOf(name string, f timely.Frontier) (dataflow.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, err := r.viewLocked(name)
	if err != nil {
		return dataflow.View{}, err
	}
	next, err := v.TightenAsOf(f)
	if err != nil {
		return v, err
	}
	r.dataflows[name] = next
	return next, nil
}

// kahn topologically sorts nodes given each node's dependencies, picking
// the smallest ready node at each step. Dependencies outside nodes are
// ignored.
func kahn(nodes []string, deps map[string][]string) []string {
	inNodes := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inNodes[n] = true
	}

	remaining := make(map[string]int, len(nodes))
	users := make(map[string][]string)
	for _, n := range nodes {
		for _, dep := range deps[n] {
			if inNodes[dep] {
				remaining[n]++
				users[dep] = append(users[dep], n)
			}
		}
	}

	var ready []string
	for _, n := range nodes {
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		slices.Sort(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, u := range users[n] {
			remaining[u]--
			if remaining[u] == 0 {
				ready = append(ready, u)
			}
		}
	}
	return order
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
