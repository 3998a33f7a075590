package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// Workflow is a named graph with declared inputs and outputs. It is immutable
// and may be run any number of times, concurrently.
type Workflow struct {
	name        string
	graph       *Graph
	inputs      []string
	outputNames []string
	outputs     map[string]Descriptor
	redirects   map[uuid.UUID]*OutputReference
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithInputs declares the workflow inputs. Nodes may only reference declared inputs.
func WithInputs(names ...string) WorkflowOption {
	return func(w *Workflow) { w.inputs = append(w.inputs, names...) }
}

// WithOutput declares a workflow output resolved from d when the run fulfills.
func WithOutput(name string, d Descriptor) WorkflowOption {
	return func(w *Workflow) {
		if _, ok := w.outputs[name]; !ok {
			w.outputNames = append(w.outputNames, name)
		}
		w.outputs[name] = d
	}
}

// NewWorkflow validates graph and builds a workflow around it.
func NewWorkflow(name string, graph *Graph, opts ...WorkflowOption) (*Workflow, error) {
	if graph == nil || graph.IsEmpty() {
		return nil, fmt.Errorf("workflow %q: %w", name, ErrEmptyGraph)
	}
	w := newWorkflow(name, graph)
	for _, opt := range opts {
		opt(w)
	}
	if err := w.validate(); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", name, err)
	}
	return w, nil
}

func newWorkflow(name string, graph *Graph) *Workflow {
	w := &Workflow{
		name:      name,
		graph:     graph,
		outputs:   make(map[string]Descriptor),
		redirects: make(map[uuid.UUID]*OutputReference),
	}
	w.buildRedirects()
	return w
}

// buildRedirects maps the outputs of every node wrapped by an adornment to
// the matching output of the outermost wrapper present in the graph.
func (w *Workflow) buildRedirects() {
	for _, outer := range w.graph.Nodes() {
		for n := outer; n.adornment != nil; n = n.adornment.Inner {
			inner := n.adornment.Inner
			for _, name := range inner.outputs {
				target, ok := outer.outputRefs[name]
				if !ok {
					continue
				}
				id := inner.outputRefs[name].id
				if _, exists := w.redirects[id]; !exists {
					w.redirects[id] = target
				}
			}
		}
	}
}

func (w *Workflow) validate() error {
	if err := w.validateIdentity(); err != nil {
		return err
	}

	declared := make(map[string]struct{}, len(w.inputs))
	for _, in := range w.inputs {
		declared[in] = struct{}{}
	}

	for _, n := range w.graph.Nodes() {
		for _, d := range n.descriptors() {
			if err := w.validateDescriptor(d, declared); err != nil {
				return fmt.Errorf("node %q: %w", n.name, err)
			}
		}
	}
	for _, name := range w.outputNames {
		if err := w.validateDescriptor(w.outputs[name], declared); err != nil {
			return fmt.Errorf("output %q: %w", name, err)
		}
	}
	return nil
}

// validateIdentity rejects distinct nodes, ports or triggers that share an ID.
func (w *Workflow) validateIdentity() error {
	owners := make(map[uuid.UUID]any)
	claim := func(id uuid.UUID, owner any, label string) error {
		if prev, ok := owners[id]; ok && prev != owner {
			return fmt.Errorf("%w: %s %s (%s)", ErrDuplicateID, label, owner, id)
		}
		owners[id] = owner
		return nil
	}
	for _, n := range w.graph.Nodes() {
		if err := claim(n.id, n, "node"); err != nil {
			return err
		}
		for _, p := range n.ports {
			if err := claim(p.id, p, "port"); err != nil {
				return err
			}
		}
	}
	for _, t := range w.graph.Triggers() {
		if err := claim(t.id, t, "trigger"); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workflow) validateDescriptor(d Descriptor, inputs map[string]struct{}) error {
	switch ref := d.(type) {
	case nil:
		return fmt.Errorf("%w: nil descriptor", ErrUnknownOutput)
	case *InputReference:
		if _, ok := inputs[ref.name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownInput, ref.name)
		}
	case *OutputReference:
		if !w.graph.HasNode(w.Resolve(ref).node) {
			return fmt.Errorf("%w: %s is not produced by this workflow", ErrUnknownOutput, ref)
		}
	}
	return nil
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Graph returns the workflow graph.
func (w *Workflow) Graph() *Graph { return w.graph }

// Inputs returns the declared input names.
func (w *Workflow) Inputs() []string { return append([]string(nil), w.inputs...) }

// OutputNames returns the declared output names in declaration order.
func (w *Workflow) OutputNames() []string { return append([]string(nil), w.outputNames...) }

// OutputDescriptor returns the descriptor backing a workflow output.
func (w *Workflow) OutputDescriptor(name string) (Descriptor, bool) {
	d, ok := w.outputs[name]
	return d, ok
}

// Resolve follows adornment redirects: a reference to an output of a wrapped
// node resolves to the same output of the outermost wrapper in the graph.
// References that are not redirected are returned unchanged.
func (w *Workflow) Resolve(ref *OutputReference) *OutputReference {
	if target, ok := w.redirects[ref.id]; ok {
		return target
	}
	return ref
}
