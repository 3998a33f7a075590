package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// MergeBehavior governs when a node with several incoming edges becomes ready.
type MergeBehavior string

const (
	// AwaitAny runs the node as soon as one incoming edge fires.
	AwaitAny MergeBehavior = "AWAIT_ANY"
	// AwaitAll runs the node once every incoming edge has fired.
	AwaitAll MergeBehavior = "AWAIT_ALL"
	// AwaitAttributes runs the node once every referenced attribute is resolvable.
	AwaitAttributes MergeBehavior = "AWAIT_ATTRIBUTES"
)

// Body is the run body of a node. It is invoked once per execution of the node
// with a fresh RunContext.
type Body func(ctx context.Context, rc *RunContext) error

// Node is a named, reusable unit of work. It is a vertex of a graph and is never
// mutated after construction.
type Node struct {
	name       string
	id         uuid.UUID
	body       Body
	ports      []*Port
	outputs    []string
	outputRefs map[string]*OutputReference
	merge      MergeBehavior
	attributes map[string]any
	adornment  *Adornment
}

// NodeOption configures a node at construction time.
type NodeOption func(*nodeConfig)

type nodeConfig struct {
	id         uuid.UUID
	ports      []PortSpec
	outputs    []string
	merge      MergeBehavior
	attributes map[string]any
}

// WithOutputs declares the node's named outputs.
func WithOutputs(names ...string) NodeOption {
	return func(c *nodeConfig) { c.outputs = append(c.outputs, names...) }
}

// WithPorts declares the node's ports. Without it a node has one "default" port.
func WithPorts(ports ...PortSpec) NodeOption {
	return func(c *nodeConfig) { c.ports = append(c.ports, ports...) }
}

// WithMergeBehavior sets the trigger merge behavior. The default is AwaitAny.
func WithMergeBehavior(m MergeBehavior) NodeOption {
	return func(c *nodeConfig) { c.merge = m }
}

// WithAttributes sets node attributes. Values may be literals or Descriptors.
func WithAttributes(attrs map[string]any) NodeOption {
	return func(c *nodeConfig) {
		if c.attributes == nil {
			c.attributes = make(map[string]any, len(attrs))
		}
		for k, v := range attrs {
			c.attributes[k] = v
		}
	}
}

// WithNodeID overrides the identifier derived from the node name.
func WithNodeID(id uuid.UUID) NodeOption {
	return func(c *nodeConfig) { c.id = id }
}

// NewNode declares a node.
func NewNode(name string, body Body, opts ...NodeOption) (*Node, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: node %q has no body", ErrInvalidNode, name)
	}
	return newNode(name, body, nil, opts...)
}

// MustNode is like NewNode but panics on error.
func MustNode(name string, body Body, opts ...NodeOption) *Node {
	n, err := NewNode(name, body, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

func newNode(name string, body Body, adornment *Adornment, opts ...NodeOption) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty node name", ErrInvalidNode)
	}

	cfg := nodeConfig{merge: AwaitAny}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch cfg.merge {
	case AwaitAny, AwaitAll, AwaitAttributes:
	default:
		return nil, fmt.Errorf("%w: node %q: unknown merge behavior %q", ErrInvalidNode, name, cfg.merge)
	}

	n := &Node{
		name:       name,
		id:         cfg.id,
		body:       body,
		merge:      cfg.merge,
		attributes: cfg.attributes,
		adornment:  adornment,
	}
	if n.id == uuid.Nil {
		n.id = StableID(name)
	}

	ports, err := buildPorts(n, cfg.ports)
	if err != nil {
		return nil, err
	}
	n.ports = ports

	n.outputRefs = make(map[string]*OutputReference, len(cfg.outputs))
	for _, out := range cfg.outputs {
		if out == "" {
			return nil, fmt.Errorf("%w: node %q declares an output without a name", ErrInvalidNode, name)
		}
		if _, dup := n.outputRefs[out]; dup {
			return nil, fmt.Errorf("%w: node %q declares output %q twice", ErrInvalidNode, name, out)
		}
		n.outputs = append(n.outputs, out)
		n.outputRefs[out] = &OutputReference{node: n, name: out, id: childID(n.id, "output", out)}
	}
	return n, nil
}

// Name returns the qualified node name.
func (n *Node) Name() string { return n.name }

// ID returns the stable node identifier.
func (n *Node) ID() uuid.UUID { return n.id }

// MergeBehavior returns the trigger merge behavior.
func (n *Node) MergeBehavior() MergeBehavior { return n.merge }

// Adornment returns the adornment this node wraps, or nil for plain nodes.
func (n *Node) Adornment() *Adornment { return n.adornment }

// Ports returns the declared ports in declaration order.
func (n *Node) Ports() []*Port {
	out := make([]*Port, len(n.ports))
	copy(out, n.ports)
	return out
}

// Port returns the port called name.
func (n *Node) Port(name string) (*Port, error) {
	for _, p := range n.ports {
		if p.name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("node %q has no port %q", n.name, name)
}

// Outputs returns the declared output names in declaration order.
func (n *Node) Outputs() []string {
	out := make([]string, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// HasOutput reports whether the node declares the output.
func (n *Node) HasOutput(name string) bool {
	_, ok := n.outputRefs[name]
	return ok
}

// Output returns the cached reference to a declared output.
func (n *Node) Output(name string) (*OutputReference, error) {
	ref, ok := n.outputRefs[name]
	if !ok {
		return nil, fmt.Errorf("%w: node %q has no output %q", ErrUnknownOutput, n.name, name)
	}
	return ref, nil
}

// MustOutput is like Output but panics on unknown names.
func (n *Node) MustOutput(name string) *OutputReference {
	ref, err := n.Output(name)
	if err != nil {
		panic(err)
	}
	return ref
}

// Attribute returns the raw attribute value (literal or Descriptor).
func (n *Node) Attribute(name string) (any, bool) {
	v, ok := n.attributes[name]
	return v, ok
}

// AttributeNames returns the attribute names in sorted order.
func (n *Node) AttributeNames() []string {
	names := make([]string, 0, len(n.attributes))
	for k := range n.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// descriptors returns every Descriptor among the node's attributes.
func (n *Node) descriptors() []Descriptor {
	var ds []Descriptor
	for _, name := range n.AttributeNames() {
		if d, ok := n.attributes[name].(Descriptor); ok {
			ds = append(ds, d)
		}
	}
	return ds
}

func (n *Node) String() string { return n.name }

func (*Node) composable() {}
