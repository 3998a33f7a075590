package workflow

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Composable is anything the graph builder accepts: *Node, *Port, *Graph, Set
// and *Trigger (the latter only as a left operand).
type Composable interface {
	composable()
}

// Set is an unordered group of composables used for fan-out and fan-in.
// Elements keep their given order so that builds are deterministic.
type Set []Composable

func (Set) composable() {}

// NewSet groups items into a Set.
func NewSet(items ...Composable) Set { return Set(items) }

// Edge connects a source port to a target node. Edges are comparable values;
// a graph never holds the same edge twice.
type Edge struct {
	Source *Port
	Target *Node
}

// ID returns the stable edge identifier.
func (e Edge) ID() uuid.UUID { return pairID(e.Source.id, e.Target.id) }

func (e Edge) String() string { return e.Source.String() + " -> " + e.Target.name }

// TriggerEdge connects a trigger to a target node.
type TriggerEdge struct {
	Trigger *Trigger
	Target  *Node
}

// ID returns the stable trigger edge identifier. Distinct triggers targeting
// the same node get distinct identifiers.
func (e TriggerEdge) ID() uuid.UUID { return pairID(e.Trigger.id, e.Target.id) }

func (e TriggerEdge) String() string { return e.Trigger.name + " -> " + e.Target.name }

// Graph is the reduced form of a composition. Graphs are immutable; every
// builder function returns a new value.
type Graph struct {
	entrypoints  []*Port
	terminals    []*Port
	edges        []Edge
	triggerEdges []TriggerEdge

	nodesOnce sync.Once
	nodes     []*Node
}

func (*Graph) composable() {}

// Entrypoints returns the ports with no incoming edge in this composition.
func (g *Graph) Entrypoints() []*Port { return append([]*Port(nil), g.entrypoints...) }

// Terminals returns the ports with no outgoing edge assigned yet.
func (g *Graph) Terminals() []*Port { return append([]*Port(nil), g.terminals...) }

// Edges returns the deduplicated edges in insertion order.
func (g *Graph) Edges() []Edge { return append([]Edge(nil), g.edges...) }

// TriggerEdges returns the trigger edges in insertion order.
func (g *Graph) TriggerEdges() []TriggerEdge { return append([]TriggerEdge(nil), g.triggerEdges...) }

// Triggers returns the distinct triggers that start edges in this graph.
func (g *Graph) Triggers() []*Trigger {
	var out []*Trigger
	seen := make(map[*Trigger]struct{})
	for _, te := range g.triggerEdges {
		if _, ok := seen[te.Trigger]; ok {
			continue
		}
		seen[te.Trigger] = struct{}{}
		out = append(out, te.Trigger)
	}
	return out
}

// IsEmpty reports whether the graph has no entrypoints, edges or trigger edges.
func (g *Graph) IsEmpty() bool {
	return len(g.entrypoints) == 0 && len(g.edges) == 0 && len(g.triggerEdges) == 0
}

// Nodes returns every node of the graph, deduplicated, in insertion order:
// edge endpoints first, then trigger targets, then entrypoint and terminal
// nodes. Single-node graphs therefore yield their entrypoint node.
func (g *Graph) Nodes() []*Node {
	g.nodesOnce.Do(func() {
		seen := make(map[*Node]struct{})
		add := func(n *Node) {
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			g.nodes = append(g.nodes, n)
		}
		for _, e := range g.edges {
			add(e.Source.node)
			add(e.Target)
		}
		for _, te := range g.triggerEdges {
			add(te.Target)
		}
		for _, p := range g.entrypoints {
			add(p.node)
		}
		for _, p := range g.terminals {
			add(p.node)
		}
	})
	return append([]*Node(nil), g.nodes...)
}

// HasNode reports whether n is a vertex of the graph.
func (g *Graph) HasNode(n *Node) bool {
	for _, m := range g.Nodes() {
		if m == n {
			return true
		}
	}
	return false
}

// Compose reduces a single composable to a graph. A bare node yields a graph
// whose entrypoints and terminals are all of its ports; a bare port yields the
// singleton {port}; a Set yields the union of its elements.
func Compose(c Composable) (*Graph, error) {
	switch v := c.(type) {
	case *Node:
		if v == nil {
			return nil, fmt.Errorf("%w: nil node", ErrInvalidNode)
		}
		return &Graph{entrypoints: v.Ports(), terminals: v.Ports()}, nil
	case *Port:
		if v == nil {
			return nil, fmt.Errorf("%w: nil port", ErrInvalidNode)
		}
		return &Graph{entrypoints: []*Port{v}, terminals: []*Port{v}}, nil
	case *Graph:
		if v == nil {
			return &Graph{}, nil
		}
		return v, nil
	case Set:
		graphs := make([]*Graph, 0, len(v))
		for _, item := range v {
			g, err := Compose(item)
			if err != nil {
				return nil, err
			}
			graphs = append(graphs, g)
		}
		return Union(graphs...), nil
	case *Trigger:
		return nil, triggerTargetError(v)
	default:
		return nil, fmt.Errorf("%w: cannot compose %T", ErrInvalidNode, c)
	}
}

// FromSet builds the union graph of items. With zero items the result is an
// empty graph that cannot be extended.
func FromSet(items ...Composable) (*Graph, error) {
	return Compose(Set(items))
}

// Union merges graphs: entrypoints, terminals, edges and trigger edges are
// each unioned with duplicates removed.
func Union(graphs ...*Graph) *Graph {
	out := &Graph{}
	for _, g := range graphs {
		if g == nil {
			continue
		}
		out.entrypoints = appendPorts(out.entrypoints, g.entrypoints...)
		out.terminals = appendPorts(out.terminals, g.terminals...)
		out.edges = appendEdges(out.edges, g.edges...)
		out.triggerEdges = appendTriggerEdges(out.triggerEdges, g.triggerEdges...)
	}
	return out
}

// Connect composes "left then right". Every terminal of left gets an edge to
// the node of every entrypoint of right. The result keeps left's entrypoints
// and takes right's terminals. A Set on the right fans out; a Set on the left
// is built per element and unioned. A trigger on the left adds one trigger
// edge per right entrypoint node.
func Connect(left, right Composable) (*Graph, error) {
	switch l := left.(type) {
	case Set:
		if len(l) == 0 {
			return nil, fmt.Errorf("%w: empty set on the left of Connect", ErrEmptyGraph)
		}
		graphs := make([]*Graph, 0, len(l))
		for _, item := range l {
			g, err := Connect(item, right)
			if err != nil {
				return nil, err
			}
			graphs = append(graphs, g)
		}
		return Union(graphs...), nil
	case *Trigger:
		return connectTrigger(l, right)
	}

	lg, err := Compose(left)
	if err != nil {
		return nil, err
	}
	if set, ok := right.(Set); ok {
		return FanOut(lg, set)
	}
	rg, err := Compose(right)
	if err != nil {
		return nil, err
	}
	return extend(lg, rg)
}

// FanOut connects every terminal of g to each element of targets independently.
// The result's terminals are the union of every element's terminals.
func FanOut(g *Graph, targets Set) (*Graph, error) {
	if g == nil || g.IsEmpty() {
		return nil, ErrEmptyGraph
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: fan-out to an empty set", ErrEmptyGraph)
	}

	out := &Graph{
		entrypoints:  g.Entrypoints(),
		edges:        g.Edges(),
		triggerEdges: g.TriggerEdges(),
	}
	for _, target := range targets {
		tg, err := Compose(target)
		if err != nil {
			return nil, err
		}
		branch, err := extend(g, tg)
		if err != nil {
			return nil, err
		}
		out.edges = appendEdges(out.edges, branch.edges...)
		out.triggerEdges = appendTriggerEdges(out.triggerEdges, branch.triggerEdges...)
		out.terminals = appendPorts(out.terminals, branch.terminals...)
	}
	return out, nil
}

// Chain connects items left to right.
func Chain(items ...Composable) (*Graph, error) {
	if len(items) == 0 {
		return nil, ErrEmptyGraph
	}
	if t, ok := items[0].(*Trigger); ok && len(items) == 1 {
		return nil, fmt.Errorf("%w: trigger %q has no target", ErrEmptyGraph, t.name)
	}

	var acc Composable = items[0]
	if len(items) == 1 {
		return Compose(acc)
	}
	for _, next := range items[1:] {
		g, err := Connect(acc, next)
		if err != nil {
			return nil, err
		}
		acc = g
	}
	return acc.(*Graph), nil
}

// MustChain is like Chain but panics on error.
func MustChain(items ...Composable) *Graph {
	g, err := Chain(items...)
	if err != nil {
		panic(err)
	}
	return g
}

func extend(left, right *Graph) (*Graph, error) {
	if left.IsEmpty() {
		return nil, ErrEmptyGraph
	}
	if len(right.entrypoints) == 0 {
		return nil, fmt.Errorf("%w: right operand has no entrypoints", ErrEmptyGraph)
	}

	out := &Graph{
		entrypoints:  left.Entrypoints(),
		terminals:    right.Terminals(),
		edges:        appendEdges(left.Edges(), right.edges...),
		triggerEdges: appendTriggerEdges(left.TriggerEdges(), right.triggerEdges...),
	}
	for _, t := range left.terminals {
		for _, e := range right.entrypoints {
			out.edges = appendEdges(out.edges, Edge{Source: t, Target: e.node})
		}
	}
	return out, nil
}

func connectTrigger(t *Trigger, right Composable) (*Graph, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil trigger", ErrInvalidNode)
	}
	rg, err := Compose(right)
	if err != nil {
		return nil, err
	}
	if len(rg.entrypoints) == 0 {
		return nil, fmt.Errorf("%w: trigger %q has no target", ErrEmptyGraph, t.name)
	}

	out := &Graph{
		entrypoints:  rg.Entrypoints(),
		terminals:    rg.Terminals(),
		edges:        rg.Edges(),
		triggerEdges: rg.TriggerEdges(),
	}
	for _, e := range rg.entrypoints {
		out.triggerEdges = appendTriggerEdges(out.triggerEdges, TriggerEdge{Trigger: t, Target: e.node})
	}
	return out, nil
}

func appendPorts(dst []*Port, ports ...*Port) []*Port {
	for _, p := range ports {
		if !containsPort(dst, p) {
			dst = append(dst, p)
		}
	}
	return dst
}

func containsPort(ports []*Port, p *Port) bool {
	for _, q := range ports {
		if q == p {
			return true
		}
	}
	return false
}

func appendEdges(dst []Edge, edges ...Edge) []Edge {
	for _, e := range edges {
		dup := false
		for _, existing := range dst {
			if existing == e {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, e)
		}
	}
	return dst
}

func appendTriggerEdges(dst []TriggerEdge, edges ...TriggerEdge) []TriggerEdge {
	for _, e := range edges {
		dup := false
		for _, existing := range dst {
			if existing == e {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, e)
		}
	}
	return dst
}
