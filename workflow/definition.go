package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Definition is the serializable description of a workflow. Every identifier
// in it is stable: describing an unchanged workflow yields identical bytes.
type Definition struct {
	Workflow     string                     `json:"workflow" yaml:"workflow"`
	Inputs       []string                   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Nodes        []NodeDefinition           `json:"nodes" yaml:"nodes"`
	Entrypoints  []string                   `json:"entrypoints" yaml:"entrypoints"`
	Terminals    []string                   `json:"terminals" yaml:"terminals"`
	Edges        []EdgeDefinition           `json:"edges" yaml:"edges"`
	Triggers     []TriggerDefinition        `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	TriggerEdges []TriggerEdgeDefinition    `json:"trigger_edges,omitempty" yaml:"trigger_edges,omitempty"`
	Outputs      []WorkflowOutputDefinition `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// NodeDefinition describes a node. Wrapper nodes carry their inner node in
// Adornment.
type NodeDefinition struct {
	ID            string                `json:"id" yaml:"id"`
	Name          string                `json:"name" yaml:"name"`
	MergeBehavior string                `json:"merge_behavior" yaml:"merge_behavior"`
	Ports         []PortDefinition      `json:"ports" yaml:"ports"`
	Outputs       []OutputDefinition    `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Attributes    []AttributeDefinition `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Adornment     *AdornmentDefinition  `json:"adornment,omitempty" yaml:"adornment,omitempty"`
}

// PortDefinition describes a port.
type PortDefinition struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// OutputDefinition describes a node output.
type OutputDefinition struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// AttributeDefinition holds either a literal Value or a Ref.
type AttributeDefinition struct {
	Name  string               `json:"name" yaml:"name"`
	Value any                  `json:"value,omitempty" yaml:"value,omitempty"`
	Ref   *ReferenceDefinition `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// ReferenceDefinition describes a Descriptor.
type ReferenceDefinition struct {
	Kind    string `json:"kind" yaml:"kind"`
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Node    string `json:"node,omitempty" yaml:"node,omitempty"`
	Trigger string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
}

// AdornmentDefinition describes what a wrapper node wraps.
type AdornmentDefinition struct {
	Kind        string                `json:"kind" yaml:"kind"`
	InnermostID string                `json:"innermost_id" yaml:"innermost_id"`
	Config      []AttributeDefinition `json:"config,omitempty" yaml:"config,omitempty"`
	Inner       *NodeDefinition       `json:"inner" yaml:"inner"`
}

// EdgeDefinition describes an edge.
type EdgeDefinition struct {
	ID           string `json:"id" yaml:"id"`
	SourceNodeID string `json:"source_node_id" yaml:"source_node_id"`
	SourcePortID string `json:"source_port_id" yaml:"source_port_id"`
	TargetNodeID string `json:"target_node_id" yaml:"target_node_id"`
}

// TriggerDefinition describes a trigger.
type TriggerDefinition struct {
	ID         string             `json:"id" yaml:"id"`
	Name       string             `json:"name" yaml:"name"`
	Attributes []OutputDefinition `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// TriggerEdgeDefinition describes a trigger edge.
type TriggerEdgeDefinition struct {
	ID           string `json:"id" yaml:"id"`
	TriggerID    string `json:"trigger_id" yaml:"trigger_id"`
	TargetNodeID string `json:"target_node_id" yaml:"target_node_id"`
}

// WorkflowOutputDefinition describes a workflow output.
type WorkflowOutputDefinition struct {
	Name string              `json:"name" yaml:"name"`
	Ref  ReferenceDefinition `json:"ref" yaml:"ref"`
}

// Describe exports wf. Output references to wrapped nodes are resolved to the
// outermost wrapper.
func Describe(wf *Workflow) *Definition {
	g := wf.graph
	def := &Definition{
		Workflow:    wf.name,
		Inputs:      wf.Inputs(),
		Nodes:       make([]NodeDefinition, 0),
		Entrypoints: make([]string, 0, len(g.entrypoints)),
		Terminals:   make([]string, 0, len(g.terminals)),
		Edges:       make([]EdgeDefinition, 0, len(g.edges)),
	}
	for _, n := range g.Nodes() {
		def.Nodes = append(def.Nodes, describeNode(wf, n))
	}
	for _, p := range g.entrypoints {
		def.Entrypoints = append(def.Entrypoints, p.id.String())
	}
	for _, p := range g.terminals {
		def.Terminals = append(def.Terminals, p.id.String())
	}
	for _, e := range g.edges {
		def.Edges = append(def.Edges, EdgeDefinition{
			ID:           e.ID().String(),
			SourceNodeID: e.Source.node.id.String(),
			SourcePortID: e.Source.id.String(),
			TargetNodeID: e.Target.id.String(),
		})
	}
	for _, t := range g.Triggers() {
		td := TriggerDefinition{ID: t.id.String(), Name: t.name}
		for _, name := range t.attrs {
			td.Attributes = append(td.Attributes, OutputDefinition{ID: t.refs[name].id.String(), Name: name})
		}
		def.Triggers = append(def.Triggers, td)
	}
	for _, te := range g.triggerEdges {
		def.TriggerEdges = append(def.TriggerEdges, TriggerEdgeDefinition{
			ID:           te.ID().String(),
			TriggerID:    te.Trigger.id.String(),
			TargetNodeID: te.Target.id.String(),
		})
	}
	for _, name := range wf.outputNames {
		def.Outputs = append(def.Outputs, WorkflowOutputDefinition{Name: name, Ref: describeRef(wf, wf.outputs[name])})
	}
	return def
}

func describeNode(wf *Workflow, n *Node) NodeDefinition {
	nd := NodeDefinition{
		ID:            n.id.String(),
		Name:          n.name,
		MergeBehavior: string(n.merge),
		Ports:         make([]PortDefinition, 0, len(n.ports)),
	}
	for _, p := range n.ports {
		nd.Ports = append(nd.Ports, PortDefinition{
			ID:        p.id.String(),
			Name:      p.name,
			Kind:      string(p.kind),
			Condition: p.Condition(),
		})
	}
	for _, name := range n.outputs {
		nd.Outputs = append(nd.Outputs, OutputDefinition{ID: n.outputRefs[name].id.String(), Name: name})
	}
	if n.adornment == nil {
		nd.Attributes = describeAttributes(wf, n.attributes)
		return nd
	}
	inner := describeNode(wf, n.adornment.Inner)
	nd.Adornment = &AdornmentDefinition{
		Kind:        n.adornment.Kind,
		InnermostID: n.adornment.Innermost.id.String(),
		Config:      describeAttributes(wf, n.attributes),
		Inner:       &inner,
	}
	return nd
}

func describeAttributes(wf *Workflow, attrs map[string]any) []AttributeDefinition {
	if len(attrs) == 0 {
		return nil
	}
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]AttributeDefinition, 0, len(names))
	for _, name := range names {
		ad := AttributeDefinition{Name: name}
		if d, ok := attrs[name].(Descriptor); ok {
			ref := describeRef(wf, d)
			ad.Ref = &ref
		} else {
			ad.Value = attrs[name]
		}
		out = append(out, ad)
	}
	return out
}

func describeRef(wf *Workflow, d Descriptor) ReferenceDefinition {
	switch ref := d.(type) {
	case *OutputReference:
		target := wf.Resolve(ref)
		return ReferenceDefinition{
			Kind: string(DescriptorOutput),
			ID:   target.id.String(),
			Name: target.name,
			Node: target.node.id.String(),
		}
	case *InputReference:
		return ReferenceDefinition{Kind: string(DescriptorInput), ID: ref.DescriptorID().String(), Name: ref.name}
	case *StateReference:
		return ReferenceDefinition{Kind: string(DescriptorState), ID: ref.DescriptorID().String(), Name: ref.key}
	case *TriggerAttribute:
		return ReferenceDefinition{
			Kind:    string(DescriptorTrigger),
			ID:      ref.id.String(),
			Name:    ref.name,
			Trigger: ref.trigger.id.String(),
		}
	default:
		return ReferenceDefinition{Kind: string(d.DescriptorKind()), ID: d.DescriptorID().String(), Name: d.String()}
	}
}

// ToJSON serializes the definition as indented JSON.
func (d *Definition) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal definition to JSON: %w", err)
	}
	return data, nil
}

// ToYAML serializes the definition as YAML.
func (d *Definition) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal definition to YAML: %w", err)
	}
	return data, nil
}

// ParseDefinitionJSON decodes a JSON definition.
func ParseDefinitionJSON(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition from JSON: %w", err)
	}
	return &def, nil
}

// ParseDefinitionYAML decodes a YAML definition.
func ParseDefinitionYAML(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definition from YAML: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFile reads a .json, .yaml or .yml definition file.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseDefinitionJSON(data)
	case ".yaml", ".yml":
		return ParseDefinitionYAML(data)
	default:
		return nil, fmt.Errorf("unsupported definition file extension %q", filepath.Ext(path))
	}
}

// Bodies maps node names to run bodies for Build.
type Bodies map[string]Body

// Build reconstructs a workflow from a definition. Plain node bodies are looked
// up by node name; wrapper nodes are rebuilt through the adornment registry.
// Identifiers in the definition are preserved.
func Build(def *Definition, bodies Bodies) (*Workflow, error) {
	b := &builder{
		def:      def,
		bodies:   bodies,
		nodes:    make(map[string]*Node),
		ports:    make(map[string]*Port),
		triggers: make(map[string]*Trigger),
	}
	return b.build()
}

type builder struct {
	def      *Definition
	bodies   Bodies
	nodes    map[string]*Node
	ports    map[string]*Port
	triggers map[string]*Trigger
}

func (b *builder) build() (*Workflow, error) {
	for _, td := range b.def.Triggers {
		attrs := make([]string, 0, len(td.Attributes))
		for _, a := range td.Attributes {
			attrs = append(attrs, a.Name)
		}
		t, err := NewTrigger(td.Name, attrs...)
		if err != nil {
			return nil, err
		}
		b.triggers[td.ID] = t
	}

	// Nodes may reference outputs of nodes defined later, so build in rounds.
	pending := append([]NodeDefinition(nil), b.def.Nodes...)
	for len(pending) > 0 {
		var next []NodeDefinition
		for _, nd := range pending {
			if !b.ready(nd) {
				next = append(next, nd)
				continue
			}
			if _, err := b.buildNode(nd); err != nil {
				return nil, err
			}
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("%w: unresolvable output references among %d nodes", ErrUnknownOutput, len(next))
		}
		pending = next
	}

	g := &Graph{}
	for _, id := range b.def.Entrypoints {
		p, err := b.port(id)
		if err != nil {
			return nil, err
		}
		g.entrypoints = appendPorts(g.entrypoints, p)
	}
	for _, id := range b.def.Terminals {
		p, err := b.port(id)
		if err != nil {
			return nil, err
		}
		g.terminals = appendPorts(g.terminals, p)
	}
	for _, ed := range b.def.Edges {
		src, err := b.port(ed.SourcePortID)
		if err != nil {
			return nil, err
		}
		target, ok := b.nodes[ed.TargetNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: edge %s targets unknown node %s", ErrInvalidNode, ed.ID, ed.TargetNodeID)
		}
		g.edges = appendEdges(g.edges, Edge{Source: src, Target: target})
	}
	for _, ted := range b.def.TriggerEdges {
		t, ok := b.triggers[ted.TriggerID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown trigger %s", ErrInvalidNode, ted.TriggerID)
		}
		target, ok := b.nodes[ted.TargetNodeID]
		if !ok {
			return nil, fmt.Errorf("%w: trigger edge %s targets unknown node %s", ErrInvalidNode, ted.ID, ted.TargetNodeID)
		}
		g.triggerEdges = appendTriggerEdges(g.triggerEdges, TriggerEdge{Trigger: t, Target: target})
	}

	opts := []WorkflowOption{WithInputs(b.def.Inputs...)}
	for _, od := range b.def.Outputs {
		d, err := b.ref(od.Ref)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", od.Name, err)
		}
		opts = append(opts, WithOutput(od.Name, d))
	}
	return NewWorkflow(b.def.Workflow, g, opts...)
}

// ready reports whether every output reference of nd points at a built node.
func (b *builder) ready(nd NodeDefinition) bool {
	own := make(map[string]bool)
	for cur := &nd; cur != nil; {
		own[cur.ID] = true
		if cur.Adornment == nil {
			break
		}
		cur = cur.Adornment.Inner
	}
	for cur := &nd; cur != nil; {
		attrs := cur.Attributes
		if cur.Adornment != nil {
			attrs = cur.Adornment.Config
		}
		for _, a := range attrs {
			if a.Ref != nil && a.Ref.Kind == string(DescriptorOutput) && !own[a.Ref.Node] {
				if _, ok := b.nodes[a.Ref.Node]; !ok {
					return false
				}
			}
		}
		if cur.Adornment == nil {
			break
		}
		cur = cur.Adornment.Inner
	}
	return true
}

func (b *builder) buildNode(nd NodeDefinition) (*Node, error) {
	id, err := uuid.Parse(nd.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: node %q: bad id: %v", ErrInvalidNode, nd.Name, err)
	}

	var n *Node
	if nd.Adornment != nil {
		if nd.Adornment.Inner == nil {
			return nil, fmt.Errorf("%w: wrapper %q has no inner node", ErrInvalidNode, nd.Name)
		}
		inner, err := b.buildNode(*nd.Adornment.Inner)
		if err != nil {
			return nil, err
		}
		config, err := b.attributes(nd.Adornment.Config)
		if err != nil {
			return nil, fmt.Errorf("wrapper %q: %w", nd.Name, err)
		}
		n, err = WrapNamed(nd.Adornment.Kind, inner, config, WithWrapperID(id), WithWrapperName(nd.Name))
		if err != nil {
			return nil, err
		}
	} else {
		body, ok := b.bodies[nd.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no body registered for node %q", ErrInvalidNode, nd.Name)
		}
		attrs, err := b.attributes(nd.Attributes)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.Name, err)
		}
		outputs := make([]string, 0, len(nd.Outputs))
		for _, o := range nd.Outputs {
			outputs = append(outputs, o.Name)
		}
		ports := make([]PortSpec, 0, len(nd.Ports))
		for _, p := range nd.Ports {
			ports = append(ports, PortSpec{Name: p.Name, Kind: PortKind(p.Kind), Condition: p.Condition})
		}
		opts := []NodeOption{
			WithNodeID(id),
			WithOutputs(outputs...),
			WithPorts(ports...),
			WithMergeBehavior(MergeBehavior(nd.MergeBehavior)),
		}
		if len(attrs) > 0 {
			opts = append(opts, WithAttributes(attrs))
		}
		n, err = NewNode(nd.Name, body, opts...)
		if err != nil {
			return nil, err
		}
	}

	b.nodes[n.id.String()] = n
	for _, p := range n.ports {
		b.ports[p.id.String()] = p
	}
	return n, nil
}

func (b *builder) attributes(defs []AttributeDefinition) (map[string]any, error) {
	attrs := make(map[string]any, len(defs))
	for _, a := range defs {
		if a.Ref == nil {
			attrs[a.Name] = a.Value
			continue
		}
		d, err := b.ref(*a.Ref)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		attrs[a.Name] = d
	}
	return attrs, nil
}

func (b *builder) ref(rd ReferenceDefinition) (Descriptor, error) {
	switch DescriptorKind(rd.Kind) {
	case DescriptorOutput:
		n, ok := b.nodes[rd.Node]
		if !ok {
			return nil, fmt.Errorf("%w: node %s", ErrUnknownOutput, rd.Node)
		}
		ref, err := n.Output(rd.Name)
		if err != nil {
			return nil, err
		}
		return ref, nil
	case DescriptorInput:
		return Input(rd.Name), nil
	case DescriptorState:
		return StateRef(rd.Name), nil
	case DescriptorTrigger:
		t, ok := b.triggers[rd.Trigger]
		if !ok {
			return nil, fmt.Errorf("%w: unknown trigger %s", ErrInvalidNode, rd.Trigger)
		}
		attr, err := t.Attribute(rd.Name)
		if err != nil {
			return nil, err
		}
		return attr, nil
	default:
		return nil, fmt.Errorf("%w: unknown reference kind %q", ErrInvalidNode, rd.Kind)
	}
}

func (b *builder) port(id string) (*Port, error) {
	p, ok := b.ports[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown port %s", ErrInvalidNode, id)
	}
	return p, nil
}
