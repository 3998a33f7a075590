package workflow

import "github.com/google/uuid"

// DescriptorKind names the kind of value a Descriptor points at.
type DescriptorKind string

const (
	DescriptorOutput  DescriptorKind = "output"
	DescriptorInput   DescriptorKind = "input"
	DescriptorState   DescriptorKind = "state"
	DescriptorTrigger DescriptorKind = "trigger_attribute"
)

// Descriptor is a reference resolved at run time. Attribute values that are not
// descriptors are literals.
type Descriptor interface {
	DescriptorKind() DescriptorKind
	DescriptorID() uuid.UUID
	String() string
}

// OutputReference points at one declared output of a node. References are
// created once per node and cached, so two lookups of the same name return the
// same pointer.
type OutputReference struct {
	node *Node
	name string
	id   uuid.UUID
}

func (r *OutputReference) DescriptorKind() DescriptorKind { return DescriptorOutput }
func (r *OutputReference) DescriptorID() uuid.UUID        { return r.id }
func (r *OutputReference) String() string                 { return r.node.name + ".outputs." + r.name }

// Node returns the node that declares the output.
func (r *OutputReference) Node() *Node { return r.node }

// Name returns the output name.
func (r *OutputReference) Name() string { return r.name }

// InputReference points at a workflow input.
type InputReference struct {
	name string
}

// Input references the workflow input called name.
func Input(name string) *InputReference { return &InputReference{name: name} }

func (r *InputReference) DescriptorKind() DescriptorKind { return DescriptorInput }
func (r *InputReference) DescriptorID() uuid.UUID        { return StableID("inputs." + r.name) }
func (r *InputReference) String() string                 { return "inputs." + r.name }

// Name returns the input name.
func (r *InputReference) Name() string { return r.name }

// StateReference points at a state key.
type StateReference struct {
	key string
}

// StateRef references the state key.
func StateRef(key string) *StateReference { return &StateReference{key: key} }

func (r *StateReference) DescriptorKind() DescriptorKind { return DescriptorState }
func (r *StateReference) DescriptorID() uuid.UUID        { return StableID("state." + r.key) }
func (r *StateReference) String() string                 { return "state." + r.key }

// Key returns the referenced state key.
func (r *StateReference) Key() string { return r.key }

// TriggerAttribute points at an attribute of a trigger payload.
type TriggerAttribute struct {
	trigger *Trigger
	name    string
	id      uuid.UUID
}

func (a *TriggerAttribute) DescriptorKind() DescriptorKind { return DescriptorTrigger }
func (a *TriggerAttribute) DescriptorID() uuid.UUID        { return a.id }
func (a *TriggerAttribute) String() string                 { return a.trigger.name + "." + a.name }

// Trigger returns the owning trigger.
func (a *TriggerAttribute) Trigger() *Trigger { return a.trigger }

// Name returns the attribute name.
func (a *TriggerAttribute) Name() string { return a.name }
