package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// Trigger is a graph-entry construct. It may only be the source of an edge.
// Its attributes are materialized once into a registry of references keyed by
// attribute name, with identifiers scoped under the trigger.
type Trigger struct {
	name  string
	id    uuid.UUID
	attrs []string
	refs  map[string]*TriggerAttribute
}

// NewTrigger declares a trigger with the given payload attributes.
func NewTrigger(name string, attributes ...string) (*Trigger, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty trigger name", ErrInvalidNode)
	}
	t := &Trigger{
		name: name,
		id:   StableID("trigger." + name),
		refs: make(map[string]*TriggerAttribute, len(attributes)),
	}
	for _, attr := range attributes {
		if attr == "" {
			return nil, fmt.Errorf("%w: trigger %q declares an attribute without a name", ErrInvalidNode, name)
		}
		if _, dup := t.refs[attr]; dup {
			return nil, fmt.Errorf("%w: trigger %q declares attribute %q twice", ErrInvalidNode, name, attr)
		}
		t.attrs = append(t.attrs, attr)
		t.refs[attr] = &TriggerAttribute{trigger: t, name: attr, id: childID(t.id, "attribute", attr)}
	}
	return t, nil
}

// MustTrigger is like NewTrigger but panics on error.
func MustTrigger(name string, attributes ...string) *Trigger {
	t, err := NewTrigger(name, attributes...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the trigger name.
func (t *Trigger) Name() string { return t.name }

// ID returns the stable trigger identifier.
func (t *Trigger) ID() uuid.UUID { return t.id }

// Attributes returns the declared attribute names.
func (t *Trigger) Attributes() []string {
	out := make([]string, len(t.attrs))
	copy(out, t.attrs)
	return out
}

// Attribute returns the cached reference for a declared attribute.
func (t *Trigger) Attribute(name string) (*TriggerAttribute, error) {
	ref, ok := t.refs[name]
	if !ok {
		return nil, fmt.Errorf("trigger %q has no attribute %q", t.name, name)
	}
	return ref, nil
}

// MustAttribute is like Attribute but panics on unknown names.
func (t *Trigger) MustAttribute(name string) *TriggerAttribute {
	ref, err := t.Attribute(name)
	if err != nil {
		panic(err)
	}
	return ref
}

func (t *Trigger) String() string { return t.name }

func (*Trigger) composable() {}

func triggerTargetError(t *Trigger) error {
	return fmt.Errorf("%w: %q can only start edges; use Connect(trigger, node) instead", ErrTriggerAsTarget, t.name)
}
