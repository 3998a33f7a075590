package workflow

import (
	"fmt"

	"github.com/BaSui01/nodegraph/workflow/expr"
	"github.com/google/uuid"
)

// PortKind describes how a port takes part in branch selection.
type PortKind string

const (
	// PortAlways fires whenever the node fulfills.
	PortAlways PortKind = "always"
	// PortIf starts a conditional chain.
	PortIf PortKind = "if"
	// PortElif continues the current conditional chain.
	PortElif PortKind = "elif"
	// PortElse closes the current conditional chain.
	PortElse PortKind = "else"
)

// DefaultPortName is the name of the port a node gets when it declares none.
const DefaultPortName = "default"

// PortSpec declares a port before its node exists.
type PortSpec struct {
	Name      string
	Kind      PortKind
	Condition string
}

// Always declares an unconditional port.
func Always(name string) PortSpec { return PortSpec{Name: name, Kind: PortAlways} }

// If declares the first branch of a conditional chain.
func If(name, condition string) PortSpec {
	return PortSpec{Name: name, Kind: PortIf, Condition: condition}
}

// Elif declares a follow-up branch of a conditional chain.
func Elif(name, condition string) PortSpec {
	return PortSpec{Name: name, Kind: PortElif, Condition: condition}
}

// Else declares the fallback branch of a conditional chain.
func Else(name string) PortSpec { return PortSpec{Name: name, Kind: PortElse} }

// Port is one outgoing branch of a node. Ports are immutable.
type Port struct {
	node      *Node
	name      string
	kind      PortKind
	condition *expr.Expression
	id        uuid.UUID
}

// Node returns the owning node.
func (p *Port) Node() *Node { return p.node }

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// Kind returns the port kind.
func (p *Port) Kind() PortKind { return p.kind }

// ID returns the stable port identifier.
func (p *Port) ID() uuid.UUID { return p.id }

// Condition returns the condition source, or "" for unconditional ports.
func (p *Port) Condition() string {
	if p.condition == nil {
		return ""
	}
	return p.condition.String()
}

func (p *Port) String() string {
	return p.node.name + "." + p.name
}

func (*Port) composable() {}

func buildPorts(n *Node, specs []PortSpec) ([]*Port, error) {
	if len(specs) == 0 {
		specs = []PortSpec{Always(DefaultPortName)}
	}

	ports := make([]*Port, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	inChain := false
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: node %q declares a port without a name", ErrInvalidNode, n.name)
		}
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("%w: node %q declares port %q twice", ErrInvalidNode, n.name, spec.Name)
		}
		seen[spec.Name] = struct{}{}

		kind := spec.Kind
		if kind == "" {
			kind = PortAlways
		}
		p := &Port{node: n, name: spec.Name, kind: kind, id: childID(n.id, "port", spec.Name)}

		switch kind {
		case PortAlways:
			inChain = false
		case PortIf, PortElif:
			if kind == PortElif && !inChain {
				return nil, fmt.Errorf("%w: node %q port %q: elif must follow if", ErrInvalidNode, n.name, spec.Name)
			}
			cond, err := expr.Compile(spec.Condition)
			if err != nil {
				return nil, fmt.Errorf("%w: node %q port %q: %v", ErrInvalidNode, n.name, spec.Name, err)
			}
			p.condition = cond
			inChain = true
		case PortElse:
			if !inChain {
				return nil, fmt.Errorf("%w: node %q port %q: else must follow if", ErrInvalidNode, n.name, spec.Name)
			}
			inChain = false
		default:
			return nil, fmt.Errorf("%w: node %q port %q: unknown kind %q", ErrInvalidNode, n.name, spec.Name, kind)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// selectPorts returns the ports that fire given the evaluation variables.
// Unconditional ports always fire; each if/elif/else chain fires its first match.
func selectPorts(ports []*Port, vars map[string]any) ([]*Port, error) {
	var (
		fired   []*Port
		matched bool
	)
	for _, p := range ports {
		switch p.kind {
		case PortAlways:
			fired = append(fired, p)
		case PortIf:
			matched = false
			fallthrough
		case PortElif:
			if matched {
				continue
			}
			ok, err := p.condition.Eval(vars)
			if err != nil {
				return nil, fmt.Errorf("port %s: %w", p, err)
			}
			if ok {
				fired = append(fired, p)
				matched = true
			}
		case PortElse:
			if !matched {
				fired = append(fired, p)
			}
			matched = true
		}
	}
	return fired, nil
}
