package workflow

import "errors"

// Definition-time errors. They are returned while building nodes, graphs and
// workflows, never during a run.
var (
	// ErrEmptyGraph is returned when extending a graph that has no entrypoints,
	// edges or trigger edges.
	ErrEmptyGraph = errors.New("workflow: cannot extend an empty graph")
	// ErrTriggerAsTarget is returned when a trigger is used as an edge target.
	ErrTriggerAsTarget = errors.New("workflow: trigger cannot be an edge target")
	// ErrNotAdornable is returned when wrapping something that is not an adornment base.
	ErrNotAdornable = errors.New("workflow: not adornable")
	// ErrUnknownOutput is returned when referencing an output a node does not declare.
	ErrUnknownOutput = errors.New("workflow: unknown output")
	// ErrUnknownInput is returned when a node references an input the workflow does not declare.
	ErrUnknownInput = errors.New("workflow: unknown input")
	// ErrDuplicateID is returned when two distinct nodes, ports or triggers of
	// one workflow derive the same identifier, usually from a shared name.
	ErrDuplicateID = errors.New("workflow: duplicate identifier")
	// ErrInvalidNode is returned for malformed node declarations.
	ErrInvalidNode = errors.New("workflow: invalid node")
)

// ErrPaused is returned by a node body to pause the current run.
var ErrPaused = errors.New("workflow: paused")
