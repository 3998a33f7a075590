package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func noop(context.Context, *RunContext) error { return nil }

func newTestNode(t *testing.T, name string, opts ...NodeOption) *Node {
	t.Helper()
	n, err := NewNode(name, noop, opts...)
	require.NoError(t, err)
	return n
}

func edgeSet(edges []Edge) map[Edge]bool {
	set := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		set[e] = true
	}
	return set
}

func defaultPort(n *Node) *Port {
	p, err := n.Port(DefaultPortName)
	if err != nil {
		panic(err)
	}
	return p
}
