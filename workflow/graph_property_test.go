package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func chainOf(n int) []Composable {
	items := make([]Composable, n)
	for i := range items {
		items[i] = MustNode(fmt.Sprintf("n%d", i), noop)
	}
	return items
}

// Composing the same chain twice and taking the union never duplicates edges.
func TestProperty_GraphDedup(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("union of identical chains has one edge per pair", prop.ForAll(
		func(length int) bool {
			items := chainOf(length)
			g1, err := Chain(items...)
			if err != nil {
				return false
			}
			g2, err := Chain(items...)
			if err != nil {
				return false
			}
			u := Union(g1, g2, g1)
			return len(u.Edges()) == length-1 && len(edgeSet(u.Edges())) == len(u.Edges())
		},
		gen.IntRange(2, 12),
	))

	properties.TestingRun(t)
}

// A >> {B1..Bk} >> D yields exactly 2k edges and terminals {D.default}.
func TestProperty_FanOutFanIn(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("fan-out then fan-in connects every branch once", prop.ForAll(
		func(width int) bool {
			a := MustNode("a", noop)
			d := MustNode("d", noop)
			branches := make(Set, width)
			for i := range branches {
				branches[i] = MustNode(fmt.Sprintf("b%d", i), noop)
			}

			fan, err := Connect(a, branches)
			if err != nil {
				return false
			}
			g, err := Connect(fan, d)
			if err != nil {
				return false
			}

			edges := edgeSet(g.Edges())
			if len(edges) != 2*width || len(g.Edges()) != 2*width {
				return false
			}
			for _, b := range branches {
				bn := b.(*Node)
				if !edges[Edge{Source: defaultPort(a), Target: bn}] || !edges[Edge{Source: defaultPort(bn), Target: d}] {
					return false
				}
			}
			terms := g.Terminals()
			return len(terms) == 1 && terms[0] == defaultPort(d) && len(g.Nodes()) == width+2
		},
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
