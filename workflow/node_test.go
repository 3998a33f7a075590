package workflow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode_Defaults(t *testing.T) {
	n := newTestNode(t, "summarize", WithOutputs("text"))

	assert.Equal(t, "summarize", n.Name())
	assert.Equal(t, StableID("summarize"), n.ID())
	assert.Equal(t, AwaitAny, n.MergeBehavior())
	require.Len(t, n.Ports(), 1)
	assert.Equal(t, DefaultPortName, n.Ports()[0].Name())
	assert.Equal(t, PortAlways, n.Ports()[0].Kind())
	assert.Nil(t, n.Adornment())
}

func TestNode_OutputReferencesAreCached(t *testing.T) {
	n := newTestNode(t, "n", WithOutputs("foo", "bar"))

	foo1, err := n.Output("foo")
	require.NoError(t, err)
	foo2 := n.MustOutput("foo")
	assert.Same(t, foo1, foo2)
	assert.Equal(t, n, foo1.Node())
	assert.NotEqual(t, foo1.DescriptorID(), n.MustOutput("bar").DescriptorID())

	_, err = n.Output("missing")
	assert.ErrorIs(t, err, ErrUnknownOutput)
	assert.Panics(t, func() { n.MustOutput("missing") })
}

func TestNode_WithNodeID(t *testing.T) {
	id := uuid.New()
	n := newTestNode(t, "n", WithNodeID(id), WithOutputs("x"))
	assert.Equal(t, id, n.ID())
	assert.Equal(t, childID(id, "output", "x"), n.MustOutput("x").DescriptorID())
}

func TestNewNode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts []NodeOption
	}{
		{"elif without if", []NodeOption{WithPorts(Elif("a", "x > 1"))}},
		{"else without if", []NodeOption{WithPorts(Always("a"), Else("b"))}},
		{"bad condition", []NodeOption{WithPorts(If("a", "x >"))}},
		{"duplicate port", []NodeOption{WithPorts(Always("a"), Always("a"))}},
		{"duplicate output", []NodeOption{WithOutputs("x", "x")}},
		{"empty output", []NodeOption{WithOutputs("")}},
		{"unknown merge", []NodeOption{WithMergeBehavior("AWAIT_SOME")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNode("n", noop, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidNode)
		})
	}

	_, err := NewNode("n", nil)
	assert.ErrorIs(t, err, ErrInvalidNode)
	_, err = NewNode("", noop)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestSelectPorts(t *testing.T) {
	n := newTestNode(t, "n", WithPorts(
		Always("log"),
		If("big", "size > 10"),
		Elif("medium", "size > 5"),
		Else("small"),
	))

	names := func(size int) []string {
		fired, err := selectPorts(n.ports, map[string]any{"size": size})
		require.NoError(t, err)
		out := make([]string, len(fired))
		for i, p := range fired {
			out[i] = p.Name()
		}
		return out
	}

	assert.Equal(t, []string{"log", "big"}, names(20))
	assert.Equal(t, []string{"log", "medium"}, names(7))
	assert.Equal(t, []string{"log", "small"}, names(1))
}

func TestTrigger_AttributeRegistry(t *testing.T) {
	slack := MustTrigger("slack", "message", "channel")
	email := MustTrigger("email", "message")

	m1, err := slack.Attribute("message")
	require.NoError(t, err)
	assert.Same(t, m1, slack.MustAttribute("message"))
	assert.Equal(t, slack, m1.Trigger())

	assert.NotEqual(t, m1.DescriptorID(), email.MustAttribute("message").DescriptorID())
	assert.NotEqual(t, m1.DescriptorID(), slack.MustAttribute("channel").DescriptorID())
	assert.Equal(t, m1.DescriptorID(), MustTrigger("slack", "message").MustAttribute("message").DescriptorID())

	_, err = slack.Attribute("missing")
	assert.Error(t, err)

	_, err = NewTrigger("dup", "a", "a")
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestStableID(t *testing.T) {
	assert.Equal(t, StableID("pkg.Node"), StableID("pkg.Node"))
	assert.NotEqual(t, StableID("pkg.Node"), StableID("pkg.Other"))
	assert.Equal(t, uuid.Version(5), StableID("pkg.Node").Version())
}
