package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRegistryDispatchUnknownReportsNotOK(t *testing.T) {
	r := NewCommandRegistry()
	ok, cont, err := r.Dispatch("#nope", "args")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, cont)
}

func TestCommandRegistryDispatchKnownRunsHandler(t *testing.T) {
	r := NewCommandRegistry()
	var got string
	r.Register("#foo", func(args string) (bool, error) {
		got = args
		return true, nil
	})
	ok, cont, err := r.Dispatch("#foo", "bar baz")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cont)
	assert.Equal(t, "bar baz", got)
}

func TestSplitCommand(t *testing.T) {
	cases := []struct{ in, name, args string }{
		{"exit", "exit", ""},
		{"#lib   pthread", "#lib", "pthread"},
		{"printall", "printall", ""},
	}
	for _, c := range cases {
		name, args := splitCommand(c.in)
		assert.Equal(t, c.name, name, c.in)
		assert.Equal(t, c.args, args, c.in)
	}
}

func TestCommandRegistryDispatchPropagatesHandlerError(t *testing.T) {
	r := NewCommandRegistry()
	want := errors.New("boom")
	r.Register("#foo", func(string) (bool, error) {
		return true, want
	})
	ok, cont, err := r.Dispatch("#foo", "")
	assert.True(t, ok)
	assert.True(t, cont)
	assert.Equal(t, want, err)
}

func TestDefaultRegistryExitStopsLoop(t *testing.T) {
	p := newTestPipeline(t)
	ok, cont, err := p.Registry.Dispatch("exit", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, cont)
}
