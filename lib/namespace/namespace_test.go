package namespace

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ext struct{ name string }

func TestBind_WritesOnce(t *testing.T) {
	ns := New()
	v := &ext{name: "alien"}

	require.NoError(t, ns.Bind("alien", v))

	got, ok := ns.Lookup("alien")
	require.True(t, ok)
	assert.Same(t, v, got)
}

func TestBind_SameValueIsNoop(t *testing.T) {
	ns := New()
	v := &ext{name: "alien"}

	require.NoError(t, ns.Bind("alien", v))
	assert.NoError(t, ns.Bind("alien", v))
}

func TestBind_Collision(t *testing.T) {
	ns := New()
	require.NoError(t, ns.Bind("alien", &ext{name: "first"}))

	err := ns.Bind("alien", &ext{name: "second"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOccupied))

	got, _ := ns.Lookup("alien")
	assert.Equal(t, "first", got.(*ext).name)
}

func TestBind_UncomparableValuesCollide(t *testing.T) {
	ns := New()
	require.NoError(t, ns.Bind("list", []string{"a"}))
	assert.ErrorIs(t, ns.Bind("list", []string{"a"}), ErrOccupied)
}

func TestBind_NilRejected(t *testing.T) {
	assert.Error(t, New().Bind("nil", nil))
}

func TestRelease(t *testing.T) {
	ns := New()
	require.NoError(t, ns.Bind("b", 1))
	require.NoError(t, ns.Bind("a", 2))
	assert.Equal(t, []string{"a", "b"}, ns.Keys())

	v, ok := ns.Release("b")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = ns.Lookup("b")
	assert.False(t, ok)
	assert.NoError(t, ns.Bind("b", 3))
}

func TestHolds(t *testing.T) {
	ns := New()
	v := &struct{ n int }{1}
	require.NoError(t, ns.Bind("fx", v))

	assert.True(t, ns.Holds("fx", v))
	assert.False(t, ns.Holds("fx", &struct{ n int }{1}))
	assert.False(t, ns.Holds("other", v))
	assert.False(t, ns.Holds("fx", nil))
}
