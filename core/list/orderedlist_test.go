package list

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetThenEnumerateDescending(t *testing.T) {
	l := New(Descending)
	require.NoError(t, l.Set("a", 10))
	require.NoError(t, l.Set("b", 30))
	require.NoError(t, l.Set("c", 20))

	keys, err := l.Enumerate()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a"}, keys)
}

func TestSetMoveRepositionsInPlace(t *testing.T) {
	l := New(Ascending)
	require.NoError(t, l.Set("a", 1))
	require.NoError(t, l.Set("b", 2))
	require.NoError(t, l.Set("c", 3))

	require.NoError(t, l.Set("a", 5))
	keys, err := l.Enumerate()
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "a"}, keys)
}

func TestSetSameValueIsNoop(t *testing.T) {
	l := New(Ascending)
	require.NoError(t, l.Set("a", 1))
	require.NoError(t, l.Set("a", 1))
	v, ok, err := l.GetValue("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), v)
}

func TestEnumerateMaxCapsResults(t *testing.T) {
	l := New(Ascending)
	require.NoError(t, l.Set("a", 1))
	require.NoError(t, l.Set("b", 2))
	require.NoError(t, l.Set("c", 3))

	keys, err := l.EnumerateMax(2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestOperationsOnUninitializedListError(t *testing.T) {
	var l OrderedList
	_, err := l.Enumerate()
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, l.Set("a", 1), ErrNotInitialized)
}

func TestClearEmptiesList(t *testing.T) {
	l := New(Ascending)
	require.NoError(t, l.Set("a", 1))
	require.NoError(t, l.Clear())
	keys, err := l.Enumerate()
	require.NoError(t, err)
	require.Empty(t, keys)
}
