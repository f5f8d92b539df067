package bridge

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestManager_AdmissionOrder(t *testing.T) {
	m := NewManager()
	m.Add(newClient("a", nil, zerolog.Nop()))
	m.Add(newClient("b", nil, zerolog.Nop()))
	m.Add(newClient("c", nil, zerolog.Nop()))
	require.Equal(t, 3, m.Count())

	old, ok := m.Oldest()
	require.True(t, ok)
	require.Equal(t, "a", old.ID)

	m.Remove("a")
	old, ok = m.Oldest()
	require.True(t, ok)
	require.Equal(t, "b", old.ID)

	var ids []string
	for _, cl := range m.All() {
		ids = append(ids, cl.ID)
	}
	require.Equal(t, []string{"b", "c"}, ids)

	m.Remove("ghost")
	require.Equal(t, 2, m.Count())

	got, ok := m.Get("c")
	require.True(t, ok)
	require.Equal(t, "c", got.ID)
}

func TestManager_OldestOnEmpty(t *testing.T) {
	m := NewManager()
	_, ok := m.Oldest()
	require.False(t, ok)
}
