package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	first := &peer{conn: newFakeConn("a")}
	require.NoError(t, r.add(first))
	require.NoError(t, r.add(&peer{conn: newFakeConn("b")}))
	assert.ErrorIs(t, r.add(&peer{conn: newFakeConn("a")}), ErrDuplicatePeer)

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"a", "b"}, r.IDs())
	assert.Len(t, r.list(), 2)

	got, ok := r.get("a")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = r.remove("a", nil)
	assert.True(t, ok)
	_, ok = r.remove("a", nil)
	assert.False(t, ok)
}

// TestRegistryStaleRemove ensures a dropped peer's handle cannot evict a
// newer connection registered under the same id.
func TestRegistryStaleRemove(t *testing.T) {
	r := NewRegistry()
	old := &peer{conn: newFakeConn("a")}
	require.NoError(t, r.add(old))
	_, ok := r.remove("a", old)
	require.True(t, ok)

	fresh := &peer{conn: newFakeConn("a")}
	require.NoError(t, r.add(fresh))

	_, ok = r.remove("a", old)
	assert.False(t, ok)
	got, ok := r.get("a")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}
