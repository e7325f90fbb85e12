package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomRegistryLifecycle(t *testing.T) {
	r := NewRoomRegistry()

	r.Touch("room-a")
	require.Equal(t, 1, r.Len())
	require.Zero(t, r.Occupancy("room-a"))

	r.Join("room-a", 1)
	r.Join("room-a", 2)
	require.Equal(t, 2, r.Occupancy("room-a"))

	// Join without a prior Touch creates the record.
	r.Join("room-b", 3)
	require.Equal(t, 2, r.Len())

	r.Leave("room-a", 1)
	require.Equal(t, 1, r.Occupancy("room-a"))
	r.Leave("room-a", 2)
	require.Equal(t, 1, r.Len(), "last occupant leaving deletes the record")
	require.Zero(t, r.Occupancy("room-a"))

	// Leaving an unknown room is a no-op.
	r.Leave("room-x", 9)
	require.Equal(t, 1, r.Len())
}

func TestRoomRegistryDeleteIfEmpty(t *testing.T) {
	r := NewRoomRegistry()

	// A touched but never joined room is collected after a rejection.
	r.Touch("room-a")
	require.True(t, r.DeleteIfEmpty("room-a"))
	require.Zero(t, r.Len())

	// An occupied room survives a rejected newcomer.
	r.Join("room-b", 1)
	require.False(t, r.DeleteIfEmpty("room-b"))
	require.Equal(t, 1, r.Occupancy("room-b"))

	// Unknown rooms report deleted.
	require.True(t, r.DeleteIfEmpty("room-x"))
}
