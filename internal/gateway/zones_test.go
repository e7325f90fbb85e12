package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
)

func TestZoneIndexViewportOverlap(t *testing.T) {
	z := NewZoneIndex(100)

	// One cell.
	z.Update(1, wire.Viewport{Left: 10, Top: 10, Right: 90, Bottom: 90})
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: 50, Y: 50}))
	require.Empty(t, z.SessionsAt(wire.Position{X: 150, Y: 50}))

	// Growing the viewport spans four cells.
	z.Update(1, wire.Viewport{Left: 50, Top: 50, Right: 150, Bottom: 150})
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: 50, Y: 50}))
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: 150, Y: 150}))

	// Moving away releases the old cells.
	z.Update(1, wire.Viewport{Left: 500, Top: 500, Right: 590, Bottom: 590})
	require.Empty(t, z.SessionsAt(wire.Position{X: 50, Y: 50}))
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: 550, Y: 550}))
}

func TestZoneIndexMultipleListeners(t *testing.T) {
	z := NewZoneIndex(100)

	z.Update(1, wire.Viewport{Left: 0, Top: 0, Right: 100, Bottom: 100})
	z.Update(2, wire.Viewport{Left: 0, Top: 0, Right: 100, Bottom: 100})
	require.ElementsMatch(t, []uint64{1, 2}, z.SessionsAt(wire.Position{X: 10, Y: 10}))

	z.Remove(1)
	require.Equal(t, []uint64{2}, z.SessionsAt(wire.Position{X: 10, Y: 10}))

	// Removing twice is safe.
	z.Remove(1)
	z.Remove(2)
	require.Empty(t, z.SessionsAt(wire.Position{X: 10, Y: 10}))
}

func TestZoneIndexNegativeCoordinates(t *testing.T) {
	z := NewZoneIndex(100)

	z.Update(1, wire.Viewport{Left: -150, Top: -150, Right: -50, Bottom: -50})
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: -120, Y: -120}))
	require.Equal(t, []uint64{1}, z.SessionsAt(wire.Position{X: -60, Y: -60}))
	require.Empty(t, z.SessionsAt(wire.Position{X: 10, Y: 10}))
}

func TestZoneIndexEmptyViewportListensNowhere(t *testing.T) {
	z := NewZoneIndex(100)

	z.Update(1, wire.Viewport{})
	require.Empty(t, z.SessionsAt(wire.Position{}))
}
