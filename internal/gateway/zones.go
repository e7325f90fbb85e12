package gateway

import (
	"sync"

	"github.com/lk2023060901/space-gateway-go/internal/wire"
	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// defaultZoneCell is the edge length of one zone grid cell in map units.
const defaultZoneCell = 512

// zoneKey addresses one cell of the world grid.
type zoneKey struct {
	X int32
	Y int32
}

// ZoneIndex maps viewport rectangles onto a coarse grid so position events
// can be delivered only to the sessions that can currently see them. A
// session listens to every cell its viewport overlaps; the set is rebuilt
// on each viewport report.
type ZoneIndex struct {
	cell int32

	mu       sync.RWMutex
	zones    map[zoneKey]typeutil.Set[uint64]
	sessions map[uint64]typeutil.Set[zoneKey]
}

// NewZoneIndex creates an empty index with the given cell size.
func NewZoneIndex(cell int32) *ZoneIndex {
	if cell <= 0 {
		cell = defaultZoneCell
	}
	return &ZoneIndex{
		cell:     cell,
		zones:    make(map[zoneKey]typeutil.Set[uint64]),
		sessions: make(map[uint64]typeutil.Set[zoneKey]),
	}
}

// Update replaces the session's listened cells with the cells the viewport
// overlaps. An empty viewport leaves the session listening to nothing.
func (z *ZoneIndex) Update(sessionID uint64, vp wire.Viewport) {
	wanted := z.cellsFor(vp)

	z.mu.Lock()
	defer z.mu.Unlock()

	current, ok := z.sessions[sessionID]
	if ok {
		for _, key := range current.Collect() {
			if !wanted.Contain(key) {
				z.dropLocked(key, sessionID)
				current.Remove(key)
			}
		}
	} else {
		current = typeutil.NewSet[zoneKey]()
		z.sessions[sessionID] = current
	}

	for _, key := range wanted.Collect() {
		if current.Contain(key) {
			continue
		}
		current.Insert(key)
		if z.zones[key] == nil {
			z.zones[key] = typeutil.NewSet[uint64]()
		}
		z.zones[key].Insert(sessionID)
	}

	if current.Len() == 0 {
		delete(z.sessions, sessionID)
	}
}

// Remove detaches the session from every cell it listens to.
func (z *ZoneIndex) Remove(sessionID uint64) {
	z.mu.Lock()
	defer z.mu.Unlock()

	current, ok := z.sessions[sessionID]
	if !ok {
		return
	}
	for _, key := range current.Collect() {
		z.dropLocked(key, sessionID)
	}
	delete(z.sessions, sessionID)
}

// SessionsAt returns the sessions listening to the cell containing pos.
func (z *ZoneIndex) SessionsAt(pos wire.Position) []uint64 {
	key := zoneKey{X: floorDiv(int32(pos.X), z.cell), Y: floorDiv(int32(pos.Y), z.cell)}

	z.mu.RLock()
	defer z.mu.RUnlock()
	listeners, ok := z.zones[key]
	if !ok {
		return nil
	}
	return listeners.Collect()
}

func (z *ZoneIndex) dropLocked(key zoneKey, sessionID uint64) {
	if listeners, ok := z.zones[key]; ok {
		listeners.Remove(sessionID)
		if listeners.Len() == 0 {
			delete(z.zones, key)
		}
	}
}

// cellsFor returns the grid cells a viewport rectangle overlaps. Viewport
// edges arrive in screen orientation, so both axes are normalized first.
func (z *ZoneIndex) cellsFor(vp wire.Viewport) typeutil.Set[zoneKey] {
	cells := typeutil.NewSet[zoneKey]()
	if vp.Left == vp.Right || vp.Top == vp.Bottom {
		return cells
	}

	x0, x1 := minMax(vp.Left, vp.Right)
	y0, y1 := minMax(vp.Top, vp.Bottom)

	for cx := floorDiv(x0, z.cell); cx <= floorDiv(x1-1, z.cell); cx++ {
		for cy := floorDiv(y0, z.cell); cy <= floorDiv(y1-1, z.cell); cy++ {
			cells.Insert(zoneKey{X: cx, Y: cy})
		}
	}
	return cells
}

func minMax(a, b int32) (int32, int32) {
	if a > b {
		return b, a
	}
	return a, b
}

func floorDiv(v, cell int32) int32 {
	q := v / cell
	if v%cell != 0 && (v < 0) != (cell < 0) {
		q--
	}
	return q
}
