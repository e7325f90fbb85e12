package gateway

import (
	"sync"

	"github.com/lk2023060901/space-gateway-go/pkg/util/typeutil"
)

// RoomRegistry tracks which rooms have been touched by a connection attempt
// and which sessions currently occupy them. A room record is created the
// moment a handshake names it, so a rejected handshake must delete the
// record again if nobody else holds it.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]typeutil.Set[uint64]
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]typeutil.Set[uint64])}
}

// Touch ensures a record exists for the room.
func (r *RoomRegistry) Touch(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = typeutil.NewSet[uint64]()
	}
}

// Join records a session as an occupant of the room.
func (r *RoomRegistry) Join(roomID string, sessionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	occupants, ok := r.rooms[roomID]
	if !ok {
		occupants = typeutil.NewSet[uint64]()
		r.rooms[roomID] = occupants
	}
	occupants.Insert(sessionID)
}

// Leave removes a session from the room and deletes the record when it was
// the last occupant.
func (r *RoomRegistry) Leave(roomID string, sessionID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	occupants, ok := r.rooms[roomID]
	if !ok {
		return
	}
	occupants.Remove(sessionID)
	if occupants.Len() == 0 {
		delete(r.rooms, roomID)
	}
}

// DeleteIfEmpty drops the room record unless sessions occupy it. Used after
// a rejected handshake so refused connections do not leak room records.
func (r *RoomRegistry) DeleteIfEmpty(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	occupants, ok := r.rooms[roomID]
	if !ok {
		return true
	}
	if occupants.Len() > 0 {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Occupancy returns the number of sessions in the room.
func (r *RoomRegistry) Occupancy(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID].Len()
}

// Len returns the number of tracked rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
