// Package registry holds the process-wide mission state that every
// transport-channel endpoint must agree on: which dataman buffer is
// active, how many items each list holds, the vehicle's current/last
// reached sequence, and whether an upload or download is already in
// flight on some other channel (spec §4.6, §9).
//
// The original implementation kept these as file-scope static fields
// shared by construction across every MavlinkMissionManager instance
// in the process. A Go translation of "static field" is a single
// mutex-guarded struct injected into every endpoint, which is what
// Registry provides.
package registry

import (
	"sync"

	"github.com/tiiuae/mission-microservice/internal/mavmission"
)

// Registry is safe for concurrent use by multiple goroutines, one per
// transport channel.
type Registry struct {
	mu sync.Mutex

	activeDatamanID int
	count           [3]uint16 // indexed by MissionType (TypeAll excluded)
	currentSeq      int32
	lastReached     int32

	transferInProgress   bool
	transferOwnerChannel  string

	geofenceUpdateCounter uint32
}

// New returns a Registry in its initial state: no active transfer,
// dataman buffer 0, empty lists, sequence -1 (matches the original's
// "no current item" sentinel).
func New() *Registry {
	return &Registry{
		currentSeq:  -1,
		lastReached: -1,
	}
}

// ActiveDatamanID returns the currently active offboard mission buffer
// (0 or 1).
func (r *Registry) ActiveDatamanID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeDatamanID
}

// SwapActiveDatamanID flips the active buffer and returns the new id,
// matching update_active_mission's atomic swap on upload completion.
func (r *Registry) SwapActiveDatamanID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeDatamanID = 1 - r.activeDatamanID
	return r.activeDatamanID
}

// Count returns the persisted item count for t.
func (r *Registry) Count(t mavmission.MissionType) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(t)
}

func (r *Registry) countLocked(t mavmission.MissionType) uint16 {
	if int(t) >= len(r.count) {
		return 0
	}
	return r.count[t]
}

// SetCount records the persisted item count for t.
func (r *Registry) SetCount(t mavmission.MissionType, n uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(t) >= len(r.count) {
		return
	}
	r.count[t] = n
}

// CurrentSeq returns the vehicle's current mission item sequence, or -1
// if none is active.
func (r *Registry) CurrentSeq() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentSeq
}

// SetCurrentSeq updates the vehicle's current mission item sequence.
func (r *Registry) SetCurrentSeq(seq int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentSeq = seq
}

// LastReached returns the last MISSION_ITEM_REACHED sequence sent, or
// -1 if none has been sent yet.
func (r *Registry) LastReached() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReached
}

// SetLastReached records the last MISSION_ITEM_REACHED sequence sent.
func (r *Registry) SetLastReached(seq int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReached = seq
}

// TryBeginTransfer attempts to claim the single process-wide transfer
// slot for channel. It returns false if another channel already owns
// an in-progress upload or download, so at most one transfer runs
// process-wide (spec §9).
func (r *Registry) TryBeginTransfer(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transferInProgress {
		return false
	}
	r.transferInProgress = true
	r.transferOwnerChannel = channel
	return true
}

// EndTransfer releases the transfer slot. It is a no-op if channel does
// not currently own it, so a stale timeout on one channel can never
// clear a transfer a different channel has since claimed.
func (r *Registry) EndTransfer(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transferOwnerChannel != channel {
		return
	}
	r.transferInProgress = false
	r.transferOwnerChannel = ""
}

// InTransfer reports whether any channel currently owns the transfer
// slot.
func (r *Registry) InTransfer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transferInProgress
}

// BumpGeofenceUpdateCounter increments and returns the geofence update
// counter, used to tell consumers a new fence has been persisted.
func (r *Registry) BumpGeofenceUpdateCounter() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofenceUpdateCounter++
	return r.geofenceUpdateCounter
}

// GeofenceUpdateCounter returns the current geofence update counter
// without incrementing it.
func (r *Registry) GeofenceUpdateCounter() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.geofenceUpdateCounter
}
