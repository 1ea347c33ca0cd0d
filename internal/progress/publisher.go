// Package progress publishes mission progress updates derived from the
// vehicle's mission_result state onto the wire (spec §4.5): a
// rate-limited MISSION_CURRENT/MISSION_ITEM_REACHED emitter with a
// short resend window to cover message loss right after an item is
// reached.
package progress

import (
	"sync"
	"time"

	"github.com/tiiuae/mission-microservice/internal/mavmission"
	"github.com/tiiuae/mission-microservice/internal/registry"
)

// reachedResendWindow is how long MISSION_ITEM_REACHED keeps getting
// resent after a reach, to cover a dropped first transmission.
const reachedResendWindow = 300 * time.Millisecond

// ItemResender re-sends a stored MISSION item to the current transfer
// partner, used to show a DO_JUMP repeat-count change on the wire
// instead of just announcing it (send_mission_item at
// mavlink_mission.cpp:515). missionproto.Endpoint implements this.
type ItemResender interface {
	ResendMissionItem(seq uint16)
}

// Publisher accumulates the latest mission_result state behind a dirty
// flag and flushes it to the wire no more often than interval, mirroring
// the mutex-guarded dirty-flag pattern used for telemetry publishing.
// Even with nothing new to report it re-announces MISSION_CURRENT every
// interval, matching the slow-rate heartbeat in mavlink_missionlib's
// main loop (mavlink_mission.cpp:519-521).
type Publisher struct {
	mu       sync.Mutex
	sender   mavmission.Sender
	reg      *registry.Registry
	resender ItemResender
	interval time.Duration

	dirty  bool
	latest mavmission.MissionResult

	lastPublish time.Time

	lastReachedSeq      uint16
	lastReachedAt       time.Time
	lastReachedResendAt time.Time
}

// New returns a Publisher that rate-limits to interval (spec default
// 100ms, config.Config.ProgressRateInterval). resender may be nil, in
// which case a DO_JUMP repeat-count change is dropped rather than
// re-sent (no mission transfer has happened yet to resend to).
func New(sender mavmission.Sender, reg *registry.Registry, resender ItemResender, interval time.Duration) *Publisher {
	return &Publisher{sender: sender, reg: reg, resender: resender, interval: interval}
}

// OnMissionResult records a new mission_result sample. Safe to call
// from whatever goroutine observes the result topic.
func (p *Publisher) OnMissionResult(res mavmission.MissionResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = res
	p.dirty = true
}

// Tick flushes a pending update if the rate limit allows it, falls back
// to a periodic MISSION_CURRENT heartbeat when there is nothing new to
// report, and resends the last MISSION_ITEM_REACHED while inside the
// post-reach resend window. Call this on a steady schedule (e.g. every
// 20-50ms).
func (p *Publisher) Tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastPublish) >= p.interval {
		if p.dirty {
			p.publishLocked(now)
		} else if p.latest.Valid {
			p.sendCurrentLocked(now)
		}
	}

	if !p.lastReachedAt.IsZero() &&
		now.Sub(p.lastReachedAt) < reachedResendWindow &&
		now.Sub(p.lastReachedResendAt) >= p.interval {
		p.sender.SendItemReached(p.lastReachedSeq)
		p.lastReachedResendAt = now
	}
}

func (p *Publisher) publishLocked(now time.Time) {
	res := p.latest
	p.dirty = false

	if res.Valid {
		p.sendCurrentLocked(now)
	} else {
		p.lastPublish = now
	}

	if res.Reached {
		seq := uint16(res.SeqReached)
		p.sender.SendItemReached(seq)
		p.reg.SetLastReached(res.SeqReached)
		p.lastReachedSeq = seq
		p.lastReachedAt = now
		p.lastReachedResendAt = now
	}

	if res.ItemDoJumpChanged {
		if p.resender != nil {
			p.resender.ResendMissionItem(res.ItemChangedIndex)
		}
	}
}

// sendCurrentLocked emits MISSION_CURRENT for the latest known seq,
// mirroring send_mission_current: suppressed when the MISSION list is
// empty and seq is the zero sentinel, flagged with a critical
// STATUSTEXT when seq is out of range, sent otherwise.
func (p *Publisher) sendCurrentLocked(now time.Time) {
	p.lastPublish = now

	seq := uint16(p.latest.SeqCurrent)
	count := p.reg.Count(mavmission.TypeMission)

	switch {
	case seq < count:
		p.sender.SendCurrent(seq)
		p.reg.SetCurrentSeq(p.latest.SeqCurrent)
	case seq == 0 && count == 0:
		// Nothing uploaded yet; don't broadcast a current item.
	default:
		p.sender.SendStatusText(true, "ERROR: wp index out of bounds")
	}
}
