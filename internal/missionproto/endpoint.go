// Package missionproto implements the mission transfer state machine:
// IDLE/SENDLIST/GETLIST, dispatch of the inbound MAVLink mission
// messages, and the dual-mode (float/int) wire negotiation (spec §4.1,
// §4.2).
package missionproto

import (
	"log"
	"time"

	"github.com/tiiuae/mission-microservice/internal/config"
	"github.com/tiiuae/mission-microservice/internal/dataman"
	"github.com/tiiuae/mission-microservice/internal/item"
	"github.com/tiiuae/mission-microservice/internal/mavmission"
	"github.com/tiiuae/mission-microservice/internal/registry"
)

// State is the transfer state machine's current mode (spec §4.1).
type State uint8

const (
	StateIdle State = iota
	StateSendList
	StateGetList
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSendList:
		return "SENDLIST"
	case StateGetList:
		return "GETLIST"
	default:
		return "UNKNOWN"
	}
}

// partner identifies who this endpoint is currently transferring with.
type partner struct {
	sysID, compID uint8
}

// Endpoint drives one transport channel's mission protocol against a
// shared Registry and Store. Multiple Endpoints (one per channel) may
// run concurrently against the same Registry/Store; Registry enforces
// that only one holds an in-progress transfer at a time (spec §9).
type Endpoint struct {
	channel string
	ourSys  uint8
	ourComp uint8

	sender mavmission.Sender
	store  *dataman.Store
	reg    *registry.Registry
	cfg    config.Config

	state       State
	missionType mavmission.MissionType
	intMode     bool
	partner     partner

	seq   uint16 // GETLIST: next seq to expect; SENDLIST: last seq sent
	count uint16 // total items in the in-progress transfer

	// transferCurrentSeq tracks the uploaded item marked current, mirroring
	// _transfer_current_seq: -1 unless the GCS flags one item current.
	transferCurrentSeq int32

	// fenceLocked records whether this endpoint holds the fence namespace
	// lock, acquired for a FENCE upload and released on every IDLE
	// transition, mirroring dm_lock/dm_unlock(DM_KEY_FENCE_POINTS).
	fenceLocked bool

	// lastMissionPartner/lastMissionIntMode retain the most recent MISSION
	// transfer's partner and wire mode even after returning to IDLE,
	// mirroring _transfer_partner_sysid/compid and _int_mode, which the
	// original never resets. progress.Publisher uses these to re-send a
	// mission item on a DO_JUMP repeat-count change.
	lastMissionPartner partner
	lastMissionIntMode bool

	lastRecv time.Time
	lastSend time.Time

	filesystemErrCount int

	onEvent EventFunc
}

// EventFunc receives a lifecycle notification whenever a transfer
// completes, is rejected by the peer, or is cleared. kind is one of
// "upload-complete", "download-complete", "download-rejected",
// "aborted", "cleared". Callers that don't care may pass nil.
type EventFunc func(kind string, t mavmission.MissionType, count uint16, detail string)

// OnEvent installs f as the endpoint's lifecycle notification sink,
// e.g. to relay completions to internal/relay.
func (e *Endpoint) OnEvent(f EventFunc) {
	e.onEvent = f
}

func (e *Endpoint) emit(kind string, t mavmission.MissionType, count uint16, detail string) {
	if e.onEvent != nil {
		e.onEvent(kind, t, count, detail)
	}
}

// New returns an idle Endpoint bound to channel (a unique label used
// only to resolve cross-channel transfer ownership, e.g. "udp:14550").
func New(channel string, ourSys, ourComp uint8, sender mavmission.Sender, store *dataman.Store, reg *registry.Registry, cfg config.Config) *Endpoint {
	return &Endpoint{
		channel: channel,
		ourSys:  ourSys,
		ourComp: ourComp,
		sender:  sender,
		store:   store,
		reg:     reg,
		cfg:     cfg,
		state:   StateIdle,
	}
}

func (e *Endpoint) logf(format string, args ...interface{}) {
	if e.cfg.Verbose {
		log.Printf("missionproto["+e.channel+"]: "+format, args...)
	}
}

func (e *Endpoint) maxCount(t mavmission.MissionType) uint16 {
	switch t {
	case mavmission.TypeFence:
		return uint16(e.cfg.MaxCountFence)
	case mavmission.TypeRally:
		return uint16(e.cfg.MaxCountRally)
	default:
		return uint16(e.cfg.MaxCountMission)
	}
}

// namespaceFor returns the slot-store namespace for t, resolving the
// active offboard buffer for TypeMission via the registry.
func (e *Endpoint) namespaceFor(t mavmission.MissionType) dataman.Namespace {
	switch t {
	case mavmission.TypeFence:
		return dataman.NamespaceFence
	case mavmission.TypeRally:
		return dataman.NamespaceSafepoints
	default:
		return dataman.WaypointNamespace(e.reg.ActiveDatamanID())
	}
}

// writeNamespaceFor returns the namespace writes during an in-progress
// GETLIST land in: the inactive buffer for TypeMission (so readers keep
// serving the old mission until the transfer completes), the live
// namespace for fence/rally (spec §4.4).
func (e *Endpoint) writeNamespaceFor(t mavmission.MissionType) dataman.Namespace {
	switch t {
	case mavmission.TypeFence:
		return dataman.NamespaceFence
	case mavmission.TypeRally:
		return dataman.NamespaceSafepoints
	default:
		return dataman.WaypointNamespace(1 - e.reg.ActiveDatamanID())
	}
}

// Abort unconditionally resets this endpoint to IDLE and releases any
// transfer slot it held, mirroring switch_to_idle_state. Releasing the
// fence lock here is safe even if it was never acquired.
func (e *Endpoint) Abort() {
	if e.state != StateIdle {
		e.logf("aborting %s transfer with %d/%d", e.state, e.seq, e.count)
	}
	e.reg.EndTransfer(e.channel)
	if e.fenceLocked {
		e.store.Unlock(dataman.NamespaceFence)
		e.fenceLocked = false
	}
	e.state = StateIdle
	e.seq = 0
	e.count = 0
}

// Tick runs the timeout/retry bookkeeping that in the original ran on
// every send() call of the mavlink main loop (spec §5). Callers should
// invoke this on a steady schedule (e.g. every 10-50ms).
func (e *Endpoint) Tick(now time.Time) {
	if e.state == StateIdle {
		e.lastRecv = time.Time{}
		e.lastSend = time.Time{}
		return
	}

	if now.Sub(e.lastRecv) >= e.cfg.ActionTimeout {
		e.logf("action timeout waiting on seq %d, aborting to idle", e.seq)
		e.sendStatusText(true, "mission transfer timed out")
		e.emit("aborted", e.missionType, e.seq, "action timeout")
		e.Abort()
		return
	}

	if now.Sub(e.lastSend) >= e.cfg.RetryTimeout {
		e.logf("retry timeout, resending seq %d", e.seq)
		e.resend(now)
	}
}

func (e *Endpoint) resend(now time.Time) {
	switch e.state {
	case StateSendList:
		e.sendItemAt(e.seq)
	case StateGetList:
		e.sender.SendRequest(e.partner.sysID, e.partner.compID, e.seq, e.missionType, e.intMode)
	}
	e.lastSend = now
}

func (e *Endpoint) sendStatusText(critical bool, text string) {
	e.sender.SendStatusText(critical, text)
}

// HandleRequestList handles MISSION_REQUEST_LIST: the GCS asking to
// download the current list of msg.MissionType (spec §4.1, download).
func (e *Endpoint) HandleRequestList(msg mavmission.RequestListMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if !msg.MissionType.Valid() {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckUnsupported, msg.MissionType)
		return
	}

	if e.state != StateIdle {
		if e.state == StateSendList && e.partner == (partner{msg.SenderSysID, msg.SenderCompID}) && e.missionType == msg.MissionType {
			// Same partner re-requesting the same download: restart it.
			e.Abort()
		} else {
			e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
			return
		}
	}

	if !e.reg.TryBeginTransfer(e.channel) {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
		return
	}

	count := e.reg.Count(msg.MissionType)

	e.state = StateSendList
	e.missionType = msg.MissionType
	e.partner = partner{msg.SenderSysID, msg.SenderCompID}
	e.seq = 0
	e.count = count
	e.lastRecv = now
	e.lastSend = now
	e.recordMissionPartner()

	e.sender.SendCount(msg.SenderSysID, msg.SenderCompID, count, msg.MissionType)

	if count == 0 {
		// Nothing to send; the GCS will not issue any MISSION_REQUEST.
		e.Abort()
	}
}

// HandleRequest handles MISSION_REQUEST/MISSION_REQUEST_INT during a
// download (spec §4.1, §4.2).
func (e *Endpoint) HandleRequest(msg mavmission.RequestMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if e.state != StateSendList || e.partner != (partner{msg.SenderSysID, msg.SenderCompID}) || e.missionType != msg.MissionType {
		return
	}
	// Accept the item just sent (a resend) or the one after it; any other
	// seq is a sequence mismatch.
	if msg.Seq >= e.count || (msg.Seq != e.seq && msg.Seq != e.seq+1) {
		e.sendAckAndAbort(mavmission.AckError)
		return
	}

	e.intMode = msg.IntMode
	e.seq = msg.Seq
	e.lastRecv = now
	e.recordMissionPartner()
	e.sendItemAt(e.seq)
	e.lastSend = now
}

func (e *Endpoint) sendItemAt(seq uint16) {
	var it item.Item
	ns := e.namespaceFor(e.missionType)
	ok, err := e.store.ReadItem(ns, int(seq)+1, &it)
	if err != nil || !ok {
		e.logf("failed to read item %s[%d]: %v", ns, seq, err)
		e.sendAckAndAbort(mavmission.AckError)
		return
	}

	msg, err := item.Encode(it, e.intMode)
	if err != nil {
		e.logf("failed to encode item %d: %v", seq, err)
		e.sendAckAndAbort(mavmission.AckError)
		return
	}
	msg.Seq = seq
	msg.MissionType = e.missionType
	msg.Addressed = mavmission.Addressed{
		TargetSystem:    e.partner.sysID,
		TargetComponent: e.partner.compID,
	}
	e.sender.SendItem(e.partner.sysID, e.partner.compID, msg)
}

// clearMissionType empties t's list and publishes a count-0 header. For
// TypeMission it also toggles the active dataman id so the navigator
// observes a changed identity even though the count is unchanged at
// zero, matching update_active_mission(_dataman_id==0?1:0, 0, 0).
func (e *Endpoint) clearMissionType(t mavmission.MissionType) error {
	ns := e.namespaceFor(t)
	if t == mavmission.TypeMission {
		ns = e.writeNamespaceFor(t)
	}
	if err := e.store.Clear(ns); err != nil {
		return err
	}
	if err := e.store.WriteHeader(ns, dataman.Header{Count: 0, CurrentSeq: 0}); err != nil {
		return err
	}

	switch t {
	case mavmission.TypeMission:
		e.reg.SwapActiveDatamanID()
		e.reg.SetCurrentSeq(0)
	case mavmission.TypeFence:
		e.reg.BumpGeofenceUpdateCounter()
	}
	e.reg.SetCount(t, 0)
	return nil
}

func (e *Endpoint) sendAckAndAbort(status mavmission.AckStatus) {
	e.sender.SendAck(e.partner.sysID, e.partner.compID, status, e.missionType)
	e.Abort()
}

// HandleCount handles MISSION_COUNT: the GCS announcing an upload
// (spec §4.1, upload).
func (e *Endpoint) HandleCount(msg mavmission.CountMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if !msg.MissionType.Valid() {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckUnsupported, msg.MissionType)
		return
	}

	if msg.Count == 0 {
		if err := e.clearMissionType(msg.MissionType); err != nil {
			e.logf("clear %s failed: %v", msg.MissionType, err)
			e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
			return
		}
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckAccepted, msg.MissionType)
		return
	}

	if msg.Count > e.maxCount(msg.MissionType) {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckNoSpace, msg.MissionType)
		return
	}

	restarting := e.state == StateGetList && e.partner == (partner{msg.SenderSysID, msg.SenderCompID}) && e.missionType == msg.MissionType
	if e.state != StateIdle && !restarting {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
		return
	}
	if !restarting && !e.reg.TryBeginTransfer(e.channel) {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
		return
	}

	if !restarting && msg.MissionType == mavmission.TypeFence {
		e.store.Lock(dataman.NamespaceFence)
		e.fenceLocked = true
	}

	e.state = StateGetList
	e.missionType = msg.MissionType
	e.partner = partner{msg.SenderSysID, msg.SenderCompID}
	e.seq = 0
	e.count = msg.Count
	e.intMode = false
	e.transferCurrentSeq = -1
	e.lastRecv = now
	e.lastSend = now
	e.recordMissionPartner()

	e.sender.SendRequest(msg.SenderSysID, msg.SenderCompID, 0, msg.MissionType, e.intMode)
}

// HandleItem handles MISSION_ITEM/MISSION_ITEM_INT during an upload
// (spec §4.1, §4.2, §4.3).
func (e *Endpoint) HandleItem(msg mavmission.ItemMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if e.state != StateGetList || e.partner != (partner{msg.SenderSysID, msg.SenderCompID}) || e.missionType != msg.MissionType {
		return
	}
	if msg.Seq != e.seq {
		// Stale retransmit of an already-stored item; ignore rather than
		// aborting, the resend timer will catch true desync.
		return
	}

	e.intMode = msg.IntMode
	e.lastRecv = now
	e.recordMissionPartner()

	it, status, err := item.Decode(msg)
	if err != nil {
		e.logf("decode item %d failed: %v", msg.Seq, err)
		e.sendAckAndAbort(status)
		return
	}

	if e.missionType == mavmission.TypeMission && item.IsFenceOrRallyCommand(it.NavCmd) {
		e.logf("rejecting fence/rally command %d inside MISSION item %d", it.NavCmd, msg.Seq)
		e.sendAckAndAbort(mavmission.AckUnsupported)
		return
	}

	if (it.NavCmd == mavmission.CmdFencePolygonVertexInclusion || it.NavCmd == mavmission.CmdFencePolygonVertexExclusion) && it.VertexCount < 3 {
		e.logf("fence: too few vertices (%d) at item %d", it.VertexCount, msg.Seq)
		e.reg.SetCount(mavmission.TypeFence, 0)
		e.sendAckAndAbort(mavmission.AckError)
		return
	}

	if msg.Current {
		e.transferCurrentSeq = int32(msg.Seq)
	}

	ns := e.writeNamespaceFor(e.missionType)
	if err := e.store.WriteItem(ns, int(e.seq)+1, it); err != nil {
		e.filesystemErrCount++
		if e.filesystemErrCount <= e.cfg.FilesystemErrCountNotifyLimit {
			e.sendStatusText(true, "mission storage write failed")
		}
		e.sendAckAndAbort(mavmission.AckError)
		return
	}
	e.filesystemErrCount = 0

	e.seq++
	if e.seq >= e.count {
		e.finishUpload(now)
		return
	}

	e.sender.SendRequest(msg.SenderSysID, msg.SenderCompID, e.seq, e.missionType, e.intMode)
	e.lastSend = now
}

func (e *Endpoint) finishUpload(now time.Time) {
	ns := e.writeNamespaceFor(e.missionType)
	if err := e.store.WriteHeader(ns, dataman.Header{Count: e.count, CurrentSeq: e.transferCurrentSeq}); err != nil {
		e.logf("write header failed: %v", err)
		e.sendAckAndAbort(mavmission.AckError)
		return
	}

	switch e.missionType {
	case mavmission.TypeMission:
		e.reg.SwapActiveDatamanID()
		e.reg.SetCurrentSeq(e.transferCurrentSeq)
	case mavmission.TypeFence:
		e.reg.BumpGeofenceUpdateCounter()
	}
	e.reg.SetCount(e.missionType, e.count)

	e.sender.SendAck(e.partner.sysID, e.partner.compID, mavmission.AckAccepted, e.missionType)
	e.logf("upload of %d %s items complete", e.count, e.missionType)
	e.emit("upload-complete", e.missionType, e.count, "")
	e.Abort()
}

// HandleAck handles MISSION_ACK, the GCS's confirmation closing out a
// download (spec §4.1).
func (e *Endpoint) HandleAck(msg mavmission.AckMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if e.state != StateSendList || e.partner != (partner{msg.SenderSysID, msg.SenderCompID}) {
		return
	}
	if msg.Type != mavmission.AckAccepted {
		// The GCS may not support the current wire variant; use the other
		// one next time.
		e.intMode = !e.intMode
		e.recordMissionPartner()
		e.logf("download rejected by GCS: %s", msg.Type)
		e.emit("download-rejected", e.missionType, e.count, msg.Type.String())
	} else {
		e.logf("download of %d %s items complete", e.count, e.missionType)
		e.emit("download-complete", e.missionType, e.count, "")
	}
	e.Abort()
}

// HandleSetCurrent handles MISSION_SET_CURRENT (spec §4.6).
func (e *Endpoint) HandleSetCurrent(msg mavmission.SetCurrentMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if e.state != StateIdle {
		e.sendStatusText(true, "set current rejected: transfer in progress")
		return
	}
	count := e.reg.Count(mavmission.TypeMission)
	if msg.Seq >= count {
		e.sendStatusText(true, "set current rejected: seq out of bounds")
		return
	}
	ns := e.namespaceFor(mavmission.TypeMission)
	if err := e.store.WriteHeader(ns, dataman.Header{Count: count, CurrentSeq: int32(msg.Seq)}); err != nil {
		e.logf("write header failed: %v", err)
		return
	}
	e.reg.SetCurrentSeq(int32(msg.Seq))
	e.sender.SendCurrent(msg.Seq)
}

// HandleClearAll handles MISSION_CLEAR_ALL (spec §4.1).
func (e *Endpoint) HandleClearAll(msg mavmission.ClearAllMsg, now time.Time) {
	if !msg.Accepted(e.ourSys, e.ourComp) {
		return
	}
	if e.state != StateIdle {
		e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
		return
	}

	types := []mavmission.MissionType{msg.MissionType}
	if msg.MissionType == mavmission.TypeAll {
		types = []mavmission.MissionType{mavmission.TypeMission, mavmission.TypeFence, mavmission.TypeRally}
	}

	for _, t := range types {
		if err := e.clearMissionType(t); err != nil {
			e.logf("clear %s failed: %v", t, err)
			e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckError, msg.MissionType)
			return
		}
		e.emit("cleared", t, 0, "")
	}

	e.sender.SendAck(msg.SenderSysID, msg.SenderCompID, mavmission.AckAccepted, msg.MissionType)
}

// State reports the current transfer state, for diagnostics/tests.
func (e *Endpoint) State() State { return e.state }

// ResendMissionItem re-sends the stored MISSION item at seq to the most
// recent MISSION transfer partner, used by progress.Publisher to show a
// GCS the mission item's decremented DO_JUMP repeat count (spec §4.5,
// send_mission_item at mavlink_mission.cpp:513). It is a no-op if no
// MISSION transfer has happened yet on this endpoint.
func (e *Endpoint) ResendMissionItem(seq uint16) {
	if e.lastMissionPartner == (partner{}) {
		return
	}

	var it item.Item
	ns := dataman.WaypointNamespace(e.reg.ActiveDatamanID())
	ok, err := e.store.ReadItem(ns, int(seq)+1, &it)
	if err != nil || !ok {
		e.logf("resend item %d failed: %v", seq, err)
		return
	}

	msg, err := item.Encode(it, e.lastMissionIntMode)
	if err != nil {
		e.logf("resend item %d encode failed: %v", seq, err)
		return
	}
	msg.Seq = seq
	msg.MissionType = mavmission.TypeMission
	e.sender.SendItem(e.lastMissionPartner.sysID, e.lastMissionPartner.compID, msg)
}

func (e *Endpoint) recordMissionPartner() {
	if e.missionType == mavmission.TypeMission {
		e.lastMissionPartner = e.partner
		e.lastMissionIntMode = e.intMode
	}
}
