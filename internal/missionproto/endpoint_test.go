package missionproto

import (
	"testing"
	"time"

	"github.com/tiiuae/mission-microservice/internal/config"
	"github.com/tiiuae/mission-microservice/internal/dataman"
	"github.com/tiiuae/mission-microservice/internal/item"
	"github.com/tiiuae/mission-microservice/internal/mavmission"
	"github.com/tiiuae/mission-microservice/internal/registry"
)

type fakeSender struct {
	counts   []mavmission.CountMsg
	requests []mavmission.RequestMsg
	items    []mavmission.ItemMsg
	acks     []mavmission.AckMsg
	currents []uint16
	reached  []uint16
	statuses []string
}

func (f *fakeSender) SendCount(sysid, compid uint8, count uint16, t mavmission.MissionType) {
	f.counts = append(f.counts, mavmission.CountMsg{
		Addressed:   mavmission.Addressed{TargetSystem: sysid, TargetComponent: compid},
		Count:       count,
		MissionType: t,
	})
}

func (f *fakeSender) SendRequest(sysid, compid uint8, seq uint16, t mavmission.MissionType, intMode bool) {
	f.requests = append(f.requests, mavmission.RequestMsg{
		Addressed:   mavmission.Addressed{TargetSystem: sysid, TargetComponent: compid},
		Seq:         seq,
		MissionType: t,
		IntMode:     intMode,
	})
}

func (f *fakeSender) SendItem(sysid, compid uint8, it mavmission.ItemMsg) {
	f.items = append(f.items, it)
}

func (f *fakeSender) SendAck(sysid, compid uint8, status mavmission.AckStatus, t mavmission.MissionType) {
	f.acks = append(f.acks, mavmission.AckMsg{
		Addressed:   mavmission.Addressed{TargetSystem: sysid, TargetComponent: compid},
		Type:        status,
		MissionType: t,
	})
}

func (f *fakeSender) SendCurrent(seq uint16)      { f.currents = append(f.currents, seq) }
func (f *fakeSender) SendItemReached(seq uint16)  { f.reached = append(f.reached, seq) }
func (f *fakeSender) SendStatusText(critical bool, text string) {
	f.statuses = append(f.statuses, text)
}

func (f *fakeSender) lastAck() mavmission.AckMsg {
	return f.acks[len(f.acks)-1]
}

func newTestEndpoint(t *testing.T) (*Endpoint, *fakeSender, *dataman.Store, *registry.Registry) {
	t.Helper()
	store, err := dataman.Open(dataman.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("dataman.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := registry.New()
	cfg := config.Default()
	sender := &fakeSender{}
	ep := New("test-channel", cfg.SysID, cfg.CompID, sender, store, reg, cfg)
	return ep, sender, store, reg
}

func waypointItem(lat, lon float64) item.Item {
	return item.Item{
		NavCmd:       mavmission.CmdWaypoint,
		Frame:        mavmission.FrameGlobalRelativeAlt,
		Lat:          lat,
		Lon:          lon,
		Altitude:     50,
		Autocontinue: true,
		Origin:       mavmission.OriginMavlink,
	}
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	ep, sender, _, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)

	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 2, MissionType: mavmission.TypeMission}, now)
	if ep.State() != StateGetList {
		t.Fatalf("state = %v, want GETLIST", ep.State())
	}
	if len(sender.requests) != 1 || sender.requests[0].Seq != 0 {
		t.Fatalf("expected request for seq 0, got %+v", sender.requests)
	}

	items := []item.Item{waypointItem(47.1, 8.5), waypointItem(47.2, 8.6)}
	for i, it := range items {
		msg, err := item.Encode(it, false)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		msg.Addressed = addr
		msg.Seq = uint16(i)
		msg.MissionType = mavmission.TypeMission
		ep.HandleItem(msg, now)
	}

	if ep.State() != StateIdle {
		t.Fatalf("state after upload = %v, want IDLE", ep.State())
	}
	if sender.lastAck().Type != mavmission.AckAccepted {
		t.Fatalf("final ack = %v, want accepted", sender.lastAck().Type)
	}
	if reg.Count(mavmission.TypeMission) != 2 {
		t.Fatalf("registry count = %d, want 2", reg.Count(mavmission.TypeMission))
	}
	if reg.InTransfer() {
		t.Fatal("transfer slot should be released after upload completes")
	}

	// Now download what was just uploaded.
	ep.HandleRequestList(mavmission.RequestListMsg{Addressed: addr, MissionType: mavmission.TypeMission}, now)
	if ep.State() != StateSendList {
		t.Fatalf("state = %v, want SENDLIST", ep.State())
	}
	if sender.counts[len(sender.counts)-1].Count != 2 {
		t.Fatalf("announced count = %d, want 2", sender.counts[len(sender.counts)-1].Count)
	}

	for seq := uint16(0); seq < 2; seq++ {
		ep.HandleRequest(mavmission.RequestMsg{Addressed: addr, Seq: seq, MissionType: mavmission.TypeMission}, now)
	}
	if len(sender.items) != 2 {
		t.Fatalf("sent %d items, want 2", len(sender.items))
	}
	gotLat := sender.items[0].Lat()
	if gotLat < 47.09 || gotLat > 47.11 {
		t.Fatalf("first item lat = %v, want ~47.1", gotLat)
	}

	ep.HandleAck(mavmission.AckMsg{Addressed: addr, Type: mavmission.AckAccepted, MissionType: mavmission.TypeMission}, now)
	if ep.State() != StateIdle {
		t.Fatalf("state after download ack = %v, want IDLE", ep.State())
	}
}

func TestUploadRejectsRallyCommandInMissionType(t *testing.T) {
	ep, sender, _, _ := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)

	rallyItem := item.Item{NavCmd: mavmission.CmdRallyPoint, Frame: mavmission.FrameGlobal, Lat: 1, Lon: 2}
	msg, err := item.Encode(rallyItem, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg.Addressed = addr
	msg.Seq = 0
	msg.MissionType = mavmission.TypeMission

	ep.HandleItem(msg, now)

	if ep.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE after rejection", ep.State())
	}
	if sender.lastAck().Type != mavmission.AckUnsupported {
		t.Fatalf("ack = %v, want UNSUPPORTED", sender.lastAck().Type)
	}
}

func TestClearAllResetsCounts(t *testing.T) {
	ep, sender, _, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	reg.SetCount(mavmission.TypeFence, 5)

	ep.HandleClearAll(mavmission.ClearAllMsg{Addressed: addr, MissionType: mavmission.TypeAll}, now)

	if sender.lastAck().Type != mavmission.AckAccepted {
		t.Fatalf("ack = %v, want accepted", sender.lastAck().Type)
	}
	if reg.Count(mavmission.TypeFence) != 0 {
		t.Fatalf("fence count after clear-all = %d, want 0", reg.Count(mavmission.TypeFence))
	}
}

func TestActionTimeoutAbortsTransfer(t *testing.T) {
	ep, sender, _, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 3, MissionType: mavmission.TypeMission}, now)
	if !reg.InTransfer() {
		t.Fatal("expected transfer slot to be held")
	}

	ep.Tick(now.Add(ep.cfg.ActionTimeout + time.Second))

	if ep.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE after action timeout", ep.State())
	}
	if reg.InTransfer() {
		t.Fatal("expected transfer slot released after timeout abort")
	}
	if len(sender.statuses) == 0 {
		t.Fatal("expected a status text on timeout")
	}
}

func TestRetryTimeoutResendsRequest(t *testing.T) {
	ep, sender, _, _ := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)
	before := len(sender.requests)

	ep.Tick(now.Add(ep.cfg.RetryTimeout + time.Millisecond))

	if len(sender.requests) != before+1 {
		t.Fatalf("expected a resend, got %d requests (before %d)", len(sender.requests), before)
	}
}

func TestOnEventFiresOnUploadComplete(t *testing.T) {
	ep, _, _, _ := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	var gotKind string
	var gotCount uint16
	ep.OnEvent(func(kind string, t mavmission.MissionType, count uint16, detail string) {
		gotKind = kind
		gotCount = count
	})

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)
	msg, err := item.Encode(waypointItem(1, 2), false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg.Addressed = addr
	msg.Seq = 0
	msg.MissionType = mavmission.TypeMission
	ep.HandleItem(msg, now)

	if gotKind != "upload-complete" || gotCount != 1 {
		t.Fatalf("got event (%q, %d), want (upload-complete, 1)", gotKind, gotCount)
	}
}

func TestFenceUploadHoldsNamespaceLockUntilAbort(t *testing.T) {
	ep, _, store, _ := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeFence}, now)

	locked := make(chan struct{})
	go func() {
		store.Lock(dataman.NamespaceFence)
		close(locked)
		store.Unlock(dataman.NamespaceFence)
	}()

	select {
	case <-locked:
		t.Fatal("expected fence namespace to stay locked during an in-progress fence upload")
	case <-time.After(20 * time.Millisecond):
	}

	ep.Abort()

	select {
	case <-locked:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected fence namespace lock to be released after Abort")
	}
}

func TestFenceVertexCountSanityCheck(t *testing.T) {
	ep, sender, _, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}
	reg.SetCount(mavmission.TypeFence, 4)

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeFence}, now)

	vertexItem := item.Item{
		NavCmd:      mavmission.CmdFencePolygonVertexInclusion,
		Frame:       mavmission.FrameGlobal,
		Lat:         1,
		Lon:         2,
		VertexCount: 2,
	}
	msg, err := item.Encode(vertexItem, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg.Addressed = addr
	msg.Seq = 0
	msg.MissionType = mavmission.TypeFence

	ep.HandleItem(msg, now)

	if ep.State() != StateIdle {
		t.Fatalf("state = %v, want IDLE after rejection", ep.State())
	}
	if sender.lastAck().Type != mavmission.AckError {
		t.Fatalf("ack = %v, want ERROR", sender.lastAck().Type)
	}
	if reg.Count(mavmission.TypeFence) != 0 {
		t.Fatalf("fence count after rejection = %d, want 0", reg.Count(mavmission.TypeFence))
	}
}

func TestUploadTracksCurrentSeq(t *testing.T) {
	ep, _, store, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	ep.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)

	it := waypointItem(1, 2)
	msg, err := item.Encode(it, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg.Addressed = addr
	msg.Seq = 0
	msg.MissionType = mavmission.TypeMission
	msg.Current = true
	ep.HandleItem(msg, now)

	if reg.CurrentSeq() != 0 {
		t.Fatalf("registry current seq = %d, want 0", reg.CurrentSeq())
	}

	ns := dataman.WaypointNamespace(reg.ActiveDatamanID())
	h, err := store.ReadHeader(ns)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.CurrentSeq != 0 {
		t.Fatalf("persisted header current seq = %d, want 0", h.CurrentSeq)
	}
}

func TestClearAllTogglesActiveDatamanID(t *testing.T) {
	ep, _, _, reg := newTestEndpoint(t)
	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	before := reg.ActiveDatamanID()

	ep.HandleClearAll(mavmission.ClearAllMsg{Addressed: addr, MissionType: mavmission.TypeAll}, now)

	if reg.ActiveDatamanID() == before {
		t.Fatal("expected clear-all to toggle the active dataman id even with count 0")
	}
	if reg.CurrentSeq() != 0 {
		t.Fatalf("registry current seq after clear-all = %d, want 0", reg.CurrentSeq())
	}
}

func TestSecondChannelCannotStealTransfer(t *testing.T) {
	store, err := dataman.Open(dataman.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("dataman.Open: %v", err)
	}
	defer store.Close()
	reg := registry.New()
	cfg := config.Default()

	senderA := &fakeSender{}
	senderB := &fakeSender{}
	epA := New("chan-a", cfg.SysID, cfg.CompID, senderA, store, reg, cfg)
	epB := New("chan-b", cfg.SysID, cfg.CompID, senderB, store, reg, cfg)

	now := time.Unix(1000, 0)
	addr := mavmission.Addressed{SenderSysID: 255, SenderCompID: 190, TargetSystem: 1, TargetComponent: 190}

	epA.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)
	epB.HandleCount(mavmission.CountMsg{Addressed: addr, Count: 1, MissionType: mavmission.TypeMission}, now)

	if epA.State() != StateGetList {
		t.Fatalf("chan-a state = %v, want GETLIST", epA.State())
	}
	if epB.State() != StateIdle {
		t.Fatalf("chan-b state = %v, want IDLE (rejected)", epB.State())
	}
	if senderB.lastAck().Type != mavmission.AckError {
		t.Fatalf("chan-b ack = %v, want ERROR", senderB.lastAck().Type)
	}
}
