package registry

import (
	"testing"

	"github.com/tiiuae/mission-microservice/internal/mavmission"
)

func TestNewRegistryInitialState(t *testing.T) {
	r := New()
	if r.CurrentSeq() != -1 || r.LastReached() != -1 {
		t.Fatalf("expected -1 sentinels, got current=%d last=%d", r.CurrentSeq(), r.LastReached())
	}
	if r.ActiveDatamanID() != 0 {
		t.Fatalf("expected buffer 0 active, got %d", r.ActiveDatamanID())
	}
	if r.InTransfer() {
		t.Fatal("expected no transfer in progress initially")
	}
}

func TestSwapActiveDatamanIDAlternates(t *testing.T) {
	r := New()
	if got := r.SwapActiveDatamanID(); got != 1 {
		t.Fatalf("first swap = %d, want 1", got)
	}
	if got := r.SwapActiveDatamanID(); got != 0 {
		t.Fatalf("second swap = %d, want 0", got)
	}
}

func TestCountPerType(t *testing.T) {
	r := New()
	r.SetCount(mavmission.TypeFence, 7)
	if r.Count(mavmission.TypeFence) != 7 {
		t.Fatalf("fence count = %d, want 7", r.Count(mavmission.TypeFence))
	}
	if r.Count(mavmission.TypeMission) != 0 {
		t.Fatalf("mission count = %d, want 0", r.Count(mavmission.TypeMission))
	}
}

func TestTransferSlotIsExclusiveAcrossChannels(t *testing.T) {
	r := New()
	if !r.TryBeginTransfer("chan-a") {
		t.Fatal("chan-a should claim the free slot")
	}
	if r.TryBeginTransfer("chan-b") {
		t.Fatal("chan-b should not be able to claim an already-owned slot")
	}

	// chan-b cannot release chan-a's claim.
	r.EndTransfer("chan-b")
	if !r.InTransfer() {
		t.Fatal("chan-a's transfer should still be in progress")
	}

	r.EndTransfer("chan-a")
	if r.InTransfer() {
		t.Fatal("transfer slot should be free after the owner ends it")
	}
	if !r.TryBeginTransfer("chan-b") {
		t.Fatal("chan-b should be able to claim the slot once free")
	}
}

func TestGeofenceUpdateCounterIncrements(t *testing.T) {
	r := New()
	if r.GeofenceUpdateCounter() != 0 {
		t.Fatal("expected counter to start at 0")
	}
	if r.BumpGeofenceUpdateCounter() != 1 {
		t.Fatal("expected first bump to return 1")
	}
	if r.GeofenceUpdateCounter() != 1 {
		t.Fatal("expected counter to read back 1")
	}
}
