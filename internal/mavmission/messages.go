package mavmission

// Addressed is embedded by every inbound message that carries a
// target sysid/compid pair, mirroring CHECK_SYSID_COMPID_MISSION in
// mavlink_mission.cpp.
type Addressed struct {
	SenderSysID    uint8
	SenderCompID   uint8
	TargetSystem   uint8
	TargetComponent uint8
}

// Accepted reports whether this endpoint (identified by sysid/compid)
// should process the message, per spec §6.
func (a Addressed) Accepted(ourSysID, ourCompID uint8) bool {
	if a.TargetSystem != ourSysID {
		return false
	}
	return a.TargetComponent == ourCompID ||
		a.TargetComponent == CompIDMissionPlanner ||
		a.TargetComponent == CompIDAll
}

// RequestListMsg is MISSION_REQUEST_LIST.
type RequestListMsg struct {
	Addressed
	MissionType MissionType
}

// CountMsg is MISSION_COUNT, sent both as a download announcement and
// as the upload-initiating message from the GCS.
type CountMsg struct {
	Addressed
	Count       uint16
	MissionType MissionType
}

// RequestMsg is MISSION_REQUEST or MISSION_REQUEST_INT; IntMode records
// which wire variant this was decoded from (spec §4.2's "one sum-typed
// variant" design note).
type RequestMsg struct {
	Addressed
	Seq         uint16
	MissionType MissionType
	IntMode     bool
}

// ItemMsg is MISSION_ITEM or MISSION_ITEM_INT.
type ItemMsg struct {
	Addressed
	Seq           uint16
	MissionType   MissionType
	Frame         Frame
	Command       NavCommand
	Current       bool
	Autocontinue  bool
	IntMode       bool

	// Float-mode coordinates (degrees). Only one of the X/Y pairs below
	// is populated depending on IntMode, set by the (external) codec
	// layer that decoded the raw wire message.
	X float32 // float mode: degrees
	Y float32 // float mode: degrees
	// Int-mode coordinates (degrees * 1e7).
	XInt int32
	YInt int32
	Z    float32 // altitude metres, always float

	Param1, Param2, Param3, Param4 float32
}

// Lat returns the decoded latitude in degrees given IntMode.
func (m ItemMsg) Lat() float64 {
	if m.IntMode {
		return float64(m.XInt) * 1e-7
	}
	return float64(m.X)
}

// Lon returns the decoded longitude in degrees given IntMode.
func (m ItemMsg) Lon() float64 {
	if m.IntMode {
		return float64(m.YInt) * 1e-7
	}
	return float64(m.Y)
}

// AckMsg is MISSION_ACK.
type AckMsg struct {
	Addressed
	Type        AckStatus
	MissionType MissionType
}

// SetCurrentMsg is MISSION_SET_CURRENT.
type SetCurrentMsg struct {
	Addressed
	Seq uint16
}

// ClearAllMsg is MISSION_CLEAR_ALL.
type ClearAllMsg struct {
	Addressed
	MissionType MissionType
}

// CurrentOut is the outbound MISSION_CURRENT.
type CurrentOut struct {
	Seq uint16
}

// ItemReachedOut is the outbound MISSION_ITEM_REACHED.
type ItemReachedOut struct {
	Seq uint16
}

// StatusTextOut is a free-form critical status text, best-effort (spec §7).
type StatusTextOut struct {
	Critical bool
	Text     string
}
