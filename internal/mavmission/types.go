// Package mavmission holds the wire-level vocabulary of the MAVLink
// mission sub-protocol: the enums and message structs the transfer state
// machine in internal/missionproto dispatches on. The frame/codec layer
// that turns raw MAVLink bytes into these structs is an external
// collaborator (see spec §1) and is not implemented here.
package mavmission

// MissionType selects which of the three ordered lists a message concerns.
type MissionType uint8

const (
	TypeMission MissionType = 0
	TypeFence   MissionType = 1
	TypeRally   MissionType = 2
	TypeAll     MissionType = 3 // only valid on CLEAR_ALL
)

func (t MissionType) String() string {
	switch t {
	case TypeMission:
		return "MISSION"
	case TypeFence:
		return "FENCE"
	case TypeRally:
		return "RALLY"
	case TypeAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether t is one of the three addressable list types
// (i.e. everything except TypeAll, which is a clear-only marker).
func (t MissionType) Valid() bool {
	return t == TypeMission || t == TypeFence || t == TypeRally
}

// Frame mirrors MAV_FRAME values relevant to mission items.
type Frame uint8

const (
	FrameGlobal                Frame = 0
	FrameGlobalRelativeAlt     Frame = 3
	FrameMission               Frame = 2
	FrameGlobalInt             Frame = 5
	FrameGlobalRelativeAltInt  Frame = 6
)

// AckStatus mirrors MAV_MISSION_RESULT.
type AckStatus uint8

const (
	AckAccepted          AckStatus = 0
	AckError             AckStatus = 1
	AckUnsupportedFrame  AckStatus = 2
	AckUnsupported       AckStatus = 3
	AckNoSpace           AckStatus = 6
	AckInvalidSequence   AckStatus = 11
)

func (s AckStatus) String() string {
	switch s {
	case AckAccepted:
		return "ACCEPTED"
	case AckError:
		return "ERROR"
	case AckUnsupportedFrame:
		return "UNSUPPORTED_FRAME"
	case AckUnsupported:
		return "UNSUPPORTED"
	case AckNoSpace:
		return "NO_SPACE"
	case AckInvalidSequence:
		return "INVALID_SEQUENCE"
	default:
		return "UNKNOWN"
	}
}

// NavCommand mirrors the subset of MAV_CMD values this service
// understands. Values follow the conventional MAVLink common.xml
// numbering where known; since the wire codec is an external
// collaborator (spec §1), only internal consistency is required.
type NavCommand int32

const (
	CmdInvalid NavCommand = -1

	CmdWaypoint          NavCommand = 16
	CmdLoiterUnlimited   NavCommand = 17
	CmdLoiterTime        NavCommand = 19
	CmdReturnToLaunch    NavCommand = 20
	CmdLand              NavCommand = 21
	CmdTakeoff           NavCommand = 22
	CmdLoiterToAlt       NavCommand = 31
	CmdVtolTakeoff       NavCommand = 84
	CmdVtolLand          NavCommand = 85
	CmdDelay             NavCommand = 93

	CmdDoJump               NavCommand = 177
	CmdDoChangeSpeed        NavCommand = 178
	CmdDoSetServo           NavCommand = 183
	CmdDoSetROI             NavCommand = 201
	CmdDoDigicamControl     NavCommand = 203
	CmdDoMountConfigure     NavCommand = 204
	CmdDoMountControl       NavCommand = 205
	CmdDoSetCamTriggDist    NavCommand = 206
	CmdDoLandStart          NavCommand = 189
	CmdDoTriggerControl     NavCommand = 2003
	CmdDoSetCamTriggInterval NavCommand = 214
	CmdSetCameraMode        NavCommand = 530
	CmdDoVtolTransition     NavCommand = 3000
	CmdImageStartCapture    NavCommand = 2000
	CmdImageStopCapture     NavCommand = 2001
	CmdVideoStartCapture    NavCommand = 2500
	CmdVideoStopCapture     NavCommand = 2501

	CmdFenceReturnPoint             NavCommand = 5000
	CmdFencePolygonVertexInclusion  NavCommand = 5001
	CmdFencePolygonVertexExclusion  NavCommand = 5002
	CmdFenceCircleInclusion         NavCommand = 5003
	CmdFenceCircleExclusion         NavCommand = 5004
	CmdRallyPoint                   NavCommand = 5100
)

// OriginTag records where an item came from, matching the original's
// ORIGIN_MAVLINK marker (only one origin is modeled — items injected by
// other means are out of this service's scope).
type OriginTag uint8

const OriginMavlink OriginTag = 1

// Component id constants used by the sysid/compid accept-gate (spec §6).
const (
	CompIDMissionPlanner uint8 = 190
	CompIDAll            uint8 = 0
)
