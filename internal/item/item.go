// Package item implements the internal mission item record and the
// bidirectional mapping to the MAVLink wire representation (spec §4.3).
package item

import "github.com/tiiuae/mission-microservice/internal/mavmission"

// Item is the internal union record (spec §3). Only the fields relevant
// to a given NavCmd/Frame combination are meaningful; the codec in
// codec.go is the single place that knows which.
type Item struct {
	NavCmd   mavmission.NavCommand
	Frame    mavmission.Frame

	Lat, Lon         float64
	Altitude         float32
	AltitudeRelative bool

	TimeInside        float32
	AcceptanceRadius  float32
	LoiterRadius      float32
	LoiterExitXtrack  bool
	ForceHeading      bool
	PitchMin          float32
	Yaw               float32 // radians, wrapped to (-pi, pi]

	VertexCount  uint16
	CircleRadius float32

	DoJumpMissionIndex int32
	DoJumpRepeatCount  int32
	DoJumpCurrentCount int32

	Autocontinue bool
	Origin       mavmission.OriginTag

	// Params holds the seven raw wire fields for MISSION-frame items
	// (param1..4, x, y, z in that order), used only when Frame == FrameMission.
	Params [7]float32
}

func isFenceOrRallyCommand(cmd mavmission.NavCommand) bool {
	switch cmd {
	case mavmission.CmdFencePolygonVertexInclusion,
		mavmission.CmdFencePolygonVertexExclusion,
		mavmission.CmdFenceCircleInclusion,
		mavmission.CmdFenceCircleExclusion,
		mavmission.CmdRallyPoint:
		return true
	default:
		return false
	}
}

// IsFenceOrRallyCommand reports whether cmd belongs to the fence/rally
// vocabulary, used by missionproto's cross-type hardening check
// (spec §4.3, "Cross-type hardening").
func IsFenceOrRallyCommand(cmd mavmission.NavCommand) bool {
	return isFenceOrRallyCommand(cmd)
}

// wrapPi wraps radians to (-pi, pi], matching the original's _wrap_pi.
func wrapPi(v float32) float32 {
	const twoPi = 2 * 3.14159265358979323846
	for v > 3.14159265358979323846 {
		v -= twoPi
	}
	for v <= -3.14159265358979323846 {
		v += twoPi
	}
	return v
}

const degToRad = 3.14159265358979323846 / 180.0
const radToDeg = 180.0 / 3.14159265358979323846
