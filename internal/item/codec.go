package item

import (
	"github.com/pkg/errors"

	"github.com/tiiuae/mission-microservice/internal/mavmission"
)

// Decode maps a wire item onto the internal record (spec §4.3). The
// returned AckStatus is AckAccepted on success; when err != nil it is one
// of AckUnsupportedFrame / AckUnsupported.
func Decode(msg mavmission.ItemMsg) (Item, mavmission.AckStatus, error) {
	switch msg.Frame {
	case mavmission.FrameGlobal, mavmission.FrameGlobalRelativeAlt,
		mavmission.FrameGlobalInt, mavmission.FrameGlobalRelativeAltInt:
		return decodeGeographic(msg)
	case mavmission.FrameMission:
		return decodeNonGeographic(msg)
	default:
		return Item{}, mavmission.AckUnsupportedFrame, errors.Errorf("unsupported frame %d", msg.Frame)
	}
}

func decodeGeographic(msg mavmission.ItemMsg) (Item, mavmission.AckStatus, error) {
	it := Item{
		Frame:    msg.Frame,
		Lat:      msg.Lat(),
		Lon:      msg.Lon(),
		Altitude: msg.Z,
		AltitudeRelative: msg.Frame == mavmission.FrameGlobalRelativeAlt ||
			msg.Frame == mavmission.FrameGlobalRelativeAltInt,
		Autocontinue: msg.Autocontinue,
		Origin:       mavmission.OriginMavlink,
	}

	// time_inside doubles as pitch_min/circle_radius in the wire struct;
	// zero it first and let the command-specific branch below set it.
	it.TimeInside = 0

	switch msg.Command {
	case mavmission.CmdWaypoint:
		it.NavCmd = mavmission.CmdWaypoint
		it.TimeInside = msg.Param1
		it.AcceptanceRadius = msg.Param2
		it.Yaw = wrapPi(msg.Param4 * degToRad)

	case mavmission.CmdLoiterUnlimited:
		it.NavCmd = mavmission.CmdLoiterUnlimited
		it.LoiterRadius = msg.Param3
		it.Yaw = wrapPi(msg.Param4 * degToRad)

	case mavmission.CmdLoiterTime:
		it.NavCmd = mavmission.CmdLoiterTime
		it.TimeInside = msg.Param1
		it.LoiterRadius = msg.Param3
		it.LoiterExitXtrack = msg.Param4 > 0

	case mavmission.CmdLand:
		it.NavCmd = mavmission.CmdLand
		// param1 (abort altitude) is intentionally not carried, see
		// DESIGN.md open question (a).
		it.Yaw = wrapPi(msg.Param4 * degToRad)

	case mavmission.CmdTakeoff:
		it.NavCmd = mavmission.CmdTakeoff
		it.PitchMin = msg.Param1
		it.Yaw = wrapPi(msg.Param4 * degToRad)

	case mavmission.CmdLoiterToAlt:
		it.NavCmd = mavmission.CmdLoiterToAlt
		it.ForceHeading = msg.Param1 > 0
		it.LoiterRadius = msg.Param2
		it.LoiterExitXtrack = msg.Param4 > 0

	case mavmission.CmdVtolTakeoff, mavmission.CmdVtolLand:
		it.NavCmd = msg.Command
		it.Yaw = wrapPi(msg.Param4 * degToRad)

	case mavmission.CmdFenceReturnPoint:
		it.NavCmd = msg.Command

	case mavmission.CmdFencePolygonVertexInclusion, mavmission.CmdFencePolygonVertexExclusion:
		it.NavCmd = msg.Command
		it.VertexCount = uint16(msg.Param1 + 0.5)

	case mavmission.CmdFenceCircleInclusion, mavmission.CmdFenceCircleExclusion:
		it.NavCmd = msg.Command
		it.CircleRadius = msg.Param1

	case mavmission.CmdRallyPoint:
		it.NavCmd = msg.Command

	default:
		return Item{}, mavmission.AckUnsupported, errors.Errorf("unsupported command %d", msg.Command)
	}

	return it, mavmission.AckAccepted, nil
}

// nonGeographicAllowList are commands that pass through as opaque param
// bundles with no per-field mapping (spec §4.3).
var nonGeographicAllowList = map[mavmission.NavCommand]struct{}{
	mavmission.CmdDoChangeSpeed:         {},
	mavmission.CmdDoSetServo:            {},
	mavmission.CmdDoLandStart:           {},
	mavmission.CmdDoTriggerControl:      {},
	mavmission.CmdDoDigicamControl:      {},
	mavmission.CmdDoMountConfigure:      {},
	mavmission.CmdDoMountControl:        {},
	mavmission.CmdImageStartCapture:     {},
	mavmission.CmdImageStopCapture:      {},
	mavmission.CmdVideoStartCapture:     {},
	mavmission.CmdVideoStopCapture:      {},
	mavmission.CmdDoSetROI:              {},
	mavmission.CmdDoSetCamTriggDist:     {},
	mavmission.CmdDoSetCamTriggInterval: {},
	mavmission.CmdSetCameraMode:         {},
	mavmission.CmdDoVtolTransition:      {},
	mavmission.CmdDelay:                 {},
	mavmission.CmdReturnToLaunch:        {},
}

func decodeNonGeographic(msg mavmission.ItemMsg) (Item, mavmission.AckStatus, error) {
	it := Item{
		Frame:        mavmission.FrameMission,
		Autocontinue: msg.Autocontinue,
		Origin:       mavmission.OriginMavlink,
	}
	it.Params = [7]float32{msg.Param1, msg.Param2, msg.Param3, msg.Param4, msg.X, msg.Y, msg.Z}

	switch msg.Command {
	case mavmission.CmdDoJump:
		it.NavCmd = mavmission.CmdDoJump
		it.DoJumpMissionIndex = int32(msg.Param1)
		it.DoJumpRepeatCount = int32(msg.Param2)
		it.DoJumpCurrentCount = 0

	default:
		if _, ok := nonGeographicAllowList[msg.Command]; !ok {
			return Item{}, mavmission.AckUnsupported, errors.Errorf("unsupported command %d", msg.Command)
		}
		it.NavCmd = msg.Command
	}

	return it, mavmission.AckAccepted, nil
}

// Encode maps the internal record back onto a wire item (spec §4.3).
// intMode selects GLOBAL_INT/GLOBAL_RELATIVE_ALT_INT vs GLOBAL/GLOBAL_RELATIVE_ALT
// for geographic items; it has no effect on MISSION-frame items.
func Encode(it Item, intMode bool) (mavmission.ItemMsg, error) {
	msg := mavmission.ItemMsg{
		Command:      it.NavCmd,
		Autocontinue: it.Autocontinue,
		IntMode:      intMode,
	}

	if it.Frame == mavmission.FrameMission {
		return encodeNonGeographic(it, msg)
	}
	return encodeGeographic(it, msg, intMode)
}

func encodeGeographic(it Item, msg mavmission.ItemMsg, intMode bool) (mavmission.ItemMsg, error) {
	if it.AltitudeRelative {
		if intMode {
			msg.Frame = mavmission.FrameGlobalRelativeAltInt
		} else {
			msg.Frame = mavmission.FrameGlobalRelativeAlt
		}
	} else {
		if intMode {
			msg.Frame = mavmission.FrameGlobalInt
		} else {
			msg.Frame = mavmission.FrameGlobal
		}
	}

	if intMode {
		msg.XInt = int32(it.Lat * 1e7)
		msg.YInt = int32(it.Lon * 1e7)
	} else {
		msg.X = float32(it.Lat)
		msg.Y = float32(it.Lon)
	}
	msg.Z = it.Altitude

	switch it.NavCmd {
	case mavmission.CmdWaypoint:
		msg.Param1 = it.TimeInside
		msg.Param2 = it.AcceptanceRadius
		msg.Param4 = it.Yaw * radToDeg

	case mavmission.CmdLoiterUnlimited:
		msg.Param3 = it.LoiterRadius
		msg.Param4 = it.Yaw * radToDeg

	case mavmission.CmdLoiterTime:
		msg.Param1 = it.TimeInside
		msg.Param3 = it.LoiterRadius
		if it.LoiterExitXtrack {
			msg.Param4 = 1
		}

	case mavmission.CmdLand:
		msg.Param4 = it.Yaw * radToDeg

	case mavmission.CmdTakeoff:
		msg.Param1 = it.PitchMin
		msg.Param4 = it.Yaw * radToDeg

	case mavmission.CmdLoiterToAlt:
		if it.ForceHeading {
			msg.Param1 = 1
		}
		msg.Param2 = it.LoiterRadius
		if it.LoiterExitXtrack {
			msg.Param4 = 1
		}

	case mavmission.CmdVtolTakeoff, mavmission.CmdVtolLand:
		msg.Param4 = it.Yaw * radToDeg

	case mavmission.CmdFenceReturnPoint, mavmission.CmdRallyPoint:
		// no parameters

	case mavmission.CmdFencePolygonVertexInclusion, mavmission.CmdFencePolygonVertexExclusion:
		msg.Param1 = float32(it.VertexCount)

	case mavmission.CmdFenceCircleInclusion, mavmission.CmdFenceCircleExclusion:
		msg.Param1 = it.CircleRadius

	default:
		return mavmission.ItemMsg{}, errors.Errorf("cannot encode unknown command %d", it.NavCmd)
	}

	return msg, nil
}

func encodeNonGeographic(it Item, msg mavmission.ItemMsg) (mavmission.ItemMsg, error) {
	msg.Frame = mavmission.FrameMission
	msg.Param1 = it.Params[0]
	msg.Param2 = it.Params[1]
	msg.Param3 = it.Params[2]
	msg.Param4 = it.Params[3]
	msg.X = it.Params[4]
	msg.Y = it.Params[5]
	msg.Z = it.Params[6]

	switch it.NavCmd {
	case mavmission.CmdDoJump:
		msg.Param1 = float32(it.DoJumpMissionIndex)
		msg.Param2 = float32(it.DoJumpRepeatCount)

	default:
		if _, ok := nonGeographicAllowList[it.NavCmd]; !ok {
			return mavmission.ItemMsg{}, errors.Errorf("cannot encode unknown command %d", it.NavCmd)
		}
	}

	return msg, nil
}
