package mavmission

// Sender is the outbound port this service drives; the concrete
// implementation (serializing to wire bytes and handing them to the
// transport multiplexer) lives outside this repository's scope per
// spec §1. Send must be non-blocking: a full/backed-up channel drops
// the message, which the retry timer recovers from (spec §5).
type Sender interface {
	SendCount(sysid, compid uint8, count uint16, t MissionType)
	SendRequest(sysid, compid uint8, seq uint16, t MissionType, intMode bool)
	SendItem(sysid, compid uint8, item ItemMsg)
	SendAck(sysid, compid uint8, status AckStatus, t MissionType)
	SendCurrent(seq uint16)
	SendItemReached(seq uint16)
	SendStatusText(critical bool, text string)
}

// MissionResult mirrors the fields of the mission_result topic consumed
// by the progress publisher (spec §4.5).
type MissionResult struct {
	SeqCurrent          int32
	SeqReached          int32
	Reached             bool
	Valid               bool
	ItemDoJumpChanged   bool
	ItemChangedIndex    uint16
}
