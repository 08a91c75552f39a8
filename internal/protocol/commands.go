package protocol

import "encoding/json"

// Outbound command names. The server validates every one of these
// again; client-side checks only exist to keep the UI honest.
const (
	CMD_CREATE_ROOM        = "create-room"
	CMD_JOIN_ROOM          = "join-room"
	CMD_START_GAME         = "start-game"
	CMD_SUBMIT_COMMENT     = "submit-comment"
	CMD_CAST_VOTE          = "cast-vote"
	CMD_CONFIRM_NEXT_ROUND = "confirm-next-round"
	CMD_POLL_CONTINUE      = "poll-continue"
	CMD_POLL_END           = "poll-end"
)

// Command is the envelope every outbound message is sent in. Seq is
// assigned by the transport when the caller expects an ack.
type Command struct {
	Name string `json:"command"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data,omitempty"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type JoinRoomRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type StartGameRequest struct {
	Code string `json:"code"`
}

type SubmitCommentRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

type CastVoteRequest struct {
	Code      string `json:"code"`
	VoterID   string `json:"voterId"`
	SuspectID string `json:"suspectId"`
}

// PlayerActionRequest covers the commands that only name the acting
// player: confirm-next-round, poll-continue and poll-end.
type PlayerActionRequest struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

// RoomAck is the reply to create-room and join-room. Exactly one of
// Room and Error is populated.
type RoomAck struct {
	Room  *Room  `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

// StartAck is the reply to start-game.
type StartAck struct {
	Error string `json:"error,omitempty"`
}

func DecodeRoomAck(raw json.RawMessage) (*RoomAck, error) {
	var ack RoomAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func DecodeStartAck(raw json.RawMessage) (*StartAck, error) {
	var ack StartAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
