package protocol

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Inbound event names. The server is the only producer; the client
// never synthesizes any of these locally.
const (
	// EVENT_WELCOME is sent once per connection and carries the
	// transient connection id later used for identity matching.
	EVENT_WELCOME = "welcome"
	// EVENT_ACK carries the reply to a command sent with an ack
	// expectation, correlated by seq. Routed inside the transport and
	// never surfaced to the session.
	EVENT_ACK = "ack"

	EVENT_ROSTER_UPDATED           = "roster-updated"
	EVENT_ROOM_SNAPSHOT_UPDATED    = "room-snapshot-updated"
	EVENT_GAME_STARTED             = "game-started"
	EVENT_ROUND_STARTED            = "round-started"
	EVENT_COMMENT_PHASE_STARTED    = "comment-phase-started"
	EVENT_COMMENT_ADDED            = "comment-added"
	EVENT_VOTE_PHASE_STARTED       = "vote-phase-started"
	EVENT_VOTE_CAST                = "vote-cast"
	EVENT_VOTING_CONCLUDED_EARLY   = "voting-concluded-early"
	EVENT_ROUND_RESULT             = "round-result"
	EVENT_IMPOSTOR_ELIMINATED      = "impostor-eliminated-early"
	EVENT_CONFIRMATION_UPDATED     = "confirmation-updated"
	EVENT_CONTINUE_POLL_UPDATED    = "continue-poll-updated"
	EVENT_END_POLL_UPDATED         = "end-poll-updated"
	EVENT_NEW_ROOM_CREATED         = "new-room-created"
	EVENT_WAITING_FOR_PLAYERS      = "waiting-for-players"
	EVENT_RETURN_TO_LOBBY          = "return-to-lobby"
	EVENT_GAME_ENDED               = "game-ended"
	EVENT_ERROR                    = "error"
)

// Event is the envelope every inbound message arrives in.
type Event struct {
	Name string          `json:"event"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type WelcomePayload struct {
	ConnectionID string `json:"connectionId"`
}

type CommentPhasePayload struct {
	Room       Room  `json:"room"`
	DurationMs int64 `json:"durationMs"`
}

type CommentAddedPayload struct {
	PlayerID      string `json:"playerId"`
	Text          string `json:"text"`
	AuthorName    string `json:"authorName"`
	TotalSoFar    int    `json:"totalSoFar"`
	ActivePlayers int    `json:"activePlayers"`
}

type VotePhasePayload struct {
	Comments     []Comment `json:"comments"`
	AlivePlayers []Player  `json:"alivePlayers"`
	DurationMs   int64     `json:"durationMs"`
}

type VoteCastPayload struct {
	VoterID       string `json:"voterId"`
	TotalVotes    int    `json:"totalVotes"`
	ActivePlayers int    `json:"activePlayers"`
}

type RoundResultPayload struct {
	EliminatedPlayer Player         `json:"eliminatedPlayer"`
	WasImpostor      bool           `json:"wasImpostor"`
	VoteTally        map[string]int `json:"voteTally"`
}

type ImpostorEliminatedPayload struct {
	Message         string     `json:"message"`
	AliveCount      int        `json:"aliveCount"`
	RevealedSubject Footballer `json:"revealedSubject"`
	Room            Room       `json:"room"`
}

type CountPayload struct {
	Count int `json:"count"`
}

type NewRoomPayload struct {
	Room    Room   `json:"room"`
	Message string `json:"message"`
}

type WaitingForPlayersPayload struct {
	Message string `json:"message"`
	Current int    `json:"current"`
	Needed  int    `json:"needed"`
}

type GameEndedPayload struct {
	Winner    string `json:"winner"`
	Reason    string `json:"reason"`
	FinalRoom Room   `json:"finalRoom"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// decode unmarshals an event payload, logging and reporting failure so
// callers can drop the event instead of acting on a zero value.
func decode(ev Event, out any) bool {
	if err := json.Unmarshal(ev.Data, out); err != nil {
		zap.L().Warn(
			"dropping event with malformed payload",
			zap.String("event", ev.Name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func TryUnwrapWelcome(ev Event) *WelcomePayload {
	if ev.Name != EVENT_WELCOME {
		return nil
	}
	var p WelcomePayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapRoster(ev Event) []Player {
	if ev.Name != EVENT_ROSTER_UPDATED {
		return nil
	}
	var players []Player
	if !decode(ev, &players) {
		return nil
	}
	return players
}

// TryUnwrapRoom decodes the events whose whole payload is a Room
// snapshot (room-snapshot-updated, game-started, round-started).
func TryUnwrapRoom(ev Event) *Room {
	switch ev.Name {
	case EVENT_ROOM_SNAPSHOT_UPDATED, EVENT_GAME_STARTED, EVENT_ROUND_STARTED:
	default:
		return nil
	}
	var room Room
	if !decode(ev, &room) {
		return nil
	}
	return &room
}

func TryUnwrapCommentPhase(ev Event) *CommentPhasePayload {
	if ev.Name != EVENT_COMMENT_PHASE_STARTED {
		return nil
	}
	var p CommentPhasePayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapCommentAdded(ev Event) *CommentAddedPayload {
	if ev.Name != EVENT_COMMENT_ADDED {
		return nil
	}
	var p CommentAddedPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapVotePhase(ev Event) *VotePhasePayload {
	if ev.Name != EVENT_VOTE_PHASE_STARTED {
		return nil
	}
	var p VotePhasePayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapVoteCast(ev Event) *VoteCastPayload {
	if ev.Name != EVENT_VOTE_CAST {
		return nil
	}
	var p VoteCastPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapRoundResult(ev Event) *RoundResultPayload {
	if ev.Name != EVENT_ROUND_RESULT {
		return nil
	}
	var p RoundResultPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapImpostorEliminated(ev Event) *ImpostorEliminatedPayload {
	if ev.Name != EVENT_IMPOSTOR_ELIMINATED {
		return nil
	}
	var p ImpostorEliminatedPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapCount(ev Event) *CountPayload {
	switch ev.Name {
	case EVENT_CONFIRMATION_UPDATED, EVENT_CONTINUE_POLL_UPDATED, EVENT_END_POLL_UPDATED:
	default:
		return nil
	}
	var p CountPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapNewRoom(ev Event) *NewRoomPayload {
	if ev.Name != EVENT_NEW_ROOM_CREATED {
		return nil
	}
	var p NewRoomPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapWaitingForPlayers(ev Event) *WaitingForPlayersPayload {
	if ev.Name != EVENT_WAITING_FOR_PLAYERS {
		return nil
	}
	var p WaitingForPlayersPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapGameEnded(ev Event) *GameEndedPayload {
	if ev.Name != EVENT_GAME_ENDED {
		return nil
	}
	var p GameEndedPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}

func TryUnwrapError(ev Event) *ErrorPayload {
	if ev.Name != EVENT_ERROR {
		return nil
	}
	var p ErrorPayload
	if !decode(ev, &p) {
		return nil
	}
	return &p
}
