package protocol

// MaxCommentLen is the comment length cap enforced client-side before
// anything hits the wire. The server applies its own limit as well.
const MaxCommentLen = 200

// Roster bounds enforced by the server when the host starts a game.
// The client mirrors them only to pre-disable controls.
const (
	MinPlayers = 3
	MaxPlayers = 6
)

// Player is one roster entry. ID is stable across reconnects within a
// game; ConnectionID is the transient transport identifier and is what
// the client matches against its own connection to find itself.
type Player struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
	// IsImpostor is only ever populated for the local player (or after
	// elimination); the server never leaks it for others.
	IsImpostor bool `json:"isImpostor,omitempty"`
	Eliminated bool `json:"eliminated"`
}

// Footballer is the secret subject of a game: the player everyone but
// the impostor gets shown.
type Footballer struct {
	Name        string `json:"name"`
	FullName    string `json:"fullName,omitempty"`
	Position    string `json:"position,omitempty"`
	Nationality string `json:"nationality,omitempty"`
	BirthDate   string `json:"birthDate,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

type Comment struct {
	PlayerID   string `json:"playerId"`
	AuthorName string `json:"authorName"`
	Text       string `json:"text"`
}

// Round is one reveal-comment-vote-eliminate iteration.
type Round struct {
	Number             int        `json:"number"`
	Subject            Footballer `json:"subject"`
	Comments           []Comment  `json:"comments,omitempty"`
	EliminatedPlayerID string     `json:"eliminatedPlayerId,omitempty"`
}

// Room is the authoritative snapshot pushed by the server. Players keep
// join order; Players[0] is the host. CurrentRound is 1-based.
type Room struct {
	Code         string   `json:"code"`
	Players      []Player `json:"players"`
	CurrentRound int      `json:"currentRound"`
	RoundHistory []Round  `json:"roundHistory,omitempty"`
}

// ActiveRound returns the round the room is currently playing, or nil
// when the history does not cover CurrentRound yet.
func (r *Room) ActiveRound() *Round {
	if r == nil || r.CurrentRound < 1 || r.CurrentRound > len(r.RoundHistory) {
		return nil
	}
	return &r.RoundHistory[r.CurrentRound-1]
}

// FindPlayer returns the roster entry with the given id, or nil.
func (r *Room) FindPlayer(id string) *Player {
	if r == nil {
		return nil
	}
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// FindByConnection returns the roster entry bound to the given
// transport connection id, or nil.
func (r *Room) FindByConnection(connID string) *Player {
	if r == nil {
		return nil
	}
	for i := range r.Players {
		if r.Players[i].ConnectionID == connID {
			return &r.Players[i]
		}
	}
	return nil
}

// AliveCount counts non-eliminated players.
func (r *Room) AliveCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for i := range r.Players {
		if !r.Players[i].Eliminated {
			n++
		}
	}
	return n
}

// Winner values carried by the game-ended event.
const (
	WinnerPlayers  = "players"
	WinnerImpostor = "impostor"
)

// Reason values carried by the game-ended event.
const (
	ReasonImpostorEliminated = "impostor_eliminated"
	ReasonAllEliminated      = "all_eliminated"
	ReasonTooFewPlayers      = "too_few_players"
)
