package session

// Phase is the room-wide stage of play. It is a single authoritative
// value broadcast by the server; the client never advances it locally.
type Phase string

const (
	PhaseLobby   Phase = "Lobby"
	PhaseComment Phase = "Comment"
	PhaseVote    Phase = "Vote"
	PhaseResult  Phase = "Result"
	PhaseFinal   Phase = "Final"
)

func (p Phase) String() string {
	return string(p)
}

// CanTransitionTo reports whether moving to target is an expected
// transition. The server stays authoritative either way: the machine
// follows its events and only uses this table to flag surprises, since
// a reconnecting client may legitimately skip phases.
func (p Phase) CanTransitionTo(target Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseLobby:   {PhaseComment},
		PhaseComment: {PhaseComment, PhaseVote, PhaseLobby},
		PhaseVote:    {PhaseResult, PhaseLobby},
		// Result reaches Final directly when the end-game event fires,
		// Comment on the next round, and Lobby after the post-impostor
		// poll or a hard reset.
		PhaseResult: {PhaseComment, PhaseResult, PhaseFinal, PhaseLobby},
		PhaseFinal:  {PhaseLobby},
	}

	for _, next := range validTransitions[p] {
		if next == target {
			return true
		}
	}
	return false
}
