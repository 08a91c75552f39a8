package session

import (
	"sort"

	"github.com/Esaban17/impostor-app/internal/protocol"
)

// PlaceholderImageURL substitutes for a missing or broken subject
// image. Asset failures never propagate into game state.
const PlaceholderImageURL = "https://via.placeholder.com/200x200/cccccc/666666?text=Sin+Imagen"

// TallyEntry is one row of the vote breakdown, ready for display.
type TallyEntry struct {
	PlayerID string
	Name     string
	Votes    int
	// Eliminated marks the entry belonging to the eliminated player.
	Eliminated bool
}

// RoundView is everything the Result screen needs for a normal round
// outcome. Derived facts only; the authoritative facts all came from
// the server.
type RoundView struct {
	EliminatedName string
	WasImpostor    bool
	// YouWereEliminated is true when the viewing player is the one who
	// got voted out.
	YouWereEliminated bool
	AliveCount        int
	Tally             []TallyEntry
}

// RevealView presents the special "impostor eliminated early" outcome
// with the disclosed subject and the two post-outcome poll tallies.
type RevealView struct {
	Message       string
	AliveCount    int
	Subject       protocol.Footballer
	SubjectImage  string
	Spectating    bool
	ContinueVotes int
	EndVotes      int
}

// HistoryEntry is one line of the final round-by-round summary.
type HistoryEntry struct {
	RoundNumber    int
	EliminatedName string
}

// FinalView is the terminal screen's data: winner, reason and the
// elimination history read strictly from the room's round history.
type FinalView struct {
	WinnerLabel string
	ReasonText  string
	History     []HistoryEntry
}

// ResolveRound derives the display facts for a round-result payload.
// The tally is sorted by votes descending; ties keep the server's
// roster order, which requires a stable sort.
func ResolveRound(
	room *protocol.Room,
	localPlayerID string,
	res *protocol.RoundResultPayload,
) RoundView {
	view := RoundView{
		EliminatedName:    res.EliminatedPlayer.Name,
		WasImpostor:       res.WasImpostor,
		YouWereEliminated: res.EliminatedPlayer.ID == localPlayerID,
		AliveCount:        room.AliveCount(),
	}

	if room != nil {
		for i := range room.Players {
			p := &room.Players[i]
			votes, ok := res.VoteTally[p.ID]
			if !ok {
				continue
			}
			view.Tally = append(view.Tally, TallyEntry{
				PlayerID:   p.ID,
				Name:       p.Name,
				Votes:      votes,
				Eliminated: p.ID == res.EliminatedPlayer.ID,
			})
		}
	}

	sort.SliceStable(view.Tally, func(i, j int) bool {
		return view.Tally[i].Votes > view.Tally[j].Votes
	})

	return view
}

// ResolveReveal derives the display facts for the impostor-eliminated
// branch, including the poll counters accumulated so far.
func ResolveReveal(
	room *protocol.Room,
	localPlayerID string,
	p *protocol.ImpostorEliminatedPayload,
	continueVotes, endVotes int,
) RevealView {
	spectating := false
	if self := room.FindPlayer(localPlayerID); self != nil {
		spectating = self.Eliminated
	}

	return RevealView{
		Message:       p.Message,
		AliveCount:    p.AliveCount,
		Subject:       p.RevealedSubject,
		SubjectImage:  SubjectImageURL(p.RevealedSubject),
		Spectating:    spectating,
		ContinueVotes: continueVotes,
		EndVotes:      endVotes,
	}
}

// ResolveFinal builds the terminal summary. Winner logic is never
// recomputed locally; only the server's verdict is rendered.
func ResolveFinal(room *protocol.Room, final *protocol.GameEndedPayload) FinalView {
	view := FinalView{
		WinnerLabel: winnerLabel(final.Winner),
		ReasonText:  reasonText(final.Reason),
	}

	if room == nil {
		return view
	}

	for _, round := range room.RoundHistory {
		entry := HistoryEntry{RoundNumber: round.Number}
		if p := room.FindPlayer(round.EliminatedPlayerID); p != nil {
			entry.EliminatedName = p.Name
		}
		view.History = append(view.History, entry)
	}

	return view
}

// SubjectImageURL returns the subject's image URL or the placeholder
// when the asset is absent.
func SubjectImageURL(f protocol.Footballer) string {
	if f.ImageURL == "" {
		return PlaceholderImageURL
	}
	return f.ImageURL
}

func winnerLabel(winner string) string {
	switch winner {
	case protocol.WinnerImpostor:
		return "El Impostor"
	case protocol.WinnerPlayers:
		return "Los Jugadores"
	default:
		return winner
	}
}

func reasonText(reason string) string {
	switch reason {
	case protocol.ReasonImpostorEliminated:
		return "El impostor fue eliminado"
	case protocol.ReasonAllEliminated:
		return "El impostor eliminó a todos"
	case protocol.ReasonTooFewPlayers:
		return "Quedan muy pocos jugadores"
	default:
		return reason
	}
}
