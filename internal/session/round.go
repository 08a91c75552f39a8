package session

import (
	"sync"

	"github.com/Esaban17/impostor-app/internal/protocol"
)

// RoundData accumulates the transient per-round view: comments in
// arrival order, the display vote tally, and the display-only counters
// the server pushes during a round. It is discarded wholesale on every
// Comment-phase entry.
type RoundData struct {
	mu sync.RWMutex

	comments  []protocol.Comment
	voteTally map[string]int

	votesCast     int
	confirmations int
	continueVotes int
	endVotes      int
}

func NewRoundData() *RoundData {
	return &RoundData{}
}

// AppendComment stores a comment, preserving arrival order. A second
// comment from the same player is a no-op; the first one wins.
func (rd *RoundData) AppendComment(c protocol.Comment) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	for i := range rd.comments {
		if rd.comments[i].PlayerID == c.PlayerID {
			return
		}
	}

	rd.comments = append(rd.comments, c)
}

// SetComments replaces the list with the server's canonical set, used
// when the Vote phase hands down the comments to vote on. The server's
// order wins even when it differs from what accumulated locally.
func (rd *RoundData) SetComments(list []protocol.Comment) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.comments = append([]protocol.Comment(nil), list...)
}

func (rd *RoundData) Comments() []protocol.Comment {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	return append([]protocol.Comment(nil), rd.comments...)
}

// CommentBy returns this player's comment for the active round, if any.
func (rd *RoundData) CommentBy(playerID string) *protocol.Comment {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	for i := range rd.comments {
		if rd.comments[i].PlayerID == playerID {
			cp := rd.comments[i]
			return &cp
		}
	}
	return nil
}

// RecordVoteTally replaces the display tally wholesale. The client
// never computes a tally itself.
func (rd *RoundData) RecordVoteTally(counts map[string]int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.voteTally = make(map[string]int, len(counts))
	for id, n := range counts {
		rd.voteTally[id] = n
	}
}

func (rd *RoundData) VoteTally() map[string]int {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	out := make(map[string]int, len(rd.voteTally))
	for id, n := range rd.voteTally {
		out[id] = n
	}
	return out
}

func (rd *RoundData) SetVotesCast(n int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.votesCast = n
}

func (rd *RoundData) SetConfirmations(n int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.confirmations = n
}

func (rd *RoundData) SetContinueVotes(n int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.continueVotes = n
}

func (rd *RoundData) SetEndVotes(n int) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.endVotes = n
}

// Counters returns (votes cast, next-round confirmations, continue
// poll votes, end poll votes) for display.
func (rd *RoundData) Counters() (int, int, int, int) {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	return rd.votesCast, rd.confirmations, rd.continueVotes, rd.endVotes
}

// Reset clears everything round-scoped. Called on Comment-phase entry
// and on hard resets.
func (rd *RoundData) Reset() {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	rd.comments = nil
	rd.voteTally = nil
	rd.votesCast = 0
	rd.confirmations = 0
	rd.continueVotes = 0
	rd.endVotes = 0
}
