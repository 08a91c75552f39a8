package session

import (
	"encoding/json"
	"testing"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, name string, payload any) protocol.Event {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.Event{Name: name, Data: data}
}

type lockRecorder struct {
	commentResets int
	voteResets    int
	resultResets  int
	allResets     int
}

func (l *lockRecorder) ResetCommentLock() { l.commentResets++ }
func (l *lockRecorder) ResetVoteLock()    { l.voteResets++ }
func (l *lockRecorder) ResetResultLocks() { l.resultResets++ }
func (l *lockRecorder) ResetAll()         { l.allResets++ }

type listenerRecorder struct {
	transitions []string
	notices     []string
}

func (l *listenerRecorder) OnPhaseChange(from, to Phase) {
	l.transitions = append(l.transitions, from.String()+">"+to.String())
}

func (l *listenerRecorder) OnNotice(msg string) {
	l.notices = append(l.notices, msg)
}

func (l *listenerRecorder) OnUpdate() {}

type machineFixture struct {
	machine  *Machine
	store    *RoomStore
	round    *RoundData
	locks    *lockRecorder
	listener *listenerRecorder
}

func newMachineFixture() *machineFixture {
	store := NewRoomStore()
	round := NewRoundData()
	locks := &lockRecorder{}
	listener := &listenerRecorder{}

	m := NewMachine(store, round, NewCountdown(), locks, listener)
	m.SetConnectionID("conn-1")

	return &machineFixture{
		machine:  m,
		store:    store,
		round:    round,
		locks:    locks,
		listener: listener,
	}
}

func threePlayerRoom(currentRound int) *protocol.Room {
	room := &protocol.Room{
		Code: "AB12",
		Players: []protocol.Player{
			{ID: "p1", ConnectionID: "conn-1", Name: "Ana"},
			{ID: "p2", ConnectionID: "conn-2", Name: "Beto"},
			{ID: "p3", ConnectionID: "conn-3", Name: "Carla"},
		},
		CurrentRound: currentRound,
	}

	for n := 1; n <= currentRound; n++ {
		room.RoundHistory = append(room.RoundHistory, protocol.Round{
			Number:  n,
			Subject: protocol.Footballer{Name: "L. Messi"},
		})
	}

	return room
}

func TestEstablishIdentity(t *testing.T) {
	f := newMachineFixture()

	err := f.machine.EstablishIdentity(threePlayerRoom(0))
	require.NoError(t, err)

	assert.Equal(t, "p1", f.store.LocalPlayerID())
	assert.Equal(t, PhaseLobby, f.machine.Phase())

	f.machine.SetConnectionID("conn-unknown")
	err = f.machine.EstablishIdentity(threePlayerRoom(0))
	assert.ErrorIs(t, err, ErrNotInRoster)
}

func TestMachineFollowsServerPhases(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))
	assert.Equal(t, PhaseComment, f.machine.Phase())

	f.machine.Handle(mustEvent(t, protocol.EVENT_VOTE_PHASE_STARTED, protocol.VotePhasePayload{
		Comments: []protocol.Comment{{PlayerID: "p1", AuthorName: "Ana", Text: "juega muy bien"}},
	}))
	assert.Equal(t, PhaseVote, f.machine.Phase())

	f.machine.Handle(protocol.Event{Name: protocol.EVENT_VOTING_CONCLUDED_EARLY})
	assert.Equal(t, PhaseResult, f.machine.Phase())
	assert.True(t, f.machine.ResolutionPending())
	assert.Nil(t, f.machine.RoundResult())

	f.machine.Handle(mustEvent(t, protocol.EVENT_ROUND_RESULT, protocol.RoundResultPayload{
		EliminatedPlayer: protocol.Player{ID: "p3", Name: "Carla", Eliminated: true},
		WasImpostor:      false,
		VoteTally:        map[string]int{"p3": 2, "p1": 1},
	}))
	assert.Equal(t, PhaseResult, f.machine.Phase())
	assert.False(t, f.machine.ResolutionPending())
	require.NotNil(t, f.machine.RoundResult())
	assert.Equal(t, "p3", f.machine.RoundResult().EliminatedPlayer.ID)

	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_ENDED, protocol.GameEndedPayload{
		Winner:    protocol.WinnerImpostor,
		Reason:    protocol.ReasonTooFewPlayers,
		FinalRoom: *threePlayerRoom(1),
	}))
	assert.Equal(t, PhaseFinal, f.machine.Phase())
	require.NotNil(t, f.machine.Final())
	assert.Equal(t, protocol.WinnerImpostor, f.machine.Final().Winner)

	f.machine.Handle(protocol.Event{Name: protocol.EVENT_RETURN_TO_LOBBY})
	assert.Equal(t, PhaseLobby, f.machine.Phase())
	assert.Nil(t, f.store.Room())
	assert.Empty(t, f.store.LocalPlayerID())
	assert.Nil(t, f.machine.Final())
	assert.Empty(t, f.round.Comments())
	assert.Empty(t, f.round.VoteTally())

	assert.Equal(t, []string{
		"Lobby>Comment",
		"Comment>Vote",
		"Vote>Result",
		"Result>Final",
		"Final>Lobby",
	}, f.listener.transitions)
}

func TestCommentPhaseEntryIsIdempotentPerRound(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_PHASE_STARTED, protocol.CommentPhasePayload{
		Room:       *threePlayerRoom(1),
		DurationMs: 30_000,
	}))
	require.Equal(t, PhaseComment, f.machine.Phase())
	assert.Equal(t, 30, f.machine.countdown.Remaining())
	assert.Equal(t, 1, f.locks.commentResets)

	f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_ADDED, protocol.CommentAddedPayload{
		PlayerID:   "p2",
		AuthorName: "Beto",
		Text:       "marca muchos goles",
	}))
	require.Len(t, f.round.Comments(), 1)

	// A duplicated phase-start for the same round refreshes the countdown
	// but must not wipe accumulated comments or re-arm the lock.
	f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_PHASE_STARTED, protocol.CommentPhasePayload{
		Room:       *threePlayerRoom(1),
		DurationMs: 45_000,
	}))
	assert.Equal(t, 45, f.machine.countdown.Remaining())
	assert.Len(t, f.round.Comments(), 1)
	assert.Equal(t, 1, f.locks.commentResets)

	// A new round is a real edge: round data resets, lock re-arms.
	f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_PHASE_STARTED, protocol.CommentPhasePayload{
		Room:       *threePlayerRoom(2),
		DurationMs: 30_000,
	}))
	assert.Empty(t, f.round.Comments())
	assert.Equal(t, 2, f.locks.commentResets)

	f.machine.countdown.Stop()
}

func TestVotePhaseInstallsCanonicalComments(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))
	f.round.AppendComment(protocol.Comment{PlayerID: "p1", Text: "local only"})
	f.round.SetVotesCast(2)

	canonical := []protocol.Comment{
		{PlayerID: "p2", AuthorName: "Beto", Text: "marca muchos goles"},
		{PlayerID: "p1", AuthorName: "Ana", Text: "juega en europa"},
	}
	f.machine.Handle(mustEvent(t, protocol.EVENT_VOTE_PHASE_STARTED, protocol.VotePhasePayload{
		Comments: canonical,
	}))

	assert.Equal(t, PhaseVote, f.machine.Phase())
	assert.Equal(t, canonical, f.round.Comments())

	votesCast, _, _, _ := f.round.Counters()
	assert.Zero(t, votesCast)
	assert.Equal(t, 1, f.locks.voteResets)
}

func TestResultLocksResetOnceAcrossPartialAndResolved(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))
	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))

	f.machine.Handle(protocol.Event{Name: protocol.EVENT_VOTING_CONCLUDED_EARLY})
	require.Equal(t, 1, f.locks.resultResets)

	f.machine.Handle(mustEvent(t, protocol.EVENT_ROUND_RESULT, protocol.RoundResultPayload{
		EliminatedPlayer: protocol.Player{ID: "p2", Name: "Beto"},
		VoteTally:        map[string]int{"p2": 2},
	}))

	// The resolution fills in the payload without re-running entry
	// side effects.
	assert.Equal(t, 1, f.locks.resultResets)
	assert.False(t, f.machine.ResolutionPending())
}

func TestImpostorEliminatedEarly(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))
	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))

	room := threePlayerRoom(1)
	room.Players[2].Eliminated = true
	room.Players[2].IsImpostor = true

	f.machine.Handle(mustEvent(t, protocol.EVENT_IMPOSTOR_ELIMINATED, protocol.ImpostorEliminatedPayload{
		Message:         "¡Atraparon al impostor!",
		AliveCount:      2,
		RevealedSubject: protocol.Footballer{Name: "L. Messi"},
		Room:            *room,
	}))

	assert.Equal(t, PhaseResult, f.machine.Phase())
	assert.False(t, f.machine.ResolutionPending())
	assert.Nil(t, f.machine.RoundResult())
	require.NotNil(t, f.machine.Reveal())
	assert.Equal(t, "L. Messi", f.machine.Reveal().RevealedSubject.Name)

	got := f.store.Room()
	require.NotNil(t, got)
	assert.True(t, got.Players[2].Eliminated)
}

func TestNewRoomRematchesIdentity(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))
	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))

	// Survivors carry fresh player ids in the new room.
	next := &protocol.Room{
		Code: "CD34",
		Players: []protocol.Player{
			{ID: "q1", ConnectionID: "conn-2", Name: "Beto"},
			{ID: "q2", ConnectionID: "conn-1", Name: "Ana"},
		},
	}

	f.machine.Handle(mustEvent(t, protocol.EVENT_NEW_ROOM_CREATED, protocol.NewRoomPayload{
		Room:    *next,
		Message: "Nueva sala lista",
	}))

	assert.Equal(t, PhaseLobby, f.machine.Phase())
	assert.Equal(t, "q2", f.store.LocalPlayerID())
	assert.Equal(t, "CD34", f.store.Room().Code)
	assert.Equal(t, 1, f.locks.allResets)
	assert.Contains(t, f.listener.notices, "Nueva sala lista")
}

func TestWaitingForPlayersResetsToLobby(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))
	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))

	f.machine.Handle(mustEvent(t, protocol.EVENT_WAITING_FOR_PLAYERS, protocol.WaitingForPlayersPayload{
		Message: "Esperando más jugadores",
		Current: 2,
		Needed:  3,
	}))

	assert.Equal(t, PhaseLobby, f.machine.Phase())
	assert.Nil(t, f.store.Room())
	// The notice carries the current/needed counts.
	assert.Contains(t, f.listener.notices, "Esperando más jugadores (2/3)")

	// Without a quorum figure the message passes through untouched.
	f.machine.Handle(mustEvent(t, protocol.EVENT_WAITING_FOR_PLAYERS, protocol.WaitingForPlayersPayload{
		Message: "Esperando más jugadores",
	}))
	assert.Contains(t, f.listener.notices, "Esperando más jugadores")
}

func TestWelcomeRefreshesIdentityMatching(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	// The server assigned a fresh connection id after a reconnect; the
	// replayed welcome must update what identity matching uses.
	f.machine.Handle(mustEvent(t, protocol.EVENT_WELCOME, protocol.WelcomePayload{
		ConnectionID: "conn-next",
	}))

	rejoined := &protocol.Room{
		Code: "AB12",
		Players: []protocol.Player{
			{ID: "p7", ConnectionID: "conn-next", Name: "Ana"},
			{ID: "p2", ConnectionID: "conn-2", Name: "Beto"},
		},
	}
	require.NoError(t, f.machine.EstablishIdentity(rejoined))
	assert.Equal(t, "p7", f.store.LocalPlayerID())

	// The old id no longer matches anything.
	stale := threePlayerRoom(0)
	stale.Players[0].ConnectionID = "conn-gone"
	assert.ErrorIs(t, f.machine.EstablishIdentity(stale), ErrNotInRoster)
}

func TestUnknownAndMalformedEventsAreIgnored(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	f.machine.Handle(protocol.Event{Name: "brand-new-event"})
	assert.Equal(t, PhaseLobby, f.machine.Phase())

	f.machine.Handle(protocol.Event{
		Name: protocol.EVENT_GAME_STARTED,
		Data: json.RawMessage(`{"players": 42}`),
	})
	assert.Equal(t, PhaseLobby, f.machine.Phase())
	assert.Equal(t, "AB12", f.store.Room().Code)
}

func TestErrorEventSurfacesNotice(t *testing.T) {
	f := newMachineFixture()

	f.machine.Handle(mustEvent(t, protocol.EVENT_ERROR, protocol.ErrorPayload{
		Message: "Sala no encontrada",
	}))

	assert.Equal(t, []string{"Sala no encontrada"}, f.listener.notices)
	assert.Equal(t, PhaseLobby, f.machine.Phase())
}

func TestDisplayEventsNeverMovePhase(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))
	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))
	require.Equal(t, PhaseComment, f.machine.Phase())

	f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_ADDED, protocol.CommentAddedPayload{PlayerID: "p1", Text: "algo"}))
	f.machine.Handle(mustEvent(t, protocol.EVENT_VOTE_CAST, protocol.VoteCastPayload{VoterID: "p2", TotalVotes: 1}))
	f.machine.Handle(mustEvent(t, protocol.EVENT_CONFIRMATION_UPDATED, protocol.CountPayload{Count: 1}))

	assert.Equal(t, PhaseComment, f.machine.Phase())
	assert.Equal(t, []string{"Lobby>Comment"}, f.listener.transitions)
}

func TestFullRoundCommentFlow(t *testing.T) {
	f := newMachineFixture()
	require.NoError(t, f.machine.EstablishIdentity(threePlayerRoom(0)))

	f.machine.Handle(mustEvent(t, protocol.EVENT_GAME_STARTED, threePlayerRoom(1)))
	require.Equal(t, PhaseComment, f.machine.Phase())

	// Comments accumulate in submission order.
	for _, c := range []protocol.CommentAddedPayload{
		{PlayerID: "p2", AuthorName: "Beto", Text: "marca muchos goles"},
		{PlayerID: "p1", AuthorName: "Ana", Text: "es zurdo"},
		{PlayerID: "p3", AuthorName: "Carla", Text: "juega en europa"},
	} {
		f.machine.Handle(mustEvent(t, protocol.EVENT_COMMENT_ADDED, c))
	}

	got := f.round.Comments()
	require.Len(t, got, 3)
	assert.Equal(t, "p2", got[0].PlayerID)
	assert.Equal(t, "p1", got[1].PlayerID)
	assert.Equal(t, "p3", got[2].PlayerID)

	// The vote phase hands down a reordered canonical list; it replaces
	// the local accumulation exactly.
	reordered := []protocol.Comment{
		{PlayerID: "p3", AuthorName: "Carla", Text: "juega en europa"},
		{PlayerID: "p2", AuthorName: "Beto", Text: "marca muchos goles"},
		{PlayerID: "p1", AuthorName: "Ana", Text: "es zurdo"},
	}
	f.machine.Handle(mustEvent(t, protocol.EVENT_VOTE_PHASE_STARTED, protocol.VotePhasePayload{
		Comments: reordered,
	}))

	assert.Equal(t, PhaseVote, f.machine.Phase())
	assert.Equal(t, reordered, f.round.Comments())
}

func TestPhaseTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseLobby, PhaseComment, true},
		{PhaseLobby, PhaseVote, false},
		{PhaseComment, PhaseComment, true},
		{PhaseComment, PhaseVote, true},
		{PhaseVote, PhaseResult, true},
		{PhaseVote, PhaseComment, false},
		{PhaseResult, PhaseComment, true},
		{PhaseResult, PhaseFinal, true},
		{PhaseResult, PhaseLobby, true},
		{PhaseFinal, PhaseLobby, true},
		{PhaseFinal, PhaseComment, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}
