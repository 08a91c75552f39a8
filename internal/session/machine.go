package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

// ErrNotInRoster is returned when a room ack does not contain a player
// bound to our connection id.
var ErrNotInRoster = errors.New("own connection id not found in room roster")

// LockResetter is the slice of the command dispatcher the machine is
// allowed to touch: re-arming the single-use submission locks when the
// matching phase is entered.
type LockResetter interface {
	ResetCommentLock()
	ResetVoteLock()
	ResetResultLocks()
	ResetAll()
}

// Listener receives presentation-level notifications. Callbacks are
// invoked from the session's event loop; implementations must not call
// back into the machine.
type Listener interface {
	OnPhaseChange(from, to Phase)
	OnNotice(message string)
	OnUpdate()
}

type nopLocks struct{}

func (nopLocks) ResetCommentLock()  {}
func (nopLocks) ResetVoteLock()     {}
func (nopLocks) ResetResultLocks()  {}
func (nopLocks) ResetAll()          {}

type nopListener struct{}

func (nopListener) OnPhaseChange(Phase, Phase) {}
func (nopListener) OnNotice(string)            {}
func (nopListener) OnUpdate()                  {}

// Machine ingests the server's event stream and deterministically
// derives phase, room snapshot and round data. Exactly one triggering
// event kind moves it into each phase; every other event is a data
// update inside the current phase. Events are handled one at a time by
// the owning session, so Handle never runs concurrently with itself.
type Machine struct {
	store     *RoomStore
	round     *RoundData
	countdown *Countdown
	locks     LockResetter
	listener  Listener

	mu sync.RWMutex

	phase Phase
	// resolutionPending is set when Result was entered on the early
	// "voting finished" signal and the resolution payload has not
	// arrived yet.
	resolutionPending bool
	// enteredRound keys Comment-phase resets: a repeated phase-start
	// for the same round must not re-run round-scoped resets.
	enteredRound int

	connectionID string

	roundResult *protocol.RoundResultPayload
	reveal      *protocol.ImpostorEliminatedPayload
	final       *protocol.GameEndedPayload
}

func NewMachine(
	store *RoomStore,
	round *RoundData,
	countdown *Countdown,
	locks LockResetter,
	listener Listener,
) *Machine {
	if locks == nil {
		locks = nopLocks{}
	}
	if listener == nil {
		listener = nopListener{}
	}

	return &Machine{
		store:     store,
		round:     round,
		countdown: countdown,
		locks:     locks,
		listener:  listener,
		phase:     PhaseLobby,
	}
}

// SetConnectionID records the transient transport identifier used for
// identity matching. Called on every (re)connect.
func (m *Machine) SetConnectionID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connectionID = id
}

// EstablishIdentity installs the room returned by a create/join ack
// and resolves the local player id by matching our connection id
// against the roster.
func (m *Machine) EstablishIdentity(room *protocol.Room) error {
	m.mu.RLock()
	connID := m.connectionID
	m.mu.RUnlock()

	self := room.FindByConnection(connID)
	if self == nil {
		return ErrNotInRoster
	}

	m.store.Replace(room)
	m.store.SetLocalPlayer(self.ID)
	m.setPhase(PhaseLobby)
	m.listener.OnUpdate()

	return nil
}

// Handle processes one inbound event. Unknown events are logged and
// ignored so a newer server cannot wedge an older client.
func (m *Machine) Handle(ev protocol.Event) {
	switch ev.Name {
	case protocol.EVENT_WELCOME:
		if p := protocol.TryUnwrapWelcome(ev); p != nil {
			m.SetConnectionID(p.ConnectionID)
		}

	case protocol.EVENT_ROSTER_UPDATED:
		if players := protocol.TryUnwrapRoster(ev); players != nil {
			m.store.PatchPlayers(players)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_ROOM_SNAPSHOT_UPDATED:
		if room := protocol.TryUnwrapRoom(ev); room != nil {
			m.store.Replace(room)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_GAME_STARTED:
		if room := protocol.TryUnwrapRoom(ev); room != nil {
			m.store.Replace(room)
			m.enterComment(room, 0)
		}

	case protocol.EVENT_ROUND_STARTED:
		// Same phase, fresh round data. The comment-phase event that
		// follows carries the countdown duration.
		if room := protocol.TryUnwrapRoom(ev); room != nil {
			m.store.Replace(room)
			m.round.Reset()
			m.clearOutcome()
			m.listener.OnUpdate()
		}

	case protocol.EVENT_COMMENT_PHASE_STARTED:
		if p := protocol.TryUnwrapCommentPhase(ev); p != nil {
			m.store.Replace(&p.Room)
			m.enterComment(&p.Room, p.DurationMs)
		}

	case protocol.EVENT_COMMENT_ADDED:
		if p := protocol.TryUnwrapCommentAdded(ev); p != nil {
			m.round.AppendComment(protocol.Comment{
				PlayerID:   p.PlayerID,
				AuthorName: p.AuthorName,
				Text:       p.Text,
			})
			m.listener.OnUpdate()
		}

	case protocol.EVENT_VOTE_PHASE_STARTED:
		if p := protocol.TryUnwrapVotePhase(ev); p != nil {
			m.enterVote(p)
		}

	case protocol.EVENT_VOTE_CAST:
		if p := protocol.TryUnwrapVoteCast(ev); p != nil {
			m.round.SetVotesCast(p.TotalVotes)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_VOTING_CONCLUDED_EARLY:
		m.enterResultPartial()

	case protocol.EVENT_ROUND_RESULT:
		if p := protocol.TryUnwrapRoundResult(ev); p != nil {
			m.round.RecordVoteTally(p.VoteTally)
			m.enterResultResolved(func() {
				m.roundResult = p
				m.reveal = nil
			})
		}

	case protocol.EVENT_IMPOSTOR_ELIMINATED:
		if p := protocol.TryUnwrapImpostorEliminated(ev); p != nil {
			m.store.Replace(&p.Room)
			m.enterResultResolved(func() {
				m.reveal = p
				m.roundResult = nil
			})
		}

	case protocol.EVENT_CONFIRMATION_UPDATED:
		if p := protocol.TryUnwrapCount(ev); p != nil {
			m.round.SetConfirmations(p.Count)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_CONTINUE_POLL_UPDATED:
		if p := protocol.TryUnwrapCount(ev); p != nil {
			m.round.SetContinueVotes(p.Count)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_END_POLL_UPDATED:
		if p := protocol.TryUnwrapCount(ev); p != nil {
			m.round.SetEndVotes(p.Count)
			m.listener.OnUpdate()
		}

	case protocol.EVENT_NEW_ROOM_CREATED:
		if p := protocol.TryUnwrapNewRoom(ev); p != nil {
			m.enterNewRoom(p)
		}

	case protocol.EVENT_WAITING_FOR_PLAYERS:
		if p := protocol.TryUnwrapWaitingForPlayers(ev); p != nil {
			msg := p.Message
			if p.Needed > 0 {
				msg = fmt.Sprintf("%s (%d/%d)", p.Message, p.Current, p.Needed)
			}
			m.listener.OnNotice(msg)
			m.hardReset()
		}

	case protocol.EVENT_RETURN_TO_LOBBY:
		m.hardReset()

	case protocol.EVENT_GAME_ENDED:
		if p := protocol.TryUnwrapGameEnded(ev); p != nil {
			m.enterFinal(p)
		}

	case protocol.EVENT_ERROR:
		if p := protocol.TryUnwrapError(ev); p != nil {
			m.listener.OnNotice(p.Message)
		}

	default:
		zap.L().Debug("ignoring unknown event", zap.String("event", ev.Name))
	}
}

// enterComment applies Comment-phase entry. Round-scoped resets are
// keyed on the phase edge and the round number, so a duplicated
// phase-start for the same round refreshes the countdown without
// wiping comments that arrived in between.
func (m *Machine) enterComment(room *protocol.Room, durationMs int64) {
	m.mu.Lock()
	edge := m.phase != PhaseComment || m.enteredRound != room.CurrentRound
	if edge {
		m.enteredRound = room.CurrentRound
	}
	m.resolutionPending = false
	m.mu.Unlock()

	if edge {
		m.round.Reset()
		m.clearOutcome()
		m.locks.ResetCommentLock()
	}

	if durationMs > 0 {
		m.countdown.Start(int(durationMs / 1000))
	}

	m.setPhase(PhaseComment)
	m.listener.OnUpdate()
}

func (m *Machine) enterVote(p *protocol.VotePhasePayload) {
	m.mu.Lock()
	edge := m.phase != PhaseVote
	m.resolutionPending = false
	m.mu.Unlock()

	if edge {
		m.locks.ResetVoteLock()
	}

	// The canonical set replaces whatever accumulated locally; late
	// arrivals and server-side filtering can change order and content.
	m.round.SetComments(p.Comments)
	m.round.SetVotesCast(0)

	if p.DurationMs > 0 {
		m.countdown.Start(int(p.DurationMs / 1000))
	}

	m.setPhase(PhaseVote)
	m.listener.OnUpdate()
}

// enterResultPartial handles the early "everyone voted" signal: the
// phase flips with no payload, and the resolution arrives in a later
// event.
func (m *Machine) enterResultPartial() {
	m.mu.Lock()
	edge := m.phase != PhaseResult
	if edge {
		m.resolutionPending = true
	}
	m.mu.Unlock()

	if edge {
		m.countdown.Stop()
		m.locks.ResetResultLocks()
	}

	m.setPhase(PhaseResult)
	m.listener.OnUpdate()
}

// enterResultResolved installs a resolution payload. When Result was
// already entered partially, the outcome is updated in place without
// re-running the entry side effects.
func (m *Machine) enterResultResolved(install func()) {
	m.mu.Lock()
	edge := m.phase != PhaseResult
	install()
	m.resolutionPending = false
	m.mu.Unlock()

	if edge {
		m.countdown.Stop()
		m.locks.ResetResultLocks()
	}

	m.setPhase(PhaseResult)
	m.listener.OnUpdate()
}

// enterNewRoom handles the continue-poll outcome: a fresh room with
// the surviving roster, back in the lobby. Identity is re-matched
// because player ids are scoped to a room.
func (m *Machine) enterNewRoom(p *protocol.NewRoomPayload) {
	m.countdown.Stop()
	m.store.Replace(&p.Room)

	m.mu.RLock()
	connID := m.connectionID
	m.mu.RUnlock()

	if self := p.Room.FindByConnection(connID); self != nil {
		m.store.SetLocalPlayer(self.ID)
	} else {
		zap.L().Warn("not part of the new room roster", zap.String("code", p.Room.Code))
	}

	m.round.Reset()
	m.clearOutcome()
	m.locks.ResetAll()

	m.mu.Lock()
	m.resolutionPending = false
	m.enteredRound = 0
	m.mu.Unlock()

	if p.Message != "" {
		m.listener.OnNotice(p.Message)
	}

	m.setPhase(PhaseLobby)
	m.listener.OnUpdate()
}

func (m *Machine) enterFinal(p *protocol.GameEndedPayload) {
	m.countdown.Stop()
	m.store.Replace(&p.FinalRoom)

	m.mu.Lock()
	m.final = p
	m.resolutionPending = false
	m.mu.Unlock()

	m.setPhase(PhaseFinal)
	m.listener.OnUpdate()
}

// hardReset is the only path that clears the store's identity fields:
// room code and local player id are gone afterwards. Models the
// explicit return-to-lobby, not a new round.
func (m *Machine) hardReset() {
	m.countdown.Stop()
	m.store.Clear()
	m.round.Reset()
	m.clearOutcome()
	m.locks.ResetAll()

	m.mu.Lock()
	m.resolutionPending = false
	m.enteredRound = 0
	m.mu.Unlock()

	m.setPhase(PhaseLobby)
	m.listener.OnUpdate()
}

func (m *Machine) clearOutcome() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roundResult = nil
	m.reveal = nil
	m.final = nil
}

func (m *Machine) setPhase(to Phase) {
	m.mu.Lock()
	from := m.phase
	if from == to {
		m.mu.Unlock()
		return
	}
	if !from.CanTransitionTo(to) {
		// Follow the server anyway; it is authoritative and a resync
		// after reconnect may legitimately skip phases.
		zap.L().Warn(
			"unexpected phase transition",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	m.phase = to
	m.mu.Unlock()

	m.listener.OnPhaseChange(from, to)
}

func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.phase
}

// ResolutionPending reports whether Result was entered with the phase
// flag only and the resolution payload is still outstanding.
func (m *Machine) ResolutionPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.resolutionPending
}

func (m *Machine) RoundResult() *protocol.RoundResultPayload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.roundResult
}

func (m *Machine) Reveal() *protocol.ImpostorEliminatedPayload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.reveal
}

func (m *Machine) Final() *protocol.GameEndedPayload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.final
}
