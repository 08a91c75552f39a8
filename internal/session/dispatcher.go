package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

// Validation errors, surfaced before anything reaches the wire.
var (
	ErrEmptyName        = errors.New("player name must not be empty")
	ErrEmptyCode        = errors.New("room code must not be empty")
	ErrNoRoom           = errors.New("not in a room")
	ErrNotHost          = errors.New("only the host can start the game")
	ErrRosterSize       = errors.New("roster size out of bounds")
	ErrEmptyComment     = errors.New("comment must not be empty")
	ErrCommentTooLong   = errors.New("comment exceeds the length limit")
	ErrAlreadyCommented = errors.New("already commented this round")
	ErrSelfVote         = errors.New("voting for yourself is not allowed")
	ErrAlreadyVoted     = errors.New("already voted this round")
	ErrEliminated       = errors.New("eliminated players are spectating")
	ErrAlreadyConfirmed = errors.New("already confirmed the next round")
	ErrAlreadyPolled    = errors.New("choice already sent")
)

// Sender is the outbound half of the transport the dispatcher needs.
type Sender interface {
	Send(cmd protocol.Command) error
	SendWithAck(ctx context.Context, cmd protocol.Command) (json.RawMessage, error)
}

// Dispatcher turns user intents into outbound commands. Each mutating
// action is validated locally and disabled after its first send; the
// locks are a UX optimization only, the server re-checks everything.
// Locks are re-armed by the machine on the matching phase entry.
type Dispatcher struct {
	sender Sender
	store  *RoomStore

	mu sync.Mutex

	commented      bool
	voted          bool
	confirmed      bool
	polledContinue bool
	polledEnd      bool
}

func NewDispatcher(sender Sender, store *RoomStore) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		store:  store,
	}
}

// CreateRoom asks the server for a fresh room. The returned snapshot
// establishes identity; the caller hands it to the machine.
func (d *Dispatcher) CreateRoom(ctx context.Context, name string) (*protocol.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	raw, err := d.sender.SendWithAck(ctx, protocol.Command{
		Name: protocol.CMD_CREATE_ROOM,
		Data: protocol.CreateRoomRequest{Name: strings.TrimSpace(name)},
	})
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	return decodeRoomAck(raw)
}

// JoinRoom joins an existing room by code. A rejection reason from the
// server (room not found, game already started) comes back as an error.
func (d *Dispatcher) JoinRoom(ctx context.Context, name, code string) (*protocol.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrEmptyCode
	}

	raw, err := d.sender.SendWithAck(ctx, protocol.Command{
		Name: protocol.CMD_JOIN_ROOM,
		Data: protocol.JoinRoomRequest{
			Name: strings.TrimSpace(name),
			Code: strings.ToUpper(strings.TrimSpace(code)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}

	return decodeRoomAck(raw)
}

// StartGame is host-only. The roster bounds are pre-checked to keep
// the control disabled, but the server's check is the real one.
func (d *Dispatcher) StartGame(ctx context.Context) error {
	room := d.store.Room()
	if room == nil {
		return ErrNoRoom
	}

	if len(room.Players) == 0 || room.Players[0].ID != d.store.LocalPlayerID() {
		return ErrNotHost
	}
	if len(room.Players) < protocol.MinPlayers || len(room.Players) > protocol.MaxPlayers {
		return ErrRosterSize
	}

	raw, err := d.sender.SendWithAck(ctx, protocol.Command{
		Name: protocol.CMD_START_GAME,
		Data: protocol.StartGameRequest{Code: room.Code},
	})
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	ack, err := protocol.DecodeStartAck(raw)
	if err != nil {
		return fmt.Errorf("start game: decoding ack: %w", err)
	}
	if ack.Error != "" {
		return errors.New(ack.Error)
	}

	return nil
}

// SubmitComment sends this round's single comment. Empty or whitespace
// text and repeated submissions are silent no-op errors.
func (d *Dispatcher) SubmitComment(text string) error {
	room := d.store.Room()
	if room == nil {
		return ErrNoRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	// The cap is characters, not bytes; accented text must not shrink it.
	if utf8.RuneCountInString(text) > protocol.MaxCommentLen {
		return ErrCommentTooLong
	}

	d.mu.Lock()
	if d.commented {
		d.mu.Unlock()
		return ErrAlreadyCommented
	}
	d.commented = true
	d.mu.Unlock()

	return d.fireAndForget(protocol.Command{
		Name: protocol.CMD_SUBMIT_COMMENT,
		Data: protocol.SubmitCommentRequest{
			Code:     room.Code,
			PlayerID: d.store.LocalPlayerID(),
			Text:     text,
		},
	})
}

// CastVote votes for a suspect. Self-votes never produce a request.
func (d *Dispatcher) CastVote(suspectID string) error {
	room := d.store.Room()
	if room == nil {
		return ErrNoRoom
	}

	voterID := d.store.LocalPlayerID()
	if suspectID == voterID {
		return ErrSelfVote
	}

	if self := d.store.LocalPlayer(); self != nil && self.Eliminated {
		return ErrEliminated
	}

	d.mu.Lock()
	if d.voted {
		d.mu.Unlock()
		return ErrAlreadyVoted
	}
	d.voted = true
	d.mu.Unlock()

	return d.fireAndForget(protocol.Command{
		Name: protocol.CMD_CAST_VOTE,
		Data: protocol.CastVoteRequest{
			Code:      room.Code,
			VoterID:   voterID,
			SuspectID: suspectID,
		},
	})
}

// ConfirmNextRound signals readiness for the next round. Eliminated
// players are spectating and cannot confirm.
func (d *Dispatcher) ConfirmNextRound() error {
	if err := d.requireAlive(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.confirmed {
		d.mu.Unlock()
		return ErrAlreadyConfirmed
	}
	d.confirmed = true
	d.mu.Unlock()

	return d.sendPlayerAction(protocol.CMD_CONFIRM_NEXT_ROUND)
}

// PollContinue casts the "keep playing with the same roster" choice
// after the impostor was eliminated early. The server alone resolves
// the poll; this only registers the preference.
func (d *Dispatcher) PollContinue() error {
	if err := d.requireAlive(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.polledContinue {
		d.mu.Unlock()
		return ErrAlreadyPolled
	}
	d.polledContinue = true
	d.mu.Unlock()

	return d.sendPlayerAction(protocol.CMD_POLL_CONTINUE)
}

// PollEnd casts the "back to the lobby" choice. Tracked independently
// of PollContinue; only one outcome can prevail server-side.
func (d *Dispatcher) PollEnd() error {
	if err := d.requireAlive(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.polledEnd {
		d.mu.Unlock()
		return ErrAlreadyPolled
	}
	d.polledEnd = true
	d.mu.Unlock()

	return d.sendPlayerAction(protocol.CMD_POLL_END)
}

func (d *Dispatcher) requireAlive() error {
	if d.store.Room() == nil {
		return ErrNoRoom
	}
	if self := d.store.LocalPlayer(); self != nil && self.Eliminated {
		return ErrEliminated
	}
	return nil
}

func (d *Dispatcher) sendPlayerAction(name string) error {
	room := d.store.Room()
	if room == nil {
		return ErrNoRoom
	}

	return d.fireAndForget(protocol.Command{
		Name: name,
		Data: protocol.PlayerActionRequest{
			Code:     room.Code,
			PlayerID: d.store.LocalPlayerID(),
		},
	})
}

func (d *Dispatcher) fireAndForget(cmd protocol.Command) error {
	if err := d.sender.Send(cmd); err != nil {
		zap.L().Error(
			"sending command failed",
			zap.String("command", cmd.Name),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ResetCommentLock re-arms the comment submission on Comment entry.
func (d *Dispatcher) ResetCommentLock() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commented = false
}

// ResetVoteLock re-arms voting on Vote entry.
func (d *Dispatcher) ResetVoteLock() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.voted = false
}

// ResetResultLocks re-arms the confirm and poll choices on Result
// entry.
func (d *Dispatcher) ResetResultLocks() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.confirmed = false
	d.polledContinue = false
	d.polledEnd = false
}

// ResetAll re-arms everything; used on lobby resets.
func (d *Dispatcher) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.commented = false
	d.voted = false
	d.confirmed = false
	d.polledContinue = false
	d.polledEnd = false
}

// HasCommented reports whether the comment lock is engaged, for
// rendering the "waiting for others" state.
func (d *Dispatcher) HasCommented() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.commented
}

// HasVoted reports whether the vote lock is engaged.
func (d *Dispatcher) HasVoted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.voted
}

func decodeRoomAck(raw json.RawMessage) (*protocol.Room, error) {
	ack, err := protocol.DecodeRoomAck(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding room ack: %w", err)
	}
	if ack.Error != "" {
		return nil, errors.New(ack.Error)
	}
	if ack.Room == nil {
		return nil, errors.New("room ack carried neither room nor error")
	}
	return ack.Room, nil
}
