package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records outbound commands and answers acks from a canned
// table keyed by command name.
type fakeSender struct {
	sent []protocol.Command
	acks map[string]json.RawMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{acks: make(map[string]json.RawMessage)}
}

func (f *fakeSender) ackWith(t *testing.T, cmdName string, reply any) {
	t.Helper()
	raw, err := json.Marshal(reply)
	require.NoError(t, err)
	f.acks[cmdName] = raw
}

func (f *fakeSender) Send(cmd protocol.Command) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSender) SendWithAck(_ context.Context, cmd protocol.Command) (json.RawMessage, error) {
	f.sent = append(f.sent, cmd)
	return f.acks[cmd.Name], nil
}

func (f *fakeSender) lastData(t *testing.T, out any) {
	t.Helper()
	require.NotEmpty(t, f.sent)
	raw, err := json.Marshal(f.sent[len(f.sent)-1].Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func newDispatcherFixture(localID string) (*Dispatcher, *fakeSender, *RoomStore) {
	sender := newFakeSender()
	store := NewRoomStore()
	store.Replace(threePlayerRoom(1))
	store.SetLocalPlayer(localID)

	return NewDispatcher(sender, store), sender, store
}

func TestCreateRoom(t *testing.T) {
	t.Run("empty name is rejected before sending", func(t *testing.T) {
		d := NewDispatcher(newFakeSender(), NewRoomStore())

		_, err := d.CreateRoom(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("ack carries the room", func(t *testing.T) {
		sender := newFakeSender()
		d := NewDispatcher(sender, NewRoomStore())

		sender.ackWith(t, protocol.CMD_CREATE_ROOM, protocol.RoomAck{Room: threePlayerRoom(0)})

		room, err := d.CreateRoom(context.Background(), "  Ana ")
		require.NoError(t, err)
		assert.Equal(t, "AB12", room.Code)

		var req protocol.CreateRoomRequest
		sender.lastData(t, &req)
		assert.Equal(t, "Ana", req.Name)
	})

	t.Run("server rejection becomes an error", func(t *testing.T) {
		sender := newFakeSender()
		d := NewDispatcher(sender, NewRoomStore())

		sender.ackWith(t, protocol.CMD_CREATE_ROOM, protocol.RoomAck{Error: "Sala no encontrada"})

		_, err := d.CreateRoom(context.Background(), "Ana")
		assert.EqualError(t, err, "Sala no encontrada")
	})
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, NewRoomStore())

	sender.ackWith(t, protocol.CMD_JOIN_ROOM, protocol.RoomAck{Room: threePlayerRoom(0)})

	_, err := d.JoinRoom(context.Background(), "Beto", "  ab12 ")
	require.NoError(t, err)

	var req protocol.JoinRoomRequest
	sender.lastData(t, &req)
	assert.Equal(t, "AB12", req.Code)

	_, err = d.JoinRoom(context.Background(), "Beto", "   ")
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestStartGame(t *testing.T) {
	t.Run("requires a room", func(t *testing.T) {
		d := NewDispatcher(newFakeSender(), NewRoomStore())

		assert.ErrorIs(t, d.StartGame(context.Background()), ErrNoRoom)
	})

	t.Run("only the host may start", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p2")

		assert.ErrorIs(t, d.StartGame(context.Background()), ErrNotHost)
		assert.Empty(t, sender.sent)
	})

	t.Run("roster bounds are pre-checked", func(t *testing.T) {
		sender := newFakeSender()
		store := NewRoomStore()
		store.Replace(&protocol.Room{
			Code: "AB12",
			Players: []protocol.Player{
				{ID: "p1", ConnectionID: "conn-1", Name: "Ana"},
				{ID: "p2", ConnectionID: "conn-2", Name: "Beto"},
			},
		})
		store.SetLocalPlayer("p1")
		d := NewDispatcher(sender, store)

		assert.ErrorIs(t, d.StartGame(context.Background()), ErrRosterSize)
	})

	t.Run("host with a full roster succeeds", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")
		sender.ackWith(t, protocol.CMD_START_GAME, protocol.StartAck{})

		require.NoError(t, d.StartGame(context.Background()))

		var req protocol.StartGameRequest
		sender.lastData(t, &req)
		assert.Equal(t, "AB12", req.Code)
	})

	t.Run("server rejection becomes an error", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")
		sender.ackWith(t, protocol.CMD_START_GAME, protocol.StartAck{Error: "Solo el host puede iniciar"})

		assert.EqualError(t, d.StartGame(context.Background()), "Solo el host puede iniciar")
	})
}

func TestSubmitComment(t *testing.T) {
	t.Run("trims and sends once", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		require.NoError(t, d.SubmitComment("  es muy rápido  "))
		assert.True(t, d.HasCommented())

		var req protocol.SubmitCommentRequest
		sender.lastData(t, &req)
		assert.Equal(t, "es muy rápido", req.Text)
		assert.Equal(t, "p1", req.PlayerID)
		assert.Equal(t, "AB12", req.Code)

		assert.ErrorIs(t, d.SubmitComment("otro"), ErrAlreadyCommented)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("empty and oversized comments never hit the wire", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		assert.ErrorIs(t, d.SubmitComment("   "), ErrEmptyComment)
		assert.ErrorIs(t, d.SubmitComment(strings.Repeat("a", protocol.MaxCommentLen+1)), ErrCommentTooLong)
		assert.Empty(t, sender.sent)
	})

	t.Run("limit counts characters, not bytes", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		// 200 accented characters are 400 bytes but still within the cap.
		require.NoError(t, d.SubmitComment(strings.Repeat("á", protocol.MaxCommentLen)))
		assert.Len(t, sender.sent, 1)

		d.ResetCommentLock()
		assert.ErrorIs(t, d.SubmitComment(strings.Repeat("á", protocol.MaxCommentLen+1)), ErrCommentTooLong)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("lock re-arms on reset", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		require.NoError(t, d.SubmitComment("primera ronda"))
		d.ResetCommentLock()
		require.NoError(t, d.SubmitComment("segunda ronda"))
		assert.Len(t, sender.sent, 2)
	})
}

func TestCastVote(t *testing.T) {
	t.Run("self vote never produces a request", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		assert.ErrorIs(t, d.CastVote("p1"), ErrSelfVote)
		assert.Empty(t, sender.sent)
	})

	t.Run("eliminated players are spectating", func(t *testing.T) {
		sender := newFakeSender()
		store := NewRoomStore()
		room := threePlayerRoom(1)
		room.Players[0].Eliminated = true
		store.Replace(room)
		store.SetLocalPlayer("p1")
		d := NewDispatcher(sender, store)

		assert.ErrorIs(t, d.CastVote("p2"), ErrEliminated)
		assert.Empty(t, sender.sent)
	})

	t.Run("votes exactly once per round", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		require.NoError(t, d.CastVote("p3"))
		assert.True(t, d.HasVoted())

		var req protocol.CastVoteRequest
		sender.lastData(t, &req)
		assert.Equal(t, "p1", req.VoterID)
		assert.Equal(t, "p3", req.SuspectID)

		assert.ErrorIs(t, d.CastVote("p2"), ErrAlreadyVoted)
		assert.Len(t, sender.sent, 1)

		d.ResetVoteLock()
		require.NoError(t, d.CastVote("p2"))
	})
}

func TestResultPhaseActions(t *testing.T) {
	t.Run("confirm next round locks after first send", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		require.NoError(t, d.ConfirmNextRound())
		assert.ErrorIs(t, d.ConfirmNextRound(), ErrAlreadyConfirmed)
		assert.Len(t, sender.sent, 1)
		assert.Equal(t, protocol.CMD_CONFIRM_NEXT_ROUND, sender.sent[0].Name)
	})

	t.Run("continue and end polls lock independently", func(t *testing.T) {
		d, sender, _ := newDispatcherFixture("p1")

		require.NoError(t, d.PollContinue())
		require.NoError(t, d.PollEnd())

		assert.ErrorIs(t, d.PollContinue(), ErrAlreadyPolled)
		assert.ErrorIs(t, d.PollEnd(), ErrAlreadyPolled)
		assert.Len(t, sender.sent, 2)
	})

	t.Run("eliminated players cannot confirm or poll", func(t *testing.T) {
		sender := newFakeSender()
		store := NewRoomStore()
		room := threePlayerRoom(1)
		room.Players[0].Eliminated = true
		store.Replace(room)
		store.SetLocalPlayer("p1")
		d := NewDispatcher(sender, store)

		assert.ErrorIs(t, d.ConfirmNextRound(), ErrEliminated)
		assert.ErrorIs(t, d.PollContinue(), ErrEliminated)
		assert.ErrorIs(t, d.PollEnd(), ErrEliminated)
		assert.Empty(t, sender.sent)
	})

	t.Run("result locks re-arm together", func(t *testing.T) {
		d, _, _ := newDispatcherFixture("p1")

		require.NoError(t, d.ConfirmNextRound())
		require.NoError(t, d.PollContinue())
		require.NoError(t, d.PollEnd())

		d.ResetResultLocks()

		require.NoError(t, d.ConfirmNextRound())
		require.NoError(t, d.PollContinue())
		require.NoError(t, d.PollEnd())
	})
}
