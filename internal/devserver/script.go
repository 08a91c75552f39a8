package devserver

import (
	"encoding/json"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

func event(name string, data any) protocol.Event {
	return protocol.Event{Name: name, Data: mustMarshal(data)}
}

func ackEvent(seq uint64, data any) protocol.Event {
	return protocol.Event{
		Name: protocol.EVENT_ACK,
		Seq:  seq,
		Data: mustMarshal(data),
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("marshal failed", zap.Error(err))
		return nil
	}
	return data
}

// handleCommand runs one scripted reaction to a client command. All
// registry state is mutated under the registry lock so commands from
// different connections never interleave.
func (r *registry) handleCommand(c *client, cmd protocol.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch cmd.Name {
	case protocol.CMD_CREATE_ROOM:
		var req protocol.CreateRoomRequest
		if !unwrap(cmd, &req) {
			return
		}
		r.createRoom(c, cmd.Seq, req)

	case protocol.CMD_JOIN_ROOM:
		var req protocol.JoinRoomRequest
		if !unwrap(cmd, &req) {
			return
		}
		r.joinRoom(c, cmd.Seq, req)

	case protocol.CMD_START_GAME:
		var req protocol.StartGameRequest
		if !unwrap(cmd, &req) {
			return
		}
		r.startGame(c, cmd.Seq, req)

	case protocol.CMD_SUBMIT_COMMENT:
		var req protocol.SubmitCommentRequest
		if !unwrap(cmd, &req) {
			return
		}
		r.submitComment(req)

	case protocol.CMD_CAST_VOTE:
		var req protocol.CastVoteRequest
		if !unwrap(cmd, &req) {
			return
		}
		r.castVote(req)

	case protocol.CMD_CONFIRM_NEXT_ROUND:
		var req protocol.PlayerActionRequest
		if !unwrap(cmd, &req) {
			return
		}
		if room := r.rooms[req.Code]; room != nil {
			room.confirmations++
			room.broadcast(protocol.EVENT_CONFIRMATION_UPDATED, protocol.CountPayload{Count: room.confirmations})
		}

	case protocol.CMD_POLL_CONTINUE:
		var req protocol.PlayerActionRequest
		if !unwrap(cmd, &req) {
			return
		}
		if room := r.rooms[req.Code]; room != nil {
			room.continueVotes++
			room.broadcast(protocol.EVENT_CONTINUE_POLL_UPDATED, protocol.CountPayload{Count: room.continueVotes})
		}

	case protocol.CMD_POLL_END:
		var req protocol.PlayerActionRequest
		if !unwrap(cmd, &req) {
			return
		}
		if room := r.rooms[req.Code]; room != nil {
			room.endVotes++
			room.broadcast(protocol.EVENT_END_POLL_UPDATED, protocol.CountPayload{Count: room.endVotes})
			room.broadcast(protocol.EVENT_RETURN_TO_LOBBY, nil)
		}

	default:
		zap.L().Debug("stub ignoring command", zap.String("command", cmd.Name))
	}
}

func unwrap(cmd protocol.Command, out any) bool {
	raw, err := json.Marshal(cmd.Data)
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		zap.L().Warn(
			"stub dropping malformed command",
			zap.String("command", cmd.Name),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (r *registry) createRoom(c *client, seq uint64, req protocol.CreateRoomRequest) {
	room := &stubRoom{
		code:    genRoomCode(),
		clients: map[string]*client{c.connID: c},
		voters:  make(map[string]bool),
	}

	room.players = append(room.players, protocol.Player{
		ID:           genID()[:8],
		ConnectionID: c.connID,
		Name:         req.Name,
	})

	r.rooms[room.code] = room

	snap := room.snapshot()
	c.push(ackEvent(seq, protocol.RoomAck{Room: &snap}))

	zap.L().Info("stub room created", zap.String("code", room.code))
}

func (r *registry) joinRoom(c *client, seq uint64, req protocol.JoinRoomRequest) {
	room := r.rooms[req.Code]
	if room == nil {
		c.push(ackEvent(seq, protocol.RoomAck{Error: "Sala no encontrada"}))
		return
	}
	if room.started {
		c.push(ackEvent(seq, protocol.RoomAck{Error: "El juego ya ha comenzado"}))
		return
	}
	if len(room.players) >= protocol.MaxPlayers {
		c.push(ackEvent(seq, protocol.RoomAck{Error: "La sala está llena"}))
		return
	}

	room.clients[c.connID] = c
	room.players = append(room.players, protocol.Player{
		ID:           genID()[:8],
		ConnectionID: c.connID,
		Name:         req.Name,
	})

	snap := room.snapshot()
	c.push(ackEvent(seq, protocol.RoomAck{Room: &snap}))

	room.broadcast(protocol.EVENT_ROSTER_UPDATED, room.players)
}

func (r *registry) startGame(c *client, seq uint64, req protocol.StartGameRequest) {
	room := r.rooms[req.Code]
	if room == nil {
		c.push(ackEvent(seq, protocol.StartAck{Error: "Sala no encontrada"}))
		return
	}
	if len(room.players) < protocol.MinPlayers {
		c.push(ackEvent(seq, protocol.StartAck{Error: "Se necesitan al menos 3 jugadores"}))
		return
	}
	if room.players[0].ConnectionID != c.connID {
		c.push(ackEvent(seq, protocol.StartAck{Error: "Solo el host puede iniciar"}))
		return
	}

	room.started = true
	c.push(ackEvent(seq, protocol.StartAck{}))

	snap := room.snapshot()
	room.broadcast(protocol.EVENT_GAME_STARTED, snap)
	room.broadcast(protocol.EVENT_COMMENT_PHASE_STARTED, protocol.CommentPhasePayload{
		Room:       snap,
		DurationMs: scriptedDurationMs,
	})
}

func (r *registry) submitComment(req protocol.SubmitCommentRequest) {
	room := r.rooms[req.Code]
	if room == nil || !room.started {
		return
	}

	for _, c := range room.comments {
		if c.PlayerID == req.PlayerID {
			return
		}
	}

	author := ""
	if p := findPlayer(room, req.PlayerID); p != nil {
		author = p.Name
	}

	room.comments = append(room.comments, protocol.Comment{
		PlayerID:   req.PlayerID,
		AuthorName: author,
		Text:       req.Text,
	})

	room.broadcast(protocol.EVENT_COMMENT_ADDED, protocol.CommentAddedPayload{
		PlayerID:      req.PlayerID,
		Text:          req.Text,
		AuthorName:    author,
		TotalSoFar:    len(room.comments),
		ActivePlayers: len(room.players),
	})

	if len(room.comments) >= len(room.players) {
		room.broadcast(protocol.EVENT_VOTE_PHASE_STARTED, protocol.VotePhasePayload{
			Comments:     append([]protocol.Comment(nil), room.comments...),
			AlivePlayers: append([]protocol.Player(nil), room.players...),
			DurationMs:   scriptedDurationMs,
		})
	}
}

func (r *registry) castVote(req protocol.CastVoteRequest) {
	room := r.rooms[req.Code]
	if room == nil || !room.started || room.voters[req.VoterID] {
		return
	}

	room.voters[req.VoterID] = true
	room.votesCast++

	room.broadcast(protocol.EVENT_VOTE_CAST, protocol.VoteCastPayload{
		VoterID:       req.VoterID,
		TotalVotes:    room.votesCast,
		ActivePlayers: len(room.players),
	})

	if room.votesCast >= len(room.players) {
		room.broadcast(protocol.EVENT_VOTING_CONCLUDED_EARLY, nil)
		r.finishScript(room)
	}
}

// finishScript replays the canned ending: the last roster entry turns
// out to be the impostor and the players win. No tallying happens
// here; the payload is fixed by the script.
func (r *registry) finishScript(room *stubRoom) {
	eliminated := room.players[len(room.players)-1]
	eliminated.IsImpostor = true
	eliminated.Eliminated = true
	room.players[len(room.players)-1] = eliminated

	tally := map[string]int{eliminated.ID: len(room.players) - 1}

	room.broadcast(protocol.EVENT_ROUND_RESULT, protocol.RoundResultPayload{
		EliminatedPlayer: eliminated,
		WasImpostor:      true,
		VoteTally:        tally,
	})

	snap := room.snapshot()
	snap.RoundHistory[0].EliminatedPlayerID = eliminated.ID

	room.broadcast(protocol.EVENT_GAME_ENDED, protocol.GameEndedPayload{
		Winner:    protocol.WinnerPlayers,
		Reason:    protocol.ReasonImpostorEliminated,
		FinalRoom: snap,
	})
}

func findPlayer(room *stubRoom, id string) *protocol.Player {
	for i := range room.players {
		if room.players[i].ID == id {
			return &room.players[i]
		}
	}
	return nil
}
