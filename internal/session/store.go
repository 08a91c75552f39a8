package session

import (
	"sync"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

// RoomStore exclusively owns the latest authoritative room snapshot
// plus the local player's identity. Every update is one of exactly
// three shapes: a wholesale replace, a players-only patch, or a full
// clear. Nothing ever partially merges an untrusted payload into
// unrelated fields.
type RoomStore struct {
	mu sync.RWMutex

	room          *protocol.Room
	localPlayerID string
}

func NewRoomStore() *RoomStore {
	return &RoomStore{}
}

// Replace swaps the whole room value. Used on join/create acks and on
// room-carrying events.
func (s *RoomStore) Replace(room *protocol.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.room = cloneRoom(room)
}

// PatchPlayers swaps only the roster, preserving every other room
// field. A patch that would flip an eliminated player back to alive is
// a server-trust violation; the store keeps the flag set and logs it.
func (s *RoomStore) PatchPlayers(players []protocol.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == nil {
		return
	}

	patched := make([]protocol.Player, len(players))
	copy(patched, players)

	for i := range patched {
		prev := s.room.FindPlayer(patched[i].ID)
		if prev != nil && prev.Eliminated && !patched[i].Eliminated {
			zap.L().Warn(
				"roster patch tried to revive an eliminated player",
				zap.String("player_id", patched[i].ID),
			)
			patched[i].Eliminated = true
		}
	}

	s.room.Players = patched
}

// Clear discards the room and the local identity. Only the hard reset
// back to the lobby goes through here.
func (s *RoomStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.room = nil
	s.localPlayerID = ""
}

// SetLocalPlayer records who we are in the current room. Resolved by
// matching our transport connection id against the roster of a room
// ack, never guessed.
func (s *RoomStore) SetLocalPlayer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.localPlayerID = id
}

func (s *RoomStore) LocalPlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.localPlayerID
}

// Room returns a copy of the snapshot, or nil when no room is joined.
func (s *RoomStore) Room() *protocol.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRoom(s.room)
}

// LocalPlayer returns the local roster entry, or nil before identity
// is established.
func (s *RoomStore) LocalPlayer() *protocol.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.room == nil || s.localPlayerID == "" {
		return nil
	}

	p := s.room.FindPlayer(s.localPlayerID)
	if p == nil {
		return nil
	}

	cp := *p
	return &cp
}

func cloneRoom(room *protocol.Room) *protocol.Room {
	if room == nil {
		return nil
	}

	cp := *room
	cp.Players = append([]protocol.Player(nil), room.Players...)
	cp.RoundHistory = append([]protocol.Round(nil), room.RoundHistory...)

	for i := range cp.RoundHistory {
		cp.RoundHistory[i].Comments = append(
			[]protocol.Comment(nil),
			room.RoundHistory[i].Comments...,
		)
	}

	return &cp
}
