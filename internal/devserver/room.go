// Package devserver is a scripted stand-in for the real game server,
// good enough to exercise the client end to end on localhost. It
// manages rosters and replays a canned single-round script; it has no
// role assignment, no real vote tallying and no win detection. The
// production server owns all of that.
package devserver

import (
	"strings"
	"sync"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cannedSubject is the fixed secret subject every scripted game uses.
var cannedSubject = protocol.Footballer{
	Name:        "J. Fuentes",
	FullName:    "Joaquín Fuentes",
	Position:    "Delantero",
	Nationality: "Argentina",
	BirthDate:   "1994-03-11",
	ImageURL:    "",
}

const scriptedDurationMs = 30_000

type client struct {
	connID string
	out    chan protocol.Event
}

func (c *client) push(ev protocol.Event) {
	select {
	case c.out <- ev:
	default:
		zap.L().Warn("dropping event, client queue full", zap.String("conn_id", c.connID))
	}
}

type stubRoom struct {
	code    string
	players []protocol.Player
	clients map[string]*client
	started bool

	comments      []protocol.Comment
	votesCast     int
	voters        map[string]bool
	confirmations int
	continueVotes int
	endVotes      int
}

// registry holds every scripted room plus the clients not yet in one.
type registry struct {
	mu sync.Mutex

	rooms   map[string]*stubRoom
	clients map[string]*client
}

func newRegistry() *registry {
	return &registry{
		rooms:   make(map[string]*stubRoom),
		clients: make(map[string]*client),
	}
}

func genID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic("failed to generate UUID: " + err.Error())
	}
	return id.String()
}

func genRoomCode() string {
	id := genID()
	return strings.ToUpper(id[len(id)-4:])
}

func (r *registry) attach(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.connID] = c
}

func (r *registry) detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, connID)

	for _, room := range r.rooms {
		if _, ok := room.clients[connID]; !ok {
			continue
		}
		delete(room.clients, connID)

		for i := range room.players {
			if room.players[i].ConnectionID == connID {
				room.players = append(room.players[:i], room.players[i+1:]...)
				break
			}
		}

		room.broadcast(protocol.EVENT_ROSTER_UPDATED, room.players)
	}
}

func (room *stubRoom) broadcast(name string, data any) {
	for _, c := range room.clients {
		c.push(event(name, data))
	}
}

func (room *stubRoom) snapshot() protocol.Room {
	return protocol.Room{
		Code:         room.code,
		Players:      append([]protocol.Player(nil), room.players...),
		CurrentRound: currentRound(room),
		RoundHistory: roundHistory(room),
	}
}

func currentRound(room *stubRoom) int {
	if room.started {
		return 1
	}
	return 0
}

func roundHistory(room *stubRoom) []protocol.Round {
	if !room.started {
		return nil
	}
	return []protocol.Round{{
		Number:   1,
		Subject:  cannedSubject,
		Comments: append([]protocol.Comment(nil), room.comments...),
	}}
}
