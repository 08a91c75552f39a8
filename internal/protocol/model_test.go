package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveRound(t *testing.T) {
	room := &Room{
		CurrentRound: 2,
		RoundHistory: []Round{
			{Number: 1},
			{Number: 2, Subject: Footballer{Name: "L. Messi"}},
		},
	}

	round := room.ActiveRound()
	require.NotNil(t, round)
	assert.Equal(t, 2, round.Number)

	// History not caught up with the announced round yet.
	room.CurrentRound = 3
	assert.Nil(t, room.ActiveRound())

	room.CurrentRound = 0
	assert.Nil(t, room.ActiveRound())

	var nilRoom *Room
	assert.Nil(t, nilRoom.ActiveRound())
}

func TestFindPlayerAndConnection(t *testing.T) {
	room := &Room{
		Players: []Player{
			{ID: "p1", ConnectionID: "c1", Name: "Ana"},
			{ID: "p2", ConnectionID: "c2", Name: "Beto"},
		},
	}

	require.NotNil(t, room.FindPlayer("p2"))
	assert.Equal(t, "Beto", room.FindPlayer("p2").Name)
	assert.Nil(t, room.FindPlayer("p9"))

	require.NotNil(t, room.FindByConnection("c1"))
	assert.Equal(t, "p1", room.FindByConnection("c1").ID)
	assert.Nil(t, room.FindByConnection("c9"))

	var nilRoom *Room
	assert.Nil(t, nilRoom.FindPlayer("p1"))
	assert.Nil(t, nilRoom.FindByConnection("c1"))
}

func TestAliveCount(t *testing.T) {
	room := &Room{
		Players: []Player{
			{ID: "p1"},
			{ID: "p2", Eliminated: true},
			{ID: "p3"},
		},
	}

	assert.Equal(t, 2, room.AliveCount())

	var nilRoom *Room
	assert.Zero(t, nilRoom.AliveCount())
}
