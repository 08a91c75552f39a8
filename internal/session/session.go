package session

import (
	"context"
	"sync"

	"github.com/Esaban17/impostor-app/internal/protocol"

	"go.uber.org/zap"
)

// Conn is the transport surface a session needs. Satisfied by
// transport.Conn.
type Conn interface {
	Sender

	Events() <-chan protocol.Event
	ConnectionID() string
	Close() error
}

// Session ties one room lifetime together: the state machine, the
// stores, the dispatcher and the single event-loop goroutine that
// serializes every inbound event. No two events are ever processed
// concurrently, so the machine needs no coordination beyond this loop.
type Session struct {
	conn Conn

	store      *RoomStore
	round      *RoundData
	countdown  *Countdown
	dispatcher *Dispatcher
	machine    *Machine

	doneCh    chan struct{}
	loopDone  chan struct{}
	started   bool
	closeOnce sync.Once
}

func NewSession(conn Conn, listener Listener) *Session {
	store := NewRoomStore()
	round := NewRoundData()
	countdown := NewCountdown()
	dispatcher := NewDispatcher(conn, store)
	machine := NewMachine(store, round, countdown, dispatcher, listener)

	machine.SetConnectionID(conn.ConnectionID())

	return &Session{
		conn:       conn,
		store:      store,
		round:      round,
		countdown:  countdown,
		dispatcher: dispatcher,
		machine:    machine,
		doneCh:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// Start launches the event loop. The loop exits when the transport's
// event channel closes or Close is called.
func (s *Session) Start() {
	s.started = true
	go s.run()
}

func (s *Session) run() {
	defer close(s.loopDone)

	for {
		select {
		case ev, ok := <-s.conn.Events():
			if !ok {
				zap.L().Info("event channel closed, session loop exiting")
				return
			}
			s.machine.Handle(ev)
		case <-s.doneCh:
			return
		}
	}
}

// CreateRoom creates a room and establishes identity from the ack.
func (s *Session) CreateRoom(ctx context.Context, name string) error {
	room, err := s.dispatcher.CreateRoom(ctx, name)
	if err != nil {
		return err
	}
	return s.machine.EstablishIdentity(room)
}

// JoinRoom joins a room by code and establishes identity from the ack.
func (s *Session) JoinRoom(ctx context.Context, name, code string) error {
	room, err := s.dispatcher.JoinRoom(ctx, name, code)
	if err != nil {
		return err
	}
	return s.machine.EstablishIdentity(room)
}

// Close tears the session down: the loop stops, the cosmetic timer is
// cancelled and the transport is released. Nothing room-scoped
// survives; a new room requires a new session.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.doneCh)
		s.countdown.Stop()
		err = s.conn.Close()
		if s.started {
			<-s.loopDone
		}
	})
	return err
}

func (s *Session) Machine() *Machine {
	return s.machine
}

func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Session) Store() *RoomStore {
	return s.store
}

func (s *Session) Round() *RoundData {
	return s.round
}

func (s *Session) Countdown() *Countdown {
	return s.countdown
}
