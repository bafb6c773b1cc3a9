package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	clients atomic.Int64 // живые websocket-клиенты
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) ClientConnected()    { s.clients.Add(1) }
func (s *State) ClientDisconnected() { s.clients.Add(-1) }
func (s *State) Clients() int64      { return s.clients.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
