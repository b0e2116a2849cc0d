package game

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub tracks the single live connection of each user and fans messages out to them.
type Hub struct {
	locker  sync.RWMutex
	players map[string]*Player
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{players: map[string]*Player{}, log: log}
}

// Attach makes p the user's connection and returns the one it replaced, if any.
func (h *Hub) Attach(p *Player) *Player {
	h.locker.Lock()
	defer h.locker.Unlock()
	prev := h.players[p.id]
	h.players[p.id] = p
	return prev
}

// Detach forgets p only if it is still the user's current connection.
func (h *Hub) Detach(p *Player) bool {
	h.locker.Lock()
	defer h.locker.Unlock()
	if h.players[p.id] != p {
		return false
	}
	delete(h.players, p.id)
	return true
}

func (h *Hub) Get(userId string) (*Player, bool) {
	h.locker.RLock()
	defer h.locker.RUnlock()
	p, ok := h.players[userId]
	return p, ok
}

func (h *Hub) Connected(userId string) bool {
	_, ok := h.Get(userId)
	return ok
}

// Broadcast encodes once and drops the message for users whose inbox is full.
func (h *Hub) Broadcast(userIds []string, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast encoding failed")
		return
	}

	h.locker.RLock()
	defer h.locker.RUnlock()
	for _, id := range userIds {
		p, ok := h.players[id]
		if !ok {
			continue
		}
		if !p.Send(data) {
			h.log.Debug().Str("user_id", id).Str("type", msgType).Msg("outbound message dropped")
		}
	}
}

// Send delivers to a single player regardless of whether it is the current connection.
func (h *Hub) Send(p *Player, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.log.Error().Err(err).Msg("encoding failed")
		return
	}
	p.Send(data)
}

func (h *Hub) PingAll() {
	h.locker.RLock()
	defer h.locker.RUnlock()
	for _, p := range h.players {
		p.Ping()
	}
}

func (h *Hub) CloseAll(reason string) {
	h.locker.Lock()
	defer h.locker.Unlock()
	for id, p := range h.players {
		p.CloseWith(reason)
		delete(h.players, id)
	}
}

func (h *Hub) Count() int {
	h.locker.RLock()
	defer h.locker.RUnlock()
	return len(h.players)
}
