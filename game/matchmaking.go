package game

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type MatchmakingRequest struct {
	Player    PlayerRef
	Timestamp time.Time
	Options   MatchOptions
}

// Pairing is the result of one successful match: the room is registered but not started.
type Pairing struct {
	Room    *Room
	Player1 PlayerRef
	Player2 PlayerRef
}

type OnlineRoomCreator interface {
	CreateOnlineGame(p1, p2 PlayerRef, opts MatchOptions) (*Room, error)
}

// Matchmaking is a FIFO queue pairing the two oldest requests.
type Matchmaking struct {
	locker sync.Mutex
	queue  []MatchmakingRequest
	rooms  OnlineRoomCreator
	clock  Clock
	log    zerolog.Logger
}

func NewMatchmaking(rooms OnlineRoomCreator, clock Clock, log zerolog.Logger) *Matchmaking {
	return &Matchmaking{
		rooms: rooms,
		clock: clock,
		log:   log,
	}
}

// Enqueue adds a request unless the user is already waiting, then tries to pair.
// added is false for a duplicate.
func (m *Matchmaking) Enqueue(player PlayerRef, opts MatchOptions) (added bool, pairing *Pairing, err error) {
	if err := opts.Validate(); err != nil {
		return false, nil, err
	}

	m.locker.Lock()
	defer m.locker.Unlock()

	if m.indexLocked(player.Id) >= 0 {
		return false, nil, nil
	}
	m.queue = append(m.queue, MatchmakingRequest{
		Player:    player,
		Timestamp: m.clock.Now(),
		Options:   opts,
	})
	m.log.Debug().Str("user_id", player.Id).Int("queue_length", len(m.queue)).Msg("enqueued")

	pairing, err = m.tryMatchLocked()
	return true, pairing, err
}

// Dequeue removes a waiting user and reports whether it was queued.
func (m *Matchmaking) Dequeue(userId string) bool {
	m.locker.Lock()
	defer m.locker.Unlock()

	i := m.indexLocked(userId)
	if i < 0 {
		return false
	}
	m.queue = slices.Delete(m.queue, i, i+1)
	return true
}

func (m *Matchmaking) TryMatch() (*Pairing, error) {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.tryMatchLocked()
}

// tryMatchLocked pops the two oldest requests and creates their room in the same
// critical section, so a request is never paired twice.
func (m *Matchmaking) tryMatchLocked() (*Pairing, error) {
	if len(m.queue) < 2 {
		return nil, nil
	}
	first, second := m.queue[0], m.queue[1]

	room, err := m.rooms.CreateOnlineGame(first.Player, second.Player, first.Options.Merge(second.Options))
	if err != nil {
		return nil, err
	}
	m.queue = slices.Delete(m.queue, 0, 2)

	m.log.Info().
		Str("room_id", room.Id).
		Str("player1", first.Player.Id).
		Str("player2", second.Player.Id).
		Dur("waited", m.clock.Now().Sub(first.Timestamp)).
		Msg("match found")

	return &Pairing{Room: room, Player1: first.Player, Player2: second.Player}, nil
}

func (m *Matchmaking) indexLocked(userId string) int {
	return slices.IndexFunc(m.queue, func(r MatchmakingRequest) bool {
		return r.Player.Id == userId
	})
}

func (m *Matchmaking) Len() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return len(m.queue)
}

func (m *Matchmaking) Contains(userId string) bool {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.indexLocked(userId) >= 0
}
