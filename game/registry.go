package game

import (
	"sync"

	"github.com/rs/zerolog"
)

// Room is one live match: a session plus who sits where.
type Room struct {
	Id           string
	Mode         Mode
	Seats        [2]Seat
	TournamentId string
	MatchId      string
	Session      *Session
	settings     Settings
}

// PositionOf resolves the seat of an online participant. Local rooms have no single
// answer and report false.
func (r *Room) PositionOf(userId string) (Position, bool) {
	if r.Mode == ModeLocal {
		return "", false
	}
	for i, seat := range r.Seats {
		if seat.UserId == userId {
			return positionOf(i), true
		}
	}
	return "", false
}

func (r *Room) participants() []string {
	if r.Seats[0].UserId == r.Seats[1].UserId {
		return []string{r.Seats[0].UserId}
	}
	return []string{r.Seats[0].UserId, r.Seats[1].UserId}
}

func (r *Room) created() RoomCreatedPayload {
	return RoomCreatedPayload{
		RoomId: r.Id,
		Mode:   r.Mode,
		Positions: map[Position]string{
			Left:  r.Seats[0].Id,
			Right: r.Seats[1].Id,
		},
		Players: map[Position]SeatView{
			Left:  {Id: r.Seats[0].Id, Username: r.Seats[0].Username},
			Right: {Id: r.Seats[1].Id, Username: r.Seats[1].Username},
		},
	}
}

// Registry owns every live room and the user to room index.
type Registry struct {
	locker        sync.RWMutex
	rooms         map[string]*Room
	userRooms     map[string]string
	settings      Settings
	idGenerator   UniqueIdGenerator
	tickerCreator PeriodicTickerChannelCreator
	broadcaster   Broadcaster
	rnd           Random
	log           zerolog.Logger
}

func NewRegistry(settings Settings, idgen UniqueIdGenerator, tickerCreator PeriodicTickerChannelCreator, broadcaster Broadcaster, rnd Random, log zerolog.Logger) *Registry {
	return &Registry{
		rooms:         map[string]*Room{},
		userRooms:     map[string]string{},
		settings:      settings,
		idGenerator:   idgen,
		tickerCreator: tickerCreator,
		broadcaster:   broadcaster,
		rnd:           rnd,
		log:           log,
	}
}

// CreateLocalGame seats one user on both sides as "<id>-p1" and "<id>-p2".
func (r *Registry) CreateLocalGame(user PlayerRef, opts MatchOptions) (*Room, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	seats := [2]Seat{
		{Id: user.Id + "-p1", Username: user.Username + "-p1", UserId: user.Id},
		{Id: user.Id + "-p2", Username: user.Username + "-p2", UserId: user.Id},
	}
	return r.create(ModeLocal, seats, r.settings.With(opts), "", ""), nil
}

// CreateOnlineGame seats p1 on the left and p2 on the right.
func (r *Registry) CreateOnlineGame(p1, p2 PlayerRef, opts MatchOptions) (*Room, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return r.create(ModeMatchmaking, onlineSeats(p1, p2), r.settings.With(opts), "", ""), nil
}

// CreateTournamentGame always plays with server defaults.
func (r *Registry) CreateTournamentGame(tournamentId, matchId string, p1, p2 PlayerRef) *Room {
	return r.create(ModeTournament, onlineSeats(p1, p2), r.settings, tournamentId, matchId)
}

func onlineSeats(p1, p2 PlayerRef) [2]Seat {
	return [2]Seat{
		{Id: p1.Id, Username: p1.Username, UserId: p1.Id},
		{Id: p2.Id, Username: p2.Username, UserId: p2.Id},
	}
}

func (r *Registry) create(mode Mode, seats [2]Seat, settings Settings, tournamentId, matchId string) *Room {
	id := r.idGenerator.Generate()
	roomLog := r.log.With().Str("room_id", id).Str("mode", string(mode)).Logger()
	room := &Room{
		Id:           id,
		Mode:         mode,
		Seats:        seats,
		TournamentId: tournamentId,
		MatchId:      matchId,
		Session:      newSession(id, mode, settings, seats, r.broadcaster, r.rnd, roomLog),
		settings:     settings,
	}

	r.locker.Lock()
	r.rooms[id] = room
	for _, userId := range room.participants() {
		r.userRooms[userId] = id
	}
	r.locker.Unlock()

	roomLog.Debug().Str("left", seats[0].Id).Str("right", seats[1].Id).Msg("room created")
	return room
}

// StartRoom begins ticking the room's session.
func (r *Registry) StartRoom(room *Room, hooks Hooks) bool {
	ticks, stop := r.tickerCreator.Create(room.settings.TickInterval())
	return room.Session.Start(ticks, stop, hooks)
}

func (r *Registry) GetRoom(roomId string) (*Room, bool) {
	r.locker.RLock()
	defer r.locker.RUnlock()
	room, ok := r.rooms[roomId]
	return room, ok
}

// RoomOf returns the live room a user is seated in.
func (r *Registry) RoomOf(userId string) (*Room, bool) {
	r.locker.RLock()
	defer r.locker.RUnlock()
	roomId, ok := r.userRooms[userId]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[roomId]
	return room, ok
}

// DeleteRoom stops the room's session and forgets it. Unknown ids are ignored.
func (r *Registry) DeleteRoom(roomId string) {
	r.locker.Lock()
	room, ok := r.rooms[roomId]
	if !ok {
		r.locker.Unlock()
		return
	}
	delete(r.rooms, roomId)
	for _, userId := range room.participants() {
		if r.userRooms[userId] == roomId {
			delete(r.userRooms, userId)
		}
	}
	r.locker.Unlock()

	room.Session.Stop()
	r.log.Debug().Str("room_id", roomId).Msg("room deleted")
}

func (r *Registry) Count() int {
	r.locker.RLock()
	defer r.locker.RUnlock()
	return len(r.rooms)
}

// StopAll tears down every room, used on shutdown.
func (r *Registry) StopAll() {
	r.locker.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.locker.RUnlock()

	for _, id := range ids {
		r.DeleteRoom(id)
	}
}
