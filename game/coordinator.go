package game

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/rs/zerolog"
)

type TournamentRoomHost interface {
	CreateTournamentGame(tournamentId, matchId string, p1, p2 PlayerRef) *Room
	StartRoom(room *Room, hooks Hooks) bool
	GetRoom(roomId string) (*Room, bool)
	DeleteRoom(roomId string)
}

// Coordinator runs the per-size join queues and every live tournament.
// Lock order: Coordinator.locker, then Tournament.locker, then registry and sessions.
type Coordinator struct {
	locker          sync.Mutex
	queues          map[int][]PlayerRef
	tournaments     map[string]*Tournament
	userTournaments map[string]string

	rooms       TournamentRoomHost
	broadcaster Broadcaster
	recorder    *Recorder
	idGenerator UniqueIdGenerator
	clock       Clock
	retention   time.Duration
	log         zerolog.Logger
}

func NewCoordinator(rooms TournamentRoomHost, broadcaster Broadcaster, recorder *Recorder, idgen UniqueIdGenerator, clock Clock, retention time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		queues:          map[int][]PlayerRef{4: nil, 8: nil},
		tournaments:     map[string]*Tournament{},
		userTournaments: map[string]string{},
		rooms:           rooms,
		broadcaster:     broadcaster,
		recorder:        recorder,
		idGenerator:     idgen,
		clock:           clock,
		retention:       retention,
		log:             log,
	}
}

// JoinQueue adds a player to the queue of the given size. A user already queued or
// with matches left to play is ignored. Filling a queue creates the tournament at once.
func (c *Coordinator) JoinQueue(player PlayerRef, size int) error {
	if !ValidTournamentSize(size) {
		return ErrInvalidTournamentSize
	}

	c.locker.Lock()
	if c.queuedSizeLocked(player.Id) != 0 || !c.releaseLocked(player.Id) {
		c.locker.Unlock()
		return nil
	}
	c.queues[size] = append(c.queues[size], player)
	waiting := len(c.queues[size])

	var t *Tournament
	if waiting == size {
		players := slices.Clone(c.queues[size])
		c.queues[size] = nil
		var err error
		t, err = newTournament(c.idGenerator.Generate(), players, c.idGenerator, c.clock.Now())
		if err != nil {
			c.locker.Unlock()
			return err
		}
		c.tournaments[t.Id] = t
		for _, p := range players {
			c.userTournaments[p.Id] = t.Id
		}
	}
	c.locker.Unlock()

	c.broadcaster.Broadcast([]string{player.Id}, MsgTournamentQueueJoined, TournamentQueuePayload{Size: size, Waiting: waiting})
	if t != nil {
		c.log.Info().Str("tournament_id", t.Id).Int("size", size).Msg("tournament created")
		c.begin(t)
	}
	return nil
}

// LeaveQueue removes a user from whichever size queue holds them.
func (c *Coordinator) LeaveQueue(userId string) bool {
	c.locker.Lock()
	size := c.queuedSizeLocked(userId)
	if size != 0 {
		c.queues[size] = slices.DeleteFunc(c.queues[size], func(p PlayerRef) bool { return p.Id == userId })
	}
	c.locker.Unlock()

	if size == 0 {
		return false
	}
	c.broadcaster.Broadcast([]string{userId}, MsgTournamentQueueLeft, TournamentQueuePayload{Size: size})
	return true
}

// Queued reports whether the user waits in any size queue.
func (c *Coordinator) Queued(userId string) bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.queuedSizeLocked(userId) != 0
}

// releaseLocked detaches a user who is done with their tournament, eliminated or
// finished, so they can queue again. It reports false while they still have matches
// to play.
func (c *Coordinator) releaseLocked(userId string) bool {
	tournamentId := c.userTournaments[userId]
	t, ok := c.tournaments[tournamentId]
	if !ok {
		return true
	}

	t.locker.Lock()
	if t.engagedLocked(userId) {
		t.locker.Unlock()
		return false
	}
	delete(t.present, userId)
	empty := t.state == TournamentFinished && len(t.present) == 0
	t.locker.Unlock()

	delete(c.userTournaments, userId)
	if empty {
		c.removeLocked(tournamentId)
	}
	return true
}

func (c *Coordinator) queuedSizeLocked(userId string) int {
	for size, queue := range c.queues {
		if slices.ContainsFunc(queue, func(p PlayerRef) bool { return p.Id == userId }) {
			return size
		}
	}
	return 0
}

func (c *Coordinator) begin(t *Tournament) {
	defer c.recoverFrom(t.Id)

	t.locker.Lock()
	defer t.locker.Unlock()
	c.broadcaster.Broadcast(t.presentLocked(), MsgTournamentCreated, TournamentPayload{Tournament: t.viewLocked()})
	if err := c.advanceLocked(t); err != nil {
		panic(err)
	}
	c.broadcaster.Broadcast(t.presentLocked(), MsgTournamentState, TournamentPayload{Tournament: t.viewLocked()})
}

// advanceLocked resolves walkovers and starts a room for every match whose two
// participants are known.
func (c *Coordinator) advanceLocked(t *Tournament) error {
	if err := t.resolveWalkoversLocked(c.clock.Now()); err != nil {
		return err
	}
	for _, m := range t.readyMatchesLocked() {
		room := c.rooms.CreateTournamentGame(t.Id, m.Id, m.Player1, m.Player2)
		m.Status = MatchInProgress
		m.RoomId = room.Id

		for i, p := range []PlayerRef{m.Player1, m.Player2} {
			c.broadcaster.Broadcast([]string{p.Id}, MsgMatchFound, MatchFoundPayload{
				RoomId:       room.Id,
				Player1:      m.Player1,
				Player2:      m.Player2,
				Position:     positionOf(i),
				TournamentId: t.Id,
				MatchId:      m.Id,
			})
		}
		c.broadcaster.Broadcast(room.participants(), MsgRoomCreated, room.created())

		tournamentId, matchId := t.Id, m.Id
		c.rooms.StartRoom(room, Hooks{
			OnFinish: func(o Outcome) { c.onMatchFinished(tournamentId, matchId, o) },
			OnFault:  func(err error) { c.Abort(tournamentId, err) },
		})
		c.log.Info().Str("tournament_id", t.Id).Str("match_id", m.Id).Str("room_id", room.Id).Msg("match started")
	}
	return nil
}

func (c *Coordinator) onMatchFinished(tournamentId, matchId string, outcome Outcome) {
	defer c.recoverFrom(tournamentId)
	c.rooms.DeleteRoom(outcome.RoomId)

	t, ok := c.get(tournamentId)
	if !ok {
		return
	}
	if done := c.settle(t, matchId, outcome); done {
		c.remove(tournamentId)
	}
}

// settle applies a finished match to the bracket and reports whether the tournament
// is over with nobody left in it.
func (c *Coordinator) settle(t *Tournament, matchId string, outcome Outcome) bool {
	t.locker.Lock()
	defer t.locker.Unlock()

	r, i, ok := t.locateLocked(matchId)
	if !ok {
		panic(fmt.Errorf("%w: unknown match %s", ErrBracketInvariantBroken, matchId))
	}
	if err := t.recordWinnerLocked(r, i, outcome.Winner.UserId, outcome.FinishedAt); err != nil {
		panic(err)
	}

	record := outcome.record()
	record.TournamentId = t.Id
	record.MatchId = matchId
	c.recorder.Match(record)

	if err := c.advanceLocked(t); err != nil {
		panic(err)
	}
	c.broadcaster.Broadcast(t.presentLocked(), MsgTournamentState, TournamentPayload{Tournament: t.viewLocked()})

	if t.state != TournamentFinished {
		return false
	}
	c.recorder.Tournament(t.outcomeLocked())
	c.log.Info().Str("tournament_id", t.Id).Str("champion", t.bracket.WinnerId).Msg("tournament finished")
	return len(t.present) == 0
}

// Leave withdraws a participant. A match in progress is forfeited, a future one becomes
// a walkover. After the tournament finished it only marks the user as gone.
func (c *Coordinator) Leave(userId string) bool {
	c.locker.Lock()
	tournamentId := c.userTournaments[userId]
	delete(c.userTournaments, userId)
	t := c.tournaments[tournamentId]
	c.locker.Unlock()
	if t == nil {
		return false
	}

	defer c.recoverFrom(tournamentId)
	c.log.Info().Str("tournament_id", tournamentId).Str("user_id", userId).Msg("participant left")

	roomId, done := c.withdraw(t, userId)
	if roomId != "" {
		if room, ok := c.rooms.GetRoom(roomId); ok {
			if pos, ok := room.PositionOf(userId); ok {
				room.Session.Forfeit(pos)
			}
		}
	}
	if done {
		c.remove(tournamentId)
	}
	return true
}

// withdraw returns the room the user still plays in, if any, and whether the
// tournament is over with nobody left in it.
func (c *Coordinator) withdraw(t *Tournament, userId string) (roomId string, done bool) {
	t.locker.Lock()
	defer t.locker.Unlock()

	delete(t.present, userId)
	if t.state == TournamentFinished {
		return "", len(t.present) == 0
	}

	t.withdrawn[userId] = true
	if m := t.inProgressMatchOfLocked(userId); m != nil {
		return m.RoomId, false
	}
	if err := c.advanceLocked(t); err != nil {
		panic(err)
	}
	c.broadcaster.Broadcast(t.presentLocked(), MsgTournamentState, TournamentPayload{Tournament: t.viewLocked()})
	return "", t.state == TournamentFinished && len(t.present) == 0
}

// Abort tears a single tournament down after a fault, leaving all others untouched.
func (c *Coordinator) Abort(tournamentId string, cause error) {
	t, ok := c.get(tournamentId)
	if !ok {
		return
	}
	c.log.Error().Err(cause).Str("tournament_id", tournamentId).Msg("tournament aborted")

	t.locker.Lock()
	var rooms []string
	for _, rnd := range t.bracket.Rounds {
		for _, m := range rnd.Matches {
			if m.RoomId != "" {
				rooms = append(rooms, m.RoomId)
			}
		}
	}
	recipients := t.presentLocked()
	t.state = TournamentFinished
	t.locker.Unlock()

	c.remove(tournamentId)
	for _, roomId := range rooms {
		c.rooms.DeleteRoom(roomId)
	}
	c.broadcaster.Broadcast(recipients, MsgError, ErrorPayload{Message: ErrTournamentAborted.Error()})
}

func (c *Coordinator) recoverFrom(tournamentId string) {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%w: %v", ErrBracketInvariantBroken, r)
		}
		c.Abort(tournamentId, err)
	}
}

func (c *Coordinator) get(tournamentId string) (*Tournament, bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	t, ok := c.tournaments[tournamentId]
	return t, ok
}

func (c *Coordinator) remove(tournamentId string) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.removeLocked(tournamentId)
}

func (c *Coordinator) removeLocked(tournamentId string) {
	t, ok := c.tournaments[tournamentId]
	if !ok {
		return
	}
	delete(c.tournaments, tournamentId)
	for _, p := range t.Players {
		if c.userTournaments[p.Id] == tournamentId {
			delete(c.userTournaments, p.Id)
		}
	}
	c.log.Debug().Str("tournament_id", tournamentId).Msg("tournament removed")
}

// TournamentOf returns the tournament a user still participates in.
func (c *Coordinator) TournamentOf(userId string) (*Tournament, bool) {
	c.locker.Lock()
	defer c.locker.Unlock()
	t, ok := c.tournaments[c.userTournaments[userId]]
	return t, ok
}

// Engaged reports whether the user still has matches to play in a running tournament.
func (c *Coordinator) Engaged(userId string) bool {
	t, ok := c.TournamentOf(userId)
	if !ok {
		return false
	}
	t.locker.Lock()
	defer t.locker.Unlock()
	return t.engagedLocked(userId)
}

// PurgeFinished drops finished tournaments older than the retention period and
// returns how many went.
func (c *Coordinator) PurgeFinished(now time.Time) int {
	c.locker.Lock()
	var expired []string
	for id, t := range c.tournaments {
		t.locker.Lock()
		if t.state == TournamentFinished && now.Sub(t.finishedAt) >= c.retention {
			expired = append(expired, id)
		}
		t.locker.Unlock()
	}
	c.locker.Unlock()

	for _, id := range expired {
		c.remove(id)
	}
	return len(expired)
}

func (c *Coordinator) QueueLengths() map[int]int {
	c.locker.Lock()
	defer c.locker.Unlock()
	lengths := make(map[int]int, len(c.queues))
	for size, queue := range c.queues {
		lengths[size] = len(queue)
	}
	return lengths
}

func (c *Coordinator) Count() int {
	c.locker.Lock()
	defer c.locker.Unlock()
	return len(c.tournaments)
}

func (t *Tournament) outcomeLocked() domain.TournamentOutcome {
	champion := t.playerLocked(t.bracket.WinnerId)
	outcome := domain.TournamentOutcome{
		TournamentId:     t.Id,
		Size:             t.Size,
		ChampionId:       champion.Id,
		ChampionUsername: champion.Username,
		EliminatedIn:     map[string]int{},
		FinishedAt:       t.finishedAt,
	}
	for _, p := range t.Players {
		outcome.Participants = append(outcome.Participants, p.Id)
		if round, ok := t.eliminatedInLocked(p.Id); ok {
			outcome.EliminatedIn[p.Id] = round
		}
	}
	return outcome
}
