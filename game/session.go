package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/rs/zerolog"
)

// Broadcaster delivers outbound messages to users. Implementations must not block:
// the simulation calls it while holding its own lock.
type Broadcaster interface {
	Broadcast(userIds []string, msgType string, payload any)
	Connected(userId string) bool
}

// Hooks let the owner of a room observe how its session ends. They run on the
// session goroutine (or the caller of Forfeit) and never under the session lock.
type Hooks struct {
	OnFinish func(Outcome)
	OnFault  func(error)
}

// Outcome is the terminal result of a session that ended by score or forfeit.
type Outcome struct {
	RoomId     string
	Mode       Mode
	Winner     Seat
	Loser      Seat
	Score      ScoreView
	Forfeit    bool
	FinishedAt time.Time
}

func (o Outcome) gameOver() GameOverPayload {
	return GameOverPayload{
		RoomId:         o.RoomId,
		WinnerId:       o.Winner.Id,
		LoserId:        o.Loser.Id,
		WinnerUsername: o.Winner.Username,
		LoserUsername:  o.Loser.Username,
		FinalScore:     o.Score,
		Forfeit:        o.Forfeit,
	}
}

func (o Outcome) record() domain.MatchOutcome {
	return domain.MatchOutcome{
		RoomId:         o.RoomId,
		Mode:           string(o.Mode),
		WinnerId:       o.Winner.Id,
		LoserId:        o.Loser.Id,
		WinnerUsername: o.Winner.Username,
		LoserUsername:  o.Loser.Username,
		FinalScore:     domain.Score{Left: o.Score.Left, Right: o.Score.Right},
		Forfeit:        o.Forfeit,
		FinishedAt:     o.FinishedAt,
	}
}

// Session is the authoritative simulation of one match.
// pending -> active -> finished, finished is terminal.
type Session struct {
	roomId      string
	mode        Mode
	settings    Settings
	seats       [2]Seat
	recipients  []string
	broadcaster Broadcaster
	rnd         Random
	log         zerolog.Logger

	mu                sync.Mutex
	status            SessionStatus
	court             court
	inputs            [2]Action
	tick              uint64
	disconnected      [2]bool
	disconnectedSince [2]time.Time
	hooks             Hooks
	started           bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func newSession(roomId string, mode Mode, settings Settings, seats [2]Seat, b Broadcaster, rnd Random, log zerolog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	recipients := []string{seats[0].UserId}
	if seats[1].UserId != seats[0].UserId {
		recipients = append(recipients, seats[1].UserId)
	}
	return &Session{
		roomId:      roomId,
		mode:        mode,
		settings:    settings,
		seats:       seats,
		recipients:  recipients,
		broadcaster: b,
		rnd:         rnd,
		log:         log,
		status:      StatusPending,
		court:       newCourt(settings, rnd),
		inputs:      [2]Action{ActionStop, ActionStop},
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Start moves the session to active and runs the tick loop on its own goroutine.
// It returns false if the session was already started or torn down.
func (s *Session) Start(ticks <-chan time.Time, stopTicker func(), hooks Hooks) bool {
	s.mu.Lock()
	if s.status != StatusPending {
		s.mu.Unlock()
		stopTicker()
		return false
	}
	s.status = StatusActive
	s.started = true
	s.hooks = hooks
	if s.mode != ModeLocal {
		for i, seat := range s.seats {
			if !s.broadcaster.Connected(seat.UserId) {
				s.disconnected[i] = true
			}
		}
	}
	s.broadcaster.Broadcast(s.recipients, MsgGameState, s.gameStateLocked())
	s.mu.Unlock()

	s.log.Info().Str("room_id", s.roomId).Str("mode", string(s.mode)).Msg("session started")
	go s.loop(ticks, stopTicker)
	return true
}

func (s *Session) loop(ticks <-chan time.Time, stopTicker func()) {
	defer close(s.done)
	defer stopTicker()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now, ok := <-ticks:
			if !ok || s.ctx.Err() != nil {
				return
			}
			if finished := s.safeTick(now); finished {
				return
			}
		}
	}
}

func (s *Session) safeTick(now time.Time) (finished bool) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(fmt.Errorf("%w: %v", ErrSimulationFault, r))
			finished = true
		}
	}()
	return s.tickOnce(now)
}

// tickOnce runs one simulation step and reports whether the session is over.
func (s *Session) tickOnce(now time.Time) bool {
	outcome, finished := s.advance(now)
	if outcome != nil && s.hooks.OnFinish != nil {
		s.hooks.OnFinish(*outcome)
	}
	return finished
}

func (s *Session) advance(now time.Time) (*Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, true
	}

	paused := false
	for i := range s.seats {
		if !s.disconnected[i] {
			continue
		}
		paused = true
		if s.disconnectedSince[i].IsZero() {
			s.disconnectedSince[i] = now
		}
		if now.Sub(s.disconnectedSince[i]) >= s.settings.DisconnectGrace {
			s.log.Info().Str("room_id", s.roomId).Str("user_id", s.seats[i].UserId).Msg("disconnect grace expired, forfeiting")
			outcome := s.finishLocked(1-i, true, now)
			return &outcome, true
		}
	}
	if paused {
		return nil, false
	}

	scorer := s.court.step(s.inputs, s.rnd)
	s.tick++

	if scorer >= 0 && s.court.scores[scorer] >= s.settings.WinScore {
		outcome := s.finishLocked(scorer, false, now)
		return &outcome, true
	}

	s.broadcaster.Broadcast(s.recipients, MsgStateUpdate, s.updateLocked())
	return nil, false
}

// finishLocked ends the session with the seat at winner winning and broadcasts the
// terminal outcome. Tournament outcomes are reported by the coordinator instead.
func (s *Session) finishLocked(winner int, forfeit bool, now time.Time) Outcome {
	s.status = StatusFinished
	s.cancel()

	outcome := Outcome{
		RoomId:     s.roomId,
		Mode:       s.mode,
		Winner:     s.seats[winner],
		Loser:      s.seats[1-winner],
		Score:      ScoreView{Left: s.court.scores[0], Right: s.court.scores[1]},
		Forfeit:    forfeit,
		FinishedAt: now,
	}
	if s.mode != ModeTournament {
		s.broadcaster.Broadcast(s.recipients, MsgGameOver, outcome.gameOver())
	}
	s.log.Info().
		Str("room_id", s.roomId).
		Str("winner", outcome.Winner.Id).
		Int("left", outcome.Score.Left).
		Int("right", outcome.Score.Right).
		Bool("forfeit", forfeit).
		Msg("session finished")
	return outcome
}

func (s *Session) fault(err error) {
	s.mu.Lock()
	wasActive := s.status != StatusFinished
	s.status = StatusFinished
	s.mu.Unlock()
	s.cancel()

	s.log.Error().Err(err).Str("room_id", s.roomId).Msg("session fault")
	if wasActive {
		s.broadcaster.Broadcast(s.recipients, MsgError, ErrorPayload{Message: ErrSimulationFault.Error()})
	}
	if s.hooks.OnFault == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("room_id", s.roomId).Msg("fault hook panicked")
		}
	}()
	s.hooks.OnFault(err)
}

// SetInput records the latest action for a position. Later inputs before the next
// tick replace earlier ones.
func (s *Session) SetInput(pos Position, action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return
	}
	s.inputs[pos.index()] = action
}

// Forfeit ends an active session with pos losing. It returns false if the session
// was not active.
func (s *Session) Forfeit(pos Position) bool {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return false
	}
	outcome := s.finishLocked(1-pos.index(), true, time.Now())
	hooks := s.hooks
	s.mu.Unlock()

	if hooks.OnFinish != nil {
		hooks.OnFinish(outcome)
	}
	return true
}

// SetConnected pauses the session while a seat is disconnected.
func (s *Session) SetConnected(pos Position, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusFinished {
		return
	}
	i := pos.index()
	if s.disconnected[i] == !connected {
		return
	}
	s.disconnected[i] = !connected
	s.disconnectedSince[i] = time.Time{}

	msgType := MsgPlayerReconnected
	if !connected {
		msgType = MsgPlayerDisconnected
	}
	s.broadcaster.Broadcast(s.recipients, msgType, PresencePayload{
		RoomId:   s.roomId,
		Position: pos,
		UserId:   s.seats[i].UserId,
	})
}

// Stop tears the session down. Safe to call any number of times, from any goroutine,
// including from a hook running on the session goroutine.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.status = StatusFinished
		started := s.started
		s.mu.Unlock()
		s.cancel()
		if !started {
			close(s.done)
		}
	})
}

// Done is closed once the tick loop has exited (or Stop ran on a session that
// never started).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) GameState() GameStatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameStateLocked()
}

func (s *Session) updateLocked() StateUpdatePayload {
	st := s.settings
	view := func(i int, x float64) PlayerStateView {
		return PlayerStateView{
			Id:       s.seats[i].Id,
			Username: s.seats[i].Username,
			Score:    s.court.scores[i],
			Paddle: PaddleView{
				X:      x,
				Y:      s.court.paddles[i].y,
				Width:  st.PaddleWidth,
				Height: st.PaddleHeight,
			},
		}
	}
	return StateUpdatePayload{
		RoomId: s.roomId,
		Tick:   s.tick,
		Players: PlayersView{
			Left:  view(0, st.PaddleOffset),
			Right: view(1, st.CourtWidth-st.PaddleOffset-st.PaddleWidth),
		},
		Ball:   BallView{X: s.court.ball.x, Y: s.court.ball.y, Radius: st.BallRadius},
		Status: s.status,
		Paused: s.disconnected[0] || s.disconnected[1],
	}
}

func (s *Session) gameStateLocked() GameStatePayload {
	return GameStatePayload{
		StateUpdatePayload: s.updateLocked(),
		Mode:               s.mode,
		Court: CourtView{
			Width:    s.settings.CourtWidth,
			Height:   s.settings.CourtHeight,
			WinScore: s.settings.WinScore,
			TickRate: s.settings.TickRate,
		},
	}
}
