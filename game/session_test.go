package game

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var onlineSeats2 = [2]Seat{
	{Id: "alice", Username: "Alice", UserId: "alice"},
	{Id: "bob", Username: "Bob", UserId: "bob"},
}

func newTestSession(mode Mode, settings Settings, b Broadcaster) *Session {
	return newSession("room-1", mode, settings, onlineSeats2, b, fixedRandom{0}, logger.Nop())
}

// outcomes collects what the hooks of a session observed.
type outcomes struct {
	locker   sync.Mutex
	finished []Outcome
	faults   []error
}

func (o *outcomes) hooks() Hooks {
	return Hooks{
		OnFinish: func(out Outcome) {
			o.locker.Lock()
			defer o.locker.Unlock()
			o.finished = append(o.finished, out)
		},
		OnFault: func(err error) {
			o.locker.Lock()
			defer o.locker.Unlock()
			o.faults = append(o.faults, err)
		},
	}
}

func (o *outcomes) snapshot() ([]Outcome, []error) {
	o.locker.Lock()
	defer o.locker.Unlock()
	return append([]Outcome(nil), o.finished...), append([]error(nil), o.faults...)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session loop did not exit")
	}
}

func TestSession_StartBroadcastsGameState(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	s := newTestSession(ModeMatchmaking, testSettings(), b)
	ticks := make(chan time.Time)
	var stops atomic.Int32

	require.True(t, s.Start(ticks, func() { stops.Add(1) }, Hooks{}))
	assert.False(t, s.Start(ticks, func() { stops.Add(1) }, Hooks{}), "a session starts once")
	assert.Equal(t, StatusActive, s.Status())

	for _, user := range []string{"alice", "bob"} {
		msgs := b.messages(user, MsgGameState)
		require.Len(t, msgs, 1)
		state := msgs[0].Payload.(GameStatePayload)
		assert.Equal(t, "room-1", state.RoomId)
		assert.Equal(t, ModeMatchmaking, state.Mode)
		assert.Equal(t, 5, state.Court.WinScore)
		assert.Equal(t, "alice", state.Players.Left.Id)
		assert.Equal(t, "bob", state.Players.Right.Id)
	}

	// the third send only lands once the second tick has been fully processed
	ticks <- time.Now()
	ticks <- time.Now()
	ticks <- time.Now()
	s.Stop()
	waitDone(t, s)

	assert.GreaterOrEqual(t, b.count(MsgStateUpdate), 2)
	assert.Equal(t, int32(2), stops.Load(), "ticker stopped by the rejected start and by the loop")
}

func TestSession_StopBeforeStart(t *testing.T) {
	t.Parallel()
	s := newTestSession(ModeMatchmaking, testSettings(), newRecordingBroadcaster())

	s.Stop()
	s.Stop()
	waitDone(t, s)

	stopped := false
	assert.False(t, s.Start(make(chan time.Time), func() { stopped = true }, Hooks{}))
	assert.True(t, stopped)
	assert.Equal(t, StatusFinished, s.Status())
}

func TestSession_ScoreThresholdFinishes(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	settings := testSettings()
	settings.WinScore = 1
	s := newTestSession(ModeMatchmaking, settings, b)
	s.court.paddles[0].y = 0
	s.court.ball = ball{x: 5, y: 300, vx: -6, vy: 0}

	var seen outcomes
	ticks := make(chan time.Time)
	require.True(t, s.Start(ticks, func() {}, seen.hooks()))
	ticks <- time.Now()
	waitDone(t, s)

	finished, faults := seen.snapshot()
	require.Len(t, finished, 1)
	assert.Empty(t, faults)
	assert.Equal(t, "bob", finished[0].Winner.Id)
	assert.Equal(t, "alice", finished[0].Loser.Id)
	assert.Equal(t, ScoreView{Left: 0, Right: 1}, finished[0].Score)
	assert.False(t, finished[0].Forfeit)
	assert.Equal(t, StatusFinished, s.Status())

	for _, user := range []string{"alice", "bob"} {
		msgs := b.messages(user, MsgGameOver)
		require.Len(t, msgs, 1, "terminal outcome is broadcast once")
		over := msgs[0].Payload.(GameOverPayload)
		assert.Equal(t, "bob", over.WinnerId)
		assert.Equal(t, "Alice", over.LoserUsername)
	}
	assert.Equal(t, 0, b.count(MsgStateUpdate), "the finishing tick sends the outcome instead of a snapshot")
}

func TestSession_TournamentDoesNotBroadcastGameOver(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	settings := testSettings()
	settings.WinScore = 1
	s := newTestSession(ModeTournament, settings, b)
	s.court.paddles[1].y = 0
	s.court.ball = ball{x: 797, y: 300, vx: 6, vy: 0}

	var seen outcomes
	ticks := make(chan time.Time)
	require.True(t, s.Start(ticks, func() {}, seen.hooks()))
	ticks <- time.Now()
	waitDone(t, s)

	finished, _ := seen.snapshot()
	require.Len(t, finished, 1)
	assert.Equal(t, "alice", finished[0].Winner.Id)
	assert.Equal(t, 0, b.count(MsgGameOver))
}

func TestSession_InputLastWriteWins(t *testing.T) {
	t.Parallel()
	s := newTestSession(ModeLocal, testSettings(), newRecordingBroadcaster())
	s.status = StatusActive

	s.SetInput(Left, ActionMoveUp)
	s.SetInput(Left, ActionMoveDown)
	s.SetInput(Right, ActionMoveUp)
	s.tickOnce(time.Now())

	state := s.GameState()
	assert.Equal(t, 258.0, state.Players.Left.Paddle.Y)
	assert.Equal(t, 242.0, state.Players.Right.Paddle.Y)
	assert.Equal(t, uint64(1), state.Tick)
}

func TestSession_DisconnectGraceForfeits(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice")
	s := newTestSession(ModeMatchmaking, testSettings(), b)

	var seen outcomes
	ticks := make(chan time.Time)
	require.True(t, s.Start(ticks, func() {}, seen.hooks()))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks <- start
	ticks <- start.Add(5 * time.Second)
	assert.True(t, s.GameState().Paused)
	ticks <- start.Add(10 * time.Second)
	waitDone(t, s)

	assert.Equal(t, 0, b.count(MsgStateUpdate), "a paused session does not advance")
	finished, _ := seen.snapshot()
	require.Len(t, finished, 1)
	assert.Equal(t, "alice", finished[0].Winner.Id)
	assert.True(t, finished[0].Forfeit)
	assert.Equal(t, start.Add(10*time.Second), finished[0].FinishedAt)
}

func TestSession_ReconnectResumes(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	s := newTestSession(ModeMatchmaking, testSettings(), b)
	s.status = StatusActive

	s.SetConnected(Right, false)
	s.SetConnected(Right, false)
	now := time.Now()
	s.tickOnce(now)
	assert.Equal(t, uint64(0), s.GameState().Tick)

	s.SetConnected(Right, true)
	s.tickOnce(now.Add(time.Minute))

	assert.Equal(t, uint64(1), s.GameState().Tick)
	require.Len(t, b.messages("alice", MsgPlayerDisconnected), 1, "repeated notices are collapsed")
	reconnected := b.messages("alice", MsgPlayerReconnected)
	require.Len(t, reconnected, 1)
	assert.Equal(t, PresencePayload{RoomId: "room-1", Position: Right, UserId: "bob"}, reconnected[0].Payload)
}

func TestSession_Forfeit(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	s := newTestSession(ModeMatchmaking, testSettings(), b)

	assert.False(t, s.Forfeit(Left), "nothing to forfeit before start")

	var seen outcomes
	require.True(t, s.Start(make(chan time.Time), func() {}, seen.hooks()))
	require.True(t, s.Forfeit(Left))
	assert.False(t, s.Forfeit(Right), "the outcome is decided once")
	waitDone(t, s)

	finished, _ := seen.snapshot()
	require.Len(t, finished, 1)
	assert.Equal(t, "bob", finished[0].Winner.Id)
	assert.True(t, finished[0].Forfeit)
	over := b.messages("alice", MsgGameOver)
	require.Len(t, over, 1)
	assert.True(t, over[0].Payload.(GameOverPayload).Forfeit)
}

// armedRandom panics once armed, to simulate a fault deep inside a tick.
type armedRandom struct {
	armed *atomic.Bool
}

func (r armedRandom) Intn(n int) int {
	if r.armed.Load() {
		panic("random source exhausted")
	}
	return 0
}

func TestSession_FaultIsContained(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("alice", "bob")
	armed := &atomic.Bool{}
	s := newSession("room-1", ModeMatchmaking, testSettings(), onlineSeats2, b, armedRandom{armed}, logger.Nop())
	s.court.paddles[0].y = 0
	s.court.ball = ball{x: 5, y: 300, vx: -6, vy: 0}
	armed.Store(true)

	var seen outcomes
	ticks := make(chan time.Time)
	require.True(t, s.Start(ticks, func() {}, seen.hooks()))
	ticks <- time.Now()
	waitDone(t, s)

	finished, faults := seen.snapshot()
	assert.Empty(t, finished)
	require.Len(t, faults, 1)
	assert.True(t, errors.Is(faults[0], ErrSimulationFault))
	assert.Equal(t, StatusFinished, s.Status())

	msgs := b.messages("bob", MsgError)
	require.Len(t, msgs, 1)
	assert.Equal(t, ErrorPayload{Message: "simulation-fault"}, msgs[0].Payload)
}

func TestSession_LocalSeatsShareOneRecipient(t *testing.T) {
	t.Parallel()
	b := newRecordingBroadcaster("u1")
	seats := [2]Seat{
		{Id: "u1-p1", Username: "neo-p1", UserId: "u1"},
		{Id: "u1-p2", Username: "neo-p2", UserId: "u1"},
	}
	s := newSession("room-1", ModeLocal, testSettings(), seats, b, fixedRandom{0}, logger.Nop())

	require.True(t, s.Start(make(chan time.Time), func() {}, Hooks{}))
	s.Stop()
	waitDone(t, s)

	assert.Len(t, b.messages("u1", MsgGameState), 1)
	assert.False(t, s.GameState().Paused)
}
