package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/stretchr/testify/mock"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close(errCode string) {
	m.Called(errCode)
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- UserGetter ---

type MockUserGetter struct {
	mock.Mock
}

func (m *MockUserGetter) GetUserById(ctx context.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

// --- Dispatcher ---

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(p *Player, data []byte) {
	m.Called(p, data)
}

func (m *MockDispatcher) Disconnect(p *Player) {
	m.Called(p)
}

// --- OutcomeSink ---

type MockOutcomeSink struct {
	mock.Mock
}

func (m *MockOutcomeSink) RecordMatch(ctx context.Context, outcome domain.MatchOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

func (m *MockOutcomeSink) RecordTournament(ctx context.Context, outcome domain.TournamentOutcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

// --- UniqueIdGenerator ---

// sequenceIdGen hands out prefix-1, prefix-2, ...
type sequenceIdGen struct {
	prefix string
	n      atomic.Int64
}

func (g *sequenceIdGen) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// --- PeriodicTickerChannelCreator ---

// manualTickers records every channel it creates so tests can tick rooms by hand.
type manualTickers struct {
	locker   sync.Mutex
	channels []chan time.Time
	stopped  atomic.Int64
}

func (m *manualTickers) Create(duration time.Duration) (<-chan time.Time, func()) {
	ch := make(chan time.Time)
	m.locker.Lock()
	m.channels = append(m.channels, ch)
	m.locker.Unlock()
	return ch, func() { m.stopped.Add(1) }
}

func (m *manualTickers) get(i int) chan time.Time {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.channels[i]
}

func (m *manualTickers) count() int {
	m.locker.Lock()
	defer m.locker.Unlock()
	return len(m.channels)
}

// --- Random ---

// fixedRandom always returns v, clamped to n-1.
type fixedRandom struct {
	v int
}

func (f fixedRandom) Intn(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

// --- Clock ---

type fakeClock struct {
	locker sync.Mutex
	now    time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(now time.Time) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.now = now
}

// --- Broadcaster ---

type sentMessage struct {
	To      string
	Type    string
	Payload any
}

// recordingBroadcaster keeps every message it is asked to deliver.
type recordingBroadcaster struct {
	locker    sync.Mutex
	sent      []sentMessage
	connected map[string]bool
}

func newRecordingBroadcaster(connected ...string) *recordingBroadcaster {
	b := &recordingBroadcaster{connected: map[string]bool{}}
	for _, id := range connected {
		b.connected[id] = true
	}
	return b
}

func (b *recordingBroadcaster) Broadcast(userIds []string, msgType string, payload any) {
	b.locker.Lock()
	defer b.locker.Unlock()
	for _, id := range userIds {
		b.sent = append(b.sent, sentMessage{To: id, Type: msgType, Payload: payload})
	}
}

func (b *recordingBroadcaster) Connected(userId string) bool {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.connected[userId]
}

func (b *recordingBroadcaster) messages(to, msgType string) []sentMessage {
	b.locker.Lock()
	defer b.locker.Unlock()
	var out []sentMessage
	for _, m := range b.sent {
		if m.To == to && m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (b *recordingBroadcaster) count(msgType string) int {
	b.locker.Lock()
	defer b.locker.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// --- helpers ---

func testSettings() Settings {
	return Settings{
		TickRate:        60,
		WinScore:        5,
		CourtWidth:      800,
		CourtHeight:     600,
		PaddleWidth:     10,
		PaddleHeight:    100,
		PaddleOffset:    20,
		PaddleSpeed:     8,
		BallRadius:      8,
		BallSpeed:       6,
		DisconnectGrace: 10 * time.Second,
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// drain reads every message currently queued for a player.
func drain(p *Player) []Envelope {
	var out []Envelope
	for {
		select {
		case data := <-p.inbox:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func ofType(envs []Envelope, msgType string) []Envelope {
	var out []Envelope
	for _, e := range envs {
		if e.Type == msgType {
			out = append(out, e)
		}
	}
	return out
}
