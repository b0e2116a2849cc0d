package game

import (
	"testing"

	"github.com/e-kose/FT-PINPON-sub000/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(b Broadcaster) (*Registry, *manualTickers) {
	tickers := &manualTickers{}
	r := NewRegistry(testSettings(), &sequenceIdGen{prefix: "room"}, tickers, b, fixedRandom{0}, logger.Nop())
	return r, tickers
}

func TestRegistry_CreateLocalGame(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(newRecordingBroadcaster())

	room, err := r.CreateLocalGame(PlayerRef{Id: "u1", Username: "neo"}, MatchOptions{WinScore: intPtr(3)})
	require.NoError(t, err)

	assert.Equal(t, "room-1", room.Id)
	assert.Equal(t, ModeLocal, room.Mode)
	assert.Equal(t, Seat{Id: "u1-p1", Username: "neo-p1", UserId: "u1"}, room.Seats[0])
	assert.Equal(t, Seat{Id: "u1-p2", Username: "neo-p2", UserId: "u1"}, room.Seats[1])
	assert.Equal(t, 3, room.settings.WinScore)

	got, ok := r.GetRoom(room.Id)
	require.True(t, ok, "room is registered before it is returned")
	assert.Same(t, room, got)

	mine, ok := r.RoomOf("u1")
	require.True(t, ok)
	assert.Same(t, room, mine)

	_, ok = room.PositionOf("u1")
	assert.False(t, ok, "local seats are addressed by explicit position")

	created := room.created()
	assert.Equal(t, map[Position]string{Left: "u1-p1", Right: "u1-p2"}, created.Positions)
}

func TestRegistry_CreateOnlineGame(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(newRecordingBroadcaster())

	room, err := r.CreateOnlineGame(PlayerRef{Id: "a", Username: "A"}, PlayerRef{Id: "b", Username: "B"}, MatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, ModeMatchmaking, room.Mode)
	pos, ok := room.PositionOf("a")
	require.True(t, ok)
	assert.Equal(t, Left, pos)
	pos, ok = room.PositionOf("b")
	require.True(t, ok)
	assert.Equal(t, Right, pos)
	_, ok = room.PositionOf("c")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_RejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		opts MatchOptions
	}{
		{name: "win score too high", opts: MatchOptions{WinScore: intPtr(50)}},
		{name: "win score zero", opts: MatchOptions{WinScore: intPtr(0)}},
		{name: "ball too fast", opts: MatchOptions{BallSpeed: floatPtr(3)}},
		{name: "paddle too slow", opts: MatchOptions{PaddleSpeed: floatPtr(0.1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r, _ := newTestRegistry(newRecordingBroadcaster())

			_, err := r.CreateLocalGame(PlayerRef{Id: "u1"}, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			_, err = r.CreateOnlineGame(PlayerRef{Id: "a"}, PlayerRef{Id: "b"}, tc.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.Equal(t, 0, r.Count())
		})
	}
}

func TestRegistry_DeleteRoomIsIdempotent(t *testing.T) {
	t.Parallel()
	r, tickers := newTestRegistry(newRecordingBroadcaster("a", "b"))

	room, err := r.CreateOnlineGame(PlayerRef{Id: "a"}, PlayerRef{Id: "b"}, MatchOptions{})
	require.NoError(t, err)
	require.True(t, r.StartRoom(room, Hooks{}))
	assert.Equal(t, 1, tickers.count())

	r.DeleteRoom(room.Id)
	_, ok := r.GetRoom(room.Id)
	assert.False(t, ok, "absent right after delete returns")
	_, ok = r.RoomOf("a")
	assert.False(t, ok)
	assert.Equal(t, StatusFinished, room.Session.Status())
	waitDone(t, room.Session)

	assert.NotPanics(t, func() {
		r.DeleteRoom(room.Id)
		r.DeleteRoom("unknown")
	})
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DeleteKeepsNewerRoomIndex(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(newRecordingBroadcaster())

	first, err := r.CreateLocalGame(PlayerRef{Id: "u1"}, MatchOptions{})
	require.NoError(t, err)
	second, err := r.CreateLocalGame(PlayerRef{Id: "u1"}, MatchOptions{})
	require.NoError(t, err)

	r.DeleteRoom(first.Id)

	mine, ok := r.RoomOf("u1")
	require.True(t, ok)
	assert.Equal(t, second.Id, mine.Id)
}

func TestRegistry_TournamentGameUsesDefaults(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(newRecordingBroadcaster())

	room := r.CreateTournamentGame("t-1", "m-1", PlayerRef{Id: "a"}, PlayerRef{Id: "b"})

	assert.Equal(t, ModeTournament, room.Mode)
	assert.Equal(t, "t-1", room.TournamentId)
	assert.Equal(t, "m-1", room.MatchId)
	assert.Equal(t, testSettings(), room.settings)
}

func TestRegistry_StopAll(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(newRecordingBroadcaster())
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := r.CreateLocalGame(PlayerRef{Id: id}, MatchOptions{})
		require.NoError(t, err)
	}

	r.StopAll()

	assert.Equal(t, 0, r.Count())
}
