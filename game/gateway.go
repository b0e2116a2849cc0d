package game

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Gateway routes inbound messages to the queues, the coordinator and the rooms, and
// handles connection lifecycle.
type Gateway struct {
	hub         *Hub
	registry    *Registry
	matchmaking *Matchmaking
	coordinator *Coordinator
	recorder    *Recorder
	log         zerolog.Logger
}

func NewGateway(hub *Hub, registry *Registry, matchmaking *Matchmaking, coordinator *Coordinator, recorder *Recorder, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:         hub,
		registry:    registry,
		matchmaking: matchmaking,
		coordinator: coordinator,
		recorder:    recorder,
		log:         log,
	}
}

// Connect binds p to its user. An older connection is closed, and a user coming back
// to a live room or tournament receives the state needed to resume.
func (g *Gateway) Connect(p *Player) {
	if prev := g.hub.Attach(p); prev != nil {
		g.log.Info().Str("user_id", p.id).Msg("connection replaced")
		prev.CloseWith(ErrConnectionReplaced.Error())
	}

	if room, ok := g.registry.RoomOf(p.id); ok {
		g.hub.Send(p, MsgRoomCreated, room.created())
		if pos, ok := room.PositionOf(p.id); ok {
			room.Session.SetConnected(pos, true)
		}
		g.hub.Send(p, MsgGameState, room.Session.GameState())
	}
	if t, ok := g.coordinator.TournamentOf(p.id); ok {
		g.hub.Send(p, MsgTournamentState, TournamentPayload{Tournament: t.View()})
	}
}

// Disconnect runs once per connection. Replaced connections are ignored.
func (g *Gateway) Disconnect(p *Player) {
	if !g.hub.Detach(p) {
		return
	}
	g.log.Debug().Str("user_id", p.id).Msg("disconnected")

	g.matchmaking.Dequeue(p.id)
	g.coordinator.LeaveQueue(p.id)

	room, ok := g.registry.RoomOf(p.id)
	if !ok {
		return
	}
	if room.Mode == ModeLocal {
		g.registry.DeleteRoom(room.Id)
		return
	}
	if pos, ok := room.PositionOf(p.id); ok {
		room.Session.SetConnected(pos, false)
	}
}

// Dispatch handles one inbound frame. Protocol errors are answered with ERROR, messages
// that do not apply to the user's current state are ignored.
func (g *Gateway) Dispatch(p *Player, data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		g.replyError(p, err)
		return
	}

	switch env.Type {
	case MsgPing:
		g.hub.Send(p, MsgPong, nil)
	case MsgCreateLocalGame:
		err = g.createLocalGame(p, env)
	case MsgJoinMatchmaking:
		err = g.joinMatchmaking(p, env)
	case MsgLeaveMatchmaking:
		if g.matchmaking.Dequeue(p.id) {
			g.hub.Send(p, MsgMatchmakingLeft, nil)
		}
	case MsgJoinTournamentQueue:
		err = g.joinTournamentQueue(p, env)
	case MsgLeaveTournamentQueue:
		g.coordinator.LeaveQueue(p.id)
	case MsgLeaveTournament:
		g.coordinator.Leave(p.id)
	case MsgPlayerInput:
		err = g.playerInput(p, env)
	case MsgLeaveGame:
		g.leaveGame(p)
	default:
		err = ErrUnknownMessageType
	}

	if err != nil {
		g.replyError(p, err)
	}
}

func (g *Gateway) replyError(p *Player, err error) {
	g.log.Debug().Err(err).Str("user_id", p.id).Msg("protocol error")
	g.hub.Send(p, MsgError, ErrorPayload{Message: err.Error()})
}

// busy is true while the user sits in a room, waits in a queue or still has
// tournament matches ahead.
func (g *Gateway) busy(userId string) bool {
	if _, ok := g.registry.RoomOf(userId); ok {
		return true
	}
	return g.matchmaking.Contains(userId) || g.coordinator.Queued(userId) || g.coordinator.Engaged(userId)
}

func (g *Gateway) createLocalGame(p *Player, env Envelope) error {
	var req gameRequestPayload
	if err := decodePayload(env.Payload, &req); err != nil {
		return err
	}
	if g.busy(p.id) {
		return nil
	}

	room, err := g.registry.CreateLocalGame(p.Ref(), req.Config)
	if err != nil {
		return err
	}
	g.hub.Send(p, MsgRoomCreated, room.created())

	roomId := room.Id
	g.registry.StartRoom(room, Hooks{
		OnFinish: func(Outcome) { g.registry.DeleteRoom(roomId) },
		OnFault:  func(error) { g.registry.DeleteRoom(roomId) },
	})
	return nil
}

func (g *Gateway) joinMatchmaking(p *Player, env Envelope) error {
	var req gameRequestPayload
	if err := decodePayload(env.Payload, &req); err != nil {
		return err
	}
	if g.busy(p.id) {
		return nil
	}

	added, pairing, err := g.matchmaking.Enqueue(p.Ref(), req.Config)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	if pairing == nil {
		g.hub.Send(p, MsgMatchmakingSearching, SearchingPayload{QueueLength: g.matchmaking.Len()})
		return nil
	}
	g.startOnlineGame(pairing)
	return nil
}

func (g *Gateway) startOnlineGame(pairing *Pairing) {
	room := pairing.Room
	for i, player := range []PlayerRef{pairing.Player1, pairing.Player2} {
		g.hub.Broadcast([]string{player.Id}, MsgMatchFound, MatchFoundPayload{
			RoomId:   room.Id,
			Player1:  pairing.Player1,
			Player2:  pairing.Player2,
			Position: positionOf(i),
		})
	}
	g.hub.Broadcast(room.participants(), MsgRoomCreated, room.created())

	roomId := room.Id
	g.registry.StartRoom(room, Hooks{
		OnFinish: func(o Outcome) {
			g.registry.DeleteRoom(roomId)
			g.recorder.Match(o.record())
		},
		OnFault: func(error) { g.registry.DeleteRoom(roomId) },
	})
}

func (g *Gateway) joinTournamentQueue(p *Player, env Envelope) error {
	var req joinTournamentPayload
	if err := decodePayload(env.Payload, &req); err != nil {
		return err
	}
	if !ValidTournamentSize(req.Size) {
		return ErrInvalidTournamentSize
	}
	if _, ok := g.registry.RoomOf(p.id); ok || g.matchmaking.Contains(p.id) {
		return nil
	}
	return g.coordinator.JoinQueue(p.Ref(), req.Size)
}

func (g *Gateway) playerInput(p *Player, env Envelope) error {
	var req playerInputPayload
	if err := decodePayload(env.Payload, &req); err != nil {
		return err
	}
	if !req.Action.Valid() {
		return ErrMalformedPayload
	}

	room, ok := g.registry.RoomOf(p.id)
	if !ok {
		return nil
	}
	if room.Mode == ModeLocal {
		if !req.PlayerPosition.Valid() {
			return ErrMalformedPayload
		}
		room.Session.SetInput(req.PlayerPosition, req.Action)
		return nil
	}
	// The sender's seat decides the paddle; a claimed position is ignored.
	if pos, ok := room.PositionOf(p.id); ok {
		room.Session.SetInput(pos, req.Action)
	}
	return nil
}

func (g *Gateway) leaveGame(p *Player) {
	room, ok := g.registry.RoomOf(p.id)
	if !ok {
		return
	}
	if room.Mode == ModeLocal {
		g.registry.DeleteRoom(room.Id)
		return
	}
	if pos, ok := room.PositionOf(p.id); ok {
		room.Session.Forfeit(pos)
	}
}

// Stats is the body of the /stats endpoint.
type Stats struct {
	Connections      int         `json:"connections"`
	Rooms            int         `json:"rooms"`
	MatchmakingQueue int         `json:"matchmakingQueue"`
	TournamentQueues map[int]int `json:"tournamentQueues"`
	Tournaments      int         `json:"tournaments"`
}

func (g *Gateway) Stats() Stats {
	return Stats{
		Connections:      g.hub.Count(),
		Rooms:            g.registry.Count(),
		MatchmakingQueue: g.matchmaking.Len(),
		TournamentQueues: g.coordinator.QueueLengths(),
		Tournaments:      g.coordinator.Count(),
	}
}

// PingLoop pings every connection on each tick until ctx is done.
func (g *Gateway) PingLoop(ctx context.Context, tickerCreator PeriodicTickerChannelCreator, interval time.Duration) {
	ticks, stop := tickerCreator.Create(interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			g.hub.PingAll()
		}
	}
}

// Shutdown closes every connection, stops every room and waits for pending outcome
// writes, or for ctx.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.CloseAll("server-shutdown")
	g.registry.StopAll()

	flushed := make(chan struct{})
	go func() {
		g.recorder.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flushing outcomes: %w", ctx.Err())
	}
}
