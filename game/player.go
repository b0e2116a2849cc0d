package game

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Dispatcher receives what a player's socket reads.
type Dispatcher interface {
	Dispatch(p *Player, data []byte)
	Disconnect(p *Player)
}

type Player struct {
	id          string
	username    string
	rateLimiter *rate.Limiter
	inbox       chan []byte
	pingChan    chan struct{}
	ctx         context.Context
	cancelCtx   context.CancelFunc
	releaseOnce sync.Once
	closeReason string
}

func NewPlayer(id, username string, limit rate.Limit, burst int) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	return &Player{
		id:          id,
		username:    username,
		rateLimiter: rate.NewLimiter(limit, burst),
		inbox:       make(chan []byte, 256),
		pingChan:    make(chan struct{}, 1),
		ctx:         ctx,
		cancelCtx:   cancel,
	}
}

func (p *Player) Id() string {
	return p.id
}

func (p *Player) Username() string {
	return p.username
}

func (p *Player) Ref() PlayerRef {
	return PlayerRef{Id: p.id, Username: p.username}
}

// Send queues data for the write pump. A full inbox drops the message rather than
// stall the sender. Returns false when dropped.
func (p *Player) Send(data []byte) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.inbox <- data:
		return true
	default:
		return false
	}
}

func (p *Player) Ping() {
	select {
	case p.pingChan <- struct{}{}:
	default:
	}
}

// CloseWith stops both pumps; the write pump closes the socket with reason.
func (p *Player) CloseWith(reason string) {
	p.releaseOnce.Do(func() {
		p.closeReason = reason
		p.cancelCtx()
	})
}

func (p *Player) CancelAndRelease() {
	p.CloseWith("")
}

// ReadPump forwards every frame to d until the socket fails or the player is released.
// Frames beyond the rate limit are dropped.
func (p *Player) ReadPump(socket WebsocketConnection, d Dispatcher) {
	defer d.Disconnect(p)
	defer p.CancelAndRelease()

	for {
		data, err := socket.Read()
		if err != nil || p.ctx.Err() != nil {
			return
		}
		if !p.rateLimiter.Allow() {
			continue
		}
		d.Dispatch(p, data)
	}
}

// WritePump owns the socket's write side and closes it on exit.
func (p *Player) WritePump(socket WebsocketConnection) {
	defer func() {
		p.CancelAndRelease()
		socket.Close(p.closeReason)
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case data := <-p.inbox:
			if err := socket.Write(data); err != nil {
				return
			}
		case <-p.pingChan:
			if err := socket.Ping(); err != nil {
				return
			}
		}
	}
}
