package game

import (
	"time"

	"github.com/e-kose/FT-PINPON-sub000/configs"
)

type Position string

const (
	Left  Position = "left"
	Right Position = "right"
)

func (p Position) index() int {
	if p == Right {
		return 1
	}
	return 0
}

func (p Position) Valid() bool {
	return p == Left || p == Right
}

func positionOf(index int) Position {
	if index == 1 {
		return Right
	}
	return Left
}

type Action string

const (
	ActionMoveUp   Action = "move_up"
	ActionMoveDown Action = "move_down"
	ActionStop     Action = "stop"
)

func (a Action) Valid() bool {
	return a == ActionMoveUp || a == ActionMoveDown || a == ActionStop
}

// direction is the vertical sign applied to a paddle: the y axis grows downwards.
func (a Action) direction() float64 {
	switch a {
	case ActionMoveUp:
		return -1
	case ActionMoveDown:
		return 1
	}
	return 0
}

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeMatchmaking Mode = "matchmaking"
	ModeTournament  Mode = "tournament"
)

type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// PlayerRef identifies a user to queues and rooms.
type PlayerRef struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

// Seat binds one court position to a player. For local games UserId is the owning
// user while Id carries the "-p1"/"-p2" suffix.
type Seat struct {
	Id       string
	Username string
	UserId   string
}

// MatchOptions are the per-match knobs a client may request. Nil means "server default".
type MatchOptions struct {
	WinScore    *int     `json:"winScore,omitempty"`
	BallSpeed   *float64 `json:"ballSpeed,omitempty"`
	PaddleSpeed *float64 `json:"paddleSpeed,omitempty"`
}

// Merge returns o with every unset field taken from other, so o wins on conflicts.
func (o MatchOptions) Merge(other MatchOptions) MatchOptions {
	merged := o
	if merged.WinScore == nil {
		merged.WinScore = other.WinScore
	}
	if merged.BallSpeed == nil {
		merged.BallSpeed = other.BallSpeed
	}
	if merged.PaddleSpeed == nil {
		merged.PaddleSpeed = other.PaddleSpeed
	}
	return merged
}

func (o MatchOptions) Validate() error {
	if o.WinScore != nil && (*o.WinScore < 1 || *o.WinScore > 21) {
		return ErrInvalidOptions
	}
	if o.BallSpeed != nil && (*o.BallSpeed < 0.5 || *o.BallSpeed > 2) {
		return ErrInvalidOptions
	}
	if o.PaddleSpeed != nil && (*o.PaddleSpeed < 0.5 || *o.PaddleSpeed > 2) {
		return ErrInvalidOptions
	}
	return nil
}

// Settings is the resolved, immutable configuration of one session.
type Settings struct {
	TickRate        int
	WinScore        int
	CourtWidth      float64
	CourtHeight     float64
	PaddleWidth     float64
	PaddleHeight    float64
	PaddleOffset    float64
	PaddleSpeed     float64
	BallRadius      float64
	BallSpeed       float64
	DisconnectGrace time.Duration
}

func SettingsFromConfig(g configs.GameConfig) Settings {
	return Settings{
		TickRate:        g.TickRate,
		WinScore:        g.WinScore,
		CourtWidth:      g.CourtWidth,
		CourtHeight:     g.CourtHeight,
		PaddleWidth:     g.PaddleWidth,
		PaddleHeight:    g.PaddleHeight,
		PaddleOffset:    g.PaddleOffset,
		PaddleSpeed:     g.PaddleSpeed,
		BallRadius:      g.BallRadius,
		BallSpeed:       g.BallSpeed,
		DisconnectGrace: g.DisconnectGrace,
	}
}

// With applies client options on top of the server settings.
// BallSpeed and PaddleSpeed are multipliers.
func (s Settings) With(o MatchOptions) Settings {
	if o.WinScore != nil {
		s.WinScore = *o.WinScore
	}
	if o.BallSpeed != nil {
		s.BallSpeed *= *o.BallSpeed
	}
	if o.PaddleSpeed != nil {
		s.PaddleSpeed *= *o.PaddleSpeed
	}
	return s
}

func (s Settings) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}
