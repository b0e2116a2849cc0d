package game

import "time"

// PeriodicTickerChannelCreator hands out tick channels. Tests inject a manual channel
// to drive simulations step by step.
type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) (<-chan time.Time, func())
}

type ticker struct{}

func (t *ticker) Create(duration time.Duration) (<-chan time.Time, func()) {
	tk := time.NewTicker(duration)
	return tk.C, tk.Stop
}

func NewTickerGen() ticker {
	return ticker{}
}
