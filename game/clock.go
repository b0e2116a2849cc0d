package game

import "time"

// Clock is injected wherever wall time ends up in state (queue timestamps, retention).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func NewClock() Clock {
	return realClock{}
}
