package game

import (
	"context"
	"sync"
	"time"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/rs/zerolog"
)

// Recorder hands outcomes to the sink off the simulation goroutines.
type Recorder struct {
	sink    domain.OutcomeSink
	timeout time.Duration
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewRecorder(sink domain.OutcomeSink, timeout time.Duration, log zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, timeout: timeout, log: log}
}

func (r *Recorder) Match(outcome domain.MatchOutcome) {
	if r == nil || r.sink == nil {
		return
	}
	r.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sink.RecordMatch(ctx, outcome); err != nil {
			r.log.Error().Err(err).Str("room_id", outcome.RoomId).Msg("recording match outcome failed")
		}
	})
}

func (r *Recorder) Tournament(outcome domain.TournamentOutcome) {
	if r == nil || r.sink == nil {
		return
	}
	r.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.sink.RecordTournament(ctx, outcome); err != nil {
			r.log.Error().Err(err).Str("tournament_id", outcome.TournamentId).Msg("recording tournament outcome failed")
		}
	})
}

// Wait blocks until every pending write has returned.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
