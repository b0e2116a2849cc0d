package outcomes

import (
	"context"
	"errors"

	"github.com/e-kose/FT-PINPON-sub000/domain"
	"github.com/rs/zerolog"
)

// Fanout delivers every outcome to all of its sinks. One failing sink does not stop
// the others; their errors are joined.
type Fanout struct {
	sinks []domain.OutcomeSink
}

func NewFanout(sinks ...domain.OutcomeSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) RecordMatch(ctx context.Context, outcome domain.MatchOutcome) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordMatch(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) RecordTournament(ctx context.Context, outcome domain.TournamentOutcome) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordTournament(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes outcomes to the log. It is the sink of last resort when neither
// Postgres nor Redis is configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) RecordMatch(_ context.Context, o domain.MatchOutcome) error {
	s.log.Info().
		Str("room_id", o.RoomId).
		Str("mode", o.Mode).
		Str("winner_id", o.WinnerId).
		Str("loser_id", o.LoserId).
		Int("left", o.FinalScore.Left).
		Int("right", o.FinalScore.Right).
		Bool("forfeit", o.Forfeit).
		Str("tournament_id", o.TournamentId).
		Msg("match finished")
	return nil
}

func (s *LogSink) RecordTournament(_ context.Context, o domain.TournamentOutcome) error {
	s.log.Info().
		Str("tournament_id", o.TournamentId).
		Int("size", o.Size).
		Str("champion_id", o.ChampionId).
		Msg("tournament finished")
	return nil
}
