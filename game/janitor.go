package game

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

type TournamentPurger interface {
	PurgeFinished(now time.Time) int
}

// Janitor periodically drops finished tournaments nobody came back to leave.
type Janitor struct {
	scheduler gocron.Scheduler
	purger    TournamentPurger
	clock     Clock
	log       zerolog.Logger
}

func NewJanitor(purger TournamentPurger, clock Clock, interval time.Duration, log zerolog.Logger) (*Janitor, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	j := &Janitor{scheduler: sched, purger: purger, clock: clock, log: log}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.Sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("scheduling purge: %w", err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.scheduler.Start()
}

// Sweep runs one purge pass.
func (j *Janitor) Sweep() {
	if n := j.purger.PurgeFinished(j.clock.Now()); n > 0 {
		j.log.Info().Int("purged", n).Msg("finished tournaments purged")
	}
}

func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}
