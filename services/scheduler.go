package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartStatusScheduler runs the tournament status sweep every minute:
// registration closes when the deadline passes, tournaments go active (and
// seed their bracket) when start_date arrives.
func (s *TournamentService) StartStatusScheduler() {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[SCHEDULER] failed to init: %v", err)
		return
	}
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.SweepStatuses(context.Background(), time.Now())
		}),
	)
}
