package polling

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the polling fallback on a cron spec (with seconds field).
type Scheduler struct {
	c      *cron.Cron
	poller *Poller
}

func NewScheduler(poller *Poller) *Scheduler {
	return &Scheduler{
		c:      cron.New(cron.WithSeconds()),
		poller: poller,
	}
}

// Start schedules the recurring pass and kicks off the cron loop.
func (s *Scheduler) Start(spec string) error {
	_, err := s.c.AddFunc(spec, func() {
		if _, err := s.poller.Run(context.Background()); err != nil {
			log.Printf("[polling] scheduled pass failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	log.Printf("Polling scheduler started (spec %q)", spec)
	s.c.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
}
