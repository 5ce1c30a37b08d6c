package job

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the background timers. Each entry runs on its own fixed
// interval.
type Scheduler struct {
	c *cron.Cron
}

func NewScheduler() *Scheduler {
	logger := cron.PrintfLogger(log.New(os.Stdout, "cron: ", log.LstdFlags))
	return &Scheduler{
		c: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger))),
	}
}

// Every registers fn to run once per interval. Intervals below one second
// are rounded up to one second.
func (s *Scheduler) Every(interval time.Duration, fn func()) cron.EntryID {
	return s.c.Schedule(cron.Every(interval), cron.FuncJob(fn))
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the timers and returns a context that is done once running
// entries have returned.
func (s *Scheduler) Stop() context.Context {
	return s.c.Stop()
}

func (s *Scheduler) Entries() int {
	return len(s.c.Entries())
}
