package backup

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs snapshots on a cron schedule. A tick that fires while the
// previous snapshot is still running is dropped.
type Scheduler struct {
	cron        *cron.Cron
	snapshotter *Snapshotter
	mu          sync.Mutex
	running     bool
}

func NewScheduler(s *Snapshotter) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		snapshotter: s,
	}
}

func (s *Scheduler) Register(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runOnce)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	res, err := s.snapshotter.Run(context.Background())
	if err != nil {
		log.Printf("scheduled backup failed: %v", err)
		return
	}
	if !res.Skipped {
		log.Printf("backup written to %s (%d entries)", res.Path, res.Entries)
	}
}
