package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// Synchronizer reconciles the in-process trigger set against the schedule
// table: the desired set is every live entry (current, active, recurring
// frequency); the live set is whatever the trigger registry holds. Each
// cycle deregisters stale triggers, registers missing ones, and leaves the
// intersection untouched, so an unchanged table is a no-op cycle.
//
// Edits arrive as new schedule IDs (soft versioning), so a changed entry is
// simply one stale ID out and one new ID in; no trigger is ever mutated in
// place.
type Synchronizer struct {
	schedules *schedule.Store
	triggers  *TriggerRegistry
	queue     *queue.Queue
	interval  time.Duration
	loc       *time.Location
	logger    *zap.SugaredLogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSynchronizer creates a synchronizer refreshing at the given interval.
func NewSynchronizer(schedules *schedule.Store, triggers *TriggerRegistry, q *queue.Queue, interval time.Duration, loc *time.Location, logger *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{
		schedules: schedules,
		triggers:  triggers,
		queue:     q,
		interval:  interval,
		loc:       loc,
		logger:    logger,
	}
}

// Start runs an immediate sync cycle, then refreshes at the configured
// interval until ctx is cancelled.
func (s *Synchronizer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)
	s.logger.Infow("Schedule synchronizer started", "symbol", sym.Sched, "interval", s.interval)
}

// Stop halts the refresh loop and waits for the in-flight cycle.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Infow("Schedule synchronizer stopped", "symbol", sym.Sched)
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()

	s.SyncOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncOnce()
		}
	}
}

// SyncOnce performs one reconciliation cycle. A failed table read skips the
// whole cycle (the previous trigger set stays live); a single unbuildable
// entry is logged and skipped without blocking its siblings.
func (s *Synchronizer) SyncOnce() {
	entries, err := s.schedules.ListCurrentActive()
	if err != nil {
		s.logger.Errorw("Schedule sync cycle skipped", "symbol", sym.Sched, "error", err)
		return
	}

	desired := make(map[string]*schedule.Entry)
	for _, entry := range entries {
		if entry.Live() {
			desired[entry.ScheduleID] = entry
		}
	}

	live := s.triggers.Registered()

	var removed, added int
	for scheduleID := range live {
		if _, want := desired[scheduleID]; !want {
			s.triggers.Deregister(scheduleID)
			removed++
		}
	}

	for scheduleID, entry := range desired {
		if live[scheduleID] {
			continue
		}
		if err := s.triggers.Register(entry, s.loc, s.fireFunc(entry)); err != nil {
			s.logger.Errorw("Skipping unbuildable schedule entry",
				"symbol", sym.Sched,
				"schedule_id", scheduleID,
				"job_reference", entry.JobReference,
				"error", err)
			continue
		}
		added++
	}

	if added > 0 || removed > 0 {
		s.logger.Infow("Schedule sync cycle",
			"symbol", sym.Sched,
			"registered", added,
			"deregistered", removed,
			"live", s.triggers.Len())
	} else {
		s.logger.Debugw("Schedule sync cycle - no changes", "symbol", sym.Sched, "live", s.triggers.Len())
	}
}

// fireFunc builds the trigger callback: enqueue an immediate run carrying
// schedule provenance. Trigger fires never execute work inline; the queue is
// the only path to the worker pool.
func (s *Synchronizer) fireFunc(entry *schedule.Entry) func() {
	scheduleID := entry.ScheduleID
	jobReference := entry.JobReference

	return func() {
		req, err := s.queue.EnqueueImmediate(jobReference, map[string]any{
			"source":                 "schedule",
			"triggering_schedule_id": scheduleID,
			"depth":                  0,
		})
		if err != nil {
			s.logger.Errorw("Trigger fire failed to enqueue",
				"symbol", sym.Sched,
				"schedule_id", scheduleID,
				"job_reference", jobReference,
				"error", err)
			return
		}
		s.logger.Infow("Trigger fired",
			"symbol", sym.Sched,
			"schedule_id", scheduleID,
			"job_reference", jobReference,
			"request_id", req.ID)
	}
}
