package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/warden/config"
	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// Scheduler wires the core together: trigger registry, schedule
// synchronizer, queue poller, and worker pool over one database.
//
// Callers register engines before Run:
//
//	sched, _ := scheduler.New(db, cfg, logger)
//	sched.Engines().SetDefault(myEngine)
//	sched.Run(ctx)
type Scheduler struct {
	cfg     *config.Config
	queue   *queue.Queue
	store   *schedule.Store
	engines *EngineRegistry

	triggers *TriggerRegistry
	syncer   *Synchronizer
	poller   *Poller
	pool     *WorkerPool
	dispatch chan *queue.Request

	logger *zap.SugaredLogger

	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New builds a scheduler over db with the given configuration.
func New(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) (*Scheduler, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	q := queue.NewQueue(db)
	store := schedule.NewStore(db)
	engines := NewEngineRegistry()
	triggers := NewTriggerRegistry(loc, logger)

	// Buffer a claim batch so the poller can hand off a full cycle without
	// waiting on worker availability.
	dispatch := make(chan *queue.Request, cfg.Scheduler.ClaimBatchSize)

	return &Scheduler{
		cfg:      cfg,
		queue:    q,
		store:    store,
		engines:  engines,
		triggers: triggers,
		syncer:   NewSynchronizer(store, triggers, q, cfg.Scheduler.ScheduleRefreshInterval(), loc, logger),
		poller:   NewPoller(q, queue.JSONDecoder{}, claimantIdentity(), cfg.Scheduler.PollInterval(), cfg.Scheduler.ClaimBatchSize, dispatch, logger),
		pool:     NewWorkerPool(q, store, engines, dispatch, cfg.Scheduler.Workers, cfg.Scheduler.MaxFanoutDepth, logger),
		dispatch: dispatch,
		logger:   logger,
	}, nil
}

// Engines returns the engine registry for wiring executors before Run.
func (s *Scheduler) Engines() *EngineRegistry {
	return s.engines
}

// Queue returns the request queue, for callers that enqueue directly
// (the CLI trigger command, embedding applications).
func (s *Scheduler) Queue() *queue.Queue {
	return s.queue
}

// Schedules returns the schedule store.
func (s *Scheduler) Schedules() *schedule.Store {
	return s.store
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down cleanly.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Infow("Scheduler starting",
		"symbol", sym.Open,
		"workers", s.cfg.Scheduler.Workers,
		"poll_interval", s.cfg.Scheduler.PollInterval(),
		"schedule_refresh", s.cfg.Scheduler.ScheduleRefreshInterval(),
		"claim_batch", s.cfg.Scheduler.ClaimBatchSize,
		"max_fanout_depth", s.cfg.Scheduler.MaxFanoutDepth,
		"timezone", s.cfg.Scheduler.Timezone)

	s.pool.Start(runCtx)
	s.poller.Start(runCtx)
	s.syncer.Start(runCtx)
	s.triggers.Start()

	<-runCtx.Done()
	s.Shutdown()
	return nil
}

// Shutdown stops the scheduler; safe to call more than once and concurrently
// with Run. Order matters: triggers stop firing first so nothing new is
// enqueued by the clock, then the producers of dispatched work stop, then
// the workers drain what was already handed to them.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.logger.Infow("Scheduler shutting down", "symbol", sym.Close)

		s.triggers.Stop()
		s.syncer.Stop()
		s.poller.Stop()

		if s.cancel != nil {
			s.cancel()
		}
		close(s.dispatch)
		s.pool.Wait()

		s.logger.Infow("Scheduler stopped", "symbol", sym.Close)
	})
}

// claimantIdentity names this daemon instance in claimed_by: host + pid is
// enough to tell concurrent daemons apart.
func claimantIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// WaitSettled is a test helper: polls until the queue holds no NEW or
// CLAIMED requests, or the timeout elapses.
func (s *Scheduler) WaitSettled(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		stats, err := s.queue.GetStats()
		if err == nil && stats.New == 0 && stats.Claimed == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
