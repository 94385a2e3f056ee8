package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/schedule"
	"github.com/teranos/warden/sym"
)

// WorkerPool executes claimed requests through the engine registry.
//
// Workers are fault-isolated: one request failing, or even its terminal
// write-back failing, never takes a worker down or touches a sibling
// request. A panicking engine fails its request and the worker keeps
// consuming.
type WorkerPool struct {
	queue     *queue.Queue
	schedules *schedule.Store
	engines   *EngineRegistry
	requests  <-chan *queue.Request
	workers   int
	maxDepth  int
	logger    *zap.SugaredLogger

	wg sync.WaitGroup
}

// NewWorkerPool creates a pool of workers consuming from requests.
func NewWorkerPool(q *queue.Queue, schedules *schedule.Store, engines *EngineRegistry, requests <-chan *queue.Request, workers, maxDepth int, logger *zap.SugaredLogger) *WorkerPool {
	return &WorkerPool{
		queue:     q,
		schedules: schedules,
		engines:   engines,
		requests:  requests,
		workers:   workers,
		maxDepth:  maxDepth,
		logger:    logger,
	}
}

// Start spawns the workers. They exit when ctx is cancelled or the request
// channel closes.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
	wp.logger.Infow("Worker pool started", "symbol", sym.Work, "workers", wp.workers)
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	wp.logger.Infow("Worker pool drained", "symbol", sym.Work)
}

// Workers returns the configured pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-wp.requests:
			if !ok {
				return
			}
			wp.process(ctx, id, req)
		}
	}
}

// process runs one request end to end: engine execution, terminal
// write-back, and fan-out on success.
func (wp *WorkerPool) process(ctx context.Context, workerID int, req *queue.Request) {
	log := wp.logger.With(
		"symbol", sym.Work,
		"worker_id", workerID,
		"request_id", req.ID,
		"job_reference", req.JobReference,
		"request_type", req.Type,
	)

	engine := wp.engines.Resolve(req.JobReference)
	if engine == nil {
		log.Errorw("No engine registered for job reference")
		wp.markFailed(log, req, fmt.Sprintf("no engine registered for job reference %s", req.JobReference))
		return
	}

	log.Infow("Executing request")

	result, err := wp.execute(ctx, engine, req)
	if err != nil {
		log.Errorw("Execution failed", "error", err)
		wp.markFailed(log, req, err.Error())
		return
	}

	if err := wp.queue.MarkDone(req.ID, result); err != nil {
		// The execution already ran; losing the write-back loses the
		// outcome record, not the work. Log loudly and keep the worker.
		log.Errorw("Failed to record DONE outcome", "error", err)
		return
	}

	if result.Success {
		log.Infow("Execution succeeded", "metrics", result.Metrics)
		wp.fanOut(log, req)
	} else {
		log.Warnw("Execution completed unsuccessfully", "message", result.Message)
	}
}

// execute invokes the engine, converting a panic into an error so a broken
// engine cannot kill the worker.
func (wp *WorkerPool) execute(ctx context.Context, engine Engine, req *queue.Request) (result *queue.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()

	result, err = engine.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("engine returned no result")
	}
	return result, nil
}

func (wp *WorkerPool) markFailed(log *zap.SugaredLogger, req *queue.Request, message string) {
	if err := wp.queue.MarkFailed(req.ID, message); err != nil {
		log.Errorw("Failed to record FAILED outcome", "error", err)
	}
}

// fanOut enqueues an immediate run for every active child schedule of the
// completed job. Each hop increments the provenance depth; past maxDepth the
// chain stops, which bounds the damage a cyclic schedule graph can do.
func (wp *WorkerPool) fanOut(log *zap.SugaredLogger, req *queue.Request) {
	depth := provenanceDepth(req.Params)
	if depth+1 > wp.maxDepth {
		log.Warnw("Fan-out depth cap reached; dependent schedules not enqueued",
			"depth", depth,
			"max_depth", wp.maxDepth)
		return
	}

	children, err := wp.schedules.ListChildren(req.JobReference)
	if err != nil {
		log.Errorw("Failed to list dependent schedules", "error", err)
		return
	}

	for _, child := range children {
		childReq, err := wp.queue.EnqueueImmediate(child.JobReference, map[string]any{
			"source":                 "schedule",
			"triggering_schedule_id": child.ScheduleID,
			"depth":                  depth + 1,
		})
		if err != nil {
			log.Errorw("Failed to enqueue dependent schedule",
				"child_schedule_id", child.ScheduleID,
				"child_job_reference", child.JobReference,
				"error", err)
			continue
		}
		log.Infow("Dependent schedule enqueued",
			"child_schedule_id", child.ScheduleID,
			"child_job_reference", child.JobReference,
			"child_request_id", childReq.ID,
			"depth", depth+1)
	}
}

// provenanceDepth reads the fan-out depth from decoded params. Requests with
// no provenance (manual runs, external callers) start at depth 0.
func provenanceDepth(params map[string]any) int {
	switch d := params["depth"].(type) {
	case float64:
		return int(d)
	case int:
		return d
	default:
		return 0
	}
}
