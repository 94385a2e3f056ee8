package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/sym"
)

// Poller claims batches of NEW requests at a fixed interval and hands them to
// the worker pool. The single-statement claim in the queue store makes
// concurrent pollers safe; one poller per daemon is the normal shape.
//
// Dispatch is a blocking send into the pool channel: a full pool simply
// stalls the next claim, which is the intended backpressure. Claimed
// requests therefore always reach a worker unless the daemon shuts down
// mid-dispatch, in which case they stay CLAIMED for the operator to inspect.
type Poller struct {
	queue    *queue.Queue
	decoder  queue.PayloadDecoder
	claimant string
	interval time.Duration
	batch    int
	dispatch chan<- *queue.Request
	logger   *zap.SugaredLogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPoller creates a poller claiming up to batch requests per cycle.
func NewPoller(q *queue.Queue, decoder queue.PayloadDecoder, claimant string, interval time.Duration, batch int, dispatch chan<- *queue.Request, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		queue:    q,
		decoder:  decoder,
		claimant: claimant,
		interval: interval,
		batch:    batch,
		dispatch: dispatch,
		logger:   logger,
	}
}

// Start begins the claim loop.
func (p *Poller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(runCtx)
	p.logger.Infow("Queue poller started",
		"symbol", sym.Queue,
		"claimant", p.claimant,
		"interval", p.interval,
		"batch", p.batch)
}

// Stop halts the claim loop and waits for the in-flight cycle.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Infow("Queue poller stopped", "symbol", sym.Queue)
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce claims one batch and dispatches it oldest-first.
func (p *Poller) pollOnce(ctx context.Context) {
	claimed, err := p.queue.ClaimBatch(p.claimant, p.batch)
	if err != nil {
		p.logger.Errorw("Claim cycle failed", "symbol", sym.Queue, "error", err)
		return
	}

	if len(claimed) == 0 {
		p.logger.Debugw("Claim cycle - queue empty", "symbol", sym.Queue)
		return
	}

	p.logger.Infow("Claimed request batch", "symbol", sym.Queue, "count", len(claimed))

	for _, req := range claimed {
		p.decode(req)

		select {
		case <-ctx.Done():
			p.logger.Warnw("Shutdown during dispatch; request stays claimed",
				"symbol", sym.Queue,
				"request_id", req.ID)
			return
		case p.dispatch <- req:
		}
	}
}

// decode populates req.Params from the stored payload. A malformed payload
// is not fatal: the request runs with empty parameters and the defect is
// logged for the operator.
func (p *Poller) decode(req *queue.Request) {
	params, err := p.decoder.Decode(req.Payload)
	if err != nil {
		p.logger.Warnw("Malformed request payload; running with empty params",
			"symbol", sym.Queue,
			"request_id", req.ID,
			"job_reference", req.JobReference,
			"error", err)
		params = map[string]any{}
	}
	req.Params = params
}
