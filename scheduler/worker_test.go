package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	wardentest "github.com/teranos/warden/internal/testing"
	"github.com/teranos/warden/errors"
	"github.com/teranos/warden/queue"
	"github.com/teranos/warden/schedule"
)

type workerHarness struct {
	queue    *queue.Queue
	store    *schedule.Store
	engines  *EngineRegistry
	dispatch chan *queue.Request
	pool     *WorkerPool
	cancel   context.CancelFunc
}

func newWorkerHarness(t *testing.T, workers, maxDepth int) *workerHarness {
	db := wardentest.CreateTestDB(t)

	h := &workerHarness{
		queue:    queue.NewQueue(db),
		store:    schedule.NewStore(db),
		engines:  NewEngineRegistry(),
		dispatch: make(chan *queue.Request, 16),
	}
	h.pool = NewWorkerPool(h.queue, h.store, h.engines, h.dispatch, workers, maxDepth, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.pool.Start(ctx)

	t.Cleanup(func() {
		cancel()
		close(h.dispatch)
		h.pool.Wait()
	})
	return h
}

// claimAndDispatch enqueues a request, claims it, and hands it to the pool
// the way the poller would.
func (h *workerHarness) claimAndDispatch(t *testing.T, jobReference string, params map[string]any) *queue.Request {
	t.Helper()

	_, err := h.queue.EnqueueImmediate(jobReference, params)
	require.NoError(t, err)

	claimed, err := h.queue.ClaimBatch("test-poller", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	req := claimed[0]
	p, err := queue.JSONDecoder{}.Decode(req.Payload)
	require.NoError(t, err)
	req.Params = p

	h.dispatch <- req
	return req
}

func waitForStatus(t *testing.T, q *queue.Queue, requestID string, want queue.Status) *queue.Request {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req, err := q.Get(requestID)
		require.NoError(t, err)
		if req.Status == want {
			return req
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("request %s never reached %s", requestID, want)
	return nil
}

func TestWorkerMarksDone(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: true, Metrics: map[string]any{"rows_loaded": 10}}, nil
	}))

	req := h.claimAndDispatch(t, "DIM_ACNT", nil)

	done := waitForStatus(t, h.queue, req.ID, queue.StatusDone)
	assert.True(t, done.Result.Success)
	assert.Equal(t, float64(10), done.Result.Metrics["rows_loaded"])
}

func TestWorkerMarksFailedOnEngineError(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return nil, errors.New("ORA-01017: invalid username/password")
	}))

	req := h.claimAndDispatch(t, "DIM_ACNT", nil)

	failed := waitForStatus(t, h.queue, req.ID, queue.StatusFailed)
	assert.Contains(t, failed.Result.Message, "ORA-01017")
}

func TestWorkerFailsUnregisteredJobReference(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	// No engines at all

	req := h.claimAndDispatch(t, "DIM_ACNT", nil)

	failed := waitForStatus(t, h.queue, req.ID, queue.StatusFailed)
	assert.Contains(t, failed.Result.Message, "no engine registered")
}

// One failing request must not poison the worker or its neighbors.
func TestWorkerFailureIsolation(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.Register("BAD_JOB", EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return nil, errors.New("extract timed out")
	}))
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: true}, nil
	}))

	bad := h.claimAndDispatch(t, "BAD_JOB", nil)
	good := h.claimAndDispatch(t, "GOOD_JOB", nil)

	waitForStatus(t, h.queue, bad.ID, queue.StatusFailed)
	done := waitForStatus(t, h.queue, good.ID, queue.StatusDone)
	assert.True(t, done.Result.Success)
}

func TestWorkerSurvivesEnginePanic(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.Register("PANIC_JOB", EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		panic("nil map write in engine")
	}))
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: true}, nil
	}))

	panicked := h.claimAndDispatch(t, "PANIC_JOB", nil)
	next := h.claimAndDispatch(t, "OK_JOB", nil)

	failed := waitForStatus(t, h.queue, panicked.ID, queue.StatusFailed)
	assert.Contains(t, failed.Result.Message, "engine panicked")
	waitForStatus(t, h.queue, next.ID, queue.StatusDone)
}

func TestWorkerFansOutOnSuccess(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: true}, nil
	}))

	require.NoError(t, h.store.Create(dailyEntry("SCH_parent", "STG_EXTRACT")))
	child := dailyEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent"
	require.NoError(t, h.store.Create(child))

	req := h.claimAndDispatch(t, "STG_EXTRACT", map[string]any{
		"source": "schedule", "triggering_schedule_id": "SCH_parent", "depth": 0,
	})
	waitForStatus(t, h.queue, req.ID, queue.StatusDone)

	// The child lands as a NEW request with depth bumped
	status := queue.StatusNew
	deadline := time.Now().Add(5 * time.Second)
	for {
		reqs, err := h.queue.List(&status, 10)
		require.NoError(t, err)
		if len(reqs) == 1 {
			assert.Equal(t, "DIM_ACNT", reqs[0].JobReference)
			assert.JSONEq(t,
				`{"source":"schedule","triggering_schedule_id":"SCH_child","depth":1}`,
				string(reqs[0].Payload))
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fan-out request never appeared")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerNoFanOutOnFailure(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return nil, errors.New("load aborted")
	}))

	require.NoError(t, h.store.Create(dailyEntry("SCH_parent", "STG_EXTRACT")))
	child := dailyEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent"
	require.NoError(t, h.store.Create(child))

	req := h.claimAndDispatch(t, "STG_EXTRACT", nil)
	waitForStatus(t, h.queue, req.ID, queue.StatusFailed)

	// Give any wrongful fan-out a moment to materialize
	time.Sleep(50 * time.Millisecond)
	stats, err := h.queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
}

// An unsuccessful-but-completed execution is DONE, yet does not fan out.
func TestWorkerNoFanOutOnUnsuccessfulResult(t *testing.T) {
	h := newWorkerHarness(t, 1, 32)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: false, Message: "validation rejected 12 rows"}, nil
	}))

	require.NoError(t, h.store.Create(dailyEntry("SCH_parent", "STG_EXTRACT")))
	child := dailyEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent"
	require.NoError(t, h.store.Create(child))

	req := h.claimAndDispatch(t, "STG_EXTRACT", nil)
	done := waitForStatus(t, h.queue, req.ID, queue.StatusDone)
	assert.False(t, done.Result.Success)

	time.Sleep(50 * time.Millisecond)
	stats, err := h.queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
}

// Past the depth cap, a success stops the chain instead of fanning out.
func TestWorkerFanOutDepthCap(t *testing.T) {
	h := newWorkerHarness(t, 1, 3)
	h.engines.SetDefault(EngineFunc(func(ctx context.Context, req *queue.Request) (*queue.Result, error) {
		return &queue.Result{Success: true}, nil
	}))

	require.NoError(t, h.store.Create(dailyEntry("SCH_parent", "STG_EXTRACT")))
	child := dailyEntry("SCH_child", "DIM_ACNT")
	child.ParentScheduleID = "SCH_parent"
	require.NoError(t, h.store.Create(child))

	req := h.claimAndDispatch(t, "STG_EXTRACT", map[string]any{
		"source": "schedule", "triggering_schedule_id": "SCH_x", "depth": 3,
	})
	waitForStatus(t, h.queue, req.ID, queue.StatusDone)

	time.Sleep(50 * time.Millisecond)
	stats, err := h.queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.New)
}

func TestProvenanceDepth(t *testing.T) {
	assert.Equal(t, 0, provenanceDepth(nil))
	assert.Equal(t, 0, provenanceDepth(map[string]any{}))
	assert.Equal(t, 0, provenanceDepth(map[string]any{"depth": "deep"}))
	assert.Equal(t, 2, provenanceDepth(map[string]any{"depth": float64(2)}))
	assert.Equal(t, 5, provenanceDepth(map[string]any{"depth": 5}))
}
