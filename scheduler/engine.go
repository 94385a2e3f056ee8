// Package scheduler is the warden core: it keeps in-process triggers in step
// with the schedule table, claims queued requests, and executes them through
// registered engines with dependency fan-out on success.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/teranos/warden/queue"
)

// Engine executes one claimed request against the warehouse. Implementations
// wrap whatever actually runs the flow (an ETL tool's API, a stored procedure
// call, a shell step); the scheduler core only sees the outcome.
//
// Returning an error means the execution could not run or crashed; the
// request is marked FAILED with the error message. Returning a Result means
// the execution ran to a verdict; the request is marked DONE and the result
// document recorded. Fan-out to dependent schedules happens only when the
// result reports success.
//
// Engines MUST honor ctx cancellation: a stop-typed request for the same
// flow, or daemon shutdown, cancels the context.
type Engine interface {
	Execute(ctx context.Context, req *queue.Request) (*queue.Result, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, req *queue.Request) (*queue.Result, error)

// Execute implements Engine.
func (f EngineFunc) Execute(ctx context.Context, req *queue.Request) (*queue.Result, error) {
	return f(ctx, req)
}

// EngineRegistry routes job references to engines.
// Thread-safe for concurrent registration and lookup.
//
// Engines register per job reference, with an optional default engine for
// everything unmapped. A daemon started with an empty registry and no
// default fails every request it claims, which is the honest outcome:
// nothing was wired to run the work.
type EngineRegistry struct {
	engines map[string]Engine // job reference -> engine
	def     Engine
	mu      sync.RWMutex
}

// NewEngineRegistry creates an empty engine registry.
func NewEngineRegistry() *EngineRegistry {
	return &EngineRegistry{
		engines: make(map[string]Engine),
	}
}

// Register maps a job reference to an engine.
// Panics if the job reference is already registered.
func (r *EngineRegistry) Register(jobReference string, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[jobReference]; exists {
		panic(fmt.Sprintf("engine already registered for job reference: %s", jobReference))
	}
	r.engines[jobReference] = engine
}

// SetDefault installs the engine used for job references with no specific
// registration. Typical daemons route everything through one default engine.
func (r *EngineRegistry) SetDefault(engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = engine
}

// Resolve returns the engine for a job reference, falling back to the
// default. Returns nil if nothing is wired.
func (r *EngineRegistry) Resolve(jobReference string) Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if engine, ok := r.engines[jobReference]; ok {
		return engine
	}
	return r.def
}

// Has checks if an engine is registered for a job reference (not counting
// the default).
func (r *EngineRegistry) Has(jobReference string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.engines[jobReference]
	return exists
}

// References returns all specifically registered job references.
func (r *EngineRegistry) References() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]string, 0, len(r.engines))
	for ref := range r.engines {
		refs = append(refs, ref)
	}
	return refs
}
