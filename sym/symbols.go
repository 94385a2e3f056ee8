// Package sym defines canonical symbols for warden subsystems and system markers.
// These symbols are stable across CLI output, logs, and documentation.
package sym

// Subsystem symbols.
const (
	Sched = "⏲" // schedule synchronizer and trigger registry
	Queue = "⇶" // request queue (claim, dispatch, write-back)
	Work  = "꩜" // worker pool / request execution
	DB    = "⊔" // database/storage layer
)

// Lifecycle symbols.
const (
	Open  = "✿" // daemon startup
	Close = "❀" // graceful shutdown with worker drain
)

// Name returns the human-readable name for a symbol, or "" if unknown.
func Name(symbol string) string {
	switch symbol {
	case Sched:
		return "schedule"
	case Queue:
		return "queue"
	case Work:
		return "worker"
	case DB:
		return "database"
	case Open:
		return "startup"
	case Close:
		return "shutdown"
	default:
		return ""
	}
}
