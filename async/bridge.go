package async

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Mode selects how a Bridge waits upon a pending operation.
type Mode int

const (
	// Park blocks the calling goroutine on the operation's Done channel,
	// leaving the Go scheduler free to run the goroutine which resolves it.
	Park Mode = iota
	// Spin repeatedly polls the operation for completion, doing no other
	// work between polls. It assumes the operation is resolved eagerly by
	// some other thread of execution, and burns a CPU until it is.
	Spin
)

// ParseMode maps "park" or "spin" to its Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "park":
		return Park, nil
	case "spin":
		return Spin, nil
	default:
		return Park, fmt.Errorf("unknown bridge mode %q (expected park or spin)", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Park:
		return "park"
	case Spin:
		return "spin"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Bridge drives exactly one asynchronous operation to completion from a
// synchronous call site. There is no cancellation and no timeout: a stalled
// operation stalls the caller indefinitely.
type Bridge struct {
	Mode Mode
}

// Wait until |op| completes, returning its error.
func (b Bridge) Wait(op OpFuture) error {
	var started = time.Now()

	switch b.Mode {
	case Spin:
		var polls = 1
		for ; !op.Poll(); polls++ {
		}
		bridgeSpinPollsTotal.Add(float64(polls))
	default:
		<-op.Done()
	}

	bridgeWaitSeconds.WithLabelValues(b.Mode.String()).Observe(time.Since(started).Seconds())
	return op.Err()
}

// Await drives Future |f| to completion through Bridge |b|,
// returning its resolved value and error.
func Await[T any](b Bridge, f *Future[T]) (T, error) {
	if err := b.Wait(f); err != nil {
		var zero T
		return zero, err
	}
	return f.Value()
}

var (
	bridgeWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagevfs_bridge_wait_seconds",
		Help:    "Duration spent by synchronous callers awaiting an asynchronous store operation.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
	}, []string{"mode"})

	bridgeSpinPollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevfs_bridge_spin_polls_total",
		Help: "Cumulative number of readiness polls made by spinning Bridges.",
	})
)
