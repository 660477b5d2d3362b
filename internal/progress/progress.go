// Package progress prints per-stage counters while worker pools run, on a
// fixed ticker so a stalled stage stays visible without flooding the
// terminal.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Clock drives the display ticker. Tests swap it for a mock.
var Clock = clock.New()

const progressCheckInterval = 1 * time.Second

// Accumulator counts completed work items across pool workers.
type Accumulator struct {
	count uint64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Count returns the number of items recorded so far.
func (a *Accumulator) Count() uint64 {
	return atomic.LoadUint64(&a.count)
}

// Accumulate records n completed items.
func (a *Accumulator) Accumulate(n uint64) {
	atomic.AddUint64(&a.count, n)
}

// Report prints "stage: done/total" to w once per tick while the counter
// moves, until ctx is cancelled. Unchanged counts are not reprinted.
func Report(ctx context.Context, w io.Writer, stage string, total int, getCount func() uint64) {
	if total <= 0 {
		return
	}

	ticker := Clock.Ticker(progressCheckInterval)
	defer ticker.Stop()

	var (
		lastCount uint64
		printed   bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := getCount()
			if printed && count == lastCount {
				continue
			}
			fmt.Fprintf(w, "  %s: %d/%d\n", stage, count, total)
			lastCount, printed = count, true
		}
	}
}
