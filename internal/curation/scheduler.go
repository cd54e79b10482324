package curation

import (
	"context"
	"time"
)

// minLoopInterval bounds how often the background loop may run regardless of
// configuration.
const minLoopInterval = 60 * time.Second

// RunLoop runs curation passes forever until ctx is cancelled. The spacing
// between passes is intervalHours, floored at one minute. The first pass is
// delayed by the smaller of one minute and the interval so a freshly started
// server curates soon without hammering the store at boot.
func (c *Curator) RunLoop(ctx context.Context, intervalHours float64) {
	interval := time.Duration(intervalHours * float64(time.Hour))
	if interval < minLoopInterval {
		interval = minLoopInterval
	}

	first := minLoopInterval
	if interval < first {
		first = interval
	}

	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := c.RunOnce(ctx); err != nil {
			c.log.Error("curation pass failed", "error", err)
		}
		timer.Reset(interval)
	}
}
