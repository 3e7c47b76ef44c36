package metrics

import (
	"context"
	"time"

	"github.com/The-Noona-Project/noona-warden/pkg/runtime"
)

// managedLabel marks containers started by Warden.
const managedLabel = "com.noona.managed"

// Collector samples the container runtime on an interval and keeps the
// running-services gauge current
type Collector struct {
	rt       runtime.API
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector sampling the given runtime
func NewCollector(rt runtime.API) *Collector {
	return &Collector{
		rt:       rt,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	containers, err := c.rt.ListContainers(ctx)
	if err != nil {
		return
	}

	running := 0
	for _, ctr := range containers {
		if ctr.State == "running" && ctr.Labels[managedLabel] == "true" {
			running++
		}
	}
	ServicesRunning.Set(float64(running))
}
