package eventbus

import "sync/atomic"

// Metrics is a point-in-time snapshot of the bus counters.
type Metrics struct {
	TotalEmitted    int64 `json:"totalEmitted" msgpack:"totalEmitted"`
	TotalDelivered  int64 `json:"totalDelivered" msgpack:"totalDelivered"`
	TotalFailed     int64 `json:"totalFailed" msgpack:"totalFailed"`
	DeadLetterCount int64 `json:"deadLetterCount" msgpack:"deadLetterCount"`
}

// counters backs Metrics. The dead-letter count is not kept here; it is the
// length of the dead-letter store so that a drain zeroes it atomically.
type counters struct {
	emitted   atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

func (c *counters) reset() {
	c.emitted.Store(0)
	c.delivered.Store(0)
	c.failed.Store(0)
}
