package feed

import (
	"math/rand/v2"
	"time"
)

const (
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxBackoff  = 30 * time.Second
)

// JitteredDelay returns the wait before reconnect attempt n (1-based):
// exponential growth from base capped at max, then a uniform draw from the
// upper half of that value.
func JitteredDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultBaseBackoff
	}
	if max < base {
		max = base
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	return half + rand.N(half+1)
}
