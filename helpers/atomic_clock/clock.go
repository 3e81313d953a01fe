// Package atomic_clock keeps a timestamp readable from other goroutines.
// Nanosecond resolution, location is not preserved.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

type Clock struct{ v int64 }

func (c *Clock) IsZero() bool        { return atomic.LoadInt64(&c.v) == 0 }
func (c *Clock) SetTime(t time.Time) { atomic.StoreInt64(&c.v, t.UnixNano()) }
func (c *Clock) Time() time.Time     { return time.Unix(0, atomic.LoadInt64(&c.v)) }

// Elapsed returns zero for unset clock.
func (c *Clock) Elapsed(now time.Time) time.Duration {
	v := atomic.LoadInt64(&c.v)
	if v == 0 {
		return 0
	}
	return time.Duration(now.UnixNano() - v)
}
