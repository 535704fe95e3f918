// Package clock provides an injectable time source.
//
// Production code takes a Clock instead of calling time.Now, time.After,
// time.NewTicker or time.Sleep directly. Real() is backed by the time package;
// Fake() only moves when a test moves it, and may also move backwards to
// reproduce wall-clock adjustments.
package clock

import "time"

// Clock abstracts the time operations used by sensor links and the fleet scheduler.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has elapsed.
	// If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses for at least d.
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. C has capacity 1; ticks are dropped when the consumer lags.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
