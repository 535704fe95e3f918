package clock_test

import (
	"testing"
	"time"

	"github.com/srg/lyfleet/internal/clock"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFiresOnAdvance(t *testing.T) {
	c := clock.Fake(epoch)
	ch := c.After(3 * time.Second)

	select {
	case <-ch:
		t.Fatal("After MUST NOT fire before Advance")
	default:
	}

	c.Advance(3 * time.Second)

	select {
	case fired := <-ch:
		assert.Equal(t, epoch.Add(3*time.Second), fired)
	default:
		t.Fatal("After MUST fire once the deadline is reached")
	}
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	c := clock.Fake(epoch)
	ch := c.After(time.Minute)

	c.Sleep(2 * time.Minute)

	assert.Equal(t, epoch.Add(2*time.Minute), c.Now())
	assert.Len(t, ch, 1, "waiters passed by Sleep MUST fire")
}

func TestFakeClock_SetBackwards(t *testing.T) {
	c := clock.Fake(epoch)
	ch := c.After(time.Second)

	c.Set(epoch.Add(-time.Hour))

	assert.Equal(t, epoch.Add(-time.Hour), c.Now())
	assert.Empty(t, ch, "moving backwards MUST NOT fire waiters")
	assert.Equal(t, 1, c.PendingCount())
}

func TestFakeClock_Ticker(t *testing.T) {
	c := clock.Fake(epoch)
	ticker := c.NewTicker(time.Second)

	c.Advance(time.Second)
	assert.Len(t, ticker.C, 1)
	<-ticker.C

	c.Advance(5 * time.Second)
	assert.Len(t, ticker.C, 1, "overflowing ticks MUST be dropped")
	<-ticker.C

	ticker.Stop()
	c.Advance(time.Second)
	assert.Empty(t, ticker.C)
	assert.Zero(t, c.PendingCount())
}

func TestFakeClock_WaitForTimers(t *testing.T) {
	c := clock.Fake(epoch)
	done := make(chan struct{})

	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter MUST be released by Advance")
	}
}
