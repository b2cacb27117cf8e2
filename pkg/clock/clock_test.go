package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCoarseIsPrimedWithCurrentTime(t *testing.T) {
	c := NewCoarse(time.Hour)
	defer c.Stop()

	now := uint32(time.Now().Unix())
	assert.InDelta(t, now, c.Unix(), 2)
}

func TestCoarseRefreshesOnItsResolution(t *testing.T) {
	c := NewCoarse(5 * time.Millisecond)
	defer c.Stop()

	first := c.Unix()
	time.Sleep(50 * time.Millisecond)
	// Unix-second granularity means the value may or may not have ticked
	// within the sleep window; it must never go backwards.
	assert.GreaterOrEqual(t, c.Unix(), first)
}

func TestCoarseStopHaltsTheRefreshGoroutine(t *testing.T) {
	c := NewCoarse(time.Millisecond)
	c.Stop()
	// Stop waits for run() to close done, so Stop returning at all shows
	// the background goroutine has exited; otherwise this test would hang.
}

func TestSleepInterruptiblyReturnsTrueWhenDurationElapses(t *testing.T) {
	ok := SleepInterruptibly(context.Background(), 5*time.Millisecond)
	assert.True(t, ok)
}

func TestSleepInterruptiblyReturnsFalseWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := SleepInterruptibly(ctx, time.Hour)
	assert.False(t, ok)
}
