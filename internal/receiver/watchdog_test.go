package receiver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdog_FiresOnce(t *testing.T) {
	w := NewWatchdog(0, t0)
	assert.Equal(t, DefaultTimeout, w.Timeout())
	assert.Equal(t, Live, w.State())

	assert.False(t, w.Poll(t0.Add(4*time.Second)))
	assert.True(t, w.Poll(t0.Add(5*time.Second)))
	assert.Equal(t, TimedOut, w.State())
	for i := 6; i < 20; i++ {
		assert.False(t, w.Poll(t0.Add(time.Duration(i)*time.Second)))
	}
}

func TestWatchdog_TouchRecovers(t *testing.T) {
	w := NewWatchdog(time.Second, t0)
	assert.False(t, w.Touch(t0.Add(500*time.Millisecond)))
	assert.False(t, w.Poll(t0.Add(1400*time.Millisecond)))
	assert.True(t, w.Poll(t0.Add(1500*time.Millisecond)))

	assert.True(t, w.Touch(t0.Add(2*time.Second)))
	assert.Equal(t, Live, w.State())
	assert.False(t, w.Poll(t0.Add(2500*time.Millisecond)))
	assert.True(t, w.Poll(t0.Add(3*time.Second)), "a new silence fires again")
	assert.Equal(t, time.Second, w.Since(t0.Add(3*time.Second)))
}
