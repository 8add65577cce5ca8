package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/statecraft/go-statechart/clock"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	m := clock.NewManual()
	var fired []string

	m.Schedule(300*time.Millisecond, func() { fired = append(fired, "late") })
	m.Schedule(100*time.Millisecond, func() { fired = append(fired, "early") })
	m.Schedule(100*time.Millisecond, func() { fired = append(fired, "early2") })

	m.Advance(50 * time.Millisecond)
	assert.Empty(t, fired)

	m.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"early", "early2", "late"}, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManualCancel(t *testing.T) {
	m := clock.NewManual()
	fired := false
	cancel := m.Schedule(100*time.Millisecond, func() { fired = true })
	cancel()
	m.Advance(time.Second)
	assert.False(t, fired)
}

func TestManualRescheduleFromCallback(t *testing.T) {
	m := clock.NewManual()
	var fired []string
	m.Schedule(100*time.Millisecond, func() {
		fired = append(fired, "first")
		m.Schedule(100*time.Millisecond, func() { fired = append(fired, "second") })
	})

	// A chained timer fires inside the same Advance once its own deadline
	// is reached.
	m.Advance(200 * time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, fired)
}

func TestSystemSchedules(t *testing.T) {
	s := clock.System()
	done := make(chan struct{})
	s.Schedule(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
