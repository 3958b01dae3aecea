package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// replay feeds outcomes to b: 'F' records a failure, 'S' a success.
func replay(b *Breaker, outcomes string) {
	for _, o := range outcomes {
		if o == 'F' {
			b.RecordFailure()
		} else {
			b.RecordSuccess()
		}
	}
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		recovery int
		outcomes string
		wantOpen bool
	}{
		{name: "new breaker is closed", failures: 3, recovery: 1, outcomes: "", wantOpen: false},
		{name: "below failure threshold", failures: 3, recovery: 1, outcomes: "FF", wantOpen: false},
		{name: "consecutive failures open it", failures: 3, recovery: 1, outcomes: "FFF", wantOpen: true},
		{name: "a success resets the failure run", failures: 3, recovery: 1, outcomes: "FFSFF", wantOpen: false},
		{name: "partial recovery stays open", failures: 1, recovery: 2, outcomes: "FS", wantOpen: true},
		{name: "enough successes close it", failures: 1, recovery: 2, outcomes: "FSS", wantOpen: false},
		{name: "a failure while open resets recovery", failures: 1, recovery: 3, outcomes: "FSSFSS", wantOpen: true},
		{name: "full recovery after the reset", failures: 1, recovery: 3, outcomes: "FSSFSSS", wantOpen: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("shodan", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.recovery))
			replay(b, tt.outcomes)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsTransitionsOnce(t *testing.T) {
	b := New("rdap", WithFailureThreshold(2), WithSuccessThreshold(1))
	assert.Equal(t, "rdap", b.Name())

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, recovered := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, recovered.Closed)

	usePrimary, recovered = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.False(t, recovered.Closed, "already closed")
}

func TestBreakerReset(t *testing.T) {
	b := New("hunter", WithFailureThreshold(1))
	replay(b, "F")
	assert.False(t, b.Allow(), "no cooldown means no probes while open")

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerProbesOncePerCooldown(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	b := New("numverify",
		WithFailureThreshold(1),
		WithCooldown(30*time.Second),
		WithClock(func() time.Time { return now }),
	)
	assert.True(t, b.Allow())

	replay(b, "F")
	assert.False(t, b.Allow())

	now = now.Add(29 * time.Second)
	assert.False(t, b.Allow(), "still cooling down")

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "probe after cooldown")
	assert.False(t, b.Allow(), "one probe per window")

	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow())
}
