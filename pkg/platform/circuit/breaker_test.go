package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replay records outcomes in order: 'f' failure, 's' success.
func replay(b *Breaker, outcomes string) {
	for _, o := range outcomes {
		switch o {
		case 'f':
			b.RecordFailure()
		case 's':
			b.RecordSuccess()
		}
	}
}

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		outcomes  string
		wantOpen  bool
	}{
		{name: "new breaker is closed", failures: 3, outcomes: "", wantOpen: false},
		{name: "below failure threshold", failures: 3, outcomes: "ff", wantOpen: false},
		{name: "opens at failure threshold", failures: 3, outcomes: "fff", wantOpen: true},
		{name: "success resets failure streak", failures: 3, outcomes: "ffsff", wantOpen: false},
		{name: "streak after reset opens", failures: 3, outcomes: "ffsfff", wantOpen: true},
		{name: "stays open below success threshold", failures: 1, successes: 2, outcomes: "fs", wantOpen: true},
		{name: "closes at success threshold", failures: 1, successes: 2, outcomes: "fss", wantOpen: false},
		{name: "failure resets success streak", failures: 1, successes: 3, outcomes: "fssfss", wantOpen: true},
		{name: "full success streak after relapse closes", failures: 1, successes: 3, outcomes: "fssfsss", wantOpen: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("did-resolver", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			replay(b, tt.outcomes)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerReportsTransitions(t *testing.T) {
	b := New("remote-kms", WithFailureThreshold(2))
	assert.Equal(t, "remote-kms", b.Name())

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, StateChange{}, change)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreakerResetCloses(t *testing.T) {
	b := New("remote-kms", WithFailureThreshold(1))
	replay(b, "f")
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	replay(b, "s")
	assert.False(t, b.IsOpen())
}

func TestBreakerCooldownAllowsProbe(t *testing.T) {
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	b := New("remote-kms", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(func() time.Time { return now }))

	assert.True(t, b.Allow())
	replay(b, "f")
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow())

	// A failed probe restarts the cooldown.
	replay(b, "f")
	assert.False(t, b.Allow())
	assert.Equal(t, "open", b.State().String())
}
