package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive feeds a breaker through a sequence: 'f' records a failure and
// 's' a success.
func drive(b *Breaker, seq string) {
	for _, c := range seq {
		if c == 'f' {
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
		seq      string
		open     bool
	}{
		{name: "starts closed", failures: 3, recovery: 2, seq: "", open: false},
		{name: "below failure threshold", failures: 3, recovery: 2, seq: "ff", open: false},
		{name: "opens at threshold", failures: 3, recovery: 2, seq: "fff", open: true},
		{name: "success clears failure streak", failures: 3, recovery: 2, seq: "ffsff", open: false},
		{name: "single success keeps it open", failures: 1, recovery: 2, seq: "fs", open: true},
		{name: "recovery streak closes", failures: 1, recovery: 2, seq: "fss", open: false},
		{name: "failure breaks recovery streak", failures: 1, recovery: 3, seq: "fssfss", open: true},
		{name: "full recovery after interruption", failures: 1, recovery: 3, seq: "fssfsss", open: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("credential-cache", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.recovery))
			drive(b, tt.seq)
			assert.Equal(t, tt.open, b.IsOpen())
		})
	}
}

func TestBreakerReportsChanges(t *testing.T) {
	b := New("credential-cache", WithFailureThreshold(2), WithSuccessThreshold(1))
	assert.Equal(t, "credential-cache", b.Name())
	assert.Equal(t, "closed", b.State().String())

	fallback, change := b.RecordFailure()
	assert.False(t, fallback)
	assert.Equal(t, StateChange{}, change)

	fallback, change = b.RecordFailure()
	assert.True(t, fallback, "the failure that opens the circuit already falls back")
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	fallback, change = b.RecordFailure()
	assert.True(t, fallback)
	assert.False(t, change.Opened, "already open")

	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
}

func TestBreakerIgnoresNonPositiveThresholds(t *testing.T) {
	b := New("credential-cache", WithFailureThreshold(0), WithSuccessThreshold(-1))
	drive(b, "ffff")
	assert.False(t, b.IsOpen(), "default of five failures applies")
	drive(b, "f")
	require.True(t, b.IsOpen())
	drive(b, "ss")
	assert.True(t, b.IsOpen(), "default of three successes applies")
	drive(b, "s")
	assert.False(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("credential-cache", WithFailureThreshold(1))
	drive(b, "f")
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	drive(b, "s")
	assert.False(t, b.IsOpen())
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("credential-cache", WithFailureThreshold(50))
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordFailure()
		}()
	}
	wg.Wait()
	assert.True(t, b.IsOpen())
}
