package ops

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "rxvc/pkg/platform/audit"
	"rxvc/pkg/platform/audit/store/memory"
	"rxvc/pkg/platform/circuit"
)

type flakyStore struct {
	mu    sync.Mutex
	calls int
}

func (s *flakyStore) Append(context.Context, audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("store down")
}

func TestTracker_PersistsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	tracker := New(store)

	for range 5 {
		tracker.Track(audit.OpsEvent{Subject: "rx-1", Action: string(audit.EventDisclosureDerived), Decision: "pharmacy"})
	}
	require.NoError(t, tracker.Close())

	events, err := store.ListBySubject(context.Background(), "rx-1")
	require.NoError(t, err)
	assert.Len(t, events, 5)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestTracker_SamplesOut(t *testing.T) {
	store := memory.NewInMemoryStore()
	m := NewMetricsWith(prometheus.NewRegistry())
	tracker := New(store, WithSampler(NewSampler(0)), WithMetrics(m))

	tracker.Track(audit.OpsEvent{Subject: "rx-1", Action: string(audit.EventDisclosureDerived)})
	require.NoError(t, tracker.Close())

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Sampled))
}

func TestTracker_BreakerStopsCallingFailingStore(t *testing.T) {
	store := &flakyStore{}
	m := NewMetricsWith(prometheus.NewRegistry())
	breaker := circuit.New("test", circuit.WithFailureThreshold(2))
	tracker := New(store, WithBreaker(breaker), WithMetrics(m))

	for range 6 {
		tracker.Track(audit.OpsEvent{Subject: "rx-1", Action: string(audit.EventDisclosureDerived)})
	}
	require.NoError(t, tracker.Close())

	assert.Equal(t, 2, store.calls)
	assert.True(t, breaker.IsOpen())
	assert.Equal(t, float64(4), testutil.ToFloat64(m.CircuitBreakerDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState))
}

func TestSampler(t *testing.T) {
	s := NewSampler(0.5)
	s.roll = func() float64 { return 0.4 }
	assert.True(t, s.ShouldSample("a"))

	s.roll = func() float64 { return 0.6 }
	assert.False(t, s.ShouldSample("a"))

	s.SetRate("b", 2)
	assert.True(t, s.ShouldSample("b"))
	s.SetRate("c", -1)
	assert.False(t, s.ShouldSample("c"))
}
