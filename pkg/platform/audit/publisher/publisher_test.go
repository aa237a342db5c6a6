package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/audit/store/memory"
	"magbot/pkg/requestcontext"
)

var (
	instanceA = domain.MustParseAccount("0x00000000000000000000000000000000000000a1")
	instanceB = domain.MustParseAccount("0x00000000000000000000000000000000000000b2")
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error {
	return errors.New("disk full")
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventSBTMinted),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventSBTMinted), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEqual(t, [16]byte{}, [16]byte(events[0].ID))
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventApproval),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), instanceA)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_ComplianceBypassesBuffer(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventRoleGranted),
	}))

	// visible immediately, no worker involved
	events, err := store.ListByInstance(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Instance: instanceA,
			Action:   string(audit.EventBaseURISet),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByInstance(context.Background(), instanceA)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(store, WithAsyncBuffer(1), WithMetrics(m))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Instance: instanceA,
				Action:   string(audit.EventApproval),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_FailClosed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub := NewPublisher(failingStore{}, WithMetrics(m))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventCollateralMinted),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PersistFailures))
}

func TestPublisher_EnrichesFromRequestContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), fixed)
	ctx = requestcontext.WithRequestID(ctx, "req-123")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	ctx = requestcontext.WithClientKind(ctx, "cli")

	require.NoError(t, pub.Emit(ctx, audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventPaused),
	}))

	events, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, "req-123", events[0].RequestID)
	assert.Equal(t, "10.0.0.1", events[0].ClientIP)
	assert.Equal(t, "cli", events[0].Client)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	before := time.Now()
	err := pub.Emit(context.Background(), audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventInitialized),
	})
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, !events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.True(t, !events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		Instance:  instanceA,
		Action:    string(audit.EventInitialized),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_MultipleEvents(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	events := []audit.Event{
		{Instance: instanceA, Action: string(audit.EventInitialized)},
		{Instance: instanceA, Action: string(audit.EventRoleGranted)},
		{Instance: instanceA, Action: string(audit.EventSBTMinted)},
	}
	for _, event := range events {
		require.NoError(t, pub.Emit(context.Background(), event))
	}

	result, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, result, 3)

	assert.Equal(t, string(audit.EventInitialized), result[0].Action)
	assert.Equal(t, string(audit.EventRoleGranted), result[1].Action)
	assert.Equal(t, string(audit.EventSBTMinted), result[2].Action)
}

func TestPublisher_DifferentInstances(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Instance: instanceA,
		Action:   string(audit.EventSBTMinted),
	}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Instance: instanceB,
		Action:   string(audit.EventCollateralMinted),
	}))

	eventsA, err := pub.List(context.Background(), instanceA)
	require.NoError(t, err)
	require.Len(t, eventsA, 1)
	assert.Equal(t, string(audit.EventSBTMinted), eventsA[0].Action)

	eventsB, err := pub.List(context.Background(), instanceB)
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
	assert.Equal(t, string(audit.EventCollateralMinted), eventsB[0].Action)
}
