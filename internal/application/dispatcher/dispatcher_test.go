package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) HasError(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errors {
		if e == msg {
			return true
		}
	}
	return false
}

func submitted(expenseID int64) *event.Event {
	return event.NewEvent(event.TypeExpenseSubmitted, expenseID, 1, nil)
}

func TestSubscribe_GeneratesDistinctNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeExpenseSubmitted, noop)
	d.Subscribe(event.TypeExpenseSubmitted, noop)

	handlers := d.ListHandlers(event.TypeExpenseSubmitted)
	require.Len(t, handlers, 2)
	assert.NotEqual(t, handlers[0].Name, handlers[1].Name)
	assert.Nil(t, handlers[0].Handler, "ListHandlers must not expose handler funcs")
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls int
	d.SubscribeNamed(event.TypeExpenseApproved, "audit", func(ctx context.Context, evt *event.Event) error {
		calls++
		return nil
	})

	d.Unsubscribe(event.TypeExpenseApproved, "audit")

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseApproved, 1, 1, nil)))
	assert.Zero(t, calls)
	assert.Empty(t, d.ListHandlers(event.TypeExpenseApproved))
}

func TestDispatch_RunsInOrderAndStopsOnError(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	var order []string

	d.SubscribeNamed(event.TypeExpenseSubmitted, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeExpenseSubmitted, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return boom
	})
	d.SubscribeNamed(event.TypeExpenseSubmitted, "third", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "third")
		return nil
	})

	err := d.Dispatch(context.Background(), submitted(7))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.True(t, logger.HasError("Handler error"))
}

func TestDispatch_RecoversPanics(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	d.Subscribe(event.TypeExpenseStalled, func(ctx context.Context, evt *event.Event) error {
		panic("nil approver")
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeExpenseStalled, 3, 1, nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler panic")
	assert.True(t, logger.HasError("Handler panic recovered"))
}

func TestDispatchAsync_SurvivesCancelledContext(t *testing.T) {
	d := NewDispatcher()
	var seen atomic.Int64
	d.Subscribe(event.TypeApprovalRequested, func(ctx context.Context, evt *event.Event) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		seen.Add(evt.ExpenseID)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.DispatchAsync(ctx, event.NewEvent(event.TypeApprovalRequested, 42, 1, nil))

	require.NoError(t, d.Close())
	assert.Equal(t, int64(42), seen.Load())
}

func TestPublish_DeliversEveryEvent(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	got := map[event.Type]int{}
	record := func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got[evt.Type]++
		return nil
	}
	d.Subscribe(event.TypeApprovalDecided, record)
	d.Subscribe(event.TypeExpenseApproved, record)

	d.Publish(context.Background(),
		event.NewEvent(event.TypeApprovalDecided, 1, 1, nil),
		nil,
		event.NewEvent(event.TypeExpenseApproved, 1, 1, nil),
	)
	require.NoError(t, d.Close())

	assert.Equal(t, 1, got[event.TypeApprovalDecided])
	assert.Equal(t, 1, got[event.TypeExpenseApproved])
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	var finished atomic.Bool
	d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	d.DispatchAsync(context.Background(), submitted(1))

	require.NoError(t, d.Close())
	assert.True(t, finished.Load(), "Close must wait for async handlers")

	assert.Error(t, d.Close(), "second Close should fail")
	assert.ErrorIs(t, d.Dispatch(context.Background(), submitted(2)), ErrClosed)

	d.DispatchAsync(context.Background(), submitted(3))
	assert.True(t, logger.HasError("Cannot dispatch async event, dispatcher is closed"))
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeExpenseSubmitted, fmt.Sprintf("h-%d", n), func(ctx context.Context, evt *event.Event) error {
				calls.Add(1)
				return nil
			})
		}(i)
		go func(n int) {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), submitted(int64(n)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, d.ListHandlers(event.TypeExpenseSubmitted), 20)
	require.NoError(t, d.Close())
}
