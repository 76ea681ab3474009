package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harelabs/hare-go/rabbitmq"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyProcessingFailure(ctx context.Context, msg Message, procErr error) error {
	args := m.Called(ctx, msg, procErr)
	return args.Error(0)
}

type recordingTransactor struct {
	mu    sync.Mutex
	calls int
}

func (tx *recordingTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.mu.Lock()
	tx.calls++
	tx.mu.Unlock()
	return fn(ctx)
}

func newTestConsumer(t *testing.T, queue string) (*Consumer, *stubChannel) {
	t.Helper()
	ch := newStubChannel()
	c, err := NewConsumer(nil, queue,
		WithConsumerChannel(ch),
		WithoutDeclare())
	require.NoError(t, err)
	return c, ch
}

func deliverN(ch *stubChannel, n int) {
	go func() {
		for i := 0; i < n; i++ {
			ch.deliver(rabbitmq.Delivery{
				Body:        []byte(fmt.Sprintf("job-%d", i)),
				DeliveryTag: uint64(i + 1),
			})
		}
	}()
}

func TestNewWorker(t *testing.T) {
	c, _ := newTestConsumer(t, "worker.new")

	t.Run("rejects nil consumer", func(t *testing.T) {
		_, err := NewWorker(nil, func(ctx context.Context, msg Message) error { return nil })
		assert.Error(t, err)
	})

	t.Run("rejects nil process function", func(t *testing.T) {
		_, err := NewWorker(c, nil)
		assert.Error(t, err)
	})
}

func TestWorkerRun(t *testing.T) {
	t.Run("processes and acknowledges each message", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.basic")

		var mu sync.Mutex
		var processed []string
		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			mu.Lock()
			processed = append(processed, string(msg.Body))
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)

		deliverN(ch, 3)
		require.NoError(t, w.Run(context.Background(), WithRunLimit(3)))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"job-0", "job-1", "job-2"}, processed)
		assert.Equal(t, []uint64{1, 2, 3}, ch.ackedTags())
	})

	t.Run("stops on the first failure by default", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.strict")

		procErr := errors.New("cannot send mail")
		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			if string(msg.Body) == "job-1" {
				return procErr
			}
			return nil
		})
		require.NoError(t, err)

		deliverN(ch, 5)
		err = w.Run(context.Background(), WithRunLimit(5))
		assert.ErrorIs(t, err, procErr)

		// Only the message before the failure was acknowledged.
		assert.Equal(t, []uint64{1}, ch.ackedTags())
	})

	t.Run("fault tolerant run continues past failures", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.tolerant")

		notifier := new(mockNotifier)
		notifier.On("NotifyProcessingFailure", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		procErr := errors.New("cannot send mail")
		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			if string(msg.Body) == "job-2" {
				return procErr
			}
			return nil
		},
			WithFaultTolerant(),
			WithNotifier(notifier))
		require.NoError(t, err)

		deliverN(ch, 5)
		require.NoError(t, w.Run(context.Background(), WithRunLimit(5)))

		// The failed message was reported and left unacknowledged; the rest
		// were acknowledged in order.
		notifier.AssertNumberOfCalls(t, "NotifyProcessingFailure", 1)
		notified := notifier.Calls[0].Arguments.Get(1).(Message)
		assert.Equal(t, []byte("job-2"), notified.Body)
		assert.Equal(t, procErr, notifier.Calls[0].Arguments.Get(2))
		assert.Equal(t, []uint64{1, 2, 4, 5}, ch.ackedTags())
	})

	t.Run("a notifier failure stops a fault tolerant run", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.notifier")

		notifyErr := errors.New("pager unreachable")
		notifier := new(mockNotifier)
		notifier.On("NotifyProcessingFailure", mock.Anything, mock.Anything, mock.Anything).Return(notifyErr)

		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			return errors.New("boom")
		},
			WithFaultTolerant(),
			WithNotifier(notifier))
		require.NoError(t, err)

		deliverN(ch, 2)
		err = w.Run(context.Background(), WithRunLimit(2))
		assert.ErrorIs(t, err, notifyErr)
		assert.Empty(t, ch.ackedTags())
	})

	t.Run("wraps processing in the configured transactor", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.tx")

		tx := &recordingTransactor{}
		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			return nil
		}, WithTransactor(tx))
		require.NoError(t, err)

		deliverN(ch, 4)
		require.NoError(t, w.Run(context.Background(), WithRunLimit(4)))

		tx.mu.Lock()
		defer tx.mu.Unlock()
		assert.Equal(t, 4, tx.calls)
	})

	t.Run("manual ack leaves acknowledgment to the processor", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.manual")

		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			if msg.DeliveryTag%2 == 0 {
				return c.Ack(msg)
			}
			return nil
		}, WithManualAck())
		require.NoError(t, err)

		deliverN(ch, 4)
		require.NoError(t, w.Run(context.Background(), WithRunLimit(4)))
		assert.Equal(t, []uint64{2, 4}, ch.ackedTags())
	})

	t.Run("returns nil when the context is cancelled", func(t *testing.T) {
		c, ch := newTestConsumer(t, "worker.cancel")

		ctx, cancel := context.WithCancel(context.Background())
		w, err := NewWorker(c, func(ctx context.Context, msg Message) error {
			return nil
		})
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- w.Run(ctx)
		}()

		waitForConsume(t, ch)
		ch.deliver(rabbitmq.Delivery{Body: []byte("job-0"), DeliveryTag: 1})
		cancel()
		require.NoError(t, <-done)
		assert.Equal(t, []uint64{1}, ch.ackedTags())
	})
}
