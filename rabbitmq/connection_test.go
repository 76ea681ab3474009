package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedConnectionChannels(t *testing.T) {
	t.Run("NewChannel opens and tracks channels", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		ch1, err := handle.NewChannel()
		require.NoError(t, err)
		ch2, err := handle.NewChannel()
		require.NoError(t, err)

		assert.NotSame(t, ch1, ch2)
		assert.Len(t, handle.channels, 2)
	})

	t.Run("DefaultChannel is created once and cached", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		ch1, err := handle.DefaultChannel()
		require.NoError(t, err)
		ch2, err := handle.DefaultChannel()
		require.NoError(t, err)

		assert.Same(t, ch1, ch2)
		assert.Len(t, handle.channels, 1)
	})

	t.Run("concurrent DefaultChannel calls open exactly one channel", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		const callers = 16
		channels := make([]Channel, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ch, err := handle.DefaultChannel()
				assert.NoError(t, err)
				channels[i] = ch
			}(i)
		}
		wg.Wait()

		for _, ch := range channels {
			assert.Same(t, channels[0], ch)
		}
		assert.Len(t, handle.channels, 1)
	})

	t.Run("NewChannel after Close fails", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)
		require.NoError(t, handle.Close())

		_, err = handle.NewChannel()

		assert.ErrorIs(t, err, ErrHandleReleased)
	})
}

func TestSharedConnectionClose(t *testing.T) {
	t.Run("closes owned channels before releasing the share", func(t *testing.T) {
		var dials int32
		registry := NewConnectionRegistry(WithDialer(fakeDialer(&dials)))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		ch, err := handle.NewChannel()
		require.NoError(t, err)

		require.NoError(t, handle.Close())

		assert.True(t, ch.(*fakeChannel).closed)
		assert.Equal(t, 0, registry.Len())
	})

	t.Run("continues past per-channel close failures", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))
		handle, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		ch1, err := handle.NewChannel()
		require.NoError(t, err)
		ch1.(*fakeChannel).closeErr = errors.New("channel already gone")
		ch2, err := handle.NewChannel()
		require.NoError(t, err)

		require.NoError(t, handle.Close())

		assert.True(t, ch2.(*fakeChannel).closed)
		assert.Equal(t, 0, registry.Len())
	})

	t.Run("second Close is a no-op and never double-decrements", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))

		first, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)
		second, err := NewSharedConnection(registry, ConnectionParams{})
		require.NoError(t, err)

		require.NoError(t, first.Close())
		require.NoError(t, first.Close())

		// The second handle's share must still be outstanding.
		assert.Equal(t, 1, registry.Refs(second.Signature()))
		assert.Equal(t, 1, registry.Len())

		require.NoError(t, second.Close())
		assert.Equal(t, 0, registry.Len())
	})

	t.Run("each handle contributes exactly one share", func(t *testing.T) {
		registry := NewConnectionRegistry(WithDialer(fakeDialer(new(int32))))

		handles := make([]*SharedConnection, 0, 4)
		for i := 0; i < 4; i++ {
			h, err := NewSharedConnection(registry, ConnectionParams{})
			require.NoError(t, err)
			handles = append(handles, h)
		}

		assert.Equal(t, 4, registry.Refs(handles[0].Signature()))

		for _, h := range handles {
			require.NoError(t, h.Close())
		}
		assert.Equal(t, 0, registry.Len())
	})
}

func TestSharedConnectionDisabled(t *testing.T) {
	t.Run("never touches the registry", func(t *testing.T) {
		var dials int32
		registry := NewConnectionRegistry(WithDialer(fakeDialer(&dials)))

		handle, err := NewSharedConnection(registry, ConnectionParams{}, Disabled())
		require.NoError(t, err)

		assert.False(t, handle.Enabled())
		assert.Equal(t, int32(0), dials)
		assert.Equal(t, 0, registry.Len())
	})

	t.Run("channel operations are no-ops that never fail", func(t *testing.T) {
		handle, err := NewSharedConnection(nil, ConnectionParams{}, Disabled())
		require.NoError(t, err)

		ch, err := handle.NewChannel()
		require.NoError(t, err)

		assert.NoError(t, ch.DeclareQueue("q", QueueOptions{}))
		assert.NoError(t, ch.DeclareExchange("e", ExchangeOptions{}))
		assert.NoError(t, ch.BindQueue("q", "e", "rk"))
		assert.NoError(t, ch.Publish(context.Background(), "e", "rk", []byte("body"), PublishOptions{}))
		assert.NoError(t, ch.Ack(1))

		d, ok, err := ch.Get("q")
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, d.Body)

		tag, err := ch.Consume("q", "", false, func(Delivery) {})
		assert.NoError(t, err)
		assert.Empty(t, tag)
	})

	t.Run("Close does nothing", func(t *testing.T) {
		handle, err := NewSharedConnection(nil, ConnectionParams{}, Disabled())
		require.NoError(t, err)

		assert.NoError(t, handle.Close())
		assert.NoError(t, handle.Close())
	})
}
