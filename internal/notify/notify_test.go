package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/watzon/actra/internal/collab"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewBus(0, zerolog.Nop())

	var mentions, all []*Notification
	bus.Subscribe("mention", func(_ context.Context, n *Notification) error {
		mentions = append(mentions, n)
		return nil
	})
	bus.Subscribe("*", func(_ context.Context, n *Notification) error {
		all = append(all, n)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bus.CreateNotification(ctx, collab.Notification{
		User: "alice.example.com", Type: "mention", ActionID: "a1b2c3d4",
	}))
	require.NoError(t, bus.CreateNotification(ctx, collab.Notification{
		User: "alice.example.com", Type: "follow", ActionID: "e5f6a7b8",
	}))

	require.Len(t, mentions, 1)
	require.Equal(t, "a1b2c3d4", mentions[0].ActionID)
	require.Len(t, all, 2)
}

func TestHandlerErrorDoesNotPropagate(t *testing.T) {
	bus := NewBus(0, zerolog.Nop())
	bus.Subscribe("*", func(context.Context, *Notification) error {
		return errors.New("handler exploded")
	})

	err := bus.CreateNotification(context.Background(), collab.Notification{
		User: "alice.example.com", Type: "mention",
	})
	require.NoError(t, err)
}

func TestRequiresUser(t *testing.T) {
	bus := NewBus(0, zerolog.Nop())
	err := bus.CreateNotification(context.Background(), collab.Notification{Type: "mention"})
	require.Error(t, err)
}

func TestRecentFiltersAndBounds(t *testing.T) {
	bus := NewBus(3, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.CreateNotification(ctx, collab.Notification{
			User: "alice.example.com", Type: "ping",
		}))
	}
	require.NoError(t, bus.CreateNotification(ctx, collab.Notification{
		User: "bob.example.com", Type: "ping",
	}))

	// Capacity 3 keeps only the newest entries.
	require.Len(t, bus.Recent("alice.example.com", 0), 2)
	require.Len(t, bus.Recent("bob.example.com", 0), 1)
	require.Len(t, bus.Recent("alice.example.com", 1), 1)
}
