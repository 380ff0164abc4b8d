package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/watzon/actra/internal/collab"
	"github.com/watzon/actra/internal/value"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DefaultOptions(filepath.Join(t.TempDir(), "actra.db")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAction(id, key string) *collab.Action {
	return &collab.Action{
		ActionID:    id,
		Key:         key,
		Type:        "POST",
		Issuer:      "alice.example.com",
		Content:     value.String("hello"),
		Attachments: []string{"file-0001"},
		Status:      "active",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestActionRoundTrip(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()

	a := sampleAction("act-0001", "POST:alice:1")
	require.NoError(t, actions.CreateAction(ctx, a))

	got, err := actions.GetActionByID(ctx, "act-0001")
	require.NoError(t, err)
	require.Equal(t, a.Type, got.Type)
	require.Equal(t, value.String("hello"), got.Content)
	require.Equal(t, []string{"file-0001"}, got.Attachments)
	require.Equal(t, a.CreatedAt.Unix(), got.CreatedAt.Unix())

	byKey, err := actions.GetActionByKey(ctx, "POST:alice:1")
	require.NoError(t, err)
	require.Equal(t, got.ActionID, byKey.ActionID)

	_, err = actions.GetActionByID(ctx, "missing-1")
	require.ErrorIs(t, err, collab.ErrNotFound)
}

func TestUpdateAction(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()
	require.NoError(t, actions.CreateAction(ctx, sampleAction("act-0002", "")))

	err := actions.UpdateAction(ctx, "act-0002", map[string]value.Value{
		"status":    value.String("deleted"),
		"reactions": value.Number(4),
	})
	require.NoError(t, err)

	got, err := actions.GetActionByID(ctx, "act-0002")
	require.NoError(t, err)
	require.Equal(t, "deleted", got.Status)
	require.Equal(t, float64(4), got.Stats["reactions"])

	err = actions.UpdateAction(ctx, "missing-2", map[string]value.Value{"status": value.String("x")})
	require.ErrorIs(t, err, collab.ErrNotFound)
}

func TestDeleteAction(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()
	require.NoError(t, actions.CreateAction(ctx, sampleAction("act-0003", "")))

	require.NoError(t, actions.DeleteAction(ctx, "act-0003"))
	require.ErrorIs(t, actions.DeleteAction(ctx, "act-0003"), collab.ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := sampleAction("act-0004", "")
	expired.ExpiresAt = &past
	fresh := sampleAction("act-0005", "")
	fresh.ExpiresAt = &future
	forever := sampleAction("act-0006", "")

	require.NoError(t, actions.CreateAction(ctx, expired))
	require.NoError(t, actions.CreateAction(ctx, fresh))
	require.NoError(t, actions.CreateAction(ctx, forever))

	n, err := actions.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = actions.GetActionByID(ctx, "act-0004")
	require.ErrorIs(t, err, collab.ErrNotFound)
	_, err = actions.GetActionByID(ctx, "act-0005")
	require.NoError(t, err)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()

	past := time.Now().Add(-time.Minute)
	expired := sampleAction("act-0007", "")
	expired.ExpiresAt = &past
	require.NoError(t, actions.CreateAction(ctx, expired))

	sweeper := NewSweeper(actions, "", zerolog.Nop())
	require.NoError(t, sweeper.Sweep(ctx))

	_, err := actions.GetActionByID(ctx, "act-0007")
	require.ErrorIs(t, err, collab.ErrNotFound)
}

func TestProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	profiles := testStore(t).Profiles()

	_, err := profiles.GetProfile(ctx, "alice.example.com")
	require.ErrorIs(t, err, collab.ErrNotFound)

	require.NoError(t, profiles.UpdateProfile(ctx, "alice.example.com", map[string]value.Value{
		"display_name": value.String("Alice"),
		"followers":    value.Number(1),
	}))
	require.NoError(t, profiles.UpdateProfile(ctx, "alice.example.com", map[string]value.Value{
		"followers": value.Number(2),
	}))

	got, err := profiles.GetProfile(ctx, "alice.example.com")
	require.NoError(t, err)
	require.Equal(t, value.String("Alice"), got.Get("display_name"))
	require.Equal(t, value.Number(2), got.Get("followers"))
}

func TestListFollowers(t *testing.T) {
	ctx := context.Background()
	actions := testStore(t).Actions()

	follow := func(id, issuer, audience, status string) *collab.Action {
		a := sampleAction(id, "FLLW:"+issuer+":"+audience)
		a.Type = "FLLW"
		a.Issuer = issuer
		a.Audience = audience
		a.Status = status
		a.Content = value.Null()
		return a
	}
	require.NoError(t, actions.CreateAction(ctx, follow("act-0010", "bob.example.com", "alice.example.com", "active")))
	require.NoError(t, actions.CreateAction(ctx, follow("act-0011", "carol.example.com", "alice.example.com", "active")))
	require.NoError(t, actions.CreateAction(ctx, follow("act-0012", "dave.example.com", "alice.example.com", "deleted")))
	require.NoError(t, actions.CreateAction(ctx, follow("act-0013", "bob.example.com", "carol.example.com", "active")))

	tags, err := actions.Followers("alice.example.com").ListFollowers(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"bob.example.com", "carol.example.com"}, tags)
}
