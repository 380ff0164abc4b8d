package federation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/watzon/actra/internal/collab"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []*Delivery
	failures int
}

func (s *fakeSender) Send(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("remote unavailable")
	}
	s.sent = append(s.sent, d)
	return nil
}

type fakeFollowers struct{ tags []string }

func (f *fakeFollowers) ListFollowers(context.Context) ([]string, error) {
	return f.tags, nil
}

type fakeFetcher struct{ blobs map[string][]byte }

func (f *fakeFetcher) Fetch(_ context.Context, fileID, _ string) (io.ReadCloser, error) {
	data, ok := f.blobs[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func testQueue(sender Sender) *Queue {
	return NewQueue(sender, RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		PollInterval: time.Millisecond,
	}, zerolog.Nop())
}

func TestQueueDelivers(t *testing.T) {
	sender := &fakeSender{}
	q := testQueue(sender)

	q.Enqueue(&Delivery{Kind: "send", Target: "bob.example.com", ActionID: "a1b2c3d4", Token: "tok"})
	q.Flush(context.Background())

	require.Len(t, sender.sent, 1)
	require.Equal(t, "bob.example.com", sender.sent[0].Target)
	require.Zero(t, q.Depth())
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	sender := &fakeSender{failures: 2}
	q := testQueue(sender)

	q.Enqueue(&Delivery{Kind: "send", Target: "bob.example.com", ActionID: "a1b2c3d4", Token: "tok"})

	deadline := time.Now().Add(2 * time.Second)
	for len(sender.sent) == 0 && time.Now().Before(deadline) {
		q.Flush(context.Background())
		time.Sleep(5 * time.Millisecond)
	}

	require.Len(t, sender.sent, 1)
	require.Equal(t, 2, sender.sent[0].Attempt)
	require.Empty(t, q.DeadLetters())
}

func TestQueueDeadLetters(t *testing.T) {
	sender := &fakeSender{failures: 100}
	q := testQueue(sender)

	q.Enqueue(&Delivery{Kind: "send", Target: "bob.example.com", ActionID: "a1b2c3d4", Token: "tok"})

	deadline := time.Now().Add(2 * time.Second)
	for len(q.DeadLetters()) == 0 && time.Now().Before(deadline) {
		q.Flush(context.Background())
		time.Sleep(5 * time.Millisecond)
	}

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, 3, dead[0].Attempt)
	require.Empty(t, sender.sent)
}

func TestBroadcastFansOut(t *testing.T) {
	sender := &fakeSender{}
	q := testQueue(sender)
	svc := NewService(q, &fakeFollowers{tags: []string{"bob.example.com", "carol.example.com"}}, nil, nil, zerolog.Nop())

	require.NoError(t, svc.BroadcastToFollowers(context.Background(), "a1b2c3d4", "tok"))
	q.Flush(context.Background())

	require.Len(t, sender.sent, 2)
}

func TestSyncAttachment(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	fetcher := &fakeFetcher{blobs: map[string][]byte{"file-0001": []byte("payload")}}
	svc := NewService(nil, nil, backend, fetcher, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, svc.SyncAttachment(ctx, "file-0001", "bob.example.com"))

	rc, err := backend.Get(ctx, "file-0001")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	// Second sync is a no-op even if the remote copy vanished.
	delete(fetcher.blobs, "file-0001")
	require.NoError(t, svc.SyncAttachment(ctx, "file-0001", "bob.example.com"))

	require.ErrorIs(t, svc.SyncAttachment(ctx, "file-0002", "bob.example.com"), ErrFileNotFound)
}

func TestFilesystemBackend(t *testing.T) {
	backend := NewFilesystemBackend(t.TempDir())
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "file-0001", bytes.NewReader([]byte("data"))))

	ok, err := backend.Exists(ctx, "file-0001")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, backend.Delete(ctx, "file-0001"))
	_, err = backend.Get(ctx, "file-0001")
	require.ErrorIs(t, err, ErrFileNotFound)

	require.Error(t, backend.Put(ctx, "../escape", bytes.NewReader(nil)))
}

func TestZstdBackendRoundTrip(t *testing.T) {
	backend := NewZstdBackend(NewFilesystemBackend(t.TempDir()))
	ctx := context.Background()

	payload := bytes.Repeat([]byte("federated"), 1024)
	require.NoError(t, backend.Put(ctx, "file-0001", bytes.NewReader(payload)))

	rc, err := backend.Get(ctx, "file-0001")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", "alice.example.com", time.Hour)

	token, err := svc.Sign("a1b2c3d4", "POST", "", "bob.example.com")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "a1b2c3d4", claims.Subject)
	require.Equal(t, "POST", claims.ActionType)
	require.Equal(t, "alice.example.com", claims.Issuer)

	_, err = NewTokenService("other", "alice.example.com", time.Hour).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigningSenderFillsMissingToken(t *testing.T) {
	actions := collab.NewMemActionStore()
	require.NoError(t, actions.CreateAction(context.Background(), &collab.Action{
		ActionID: "a1b2c3d4", Type: "POST", Issuer: "alice.example.com",
		Status: "active", CreatedAt: time.Now(),
	}))

	inner := &fakeSender{}
	tokens := NewTokenService("secret", "alice.example.com", time.Hour)
	sender := NewSigningSender(inner, tokens, actions)

	require.NoError(t, sender.Send(context.Background(), &Delivery{
		Kind: "send", Target: "bob.example.com", ActionID: "a1b2c3d4",
	}))
	require.Len(t, inner.sent, 1)

	claims, err := tokens.Validate(inner.sent[0].Token)
	require.NoError(t, err)
	require.Equal(t, "POST", claims.ActionType)
	require.Equal(t, "a1b2c3d4", claims.Subject)

	// A hook-supplied token is passed through untouched.
	require.NoError(t, sender.Send(context.Background(), &Delivery{
		Kind: "send", Target: "bob.example.com", ActionID: "a1b2c3d4", Token: "preset",
	}))
	require.Equal(t, "preset", inner.sent[1].Token)
}
