package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// FollowerSource lists the identities following this tenant, used by
// broadcast deliveries.
type FollowerSource interface {
	ListFollowers(ctx context.Context) ([]string, error)
}

// Fetcher retrieves an attachment blob from a remote instance.
type Fetcher interface {
	Fetch(ctx context.Context, fileID, from string) (io.ReadCloser, error)
}

// Service implements the federation collaborator: queued token delivery
// plus attachment replication into a blob backend.
type Service struct {
	queue       *Queue
	followers   FollowerSource
	attachments Backend
	fetcher     Fetcher
	logger      zerolog.Logger
}

func NewService(queue *Queue, followers FollowerSource, attachments Backend, fetcher Fetcher, logger zerolog.Logger) *Service {
	return &Service{
		queue:       queue,
		followers:   followers,
		attachments: attachments,
		fetcher:     fetcher,
		logger:      logger,
	}
}

// SendToAudience queues one delivery to a single remote identity.
func (s *Service) SendToAudience(ctx context.Context, audience, actionID, token string) error {
	s.queue.Enqueue(&Delivery{
		Kind:     "send",
		Target:   audience,
		ActionID: actionID,
		Token:    token,
	})
	return nil
}

// BroadcastToFollowers queues one delivery per follower.
func (s *Service) BroadcastToFollowers(ctx context.Context, actionID, token string) error {
	followers, err := s.followers.ListFollowers(ctx)
	if err != nil {
		return fmt.Errorf("listing followers: %w", err)
	}
	for _, follower := range followers {
		s.queue.Enqueue(&Delivery{
			Kind:     "broadcast",
			Target:   follower,
			ActionID: actionID,
			Token:    token,
		})
	}
	s.logger.Debug().
		Str("action_id", actionID).
		Int("followers", len(followers)).
		Msg("broadcast queued")
	return nil
}

// SyncAttachment replicates a remote attachment into the local backend.
// Already-present attachments are left alone, which makes redelivered
// sync operations idempotent.
func (s *Service) SyncAttachment(ctx context.Context, fileID, from string) error {
	exists, err := s.attachments.Exists(ctx, fileID)
	if err != nil {
		return fmt.Errorf("checking attachment %s: %w", fileID, err)
	}
	if exists {
		return nil
	}

	rc, err := s.fetcher.Fetch(ctx, fileID, from)
	if err != nil {
		return fmt.Errorf("fetching attachment %s: %w", fileID, err)
	}
	defer rc.Close()

	if err := s.attachments.Put(ctx, fileID, rc); err != nil {
		return fmt.Errorf("storing attachment %s: %w", fileID, err)
	}
	s.logger.Debug().Str("file_id", fileID).Str("from", from).Msg("attachment synced")
	return nil
}

// HTTPSender delivers action tokens to a remote instance's inbox over
// HTTPS. The identity tag doubles as the remote host name.
type HTTPSender struct {
	client *http.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, d *Delivery) error {
	payload, err := json.Marshal(map[string]string{
		"action_id": d.ActionID,
		"token":     d.Token,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://%s/api/inbox", d.Target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering to %s: %w", d.Target, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivering to %s: unexpected status %d", d.Target, resp.StatusCode)
	}
	return nil
}

// HTTPFetcher pulls attachment blobs from a remote instance.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, fileID, from string) (io.ReadCloser, error) {
	url := fmt.Sprintf("https://%s/api/files/%s", from, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching from %s: %w", from, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrFileNotFound
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching from %s: unexpected status %d", from, resp.StatusCode)
	}
	return resp.Body, nil
}
