package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/watzon/actra/internal/collab"
	"github.com/watzon/actra/internal/value"
)

// ActionStore implements collab.ActionStore on SQLite.
type ActionStore struct {
	db *sql.DB
}

const actionColumns = `action_id, action_key, type, subtype, issuer, audience,
	parent, subject, content, attachments, status, flags, stats, created_at, expires_at`

func (s *ActionStore) CreateAction(ctx context.Context, a *collab.Action) error {
	content, err := json.Marshal(a.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}
	attachments, err := json.Marshal(a.Attachments)
	if err != nil {
		return fmt.Errorf("encoding attachments: %w", err)
	}
	stats, err := json.Marshal(a.Stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if a.Attachments == nil {
		attachments = []byte("[]")
	}
	if a.Stats == nil {
		stats = []byte("{}")
	}

	var expiresAt any
	if a.ExpiresAt != nil {
		expiresAt = a.ExpiresAt.Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ActionID, a.Key, a.Type, a.Subtype, a.Issuer, a.Audience,
		a.Parent, a.Subject, string(content), string(attachments),
		a.Status, a.Flags, string(stats), a.CreatedAt.Unix(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

func (s *ActionStore) GetActionByID(ctx context.Context, actionID string) (*collab.Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE action_id = ?`, actionID)
	return scanAction(row)
}

func (s *ActionStore) GetActionByKey(ctx context.Context, key string) (*collab.Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE action_key = ?`, key)
	return scanAction(row)
}

// UpdateAction patches an action. The fixed columns (status, flags,
// content, subtype) update directly; any other field lands in the stats
// document.
func (s *ActionStore) UpdateAction(ctx context.Context, actionID string, set map[string]value.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	var statsRaw string
	err = tx.QueryRowContext(ctx,
		`SELECT stats FROM actions WHERE action_id = ?`, actionID).Scan(&statsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return collab.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading action: %w", err)
	}

	stats := make(map[string]float64)
	if err := json.Unmarshal([]byte(statsRaw), &stats); err != nil {
		return fmt.Errorf("decoding stats: %w", err)
	}

	statsChanged := false
	for field, v := range set {
		switch field {
		case "status", "flags", "subtype":
			if _, err := tx.ExecContext(ctx,
				`UPDATE actions SET `+field+` = ? WHERE action_id = ?`,
				v.Stringify(), actionID); err != nil {
				return fmt.Errorf("updating %s: %w", field, err)
			}
		case "content":
			content, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encoding content: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE actions SET content = ? WHERE action_id = ?`,
				string(content), actionID); err != nil {
				return fmt.Errorf("updating content: %w", err)
			}
		default:
			n, err := v.AsNumber()
			if err != nil {
				return fmt.Errorf("stat %q: %w", field, err)
			}
			stats[field] = n
			statsChanged = true
		}
	}

	if statsChanged {
		raw, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("encoding stats: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE actions SET stats = ? WHERE action_id = ?`,
			string(raw), actionID); err != nil {
			return fmt.Errorf("updating stats: %w", err)
		}
	}

	return tx.Commit()
}

func (s *ActionStore) DeleteAction(ctx context.Context, actionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM actions WHERE action_id = ?`, actionID)
	if err != nil {
		return fmt.Errorf("deleting action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return collab.ErrNotFound
	}
	return nil
}

// DeleteExpired removes actions whose expiry is at or before now and
// returns how many were swept.
func (s *ActionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM actions WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired actions: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*collab.Action, error) {
	var (
		a           collab.Action
		content     string
		attachments string
		stats       string
		createdAt   int64
		expiresAt   sql.NullInt64
	)
	err := row.Scan(
		&a.ActionID, &a.Key, &a.Type, &a.Subtype, &a.Issuer, &a.Audience,
		&a.Parent, &a.Subject, &content, &attachments,
		&a.Status, &a.Flags, &stats, &createdAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, collab.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning action: %w", err)
	}

	if err := json.Unmarshal([]byte(content), &a.Content); err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &a.Attachments); err != nil {
		return nil, fmt.Errorf("decoding attachments: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &a.Stats); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0).UTC()
		a.ExpiresAt = &t
	}
	return &a, nil
}

// FollowerSource lists follower tags for one tenant, derived from the
// active FLLW actions addressed to it.
type FollowerSource struct {
	actions *ActionStore
	tag     string
}

// Followers returns a follower source for the given tenant tag.
func (s *ActionStore) Followers(tag string) *FollowerSource {
	return &FollowerSource{actions: s, tag: tag}
}

func (f *FollowerSource) ListFollowers(ctx context.Context) ([]string, error) {
	rows, err := f.actions.db.QueryContext(ctx, `
		SELECT DISTINCT issuer FROM actions
		WHERE type = 'FLLW' AND audience = ? AND status = 'active'
		ORDER BY issuer`, f.tag)
	if err != nil {
		return nil, fmt.Errorf("querying followers: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning follower: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
