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

// ProfileStore implements collab.ProfileStore on SQLite. Profile
// attributes are a single JSON document per identity.
type ProfileStore struct {
	db *sql.DB
}

func (s *ProfileStore) GetProfile(ctx context.Context, idTag string) (value.Value, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT attrs FROM profiles WHERE id_tag = ?`, idTag).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return value.Null(), collab.ErrNotFound
	}
	if err != nil {
		return value.Null(), fmt.Errorf("reading profile: %w", err)
	}

	var attrs value.Value
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return value.Null(), fmt.Errorf("decoding profile: %w", err)
	}
	return attrs, nil
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, idTag string, patch map[string]value.Value) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	attrs := value.Map(nil)
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT attrs FROM profiles WHERE id_tag = ?`, idTag).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("reading profile: %w", err)
	default:
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return fmt.Errorf("decoding profile: %w", err)
		}
	}

	attrs = value.Merge(attrs, value.Map(patch))

	encoded, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id_tag, attrs, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id_tag) DO UPDATE SET attrs = excluded.attrs, updated_at = excluded.updated_at`,
		idTag, string(encoded), time.Now().Unix()); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}

	return tx.Commit()
}
