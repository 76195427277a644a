package store

import (
	"context"
	"time"
)

// DevicePushToken represents a push notification token for a device
type DevicePushToken struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "ios" or "android"
	CreatedAt time.Time `json:"created_at"`
}

// RegisterPushToken registers or updates a device push token for an owner
func (s *Store) RegisterPushToken(ctx context.Context, uid, token, platform string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_push_tokens (uid, token, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid, token) DO UPDATE SET
			platform = EXCLUDED.platform,
			created_at = NOW()
	`, uid, token, platform)
	return err
}

// UnregisterPushToken removes a device push token
func (s *Store) UnregisterPushToken(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM device_push_tokens WHERE token = $1
	`, token)
	return err
}

// UnregisterOwnerPushTokens removes all push tokens for an owner
func (s *Store) UnregisterOwnerPushTokens(ctx context.Context, uid string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM device_push_tokens WHERE uid = $1
	`, uid)
	return err
}

// GetOwnerPushTokens returns all push tokens for an owner
func (s *Store) GetOwnerPushTokens(ctx context.Context, uid string) ([]DevicePushToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, uid, token, platform, created_at
		FROM device_push_tokens
		WHERE uid = $1
	`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []DevicePushToken
	for rows.Next() {
		var t DevicePushToken
		if err := rows.Scan(&t.ID, &t.UID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
