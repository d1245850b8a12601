package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RegisterDevice creates or refreshes a device's push token.
func (db *DB) RegisterDevice(ctx context.Context, deviceID, username, token string) error {
	_, err := db.exec(ctx, `
		INSERT INTO device_tokens (device_id, username, token, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET username = excluded.username, token = excluded.token, updated_at = excluded.updated_at`,
		deviceID, username, token, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

// TokenForDevice returns the device's push token, or "" if unknown.
func (db *DB) TokenForDevice(ctx context.Context, deviceID string) (string, error) {
	var token string
	err := db.queryRow(ctx, `SELECT token FROM device_tokens WHERE device_id = ?`, deviceID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("device token query: %w", err)
	}
	return token, nil
}

// TokensForUser returns the push tokens of every device of the user, most
// recently refreshed first.
func (db *DB) TokensForUser(ctx context.Context, username string) ([]string, error) {
	rows, err := db.query(ctx, `SELECT token FROM device_tokens WHERE username = ? ORDER BY updated_at DESC`, username)
	if err != nil {
		return nil, fmt.Errorf("user tokens query: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}
