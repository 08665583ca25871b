package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRecord represents a registered user
type UserRecord struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a user and assigns its ID. Returns ErrDuplicateEmail
// when the email is taken.
func (d *Database) CreateUser(ctx context.Context, u *UserRecord) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = now()

	_, err := d.exec(ctx,
		`INSERT INTO users (id, name, email, phone, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID, or nil if absent
func (d *Database) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	return d.getUser(ctx, "id", id)
}

// GetUserByEmail returns a user by email, or nil if absent
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return d.getUser(ctx, "email", email)
}

func (d *Database) getUser(ctx context.Context, column, value string) (*UserRecord, error) {
	row := d.queryRow(ctx,
		`SELECT id, name, email, phone, password_hash, created_at FROM users WHERE `+column+` = ?`, value)

	var u UserRecord
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// AddPlayerID records a push notification device for a user. Adding an
// existing ID is a no-op.
func (d *Database) AddPlayerID(ctx context.Context, userID, playerID string) error {
	_, err := d.exec(ctx,
		`INSERT INTO user_players (user_id, player_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, player_id) DO NOTHING`,
		userID, playerID, now())
	if err != nil {
		return fmt.Errorf("failed to add player id: %w", err)
	}
	return nil
}

// ListPlayerIDs returns a user's push notification device IDs, oldest first
func (d *Database) ListPlayerIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.query(ctx,
		`SELECT player_id FROM user_players WHERE user_id = ? ORDER BY created_at, player_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list player ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
