package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/NarenCandy/wild-animal-detection/internal/geometry"
)

// AlertRecord represents a persisted wildlife alert
type AlertRecord struct {
	ID         string
	UserID     string
	Animal     string
	ImageURL   string
	AlertLevel string
	Confidence float64
	BBox       *geometry.Box
	CameraID   string
	Timestamp  time.Time
}

// CreateAlert inserts an alert and assigns its ID if empty
func (d *Database) CreateAlert(ctx context.Context, a *AlertRecord) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now()
	} else {
		a.Timestamp = dbTime(a.Timestamp)
	}

	bbox := ""
	if a.BBox != nil {
		data, err := json.Marshal(a.BBox)
		if err != nil {
			return fmt.Errorf("failed to marshal bbox: %w", err)
		}
		bbox = string(data)
	}

	_, err := d.exec(ctx,
		`INSERT INTO alerts (id, user_id, animal, image_url, alert_level, confidence, bbox, camera_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Animal, a.ImageURL, a.AlertLevel, a.Confidence, bbox, a.CameraID, a.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// CreateAlertWithEvent inserts an alert and queues an outbox message for it
// in one transaction. payload is called with the stored alert.
func (d *Database) CreateAlertWithEvent(ctx context.Context, a *AlertRecord, topic string, payload func(*AlertRecord) ([]byte, error)) error {
	return d.InTx(ctx, func(ctx context.Context) error {
		if err := d.CreateAlert(ctx, a); err != nil {
			return err
		}
		data, err := payload(a)
		if err != nil {
			return fmt.Errorf("failed to encode alert event: %w", err)
		}
		return d.AddToOutbox(ctx, topic, a.UserID, data)
	})
}

// GetAlert returns an alert by ID, or nil if absent
func (d *Database) GetAlert(ctx context.Context, id string) (*AlertRecord, error) {
	row := d.queryRow(ctx,
		`SELECT id, user_id, animal, image_url, alert_level, confidence, bbox, camera_id, timestamp
		FROM alerts WHERE id = ?`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlertsByUser returns a user's alerts, newest first. since and limit
// are optional (nil / <= 0).
func (d *Database) ListAlertsByUser(ctx context.Context, userID string, since *time.Time, limit int) ([]*AlertRecord, error) {
	query := `SELECT id, user_id, animal, image_url, alert_level, confidence, bbox, camera_id, timestamp
		FROM alerts WHERE user_id = ?`
	args := []any{userID}

	if since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, dbTime(*since))
	}

	query += ` ORDER BY timestamp DESC, id DESC`

	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]*AlertRecord, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteAlert removes an alert owned by userID. Returns ErrNotFound when no
// such alert exists for that user.
func (d *Database) DeleteAlert(ctx context.Context, id, userID string) error {
	res, err := d.exec(ctx, `DELETE FROM alerts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlertsBefore removes alerts older than before and returns how many
func (d *Database) DeleteAlertsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := d.exec(ctx, `DELETE FROM alerts WHERE timestamp < ?`, dbTime(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune alerts: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*AlertRecord, error) {
	var a AlertRecord
	var bbox string
	if err := row.Scan(&a.ID, &a.UserID, &a.Animal, &a.ImageURL, &a.AlertLevel,
		&a.Confidence, &bbox, &a.CameraID, &a.Timestamp); err != nil {
		return nil, err
	}
	if bbox != "" {
		var b geometry.Box
		if err := json.Unmarshal([]byte(bbox), &b); err == nil {
			a.BBox = &b
		}
	}
	a.Timestamp = a.Timestamp.UTC()
	return &a, nil
}
