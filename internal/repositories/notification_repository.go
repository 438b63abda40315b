package repositories

import (
	"context"
	"database/sql"
	"encoding/json"

	"storefront/internal/models"
)

type NotificationRepository struct {
	sqlDB
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	var data sql.NullString
	if len(n.Data) > 0 {
		data = sql.NullString{String: string(n.Data), Valid: true}
	}
	id, err := r.insert(ctx, `
        INSERT INTO notifications (user_id, type, title, message, data, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.UserID, string(n.Type), n.Title, n.Message, data, n.IsRead, n.CreatedAt)
	if err != nil {
		return models.Notification{}, err
	}
	n.ID = id
	return n, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, userID int64, limit int, unreadOnly bool) ([]models.Notification, error) {
	query := `
        SELECT id, user_id, type, title, message, data, is_read, created_at
        FROM notifications
        WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		var (
			n    models.Notification
			kind string
			data sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Message, &data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = models.ParseNotificationCategory(kind)
		if data.Valid && data.String != "" {
			n.Data = json.RawMessage(data.String)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`, userID, false).Scan(&count)
	return count, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	return r.affectOne(r.exec(ctx, `UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`, true, id, userID))
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.exec(ctx, `UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`, true, userID, false)
	return err
}

func (r *NotificationRepository) DeleteNotification(ctx context.Context, userID, id int64) error {
	return r.affectOne(r.exec(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, userID))
}

// affectOne maps "no row matched" to ErrNoRecord. For MySQL this relies on
// clientFoundRows, set by NormalizeDSN.
func (r *NotificationRepository) affectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNoRecord
	}
	return nil
}
