package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront/internal/models"
)

// TicketRepository stores support tickets and their messages.
type TicketRepository struct {
	sqlDB
}

func (r *TicketRepository) CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error) {
	if t.Status == "" {
		t.Status = models.TicketOpen
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	id, err := r.insert(ctx, `
        INSERT INTO tickets (user_id, subject, status, priority, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.Subject, t.Status, t.Priority, t.CreatedAt)
	if err != nil {
		return models.Ticket{}, err
	}
	t.ID = id
	return t, nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	var (
		t       models.Ticket
		updated sql.NullTime
	)
	err := r.queryRow(ctx, `
        SELECT id, user_id, subject, status, priority, created_at, updated_at
        FROM tickets
        WHERE id = ?`, id).Scan(&t.ID, &t.UserID, &t.Subject, &t.Status, &t.Priority, &t.CreatedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, models.ErrTicketNotFound
	}
	if err != nil {
		return models.Ticket{}, err
	}
	t.UpdatedAt = nullTimePtr(updated)
	return t, nil
}

func (r *TicketRepository) UpdateTicketStatus(ctx context.Context, id int64, status string) (models.Ticket, error) {
	res, err := r.exec(ctx, `UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`, status, now(), id)
	if err != nil {
		return models.Ticket{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Ticket{}, models.ErrTicketNotFound
	}
	return r.GetTicket(ctx, id)
}

func (r *TicketRepository) CreateMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if _, err := r.GetTicket(ctx, m.TicketID); err != nil {
		return models.Message{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	id, err := r.insert(ctx, `
        INSERT INTO ticket_messages (ticket_id, sender_id, is_staff, message, message_type,
                                     attachment_url, attachment_name, attachment_size, is_read, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TicketID, m.SenderID, m.IsStaff, m.Content, string(m.Type),
		nullString(m.AttachmentURL), nullString(m.AttachmentName), m.AttachmentSize, m.IsRead, m.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	m.ID = id
	return m, nil
}

func (r *TicketRepository) ListMessages(ctx context.Context, ticketID int64) ([]models.Message, error) {
	if _, err := r.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	rows, err := r.query(ctx, `
        SELECT id, ticket_id, sender_id, is_staff, message, message_type,
               attachment_url, attachment_name, attachment_size, is_read, created_at
        FROM ticket_messages
        WHERE ticket_id = ?
        ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m         models.Message
			kind      string
			url, name sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &m.SenderID, &m.IsStaff, &m.Content, &kind,
			&url, &name, &m.AttachmentSize, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = models.MessageKind(kind)
		m.AttachmentURL = url.String
		m.AttachmentName = name.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
