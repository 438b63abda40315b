package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/payment"
)

type PaymentRepository struct {
	sqlDB
}

const paymentColumns = `id, order_id, user_id, method, status, amount, qr_code, pix_code, expires_at, created_at, updated_at`

func (r *PaymentRepository) CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	id, err := r.insert(ctx, `
        INSERT INTO payments (order_id, user_id, method, status, amount, qr_code, pix_code, expires_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.UserID, p.Method, string(p.Status), p.Amount,
		nullString(p.QRCode), nullString(p.PixCode), nullTime(p.ExpiresAt), p.CreatedAt)
	if err != nil {
		return models.Payment{}, err
	}
	p.ID = id
	return p, nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id int64) (models.Payment, error) {
	p, err := scanPayment(r.queryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, models.ErrPaymentNotFound
	}
	return p, err
}

// UpdateStatus applies the transition with an optimistic WHERE status = ?
// guard.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to models.PaymentStatus) (models.Payment, error) {
	if !payment.CanTransition(from, to) {
		return models.Payment{}, fmt.Errorf("%w: %s -> %s", payment.ErrInvalidTransition, from, to)
	}
	res, err := r.exec(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now(), id, string(from))
	if err != nil {
		return models.Payment{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return models.Payment{}, err
	}
	current, err := r.GetPayment(ctx, id)
	if err != nil {
		return models.Payment{}, err
	}
	if rows == 0 {
		return current, ErrStatusChanged
	}
	return current, nil
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE status = ? ORDER BY id`, string(models.PaymentPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (models.Payment, error) {
	var (
		p       models.Payment
		status  string
		qr, pix sql.NullString
		expires sql.NullTime
		updated sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Method, &status, &p.Amount,
		&qr, &pix, &expires, &p.CreatedAt, &updated); err != nil {
		return models.Payment{}, err
	}
	p.Status = models.PaymentStatus(status)
	p.QRCode = qr.String
	p.PixCode = pix.String
	p.ExpiresAt = nullTimePtr(expires)
	p.UpdatedAt = nullTimePtr(updated)
	return p, nil
}
