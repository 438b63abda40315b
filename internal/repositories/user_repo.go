package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"storefront/internal/models"
)

type UserRepository struct {
	sqlDB
}

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	if user.ID > 0 {
		_, err := r.exec(ctx, `
        INSERT INTO users (id, name, email, role, password_hash, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID, user.Name, strings.ToLower(user.Email), user.Role, user.PasswordHash, user.CreatedAt)
		return user, err
	}
	id, err := r.insert(ctx, `
        INSERT INTO users (name, email, role, password_hash, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		user.Name, strings.ToLower(user.Email), user.Role, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return r.scanOne(r.queryRow(ctx, `
        SELECT id, name, email, role, password_hash, created_at
        FROM users
        WHERE id = ?`, id))
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.scanOne(r.queryRow(ctx, `
        SELECT id, name, email, role, password_hash, created_at
        FROM users
        WHERE email = ?`, strings.ToLower(email)))
}

func (r *UserRepository) scanOne(row *sql.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	return u, err
}
