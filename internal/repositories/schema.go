package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		role VARCHAR(32) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id {{pk}},
		user_id BIGINT NOT NULL,
		type VARCHAR(32) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message {{text}} NOT NULL,
		data {{text}},
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id {{pk}},
		order_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		method VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		amount DECIMAL(12,2) NOT NULL,
		qr_code {{text}},
		pix_code {{text}},
		expires_at {{ts}} NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id {{pk}},
		user_id BIGINT NOT NULL,
		subject VARCHAR(255) NOT NULL,
		status VARCHAR(32) NOT NULL,
		priority VARCHAR(32) NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_messages (
		id {{pk}},
		ticket_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		message {{text}} NOT NULL,
		message_type VARCHAR(16) NOT NULL,
		attachment_url {{text}},
		attachment_name VARCHAR(255),
		attachment_size BIGINT NOT NULL DEFAULT 0,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
}

// DDL returns the schema statements for d.
func (d Dialect) DDL() []string {
	var r *strings.Replacer
	switch d {
	case Postgres:
		r = strings.NewReplacer("{{pk}}", "BIGSERIAL PRIMARY KEY", "{{ts}}", "TIMESTAMPTZ", "{{text}}", "TEXT")
	default:
		r = strings.NewReplacer("{{pk}}", "BIGINT AUTO_INCREMENT PRIMARY KEY", "{{ts}}", "DATETIME(6)", "{{text}}", "LONGTEXT")
	}
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}

// Migrate creates the sandbox tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.DDL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
