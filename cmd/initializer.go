package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/utils"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger

	tokens    *utils.Manager
	wsManager *WebSocketManager
	upgrader  websocket.Upgrader
	broker    *services.RedisBroker

	payments *services.PaymentService
	tickets  ticketAccess

	authHandler         *handlers.AuthHandler
	notificationHandler *handlers.NotificationHandler
	paymentHandler      *handlers.PaymentHandler
	ticketHandler       *handlers.TicketHandler
}

// initializeApp wires the sandbox: publisher chain (hub, optionally behind
// Redis), optional S3 and FCM, services and handlers.
func initializeApp(ctx context.Context, cfg config.Sandbox, store repositories.Store, logger *slog.Logger, errorLog, infoLog *log.Logger) (*application, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = rand.Text()
		infoLog.Printf("sandbox.jwt_secret not set, using a random secret for this run")
	}
	tokens, err := utils.NewManager(secret)
	if err != nil {
		return nil, err
	}

	hub := NewWebSocketManager(infoLog, errorLog)
	var pub services.Publisher = hub

	var broker *services.RedisBroker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		broker = services.NewRedisBroker(rdb, "", hub, logger)
		pub = broker
		infoLog.Printf("Fanning out push events through redis %s", cfg.RedisAddr)
	}

	var mirror services.Mirror
	if cfg.FirebaseCreds != "" {
		fcm, err := services.NewFCMMirror(ctx, cfg.FirebaseCreds, logger)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
		mirror = fcm
	}

	var uploader services.Uploader
	if cfg.S3.Bucket != "" {
		u, err := utils.NewUploader(utils.S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		uploader = u
	}

	// Services
	auth := services.NewAuthService(store.Users, tokens)
	notifications := services.NewNotificationService(store.Notifications, pub, mirror, logger)
	payee := services.PixPayee{Key: cfg.Pix.Key, Name: cfg.Pix.Name, City: cfg.Pix.City}
	payments := services.NewPaymentService(store.Payments, notifications, payee, cfg.WebhookSecret, logger)
	tickets := services.NewTicketService(store.Tickets, pub, notifications, uploader, logger)

	seeded, err := auth.Seed(ctx, cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	if seeded > 0 {
		infoLog.Printf("Seeded %d demo users", seeded)
	}

	return &application{
		errorLog:  errorLog,
		infoLog:   infoLog,
		tokens:    tokens,
		wsManager: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(cfg.AllowedOrigin),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		broker:   broker,
		payments: payments,
		tickets:  tickets,

		authHandler:         &handlers.AuthHandler{Service: auth, Logger: logger},
		notificationHandler: &handlers.NotificationHandler{Service: notifications, Logger: logger},
		paymentHandler:      &handlers.PaymentHandler{Service: payments, Logger: logger},
		ticketHandler:       &handlers.TicketHandler{Service: tickets, Logger: logger},
	}, nil
}

// openStore returns the in-memory store, or connects and migrates the SQL
// database named by cfg.
func openStore(ctx context.Context, cfg config.Database, infoLog *log.Logger) (repositories.Store, func() error, error) {
	if cfg.Driver == "" || cfg.Driver == "memory" {
		infoLog.Println("Using in-memory storage")
		return repositories.NewMemoryStore(), func() error { return nil }, nil
	}

	dialect, err := repositories.ParseDialect(cfg.Driver)
	if err != nil {
		return repositories.Store{}, nil, err
	}
	dsn, err := dialect.NormalizeDSN(cfg.URL)
	if err != nil {
		return repositories.Store{}, nil, fmt.Errorf("database url: %w", err)
	}
	db, err := openDB(dialect.DriverName(), dsn)
	if err != nil {
		return repositories.Store{}, nil, err
	}
	if err := repositories.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return repositories.Store{}, nil, err
	}
	infoLog.Printf("Connected to %s database", dialect)
	return repositories.NewSQLStore(db, dialect), db.Close, nil
}

func openDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	db.SetMaxIdleConns(35)
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
