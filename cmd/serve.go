package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"storefront/internal/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox backend (REST, push hub, settler)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Sandbox.Addr = addr
			}
			return runServer(cmd.Context(), opts, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP network address (default sandbox.addr)")
	return cmd
}

func runServer(ctx context.Context, opts *rootOptions, cfg config.Config) error {
	infoLog := log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	errorLog := log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)
	logger := opts.logger()

	store, closeStore, err := openStore(ctx, cfg.Sandbox.Database, infoLog)
	if err != nil {
		errorLog.Print(err)
		return err
	}
	defer closeStore()

	app, err := initializeApp(ctx, cfg.Sandbox, store, logger, errorLog, infoLog)
	if err != nil {
		errorLog.Print(err)
		return err
	}

	go app.wsManager.Run(ctx)
	if app.broker != nil {
		go func() {
			if err := app.broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errorLog.Printf("redis broker stopped: %v", err)
			}
		}()
	}
	startSettler(ctx, app.payments, cfg.Sandbox.SettleTick, cfg.Sandbox.AutoSettle, infoLog, errorLog)

	origins := cfg.Sandbox.AllowedOrigin
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID", "X-Signature"},
	})

	// Attachments arrive inline as base64, so reads get more time than
	// plain JSON would need.
	srv := &http.Server{
		Addr:         cfg.Sandbox.Addr,
		ErrorLog:     errorLog,
		Handler:      addSecurityHeaders(c.Handler(app.routes())),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errorLog.Printf("shutdown: %v", err)
		}
	}()

	infoLog.Printf("Starting server on %s", cfg.Sandbox.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errorLog.Print(err)
		return err
	}
	infoLog.Println("Server stopped")
	return nil
}
