package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"storefront/internal/alerts"
	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/push"
	"storefront/internal/session"
	"storefront/internal/timeutil"
)

var errNoToken = errors.New("no bearer token: run `storefront login` and pass --token or set STOREFRONT_TOKEN")

// clientEnv is what every client subcommand shares: configuration, the
// signed-in session, the REST client and an alert printer.
type clientEnv struct {
	cfg     config.Config
	logger  *slog.Logger
	session *session.Store
	api     *api.Client
	alerts  alerts.Sink
}

func (o *rootOptions) clientEnv(cmd *cobra.Command, needToken bool) (*clientEnv, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	logger := o.logger()

	store := session.NewStore()
	switch {
	case cfg.API.Token != "":
		if _, err := store.SignIn(cfg.API.Token); err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
	case needToken:
		return nil, errNoToken
	}

	client, err := api.New(api.Config{
		BaseURL: cfg.API.BaseURL,
		Tokens:  store,
		Client:  &http.Client{Timeout: cfg.API.Timeout},
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	o.serveMetrics(cmd.Context(), logger)

	return &clientEnv{
		cfg:     cfg,
		logger:  logger,
		session: store,
		api:     client,
		alerts:  printAlerts(cmd.OutOrStdout()),
	}, nil
}

// pushClient returns a fresh push connection; each one is single-use.
func (e *clientEnv) pushClient() *push.Client {
	return push.NewClient(push.Config{
		URL:      e.cfg.PushURL(),
		Tokens:   e.session,
		Attempts: e.cfg.Push.RetryAttempts,
		Delay:    e.cfg.Push.RetryDelay,
		Logger:   e.logger,
	})
}

func printAlerts(w io.Writer) alerts.Sink {
	var mu sync.Mutex
	return alerts.SinkFunc(func(a alerts.Alert) {
		mu.Lock()
		defer mu.Unlock()
		at := a.At
		if at.IsZero() {
			at = timeutil.Now()
		}
		title := a.Title
		if title != "" {
			title += ": "
		}
		fmt.Fprintf(w, "%s [%s] %s%s\n", timeutil.Local(at).Format("15:04:05"), strings.ToUpper(a.Level.String()), title, a.Message)
	})
}
