package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/todohub/internal/api"
	"github.com/Iron-Ham/todohub/internal/auth"
	"github.com/Iron-Ham/todohub/internal/collab"
	"github.com/Iron-Ham/todohub/internal/config"
	"github.com/Iron-Ham/todohub/internal/errors"
	"github.com/Iron-Ham/todohub/internal/event"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
)

// app is one running todohub server: persistence, the collaboration hub,
// the websocket endpoint and the HTTP API behind a single listener.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
	hub    *collab.Hub
	ws     *collab.Handler
	http   *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	if err := cfg.RequireSecret(); err != nil {
		return nil, err
	}
	issuer, err := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	st, err := store.New(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Redis.KeyPrefix)
	if err != nil {
		return nil, err
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", cfg.Redis.Addr)
	}

	bus := event.NewBus(event.WithLogger(logger))
	hub, err := collab.NewHub(collab.Config{Bus: bus}, collab.WithLogger(logger), collab.WithEventLogging())
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ws, err := collab.NewHandler(hub, issuer, collab.HandlerConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SendQueueSize:  cfg.Server.SendQueueSize,
		ReadLimit:      cfg.Server.ReadLimitBytes,
	}, logger)
	if err != nil {
		hub.Close()
		_ = st.Close()
		return nil, err
	}

	router, err := api.NewRouter(api.Options{
		Store:     st,
		Todos:     todo.NewService(st, hub, logger),
		Tokens:    issuer,
		WSPath:    cfg.Server.WSPath,
		WSHandler: ws,
		Mode:      cfg.Server.Mode,
		Logger:    logger,
	})
	if err != nil {
		hub.Close()
		_ = st.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		hub:    hub,
		ws:     ws,
		http: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// listen opens the configured address.
func (a *app) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return ln, nil
}

// serve runs until ctx is done or the listener fails, then shuts down
// within server.shutdown_timeout.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("server listening", "addr", ln.Addr().String(), "ws_path", a.cfg.Server.WSPath)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(context.Context) error {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return a.shutdown()
	})
	return p.Wait()
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.logger.Info("shutting down", "open_sessions", a.ws.Active())
	err := a.http.Shutdown(ctx)
	// Upgraded connections are hijacked and not covered by http.Server.Shutdown.
	a.ws.Shutdown()
	a.hub.Close()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}

	delivered, dropped := a.hub.Dispatcher().Stats()
	a.logger.Info("server stopped", "delivered", delivered, "dropped", dropped)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
