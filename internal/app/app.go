package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"taskdesk/taskctl/internal/api"
	"taskdesk/taskctl/internal/audit"
	"taskdesk/taskctl/internal/board"
	"taskdesk/taskctl/internal/config"
	"taskdesk/taskctl/internal/devbackend"
	"taskdesk/taskctl/internal/session"
)

// Client is the wired client side: REST client, session store, board and
// audit journal sharing one configuration.
type Client struct {
	cfg     config.Config
	log     *slog.Logger
	api     *api.Client
	session *session.Store
	board   *board.Board
	journal *audit.Journal
	closers []func() error
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	storage, closeStorage, err := OpenStorage(cfg.Session)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, log: logger, closers: []func() error{closeStorage}}

	c.journal = audit.NewJournal(cfg.AuditLogFile)

	base, err := api.New(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Logger:  logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create api client: %w", err)
	}

	c.session, err = session.NewStore(base, storage, session.StoreConfig{
		Logger:   logger,
		Recorder: c.journal,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create session store: %w", err)
	}
	c.closers = append(c.closers, func() error {
		c.session.Close()
		return nil
	})
	c.api = base.WithHeaderSource(c.session)

	if err := c.session.Rehydrate(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	c.board, err = board.New(c.api, board.Config{
		Logger:   logger,
		Recorder: c.journal,
		Actor:    c.actor,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create board: %w", err)
	}
	return c, nil
}

func (c *Client) Config() config.Config { return c.cfg }
func (c *Client) Logger() *slog.Logger { return c.log }
func (c *Client) API() *api.Client { return c.api }
func (c *Client) Session() *session.Store { return c.session }
func (c *Client) Board() *board.Board { return c.board }
func (c *Client) Journal() *audit.Journal { return c.journal }

func (c *Client) actor() string {
	if sess, ok := c.session.Current(); ok {
		return sess.Username
	}
	return ""
}

// Close releases resources in reverse order of acquisition.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// OpenStorage builds the session storage named by cfg.Storage, sealed with
// an age identity when one is configured. The returned func closes any
// underlying handle.
func OpenStorage(cfg config.SessionConfig) (session.Storage, func() error, error) {
	var (
		storage session.Storage
		closeFn = func() error { return nil }
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		pg, err := session.NewPostgresStorage(db, cfg.Profile)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres session storage: %w", err)
		}
		storage, closeFn = pg, db.Close
	case config.StorageSQLite:
		lite, err := session.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite session storage: %w", err)
		}
		storage, closeFn = lite, lite.Close
	case config.StorageFile, "":
		fs, err := session.NewFileStorage(cfg.StateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("create file session storage: %w", err)
		}
		storage = fs
	default:
		return nil, nil, fmt.Errorf("unknown session storage %q", cfg.Storage)
	}

	if cfg.AgeIdentityFile == "" {
		return storage, closeFn, nil
	}
	identity, err := session.LoadOrCreateIdentity(cfg.AgeIdentityFile)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("load session identity: %w", err)
	}
	sealed, err := session.NewSealedStorage(storage, identity)
	if err != nil {
		_ = closeFn()
		return nil, nil, fmt.Errorf("create sealed session storage: %w", err)
	}
	return sealed, closeFn, nil
}

// DevServer runs the in-memory development backend.
type DevServer struct {
	cfg    config.DevServerConfig
	log    *slog.Logger
	server *devbackend.Server
}

func NewDevServer(cfg config.Config, logger *slog.Logger) (*DevServer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	secret := cfg.DevServer.JWTSecret
	if secret == "" {
		var err error
		secret, err = devbackend.RandomSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("DEV_SERVER_JWT_SECRET not set; tokens will not survive a restart")
	}
	tokens, err := devbackend.NewIssuer(secret, cfg.DevServer.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	var store *devbackend.Store
	if cfg.DevServer.StateFile != "" {
		store, err = devbackend.NewStoreWithFile(cfg.DevServer.StateFile)
		if err != nil {
			return nil, fmt.Errorf("create dev backend store: %w", err)
		}
	} else {
		store = devbackend.NewStore()
	}

	server := devbackend.New(cfg.DevServer, devbackend.Deps{
		Store:  store,
		Tokens: tokens,
		Audit:  audit.NewJournal(cfg.AuditLogFile),
		Logger: logger,
	})
	return &DevServer{cfg: cfg.DevServer, log: logger, server: server}, nil
}

func (d *DevServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		d.log.Info("dev backend starting", "addr", d.cfg.Addr)
		errCh <- d.server.Start()
	}()

	select {
	case <-ctx.Done():
		d.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}

// WaitForPostgres pings dsn every interval until it answers or timeout
// elapses.
func WaitForPostgres(ctx context.Context, dsn string, timeout, interval time.Duration) error {
	if dsn == "" {
		return fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready within %s: %w", timeout, err)
		case <-time.After(interval):
		}
	}
}
