package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/bizsync/internal/client/client"
	"github.com/dmitrijs2005/bizsync/internal/client/config"
	"github.com/dmitrijs2005/bizsync/internal/client/connectivity"
	"github.com/dmitrijs2005/bizsync/internal/client/models"
	"github.com/dmitrijs2005/bizsync/internal/client/services"
	"github.com/dmitrijs2005/bizsync/internal/client/store"
	"github.com/dmitrijs2005/bizsync/internal/client/syncer"
	"github.com/dmitrijs2005/bizsync/internal/logging"
)

// oracle is the connectivity source the App drives. *connectivity.Watcher
// satisfies it; tests use a manual one.
type oracle interface {
	connectivity.Oracle
	CheckNow(ctx context.Context) bool
	Run(ctx context.Context)
}

// App holds everything a command needs.
type App struct {
	config    *config.Config
	logger    logging.Logger
	store     store.Store
	transport client.Transport
	oracle    oracle
	engine    *syncer.Engine
	auth      services.AuthService

	session     *models.SessionContext
	interactive bool

	reader *bufio.Reader
	out    io.Writer
	closer []io.Closer
}

// NewApp opens local storage, builds the transport and restores the saved
// session if there is one.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating data dir: %w", err)
	}

	logger, logCloser := logging.NewFileLogger(logging.FileOptions{
		Path:   cfg.Path(cfg.LogFile),
		Level:  cfg.LogLevel,
		Mirror: cfg.Verbose,
	})

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	tr, err := newTransport(cfg)
	if err != nil {
		_ = st.Close()
		_ = logCloser.Close()
		return nil, err
	}

	w := connectivity.NewWatcher(tr, cfg.OnlineCheckInterval, logger)

	a, err := newApp(ctx, cfg, logger, st, tr, w)
	if err != nil {
		_ = tr.Close()
		_ = st.Close()
		_ = logCloser.Close()
		return nil, err
	}
	a.closer = append(a.closer, tr, st, logCloser)
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, l logging.Logger, st store.Store, tr client.Transport, o oracle) (*App, error) {
	opts := syncer.DefaultOptions()
	opts.MaxAttempts = cfg.MaxAttempts
	opts.BackoffBase = cfg.BackoffBase
	opts.BackoffMax = cfg.BackoffMax
	opts.StableConnectionDelay = cfg.StableConnectionDelay
	opts.SyncInterval = cfg.SyncInterval
	opts.RemoteTimeout = cfg.RemoteTimeout

	a := &App{
		config:    cfg,
		logger:    l.With("module", "cli"),
		store:     st,
		transport: tr,
		oracle:    o,
		engine:    syncer.New(st, tr, o, l, opts),
		auth:      services.NewAuthService(tr, st),
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}

	sess, err := a.auth.RestoreSession(ctx)
	switch {
	case err == nil:
		a.session = &sess
	case errors.Is(err, services.ErrNotLoggedIn):
	default:
		return nil, fmt.Errorf("error restoring session: %w", err)
	}

	if err := a.engine.LoadStatus(ctx); err != nil {
		a.logger.Warn(ctx, "could not load sync status", "error", err)
	}
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, l logging.Logger) (store.Store, error) {
	secondary, err := store.OpenFileStore(cfg.Path(cfg.FallbackFile))
	if err != nil {
		return nil, err
	}

	primary, err := store.OpenSQLite(ctx, cfg.Path(cfg.DatabaseFile))
	if err != nil {
		// Run on the snapshot alone; it will be copied into SQLite once a
		// later run opens the database again.
		l.Error(ctx, "sqlite unavailable, using offline snapshot", "error", err)
		return secondary, nil
	}
	return store.NewFallbackStore(primary, secondary, l), nil
}

func newTransport(cfg *config.Config) (client.Transport, error) {
	switch cfg.Transport {
	case config.TransportHTTP:
		return client.NewHTTPClient(cfg.HTTPBaseURL, &http.Client{Timeout: cfg.RemoteTimeout}), nil
	default:
		return client.NewGRPCClient(cfg.ServerEndpointAddr)
	}
}

// Close releases the transport, the store and the log file.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closer {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

func (a *App) requireSession() (models.SessionContext, error) {
	if a.session == nil {
		return models.SessionContext{}, services.ErrNotLoggedIn
	}
	return *a.session, nil
}

func (a *App) service(name string) (services.RecordService, error) {
	sess, err := a.requireSession()
	if err != nil {
		return nil, err
	}
	return services.NewRecordService(models.EntityType(name), a.engine, sess,
		services.WithLogger(a.logger),
		services.WithBackgroundRefresh(a.interactive),
	)
}

// probe checks the server once unless the watcher already runs.
func (a *App) probe(ctx context.Context) bool {
	if a.interactive {
		return a.oracle.IsOnline()
	}
	return a.oracle.CheckNow(ctx)
}

// flush pushes pending changes before a one-shot command exits. In the
// shell it only kicks the running engine and returns nil.
func (a *App) flush(ctx context.Context) *syncer.Report {
	if a.interactive {
		a.engine.Kick()
		return nil
	}
	if !a.probe(ctx) {
		return nil
	}
	rep, err := a.engine.Sync(ctx)
	if err != nil {
		a.logger.Warn(ctx, "sync failed", "error", err)
		return nil
	}
	if rep.DeadLettered > 0 {
		fmt.Fprintf(a.out, "%d change(s) rejected by the server, see 'deadletters list'\n", rep.DeadLettered)
	}
	return rep
}

func (a *App) getStatus() string {
	s := "not logged in"
	if a.session != nil {
		s = a.session.Email
	}
	if a.oracle.IsOnline() {
		s += " online"
	} else {
		s += " offline"
	}
	if st := a.engine.Status(); st.Pending > 0 {
		s += fmt.Sprintf(" pending:%d", st.Pending)
	}
	return "(" + s + ")"
}
