// Package server wires the reference backend: it opens the database, runs
// migrations and serves the record API over gRPC and REST until the
// context is cancelled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/bizsync/internal/dbx"
	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/config"
	"github.com/dmitrijs2005/bizsync/internal/server/httpapi"
	"github.com/dmitrijs2005/bizsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/bizsync/internal/server/services"

	gs "github.com/dmitrijs2005/bizsync/internal/server/grpc"
)

// tokenPurgeInterval is how often expired refresh tokens are removed.
const tokenPurgeInterval = time.Hour

var openDB = sql.Open

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	recordService *services.RecordService
	backupService *services.BackupService
	purgeInterval time.Duration
}

// NewLogger returns the JSON logger the server writes to w.
func NewLogger(w io.Writer, level slog.Level) logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// driverAndDSN returns the database/sql driver name and DSN for c.
// MySQL DSNs always get parseTime so DATETIME columns scan into time.Time.
func driverAndDSN(c *config.Config) (string, string, error) {
	switch c.Dialect() {
	case dbx.Postgres:
		return "pgx", c.DatabaseDSN, nil
	case dbx.MySQL:
		mc, err := mysql.ParseDSN(c.DatabaseDSN)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		return "mysql", mc.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	driver, dsn, err := driverAndDSN(c)
	if err != nil {
		return nil, err
	}

	db, err := openDB(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	m, err := repomanager.NewRepositoryManager(c.Dialect())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := m.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		userService:   services.NewUserService(db, m, c),
		recordService: services.NewRecordService(db, m),
		backupService: services.NewBackupService(db, m, c),
		purgeInterval: tokenPurgeInterval,
	}, nil
}

type tokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// purgeTokens removes expired refresh tokens every interval until ctx is
// done.
func purgeTokens(ctx context.Context, p tokenPurger, interval time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpiredTokens(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn(ctx, "Token purge failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info(ctx, "Expired refresh tokens purged", "count", n)
			}
		}
	}
}

// Run starts the configured listeners and blocks until ctx is cancelled
// or one of them fails. The first listener error is returned.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}

	if addr := app.config.EndpointAddrGRPC; addr != "" {
		s := gs.NewGRPCServer(addr, app.logger, app.userService, app.recordService, app.config.SecretKey)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				fail(fmt.Errorf("grpc server: %w", err))
			}
		}()
	}

	if addr := app.config.EndpointAddrHTTP; addr != "" {
		router := httpapi.NewRouter(app.logger, app.userService, app.recordService, app.backupService, app.config.SecretKey)
		s := httpapi.NewHTTPServer(addr, app.logger, router, app.config.ShutdownTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				fail(fmt.Errorf("http server: %w", err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeTokens(ctx, app.userService, app.purgeInterval, app.logger)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return firstErr
}

func (app *App) Close() error {
	if app.db == nil {
		return nil
	}
	return app.db.Close()
}
