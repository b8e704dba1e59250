// Package app wires a migratory.Runner from a config.Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aatuh/migratory"
	"github.com/aatuh/migratory/internal/config"
	"github.com/aatuh/migratory/source"
	"github.com/aatuh/migratory/store/memstore"
	"github.com/aatuh/migratory/store/mongostore"
	"github.com/aatuh/migratory/store/redisstore"
	"github.com/aatuh/migratory/store/sqlstore"
)

// App holds a configured runner and the resources it owns.
type App struct {
	Runner *migratory.Runner[source.DB]
	DB     *sql.DB
	Source *source.Collection
	Log    *zap.Logger

	closers []func() error
}

// Options controls where output goes.
type Options struct {
	Out io.Writer
	Err io.Writer
	// Verbose lowers the diagnostic log level to debug.
	Verbose bool
}

func (o Options) withDefaults() Options {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
	return o
}

// Open connects to the database and record store described by cfg and
// returns a ready App. Call Close when done.
//
// Parameters:
//   - ctx: Context used while connecting.
//   - cfg: A validated configuration.
//   - opts: Output settings.
//
// Returns:
//   - *App: The wired application.
//   - error: An error if any resource cannot be opened.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	opts = opts.withDefaults()
	a := &App{}

	log, err := newZapLogger(cfg.Log, opts)
	if err != nil {
		return nil, err
	}
	a.Log = log
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	store, err := a.openStore(ctx, cfg.Store, db, cfg.Database.Driver)
	if err != nil {
		return nil, a.closeWith(err)
	}

	exts := cfg.Migrations.Extensions
	if len(exts) == 0 {
		exts = source.DefaultExts
	}
	loader := source.NewDirLoader(cfg.Migrations.Dir).
		WithAllowedExts(exts).
		WithTransactional(cfg.Migrations.Transactional).
		WithLogger(log.Named("source"))
	a.Source = source.NewCollection(loader)

	composed, err := migratory.Compose[source.DB](a.Source, store, migratory.StaticArgs[source.DB](db))
	if err != nil {
		return nil, a.closeWith(err)
	}
	a.Runner = migratory.NewRunner[source.DB](composed, migratory.WithLogger(runnerLogger(cfg.Log, opts, log)))

	log.Debug("runner ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("store", cfg.Store.Driver),
		zap.String("dir", cfg.Migrations.Dir),
	)
	return a, nil
}

// Close releases everything Open acquired, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) closeWith(err error) error {
	if cerr := a.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// sqlDriverName maps a configured driver to its database/sql name.
func sqlDriverName(driver string) (string, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	name, err := sqlDriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if name == "sqlite3" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

func (a *App) openStore(
	ctx context.Context, cfg config.StoreConfig, db *sql.DB, dbDriver string,
) (migratory.RecordStore, error) {
	switch cfg.Driver {
	case config.StoreSQL:
		dialect, err := sqlstore.DialectFor(dbDriver)
		if err != nil {
			return nil, err
		}
		store := sqlstore.New(db, dialect)
		if cfg.Table != "" {
			store = store.WithTable(cfg.Table)
		}
		if cfg.Namespace != "" {
			store = store.WithNamespace(cfg.Namespace)
		}
		return store, nil
	case config.StoreMemory:
		return memstore.New(), nil
	case config.StoreRedis:
		store, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.StoreMongo:
		store, err := mongostore.Open(ctx, mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			return store.Close(context.Background())
		})
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// newZapLogger builds the diagnostic logger. It always writes to the error
// stream so that command output stays parseable.
func newZapLogger(cfg config.LogConfig, opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(opts.Err), level)
	return zap.New(core), nil
}

func runnerLogger(cfg config.LogConfig, opts Options, log *zap.Logger) migratory.Logger {
	if cfg.Format == "json" {
		return migratory.NewZapLogger(log)
	}
	return migratory.NewConsoleLoggerTo(opts.Out, opts.Err)
}
