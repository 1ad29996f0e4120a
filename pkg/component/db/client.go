// Package db opens the metadata database on sqlite, postgres or mysql and
// exposes it as a storage.Client.
//
//	opts := dbopts.NewOptions()
//	client, err := db.NewWithContext(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	factory := store.NewFactory(client.DB())
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kart-io/bhasha/pkg/component/storage"
	dbopts "github.com/kart-io/bhasha/pkg/options/db"
)

var _ storage.Client = (*Client)(nil)

// Client wraps gorm.DB with the storage.Client interface.
type Client struct {
	db   *gorm.DB
	opts *dbopts.Options
}

// New creates a new database client.
func New(opts *dbopts.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext opens the database and verifies it with a ping bounded by ctx.
func NewWithContext(ctx context.Context, opts *dbopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("db options cannot be nil")
	}
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid db options: %w", utilerrors.NewAggregate(errs))
	}

	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(LogLevelFromInt(opts.LogLevel), opts.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	configurePool(sqlDB, opts)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Driver, err)
	}

	return &Client{db: db, opts: opts}, nil
}

func dialectorFor(opts *dbopts.Options) (gorm.Dialector, error) {
	switch opts.Driver {
	case dbopts.DriverSQLite:
		if !IsMemory(opts.Path) {
			if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		return sqlite.Open(BuildSQLiteDSN(opts)), nil
	case dbopts.DriverPostgres:
		return postgres.Open(BuildPostgresDSN(opts)), nil
	case dbopts.DriverMySQL:
		return mysql.Open(BuildMySQLDSN(opts)), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", opts.Driver)
	}
}

func configurePool(sqlDB *sql.DB, opts *dbopts.Options) {
	// sqlite 只允许单写连接，内存库更是按连接隔离
	if opts.Driver == dbopts.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if opts.MaxIdleConnections > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConnections)
	}
	if opts.MaxOpenConnections > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConnections)
	}
	if opts.MaxConnectionLifeTime > 0 {
		sqlDB.SetConnMaxLifetime(opts.MaxConnectionLifeTime)
	}
}

// Name returns the driver name.
func (c *Client) Name() string {
	return c.opts.Driver
}

// Ping checks if the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	return c.db
}
