// Package db provides relational database options for bhasha.
//
// The metadata store (documents, chunks, chats, messages, evaluations) runs on
// one of three gorm dialects:
//
//	db:
//	  driver: sqlite            # sqlite | postgres | mysql
//	  path: data/bhasha.db      # sqlite only
//	  host: 127.0.0.1           # postgres / mysql
//	  port: 5432
//	  username: postgres
//	  database: bhasha
//
// The password may also be supplied via BHASHA_RAG_DB_PASSWORD.
package db

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/bhasha/pkg/options"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// PasswordEnv is read when no password was configured.
const PasswordEnv = "BHASHA_RAG_DB_PASSWORD"

var _ options.IOptions = (*Options)(nil)

// Options defines configuration options for the metadata database.
type Options struct {
	Driver                string        `json:"driver" mapstructure:"driver"`
	Path                  string        `json:"path" mapstructure:"path"`
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	// LogLevel follows gorm: 1 silent, 2 error, 3 warn, 4 info.
	LogLevel      int           `json:"log-level" mapstructure:"log-level"`
	SlowThreshold time.Duration `json:"slow-threshold" mapstructure:"slow-threshold"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "data/bhasha.db",
		Host:                  "127.0.0.1",
		Port:                  0,
		Database:              "bhasha",
		SSLMode:               "disable",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Minute,
		LogLevel:              1, // Silent
		SlowThreshold:         200 * time.Millisecond,
	}
}

// Complete fills driver dependent defaults and reads the password from the
// environment when it was not configured.
func (o *Options) Complete() error {
	if o.Driver == "" {
		o.Driver = DriverSQLite
	}
	if o.Port == 0 {
		switch o.Driver {
		case DriverPostgres:
			o.Port = 5432
		case DriverMySQL:
			o.Port = 3306
		}
	}
	if o.Username == "" {
		switch o.Driver {
		case DriverPostgres:
			o.Username = "postgres"
		case DriverMySQL:
			o.Username = "root"
		}
	}
	if o.Password == "" {
		o.Password = os.Getenv(PasswordEnv)
	}
	return nil
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("db.path is required for the sqlite driver"))
		}
	case DriverPostgres, DriverMySQL:
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("db.host is required for the %s driver", o.Driver))
		}
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("db.database is required for the %s driver", o.Driver))
		}
		if o.Port < 0 || o.Port > 65535 {
			errs = append(errs, fmt.Errorf("db.port out of range: %d", o.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported db.driver %q (sqlite, postgres, mysql)", o.Driver))
	}

	if o.LogLevel < 1 || o.LogLevel > 4 {
		errs = append(errs, fmt.Errorf("db.log-level must be between 1 and 4, got %d", o.LogLevel))
	}
	if o.MaxOpenConnections > 0 && o.MaxIdleConnections > o.MaxOpenConnections {
		errs = append(errs, fmt.Errorf("db.max-idle-connections (%d) exceeds db.max-open-connections (%d)",
			o.MaxIdleConnections, o.MaxOpenConnections))
	}
	return errs
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "db."
	fs.StringVar(&o.Driver, p+"driver", o.Driver, "Database driver: sqlite, postgres or mysql.")
	fs.StringVar(&o.Path, p+"path", o.Path, "SQLite database file. Use :memory: for an in-memory database.")
	fs.StringVar(&o.Host, p+"host", o.Host, "Database host (postgres, mysql).")
	fs.IntVar(&o.Port, p+"port", o.Port, "Database port. Defaults to the driver's standard port.")
	fs.StringVar(&o.Username, p+"username", o.Username, "Database username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Database password (prefer "+PasswordEnv+").")
	fs.StringVar(&o.Database, p+"database", o.Database, "Database name.")
	fs.StringVar(&o.SSLMode, p+"ssl-mode", o.SSLMode, "PostgreSQL SSL mode.")
	fs.IntVar(&o.MaxIdleConnections, p+"max-idle-connections", o.MaxIdleConnections, "Maximum idle connections.")
	fs.IntVar(&o.MaxOpenConnections, p+"max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection lifetime.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level: 1 silent, 2 error, 3 warn, 4 info.")
	fs.DurationVar(&o.SlowThreshold, p+"slow-threshold", o.SlowThreshold, "Queries slower than this are logged as warnings.")
}
