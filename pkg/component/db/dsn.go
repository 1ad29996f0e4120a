package db

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mysqlcfg "github.com/go-sql-driver/mysql"

	dbopts "github.com/kart-io/bhasha/pkg/options/db"
)

// BuildPostgresDSN creates a key=value PostgreSQL DSN. The password is quoted
// when it contains spaces, quotes or backslashes.
//
//	host=localhost port=5432 user=postgres password=secret dbname=bhasha sslmode=disable
func BuildPostgresDSN(opts *dbopts.Options) string {
	if opts == nil {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		opts.Username,
		escapePostgresValue(opts.Password),
		opts.Database,
		opts.SSLMode,
	)
}

func escapePostgresValue(value string) string {
	if value == "" {
		return "''"
	}
	if !strings.ContainsAny(value, " '\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")
	return "'" + escaped + "'"
}

// BuildMySQLDSN creates a go-sql-driver DSN with utf8mb4 and parsed times.
// Bengali text needs utf8mb4.
func BuildMySQLDSN(opts *dbopts.Options) string {
	if opts == nil {
		return ""
	}
	cfg := mysqlcfg.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// BuildSQLiteDSN returns the sqlite path with a busy timeout so concurrent
// writers wait instead of failing with "database is locked".
func BuildSQLiteDSN(opts *dbopts.Options) string {
	if opts == nil {
		return ""
	}
	if IsMemory(opts.Path) {
		return opts.Path
	}
	return opts.Path + "?_pragma=busy_timeout(5000)"
}

// IsMemory reports whether path names an in-memory sqlite database.
func IsMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
