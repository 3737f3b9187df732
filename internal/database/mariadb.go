package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kebairia/dbsnap/internal/config"
	"github.com/kebairia/dbsnap/internal/logger"
)

const EngineMariaDB = "mariadb"

// MariaDBOption lets you override default settings on a MariaDB.
type MariaDBOption func(*MariaDB)

// MariaDB is a pooled connection to a MariaDB (or MySQL) server.
type MariaDB struct {
	Username        string
	Password        string
	Database        string
	Host            string
	Port            string
	ConnectionLimit int
	Timeout         time.Duration
	Logger          logger.Logger

	db *sql.DB
}

var _ Querier = (*MariaDB)(nil)

// NewMariaDB returns a MariaDB configured from cfg plus any overrides. It does
// not connect; call Open.
func NewMariaDB(cfg config.DatabaseConfig, opts ...MariaDBOption) *MariaDB {
	m := &MariaDB{
		Username:        cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Name,
		Host:            cfg.Host,
		Port:            cfg.Port,
		ConnectionLimit: cfg.ConnectionLimit,
		Timeout:         cfg.QueryTimeout,
		Logger:          logger.Global(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMariaDBFromDB wraps an already opened *sql.DB.
func NewMariaDBFromDB(db *sql.DB, opts ...MariaDBOption) *MariaDB {
	m := &MariaDB{db: db, Logger: logger.Global()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithMariaDBCredentials sets username and password.
func WithMariaDBCredentials(user, pass string) MariaDBOption {
	return func(m *MariaDB) {
		if user != "" {
			m.Username = user
		}
		if pass != "" {
			m.Password = pass
		}
	}
}

// WithMariaDBTimeout overrides the per-query timeout.
func WithMariaDBTimeout(timeout time.Duration) MariaDBOption {
	return func(m *MariaDB) {
		if timeout > 0 {
			m.Timeout = timeout
		}
	}
}

// WithMariaDBLogger overrides the logger.
func WithMariaDBLogger(log logger.Logger) MariaDBOption {
	return func(m *MariaDB) {
		if log != nil {
			m.Logger = log
		}
	}
}

// DSN builds the driver connection string.
func (m *MariaDB) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = m.Username
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(m.Host, m.Port)
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Open creates the connection pool and verifies it with a ping.
func (m *MariaDB) Open(ctx context.Context) error {
	db, err := sql.Open("mysql", m.DSN())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	if m.ConnectionLimit > 0 {
		db.SetMaxOpenConns(m.ConnectionLimit)
		db.SetMaxIdleConns(m.ConnectionLimit)
	}

	pingCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrConnect, net.JoinHostPort(m.Host, m.Port), err)
	}
	m.db = db

	m.Logger.Info("database connection established",
		"engine", EngineMariaDB,
		"host", m.Host,
		"database", m.Database,
		"connection_limit", m.ConnectionLimit,
	)
	return nil
}

// Close releases the pool.
func (m *MariaDB) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Query runs query and buffers the whole result. Values are the driver's own
// representation: nil, int64, uint64, float64, []byte or time.Time.
func (m *MariaDB) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	if m.db == nil {
		return nil, fmt.Errorf("%w: pool not initialized", ErrQueryFailed)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, m.queryError(ctx, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: column types: %v", ErrQueryFailed, err)
	}
	rs := &ResultSet{Columns: make([]Column, len(types))}
	for i, ct := range types {
		rs.Columns[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(types))
		dest := make([]any, len(types))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrQueryFailed, err)
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, m.queryError(ctx, err)
	}
	return rs, nil
}

func (m *MariaDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, m.Timeout, ErrTimeout)
}

func (m *MariaDB) queryError(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause == ErrTimeout {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrQueryFailed, err)
}
