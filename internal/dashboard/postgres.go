package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
)

// DBConfig holds the configuration for connecting to the analytics PostgreSQL database.
type DBConfig struct {
	Host     string `mapstructure:"db-host"`
	Port     int    `mapstructure:"db-port"`
	User     string `mapstructure:"db-user"`
	Password string `mapstructure:"db-password"`
	DBName   string `mapstructure:"db-name"`
	SSLMode  string `mapstructure:"db-sslmode"`
}

// URI is a helper method that returns a connection URI for PostgreSQL.
// It does not check the validity of the configuration values.
//
// Security warning: the returned string may include credentials.
func (c DBConfig) URI(scheme string) string {
	host := c.Host
	if c.Port != 0 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	user := url.User(c.User)
	if c.Password != "" {
		user = url.UserPassword(c.User, c.Password)
	}

	u := &url.URL{
		Scheme: scheme,
		User:   user,
		Host:   host,
		Path:   c.DBName,
	}

	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type dbPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// RecentLogsLimit is the number of log entries shown on the dashboard.
const RecentLogsLimit = 8

const queryTimeout = 10 * time.Second

// Postgres is a source reading the statistics tables maintained by the analytics pipeline.
type Postgres struct {
	dbpool dbPool
	limit  int
}

type pgOptions struct {
	newPool func(ctx context.Context, dsn string) (dbPool, error)
	limit   int
}

// PostgresOptions represents an optional function to override Postgres default values.
type PostgresOptions func(*pgOptions)

// WithLogsLimit overrides the number of recent log entries fetched.
func WithLogsLimit(n int) PostgresOptions {
	return func(o *pgOptions) {
		if n > 0 {
			o.limit = n
		}
	}
}

// NewPostgres connects to the analytics database.
// The connection is validated with a ping, but it is not maintained.
func NewPostgres(ctx context.Context, cfg DBConfig, args ...PostgresOptions) (*Postgres, error) {
	opts := pgOptions{
		newPool: func(ctx context.Context, dsn string) (dbPool, error) {
			return pgxpool.New(ctx, dsn)
		},
		limit: RecentLogsLimit,
	}
	for _, opt := range args {
		opt(&opts)
	}

	dbpool, err := opts.newPool(ctx, cfg.URI("postgres"))
	if err != nil {
		return nil, fmt.Errorf("unable to create database connection pool: %w", err)
	}

	slog.Debug("Testing database connection", "host", cfg.Host, "port", cfg.Port)
	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %v", err)
	}

	slog.Info("Successfully pinged PostgreSQL database", "host", cfg.Host, "port", cfg.Port)
	return &Postgres{dbpool: dbpool, limit: opts.limit}, nil
}

const statsQuery = `SELECT
	total_scanned, approved, flagged, rejected,
	avg_processing_time_ms, accuracy_pct,
	total_scanned_trend, total_scanned_up,
	approved_trend, approved_up,
	flagged_trend, flagged_up
FROM moderation_stats
ORDER BY updated_at DESC
LIMIT 1`

const logsQuery = `SELECT id, content_type, decision, toxicity, logged_at
FROM moderation_logs
ORDER BY logged_at DESC
LIMIT $1`

// Fetch reads the latest statistics and recent logs.
// An empty statistics table is served as zero counters.
func (p *Postgres) Fetch(ctx context.Context) (s Snapshot, err error) {
	defer decorate.OnError(&err, "could not fetch dashboard snapshot")

	if p.dbpool == nil {
		return Snapshot{}, fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	st := &s.Stats
	err = p.dbpool.QueryRow(ctx, statsQuery).Scan(
		&st.TotalScanned, &st.Approved, &st.Flagged, &st.Rejected,
		&st.AvgProcessingTimeMs, &st.AccuracyPct,
		&st.Trends.TotalScanned.Value, &st.Trends.TotalScanned.Up,
		&st.Trends.Approved.Value, &st.Trends.Approved.Up,
		&st.Trends.Flagged.Value, &st.Trends.Flagged.Up,
	)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("querying statistics: %v", err)
	}

	rows, err := p.dbpool.Query(ctx, logsQuery, p.limit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("querying recent logs: %v", err)
	}
	defer rows.Close()

	s.RecentLogs = []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var decision string
		if err := rows.Scan(&e.ID, &e.ContentType, &decision, &e.Toxicity, &e.At); err != nil {
			return Snapshot{}, fmt.Errorf("scanning recent log: %v", err)
		}
		e.Decision = moderation.Decision(decision)
		if !e.Decision.Valid() {
			slog.Warn("Skipping log entry with unknown decision", "id", e.ID, "decision", decision)
			continue
		}
		s.RecentLogs = append(s.RecentLogs, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("reading recent logs: %v", err)
	}

	return s, nil
}

// Close closes the database connection.
//
// If the connection is already closed, it does nothing.
// If the connection does not close within 10 seconds, it returns an error.
func (p *Postgres) Close() error {
	if p.dbpool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.dbpool.Close()
	}()

	select {
	case <-done:
		p.dbpool = nil
		return nil
	case <-time.After(queryTimeout):
		return fmt.Errorf("timeout while closing database, connection may still be open")
	}
}
