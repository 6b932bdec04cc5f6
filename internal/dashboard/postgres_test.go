package dashboard_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/ubuntu-moderation/internal/dashboard"
	"github.com/ubuntu/ubuntu-moderation/internal/moderation"
	"github.com/ubuntu/ubuntu-moderation/internal/testutils"
)

type mockRow struct {
	values []any
	err    error
}

func (r mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type mockRows struct {
	pgx.Rows

	rows    [][]any
	i       int
	scanErr error
	err     error
}

func (r *mockRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assign(r.rows[r.i-1], dest)
}

func (r *mockRows) Err() error { return r.err }
func (r *mockRows) Close()     {}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values for %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *float64:
			*d = v.(float64)
		case *bool:
			*d = v.(bool)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type mockPool struct {
	row      mockRow
	rows     *mockRows
	pingErr  error
	queryErr error

	gotLimit any
}

func (p *mockPool) QueryRow(context.Context, string, ...any) pgx.Row { return p.row }
func (p *mockPool) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	if len(args) > 0 {
		p.gotLimit = args[0]
	}
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}
func (p *mockPool) Ping(context.Context) error { return p.pingErr }
func (p *mockPool) Close()                     {}

func withPool(p *mockPool, err error) dashboard.PostgresOptions {
	return dashboard.WithNewPool(func(context.Context, string) (dashboard.DBPool, error) {
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

var statsRow = []any{
	int64(12847), int64(11203), int64(1456), int64(188),
	42, 99.7,
	12.5, true,
	3.2, true,
	5.8, false,
}

func TestNewPostgres(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		poolErr error
		pingErr error

		wantErr bool
	}{
		"Connects": {},

		// Error cases
		"Pool creation error": {poolErr: errors.New("bad dsn"), wantErr: true},
		"Ping error":          {pingErr: errors.New("unreachable"), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := dashboard.NewPostgres(t.Context(), dashboard.DBConfig{Host: "localhost", Port: 5432},
				withPool(&mockPool{pingErr: tc.pingErr}, tc.poolErr))
			if tc.wantErr {
				require.Error(t, err, "NewPostgres should fail")
				return
			}
			require.NoError(t, err, "NewPostgres should succeed")
			require.NoError(t, p.Close(), "Close should succeed")
			require.NoError(t, p.Close(), "Closing twice is a no-op")
		})
	}
}

func TestPostgresFetch(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		row      mockRow
		rows     *mockRows
		queryErr error
		limit    int
		closed   bool

		wantTotal int64
		wantLogs  []string
		wantLimit int
		wantErr   bool
	}{
		"Reads stats and logs": {
			row: mockRow{values: statsRow},
			rows: &mockRows{rows: [][]any{
				{"MOD-1", "Text", "flagged", 0.72, at},
				{"MOD-2", "Image", "approved", 0.03, at.Add(-time.Minute)},
			}},
			wantTotal: 12847,
			wantLogs:  []string{"MOD-1", "MOD-2"},
			wantLimit: dashboard.RecentLogsLimit,
		},
		"Unknown decisions are skipped": {
			row: mockRow{values: statsRow},
			rows: &mockRows{rows: [][]any{
				{"MOD-1", "Text", "pending", 0.1, at},
				{"MOD-2", "Text", "rejected", 0.9, at},
			}},
			wantTotal: 12847,
			wantLogs:  []string{"MOD-2"},
			wantLimit: dashboard.RecentLogsLimit,
		},
		"Empty stats table serves zeros": {
			row:       mockRow{err: pgx.ErrNoRows},
			rows:      &mockRows{},
			wantLogs:  []string{},
			wantLimit: dashboard.RecentLogsLimit,
		},
		"Custom logs limit": {
			row:       mockRow{values: statsRow},
			rows:      &mockRows{},
			limit:     3,
			wantTotal: 12847,
			wantLogs:  []string{},
			wantLimit: 3,
		},

		// Error cases
		"Stats query error":  {row: mockRow{err: errors.New("boom")}, wantErr: true},
		"Logs query error":   {row: mockRow{values: statsRow}, queryErr: errors.New("boom"), wantErr: true},
		"Logs scan error":    {row: mockRow{values: statsRow}, rows: &mockRows{rows: [][]any{{}}, scanErr: errors.New("boom")}, wantErr: true},
		"Logs rows error":    {row: mockRow{values: statsRow}, rows: &mockRows{err: errors.New("boom")}, wantErr: true},
		"Closed source fail": {row: mockRow{values: statsRow}, closed: true, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pool := &mockPool{row: tc.row, rows: tc.rows, queryErr: tc.queryErr}
			opts := []dashboard.PostgresOptions{withPool(pool, nil)}
			if tc.limit > 0 {
				opts = append(opts, dashboard.WithLogsLimit(tc.limit))
			}
			p, err := dashboard.NewPostgres(t.Context(), dashboard.DBConfig{}, opts...)
			require.NoError(t, err, "Setup: NewPostgres should succeed")
			if tc.closed {
				require.NoError(t, p.Close(), "Setup: Close should succeed")
			}

			s, err := p.Fetch(t.Context())
			if tc.wantErr {
				require.Error(t, err, "Fetch should fail")
				return
			}
			require.NoError(t, err, "Fetch should succeed")

			assert.Equal(t, tc.wantTotal, s.Stats.TotalScanned, "Total scanned should match")
			ids := make([]string, 0, len(s.RecentLogs))
			for _, e := range s.RecentLogs {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tc.wantLogs, ids, "Recent logs should match")
			assert.Equal(t, tc.wantLimit, pool.gotLimit, "Logs limit should be passed to the query")
		})
	}
}

func TestDBConfigURI(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg dashboard.DBConfig

		want string
	}{
		"Full config": {
			cfg:  dashboard.DBConfig{Host: "db", Port: 5432, User: "u", Password: "p w", DBName: "moderation", SSLMode: "disable"},
			want: "postgres://u:p%20w@db:5432/moderation?sslmode=disable",
		},
		"No port nor password": {
			cfg:  dashboard.DBConfig{Host: "db", User: "u", DBName: "moderation"},
			want: "postgres://u@db/moderation",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, tc.cfg.URI("postgres"), "URI should match")
		})
	}
}

func TestPostgresFetchIntegration(t *testing.T) {
	t.Parallel()

	db := testutils.StartPostgresContainer(t)
	testutils.ApplyMigrations(t, db.DSN, testutils.MigrationsDir())

	conn, err := pgx.Connect(t.Context(), db.DSN)
	require.NoError(t, err, "Setup: failed to connect to database")
	defer conn.Close(context.Background())

	_, err = conn.Exec(t.Context(), `INSERT INTO moderation_stats
		(total_scanned, approved, flagged, rejected, avg_processing_time_ms, accuracy_pct,
		 total_scanned_trend, total_scanned_up, approved_trend, approved_up, flagged_trend, flagged_up)
		VALUES (12847, 11203, 1456, 188, 42, 99.7, 12.5, TRUE, 3.2, TRUE, 5.8, FALSE)`)
	require.NoError(t, err, "Setup: failed to insert stats")

	now := time.Now().UTC().Truncate(time.Second)
	for i := range 10 {
		_, err = conn.Exec(t.Context(),
			`INSERT INTO moderation_logs (id, content_type, decision, toxicity, logged_at) VALUES ($1, $2, $3, $4, $5)`,
			"MOD-"+strconv.Itoa(i), "Text", string(moderation.Flagged), 0.5, now.Add(-time.Duration(i)*time.Minute))
		require.NoError(t, err, "Setup: failed to insert log")
	}

	port, err := strconv.Atoi(db.Port)
	require.NoError(t, err, "Setup: invalid container port")
	p, err := dashboard.NewPostgres(t.Context(), dashboard.DBConfig{
		Host: db.Host, Port: port, User: db.User, Password: db.Password, DBName: db.Name, SSLMode: "disable",
	})
	require.NoError(t, err, "NewPostgres should connect to the container")
	defer p.Close()

	s, err := p.Fetch(t.Context())
	require.NoError(t, err, "Fetch should succeed")
	assert.Equal(t, dashboard.Reference().Stats, s.Stats, "Stats should match the inserted row")
	require.Len(t, s.RecentLogs, dashboard.RecentLogsLimit, "Only the most recent logs are fetched")
	assert.Equal(t, "MOD-0", s.RecentLogs[0].ID, "Most recent log comes first")
	assert.True(t, now.Equal(s.RecentLogs[0].At), "Timestamps should be read back")
}
