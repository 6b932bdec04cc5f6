// Package daemon provides the moderation web service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/ubuntu-moderation/internal/analysis"
	"github.com/ubuntu/ubuntu-moderation/internal/cli"
	"github.com/ubuntu/ubuntu-moderation/internal/constants"
	"github.com/ubuntu/ubuntu-moderation/internal/dashboard"
	"github.com/ubuntu/ubuntu-moderation/internal/handoff"
	"github.com/ubuntu/ubuntu-moderation/internal/webservice"
)

// Analysis backends.
const (
	BackendMock   = "mock"
	BackendRemote = "remote"
)

// Dashboard sources.
const (
	SourceStatic   = "static"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server
	// snapshot is the dashboard file to reload on demand, if that source is configured.
	snapshot *dashboard.File

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
// Keys match the flag names, so that flags, configuration files and environment variables share them.
type appConfig struct {
	Verbosity int  `mapstructure:"verbose"`
	JSONLogs  bool `mapstructure:"json-logs"`

	Daemon    webservice.StaticConfig `mapstructure:",squash"`
	Analysis  analysisConfig          `mapstructure:",squash"`
	Dashboard dashboardConfig         `mapstructure:",squash"`

	HandoffTTL    time.Duration `mapstructure:"handoff-ttl"`
	MigrationsDir string        `mapstructure:"-"`
}

type analysisConfig struct {
	Backend   string        `mapstructure:"analysis-backend"`
	Latency   time.Duration `mapstructure:"analysis-latency"`
	Timeout   time.Duration `mapstructure:"analysis-timeout"`
	RemoteURL string        `mapstructure:"analysis-url"`
}

type dashboardConfig struct {
	Source    string             `mapstructure:"dashboard-source"`
	File      string             `mapstructure:"dashboard-file"`
	LogsLimit int                `mapstructure:"dashboard-logs"`
	DB        dashboard.DBConfig `mapstructure:",squash"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName,
		Short:         "Content moderation demo web service",
		Long:          "Content moderation demo web service: submit text and images, read their moderation verdict and follow the moderation dashboard.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
			))); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Info("got app config", "config", a.config.redacted())

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installVersion()
	installMigrateCmd(&a)

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := appConfig{
		Daemon: webservice.StaticConfig{
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   10 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxHeaderBytes: 1 << 13, // 8 KB
			MaxUploadBytes: constants.DefaultMaxUploadBytes,

			ListenPort:  8080,
			MetricsPort: 2112,

			RateLimit: 1,
			RateBurst: 5,
		},
		Analysis: analysisConfig{
			Backend: BackendMock,
			Latency: analysis.DefaultLatency,
			Timeout: 5 * time.Second,
		},
		Dashboard: dashboardConfig{
			Source:    SourceStatic,
			LogsLimit: dashboard.RecentLogsLimit,
			DB: dashboard.DBConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "moderation",
				SSLMode: "disable",
			},
		},
		HandoffTTL: handoff.DefaultTTL,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "write logs as JSON")

	// Daemon flags
	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.Daemon.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.Daemon.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.RequestTimeout, "request-timeout", defaultConf.Daemon.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.Daemon.MaxHeaderBytes, "maximum header bytes for HTTP server")
	cmd.Flags().Int64Var(&app.config.Daemon.MaxUploadBytes, "max-upload-bytes", defaultConf.Daemon.MaxUploadBytes, "maximum size of a submission")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.Daemon.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.Daemon.ListenPort, "port to listen on")

	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.Daemon.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.Daemon.MetricsPort, "port for the metrics endpoint")

	cmd.Flags().Float64Var(&app.config.Daemon.RateLimit, "rate-limit", defaultConf.Daemon.RateLimit, "submissions per second allowed per client, 0 to disable")
	cmd.Flags().IntVar(&app.config.Daemon.RateBurst, "rate-burst", defaultConf.Daemon.RateBurst, "burst of submissions allowed per client")

	// Analysis flags
	cmd.Flags().StringVar(&app.config.Analysis.Backend, "analysis-backend", defaultConf.Analysis.Backend, "analysis backend, one of mock or remote")
	cmd.Flags().DurationVar(&app.config.Analysis.Latency, "analysis-latency", defaultConf.Analysis.Latency, "simulated latency of the mock analysis")
	cmd.Flags().DurationVar(&app.config.Analysis.Timeout, "analysis-timeout", defaultConf.Analysis.Timeout, "maximum duration of an analysis, 0 to wait forever")
	cmd.Flags().StringVar(&app.config.Analysis.RemoteURL, "analysis-url", defaultConf.Analysis.RemoteURL, "base URL of the remote analysis service")

	cmd.Flags().DurationVar(&app.config.HandoffTTL, "handoff-ttl", defaultConf.HandoffTTL, "how long a result stays available before being shown")

	// Dashboard flags
	cmd.Flags().StringVar(&app.config.Dashboard.Source, "dashboard-source", defaultConf.Dashboard.Source, "dashboard source, one of static, file or postgres")
	cmd.Flags().StringVar(&app.config.Dashboard.File, "dashboard-file", defaultConf.Dashboard.File, "snapshot file read by the file dashboard source")
	cmd.Flags().IntVar(&app.config.Dashboard.LogsLimit, "dashboard-logs", defaultConf.Dashboard.LogsLimit, "number of recent logs read by the postgres dashboard source")

	// Database flags, shared with the migrate command.
	cmd.PersistentFlags().StringVar(&app.config.Dashboard.DB.Host, "db-host", defaultConf.Dashboard.DB.Host, "database host")
	cmd.PersistentFlags().IntVar(&app.config.Dashboard.DB.Port, "db-port", defaultConf.Dashboard.DB.Port, "database port")
	cmd.PersistentFlags().StringVar(&app.config.Dashboard.DB.User, "db-user", defaultConf.Dashboard.DB.User, "database user")
	cmd.PersistentFlags().StringVar(&app.config.Dashboard.DB.Password, "db-password", defaultConf.Dashboard.DB.Password, "database password")
	cmd.PersistentFlags().StringVar(&app.config.Dashboard.DB.DBName, "db-name", defaultConf.Dashboard.DB.DBName, "database name")
	cmd.PersistentFlags().StringVar(&app.config.Dashboard.DB.SSLMode, "db-sslmode", defaultConf.Dashboard.DB.SSLMode, "database SSL mode")

	err := cmd.MarkFlagFilename("dashboard-file", "yaml", "yml", "json", "toml")
	if err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark dashboard-file flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	defer a.markReady()
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a *App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Reload re-reads the dashboard snapshot file. Other dashboard sources have nothing to reload.
// On failure the previous snapshot is still served.
func (a *App) Reload() error {
	a.WaitReady()
	if a.snapshot == nil {
		slog.Info("Nothing to reload", "dashboard_source", a.config.Dashboard.Source)
		return nil
	}
	if err := a.snapshot.Load(); err != nil {
		return fmt.Errorf("could not reload dashboard snapshot: %v", err)
	}
	slog.Info("Dashboard snapshot reloaded", "file", a.config.Dashboard.File)
	return nil
}

// Quit shuts down the daemon. Unless force is set, in-flight requests are allowed to complete.
func (a *App) Quit(force bool) {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(force)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a *App) RootCmd() *cobra.Command {
	return a.cmd
}

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *App) run() (err error) {
	defer a.markReady()

	client, err := a.analysisClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	source, closeSource, err := a.dashboardSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	a.daemon, err = webservice.New(ctx, source, client, a.config.Daemon, webservice.WithHandoff(handoff.New(a.config.HandoffTTL)))
	a.markReady()
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}

func (a *App) analysisClient() (analysis.Client, error) {
	cfg := a.config.Analysis
	switch cfg.Backend {
	case BackendMock:
		return analysis.WithTimeout(analysis.NewMock(analysis.WithLatency(cfg.Latency)), cfg.Timeout), nil
	case BackendRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("the %s analysis backend requires --analysis-url", BackendRemote)
		}
		return analysis.NewRemote(cfg.RemoteURL, cfg.Timeout), nil
	}
	return nil, fmt.Errorf("unknown analysis backend %q", cfg.Backend)
}

// dashboardSource returns the configured source and a function releasing it.
func (a *App) dashboardSource(ctx context.Context) (dashboard.Source, func(), error) {
	cfg := a.config.Dashboard
	switch cfg.Source {
	case SourceStatic:
		return dashboard.NewStatic(), func() {}, nil
	case SourceFile:
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("the %s dashboard source requires --dashboard-file", SourceFile)
		}
		a.snapshot = dashboard.NewFile(cfg.File)
		return a.snapshot, func() {}, nil
	case SourcePostgres:
		p, err := dashboard.NewPostgres(ctx, cfg.DB, dashboard.WithLogsLimit(cfg.LogsLimit))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to dashboard database: %v", err)
		}
		return p, func() {
			if err := p.Close(); err != nil {
				slog.Warn("Failed to close dashboard database", "err", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown dashboard source %q", cfg.Source)
}

// redacted returns a copy of the configuration safe to log.
func (c appConfig) redacted() appConfig {
	if c.Dashboard.DB.Password != "" {
		c.Dashboard.DB.Password = "****"
	}
	return c
}
