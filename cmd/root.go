package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/logging"
	"github.com/andresmejia3/reframe/internal/store"
)

var (
	// DB is the run store shared by subcommands. It is opened on demand by
	// openStore so commands that never touch it work without a database.
	DB store.Store

	// cfg is the loaded configuration with persistent flags applied.
	cfg *config.Config
	// cfgPath is where the configuration was looked up, cfgFound whether
	// the file existed.
	cfgPath  string
	cfgFound bool

	logger *slog.Logger

	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

// Version is the application version.
const Version = "0.1.0"

// skipConfig marks commands that must work even with a broken config file.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Use:     "reframe",
	Short:   "Adaptive vertical reframing of landscape talking-head video",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			c := config.Default()
			cfg = &c
			logger = logging.Discard()
			return nil
		}

		var err error
		cfg, cfgPath, cfgFound, err = config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyPersistentFlags(cmd, cfg)

		if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
			return err
		}
		logger, err = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			return err
		}
		logger.Debug("config loaded", "path", cfgPath, "found", cfgFound)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to release the connection.
			DB.Close(context.Background())
		}
	},
}

// applyPersistentFlags layers the root flags the user set over cfg.
func applyPersistentFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Store.DSN = dbURL
		cfg.Store.Enabled = true
	} else if dsn := postgresFromEnv(); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
}

// postgresFromEnv builds a connection string from the usual POSTGRES_*
// variables, or returns "" when POSTGRES_HOST is unset.
func postgresFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// openStore connects to the configured store on first use.
func openStore(ctx context.Context) (store.Store, error) {
	if DB != nil {
		return DB, nil
	}
	s, err := store.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return DB, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: $"+config.EnvPath+" or ~/.config/reframe/config.toml)")
	pf.StringVar(&dbURL, "db", "", "Run store: PostgreSQL connection string or SQLite file path")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: json, console, auto")
}
