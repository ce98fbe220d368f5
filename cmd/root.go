package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spencerau/NeRF-to-3DPrint/internal/config"
	"github.com/spencerau/NeRF-to-3DPrint/internal/logging"
	"github.com/spencerau/NeRF-to-3DPrint/internal/store"
)

var (
	// DB is the catalog connection shared by subcommands. It stays nil unless a catalog is configured.
	DB *store.Store
	// Logger is the process-wide logger, set up before any subcommand runs.
	Logger = logging.NewNop()

	dbURL string
	debug bool
)

// errNoCatalog is returned by commands that need the catalog when none is configured.
var errNoCatalog = errors.New("no catalog configured: pass --db or set POSTGRES_HOST")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "nerfprep",
	Short:   "Dataset preparation for NeRF pipelines",
	Long:    "Render turntable datasets of 3D models, preprocess photographs and fix up transform manifests.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New("nerfprep", debug)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		Logger = logger

		// Real environment variables take precedence over .env values
		if err := config.LoadDotEnv(config.DefaultDotEnvFile); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Background: the command context may already be cancelled by Ctrl+C
			DB.Close(context.Background())
			DB = nil
		}
		Logger.Sync()
	},
}

// catalogURL resolves the catalog connection string: --db first, then POSTGRES_* variables.
// An empty result means the catalog is disabled.
func catalogURL(flag string, lookup config.LookupFunc) string {
	if flag != "" {
		return flag
	}
	host, ok := lookup("POSTGRES_HOST")
	if !ok || host == "" {
		return ""
	}
	env := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		env("POSTGRES_USER", ""),
		env("POSTGRES_PASSWORD", ""),
		host,
		env("POSTGRES_PORT", "5432"),
		env("POSTGRES_DB", "nerfprep"),
	)
}

// openCatalog connects DB if a catalog is configured. It returns false when none is.
func openCatalog(ctx context.Context) (bool, error) {
	if DB != nil {
		return true, nil
	}
	url := catalogURL(dbURL, os.LookupEnv)
	if url == "" {
		return false, nil
	}
	s, err := store.New(ctx, url)
	if err != nil {
		return false, fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = s
	return true, nil
}

// finishCatalogRun closes runID with the items recorded so far. It is also called on the
// failure paths so an aborted run does not stay open in the catalog.
func finishCatalogRun(ctx context.Context, runID string) {
	if DB == nil || runID == "" {
		return
	}
	// The command context is already cancelled after Ctrl+C
	n, err := DB.FinishRun(context.WithoutCancel(ctx), runID)
	if err != nil {
		Logger.Warnw("failed to close catalog run", "run", runID, "error", err)
		return
	}
	Logger.Debugw("closed catalog run", "run", runID, "items", n)
}

// Execute runs the root command with a context cancelled by SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		Logger.Errorw("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the dataset catalog (default: from POSTGRES_* or disabled)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
