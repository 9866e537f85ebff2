// ammctl is the operator CLI. It opens the service's data directory
// directly, so the API must be stopped while it runs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/aman-zulfiqar/solana-amm-settlement/internal/app"
	"github.com/aman-zulfiqar/solana-amm-settlement/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "ammctl",
	Short:        "operate the AMM settlement store",
	SilenceUsage: true,
}

var (
	dataDir  string
	logLevel string
	withSink bool
	logger   = logrus.New()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory, overrides DATA_DIR")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(poolsCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(retryClaimsCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(checkSupplyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp builds the service offline and closes it after fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	_, filename, _, _ := runtime.Caller(0)
	_ = godotenv.Load(filepath.Join(filepath.Dir(filename), "../..", ".env"))

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(lvl)
	}

	cfg := config.Load()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger, app.Options{Offline: true, SkipArchiveSink: !withSink})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Error("failed to close store")
		}
	}()
	return fn(ctx, a)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
