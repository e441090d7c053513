// Command shopctl is a command line storefront client. It keeps a guest cart
// and session on disk and syncs the cart with the server once logged in.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopswift/storefront/client/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type globals struct {
	configPath string
	apiURL     string
	logLevel   string
	jsonOut    bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "shopctl",
		Short:         "Storefront command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfigPath(), "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.apiURL, "api-url", "", "Storefront API base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print JSON output")

	cmd.AddCommand(authCommands(g)...)
	cmd.AddCommand(
		productsCmd(g),
		cartCmd(g),
		ordersCmd(g),
	)
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// withApp builds the client, runs fn and closes the client, which pushes any
// unsynced cart state before the process exits.
func (g *globals) withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	if g.apiURL != "" {
		cfg.APIURL = g.apiURL
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	debounce, _ := cfg.debounce()
	timeout, _ := cfg.timeout()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(app.Config{
		BaseURL:  cfg.APIURL,
		StateDir: cfg.StateDir,
		Debounce: debounce,
		Timeout:  timeout,
		Logger:   logger,
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "Session expired. Run `shopctl login` to sign in again.")
		},
	})
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		logger.Warn("Cart not synced before exit", zap.Error(err))
	}
	return runErr
}
