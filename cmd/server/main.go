// Command server runs Open Source Hunter.
//
//	hunter serve                   → HTTP server, plus the in-process scheduler
//	hunter sweep discover          → one discovery pass over every watched repo
//	hunter sweep agent-status      → one pass over issues the agent is working on
//	hunter sweep closures          → one pass archiving issues closed upstream
//	hunter keys                    → a fresh VAPID key pair for web push
//
// Sweeps print their result as JSON, so a system cron can run them when the
// in-process scheduler is disabled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/oss-hunter/internal/config"
	"github.com/sakif/oss-hunter/internal/notifier/webpush"
	"github.com/sakif/oss-hunter/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "hunter",
		Short:         "Track beginner-friendly GitHub issues and hand them to the coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env vars override it)")

	root.AddCommand(newServeCmd(&configPath), newSweepCmd(&configPath), newKeysCmd())
	return root
}

// setup loads config and opens the App. Every command goes through it.
func setup(configPath string) (*server.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	app, err := server.NewApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return nil, err
	}
	return app, nil
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			srv, err := server.New(app)
			if err != nil {
				app.Logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			if err := srv.Start(cmd.Context()); err != nil {
				app.Logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}

func newSweepCmd(configPath *string) *cobra.Command {
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run one periodic job and exit",
	}

	run := func(pick func(*server.App) func(context.Context) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			app, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := pick(app)(ctx)
			if err != nil {
				app.Logger.Error("sweep failed", slog.String("sweep", cmd.Name()), slog.String("error", err.Error()))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
	}

	sweep.AddCommand(
		&cobra.Command{
			Use:   "discover",
			Short: "Poll every watched repository for new matching issues",
			Args:  cobra.NoArgs,
			RunE: run(func(a *server.App) func(context.Context) (any, error) {
				return erase(a.Discovery.PollAll)
			}),
		},
		&cobra.Command{
			Use:   "agent-status",
			Short: "Check issues the coding agent is working on for a draft PR",
			Args:  cobra.NoArgs,
			RunE: run(func(a *server.App) func(context.Context) (any, error) {
				return erase(a.AutoFix.PollGenerating)
			}),
		},
		&cobra.Command{
			Use:   "closures",
			Short: "Archive tracked issues that were closed upstream",
			Args:  cobra.NoArgs,
			RunE: run(func(a *server.App) func(context.Context) (any, error) {
				return erase(a.Reconciler.Sweep)
			}),
		},
	)
	return sweep
}

// newKeysCmd prints a VAPID key pair in the env format config.Load reads.
func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := webpush.GenerateKeys()
			if err != nil {
				return fmt.Errorf("generating VAPID keys: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	}
}

func erase[T any](f func(context.Context) (T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return f(ctx)
	}
}
