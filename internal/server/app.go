package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/oss-hunter/internal/auth"
	"github.com/sakif/oss-hunter/internal/config"
	"github.com/sakif/oss-hunter/internal/github"
	"github.com/sakif/oss-hunter/internal/handler"
	"github.com/sakif/oss-hunter/internal/notifier"
	"github.com/sakif/oss-hunter/internal/notifier/resend"
	"github.com/sakif/oss-hunter/internal/notifier/webpush"
	"github.com/sakif/oss-hunter/internal/realtime"
	sqliteRepo "github.com/sakif/oss-hunter/internal/repository/sqlite"
	"github.com/sakif/oss-hunter/internal/scheduler"
	"github.com/sakif/oss-hunter/internal/service"
)

// App is the composition root: every long-lived dependency, built once from
// Config. The HTTP server and the sweep commands share it.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB     *sqliteRepo.DB
	Tokens *auth.TokenStore
	Hub    *realtime.Hub

	Dispatcher    *service.Dispatcher
	AutoFix       *service.AutoFixService
	Discovery     *service.DiscoveryService
	Reconciler    *service.Reconciler
	Watches       *service.WatchService
	Issues        *service.IssueService
	Notifications *service.NotificationService
	Settings      *service.SettingsService
}

// NewApp opens the database and wires the services. Close releases what it
// opened.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var vault *auth.Vault
	if cfg.TokenKey != "" {
		if vault, err = auth.NewVault(cfg.TokenKey); err != nil {
			db.Close()
			return nil, err
		}
	}
	tokens := auth.NewTokenStore(db.Users(), vault)

	mailer, err := newMailer(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	ghOpts := []github.Option{
		github.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.GitHub.RateLimit), cfg.GitHub.RateBurst)),
		github.WithAgentLogin(cfg.GitHub.AgentLogin),
		github.WithForkSettleDelay(cfg.GitHub.ForkSettleDelay),
	}
	if cfg.GitHub.APIURL != "" {
		ghOpts = append(ghOpts, github.WithBaseURL(cfg.GitHub.APIURL))
	}
	gateways := service.NewGatewayProvider(github.NewProvider(tokens, ghOpts...))

	hub := realtime.NewHub(cfg.BaseURL, logger)
	dispatcher := service.NewDispatcher(db.Users(), db.Notifications(), db.Preferences(),
		mailer, newPusher(cfg), hub, cfg.BaseURL, logger)

	autofix := service.NewAutoFixService(db.Issues(), db.Repos(), gateways, dispatcher, logger,
		service.WithGenerationTimeout(cfg.GenerationTimeout))

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Tokens:        tokens,
		Hub:           hub,
		Dispatcher:    dispatcher,
		AutoFix:       autofix,
		Discovery:     service.NewDiscoveryService(db.Repos(), db.Issues(), gateways, dispatcher, autofix, logger),
		Reconciler:    service.NewReconciler(db.Issues(), db.Repos(), gateways, dispatcher, logger),
		Watches:       service.NewWatchService(db.Repos(), gateways, logger),
		Issues:        service.NewIssueService(db.Issues(), autofix, logger),
		Notifications: service.NewNotificationService(db.Notifications()),
		Settings:      service.NewSettingsService(db.Preferences()),
	}, nil
}

func newMailer(cfg *config.Config) (notifier.Mailer, error) {
	if !cfg.EmailEnabled() {
		return notifier.NoopMailer{}, nil
	}
	m, err := resend.New(cfg.Email.ResendAPIKey, cfg.Email.From)
	if err != nil {
		return nil, fmt.Errorf("creating mailer: %w", err)
	}
	return m, nil
}

func newPusher(cfg *config.Config) notifier.Pusher {
	if !cfg.PushEnabled() {
		return notifier.NoopPusher{}
	}
	return webpush.New(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subject,
		&http.Client{Timeout: 10 * time.Second})
}

// Sweeps returns the periodic jobs as plain functions.
func (a *App) Sweeps() handler.Sweeps {
	return handler.Sweeps{
		Discover:    a.Discovery.PollAll,
		AgentStatus: a.AutoFix.PollGenerating,
		Closures:    a.Reconciler.Sweep,
	}
}

// Scheduler builds the in-process scheduler for the configured intervals.
func (a *App) Scheduler() *scheduler.Scheduler {
	sw := a.Sweeps()
	sc := a.Config.Scheduler
	return scheduler.New(a.Logger,
		job(a.Logger, "discover", sc.DiscoveryInterval, sw.Discover),
		job(a.Logger, "agent-status", sc.AgentStatusInterval, sw.AgentStatus),
		job(a.Logger, "closures", sc.ClosureInterval, sw.Closures),
	)
}

func job[T any](logger *slog.Logger, name string, every time.Duration, sweep func(context.Context) (T, error)) scheduler.Job {
	return scheduler.Job{
		Name:     name,
		Interval: every,
		Run: func(ctx context.Context) error {
			res, err := sweep(ctx)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", slog.String("job", name), slog.Any("result", res))
			return nil
		},
	}
}

// Close shuts the live feed and the database.
func (a *App) Close() error {
	a.Hub.Close()
	return a.DB.Close()
}
