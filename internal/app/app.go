// Package app assembles the bot from configuration. It is shared by the
// server and the operator CLI so both run against the same stack.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/field-worklog-bot/internal/chat"
	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/internal/database"
	"github.com/field-worklog-bot/internal/dialog"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/internal/repository"
	"github.com/field-worklog-bot/internal/roles"
	"github.com/field-worklog-bot/internal/service"
	"github.com/field-worklog-bot/internal/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const syncLockKey = "worklog:sync:lock"

// App holds the wired components
type App struct {
	DB       *database.DB
	Redis    *redis.Client
	Repos    *repository.Repositories
	Services *service.Services
	Machine  *dialog.Machine
	Loop     *dialog.Loop

	log zerolog.Logger
}

// New connects to the database and builds every service. Migrations are not run here.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Bot.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", cfg.Bot.DefaultTimezone, err)
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a := &App{DB: db, Repos: repository.New(db), log: log}

	target, err := NewSink(ctx, cfg.Sheets, cfg.Sync, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		locker   service.Locker = service.NewLocalLocker()
		registry chat.Registry  = chat.NewMemoryRegistry()
	)
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = service.NewRedisLocker(redislock.New(a.Redis), syncLockKey, cfg.Sync.LockTTL, log)
		registry = chat.NewRedisRegistry(a.Redis, cfg.Bot.MessageEditLimit)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis for the sync lock and message handles")
	}

	static, err := roles.LoadStaticSource(cfg.Bot.RolesFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	resolver := roles.NewResolver(log,
		static,
		roles.NewTableSource(a.Repos.User),
		roles.NewRosterSource(a.Repos.User),
	)

	a.Services = service.NewServices(service.Deps{
		Repos:     a.Repos,
		Sink:      target,
		Locker:    locker,
		Resolver:  resolver,
		EditLimit: cfg.Bot.ReportEditWindow,
		Sync: service.SyncOptions{
			TitlePrefix:        cfg.Sheets.TitlePrefix,
			TabName:            cfg.Sheets.TabName,
			ParentFolderID:     cfg.Sheets.ParentFolderID,
			NextMonthThreshold: cfg.Sync.NextMonthThreshold,
			Location:           loc,
		},
		Interval: cfg.Sync.Interval,
	}, log)

	sender := chat.NewWebhookSender(cfg.Bot.GatewayURL, cfg.Bot.GatewayToken, cfg.Bot.GatewayTimeout)
	renderer := chat.NewRenderer(sender, registry, cfg.Bot.MessageEditLimit, log)
	a.Machine = dialog.NewMachine(dialog.Deps{
		Reference: a.Repos.Reference,
		Reports:   a.Services.Report,
		Users:     a.Services.User,
		Sync:      a.Services.Sync,
		Renderer:  renderer,
		Notifier:  dialog.NewChatNotifier(renderer, cfg.Bot.NotifyChatID, log),
		Location:  loc,
	}, log)
	a.Loop = dialog.NewLoop(a.Machine, cfg.Bot.EventBuffer, log)

	return a, nil
}

// NewSink builds the spreadsheet backend wrapped with rate limiting and retries
func NewSink(ctx context.Context, sheets config.SheetsConfig, sync config.SyncConfig, log zerolog.Logger) (sink.Sink, error) {
	var (
		backend sink.Sink
		err     error
	)
	switch sheets.Backend {
	case "google":
		backend, err = sink.NewGoogleSheets(ctx, sheets.CredentialsFile)
	case "xlsx":
		backend, err = sink.NewXLSXDir(sheets.XLSXDir)
	default:
		return nil, fmt.Errorf("unknown sheets backend %q", sheets.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sink: %w", sheets.Backend, err)
	}
	log.Info().Str("backend", sheets.Backend).Msg("Spreadsheet sink ready")

	policy := sink.Policy{
		Attempts:  sync.RetryAttempts,
		BaseDelay: sync.RetryBaseDelay,
		MaxDelay:  sync.RetryMaxDelay,
		OnRetry: func(op string, category sink.Category) {
			obs.SinkRetry(op, category.String())
		},
	}
	// retries sit outside the limiter so every attempt waits for a token
	return sink.WithRetry(sink.WithRateLimit(backend, sheets.WritesPerMinute), policy, log), nil
}

// Close releases the connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
