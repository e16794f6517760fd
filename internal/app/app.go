package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"capowatch/internal/aggregator"
	"capowatch/internal/alerting"
	"capowatch/internal/chain"
	"capowatch/internal/collector"
	"capowatch/internal/config"
	"capowatch/internal/discovery"
	"capowatch/internal/server"
	"capowatch/internal/service"
	"capowatch/internal/source"
	"capowatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// backend is the persistence selected for a command: PostgreSQL when a DSN
// is configured, otherwise an in-memory store.
type backend struct {
	repo   storage.Repository
	store  *storage.Store
	locker storage.AdvisoryLocker
	pinger server.Pinger
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

func (a *App) openBackend(ctx context.Context) (*backend, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory storage")
		return &backend{repo: storage.NewMemory()}, func() {}, nil
	}

	if a.Config.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			closeStore()
			return nil, nil, err
		}
	}
	return &backend{repo: store, store: store, locker: store, pinger: store}, closeStore, nil
}

func (a *App) newChainPool() *chain.Pool {
	networks := make([]chain.Network, 0, len(a.Config.Networks))
	for _, n := range a.Config.Networks {
		networks = append(networks, chain.Network{Name: n.Name, ChainID: n.ChainID, RPCURL: n.RPCURL})
	}
	c := a.Config.Chain
	return chain.NewPool(chain.PoolOptions{
		Networks:         networks,
		RequestTimeout:   c.RequestTimeout,
		RateLimit:        c.RateLimit,
		RateBurst:        c.RateBurst,
		BreakerFailures:  c.BreakerFailures,
		BreakerOpenDelay: c.BreakerOpenDelay,
	}, a.Logger)
}

func (a *App) newNotifiers() []alerting.Notifier {
	var notifiers []alerting.Notifier
	if cfg := a.Config.Alerting.Telegram; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
	}
	if cfg := a.Config.Alerting.Mail; cfg.Enabled {
		notifiers = append(notifiers, alerting.NewMailNotifier(alerting.MailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			To:       cfg.To,
			Timeout:  cfg.Timeout,
		}, a.Logger))
	}
	return notifiers
}

func (a *App) newAlertService(ctx context.Context, store storage.AlertStore) (*alerting.Service, func(), error) {
	var (
		cache   alerting.CooldownCache
		closeFn = func() {}
	)
	if url := a.Config.Alerting.RedisURL; url != "" {
		rc, err := alerting.NewRedisCooldown(ctx, url, a.Config.Alerting.RedisPassword)
		if err != nil {
			return nil, nil, err
		}
		cache = rc
		closeFn = func() { _ = rc.Close() }
	}

	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		a.Logger.Warn().Msg("no alert transport enabled; alerts are only persisted")
	}
	svc := alerting.NewService(store, notifiers, cache, alerting.Options{Cooldown: a.Config.Alerting.Cooldown}, a.Logger)
	return svc, closeFn, nil
}

func (a *App) newDiscovery(reader chain.Reader, store storage.OracleStore) (*discovery.Service, error) {
	registry, err := source.NewStatic(a.Config)
	if err != nil {
		return nil, err
	}
	return discovery.New(reader, registry, store, discovery.Options{
		Algorithms:       a.Config.Discovery.Algorithms,
		ProbeConcurrency: a.Config.Discovery.ProbeConcurrency,
	}, a.Logger), nil
}

func (a *App) newCollector(reader chain.Reader, repo storage.Repository, alerts collector.AlertRaiser) *collector.Collector {
	c := a.Config.Collector
	return collector.New(reader, repo, repo, alerts, collector.Options{
		RapidGrowthUtilization: c.RapidGrowthUtilization,
		SlowGrowthUtilization:  c.SlowGrowthUtilization,
		PriceSpikePct:          c.PriceSpikePct,
		PriceSpikeWindow:       c.PriceSpikeWindow,
	}, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, closeBackend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}
	defer closeBackend()

	pool := a.newChainPool()
	defer pool.Close()

	alerts, closeAlerts, err := a.newAlertService(ctx, be.repo)
	if err != nil {
		return err
	}
	defer closeAlerts()

	disc, err := a.newDiscovery(pool, be.repo)
	if err != nil {
		return err
	}
	coll := a.newCollector(pool, be.repo, alerts)
	agg := aggregator.New(be.repo, be.repo, be.repo, a.Logger)

	svc := service.New(a.Config, disc, coll, agg, be.locker, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	if a.Config.Metrics.Enabled {
		g.Go(func() error {
			return server.Serve(gctx, a.Config.Metrics.Listen, server.Router(be.pinger), a.Logger)
		})
	}
	g.Go(func() error {
		return svc.Run(gctx)
	})

	a.Logger.Info().Int("networks", len(a.Config.Networks)).Int("sources", len(a.Config.Sources)).Msg("starting monitoring service")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Migrate applies the database schema.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("schema migrated")
	return nil
}

// ExportOptions hold parameters for exporting an oracle's snapshots.
type ExportOptions struct {
	Oracle    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Oracle string
	Limit  int
}

// AggregateOptions configure a manual aggregation run over [From, To).
type AggregateOptions struct {
	From time.Time
	To   time.Time
}

// AggregationsOptions filter the aggregations listing.
type AggregationsOptions struct {
	Oracle string
	Asset  string
}

// SimulateOptions choose the synthetic condition to raise.
type SimulateOptions struct {
	Scenario string
}

func (o AggregateOptions) validate() error {
	if !o.From.Before(o.To) {
		return fmt.Errorf("--from must be before --to")
	}
	return nil
}
