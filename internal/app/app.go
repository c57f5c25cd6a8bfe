package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crypto-alerts/internal/alert"
	"crypto-alerts/internal/alerting"
	"crypto-alerts/internal/bot"
	"crypto-alerts/internal/config"
	"crypto-alerts/internal/fetcher"
	"crypto-alerts/internal/metrics"
	"crypto-alerts/internal/scheduler"
	"crypto-alerts/internal/service"
	"crypto-alerts/internal/storage"
	"crypto-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Out     io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		Metrics: metrics.New(),
		Out:     os.Stdout,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

// withStore opens the store for the duration of fn.
func (a *App) withStore(ctx context.Context, fn func(*storage.Store) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (a *App) newPriceSource() (fetcher.PriceSource, error) {
	cfg := a.Config.Price
	switch strings.ToLower(cfg.Provider) {
	case "coinpaprika":
		return fetcher.NewCoinPaprika(cfg.CoinPaprika.APIKey, a.Config.Poller.FetchTimeout, a.Logger), nil
	default:
		if cfg.CoinMarketCap.APIKey == "" {
			return nil, errors.New("price.coinmarketcap.api_key is required for the coinmarketcap provider")
		}
		userAgent := cfg.CoinMarketCap.UserAgent
		if userAgent == "" {
			userAgent = version.UserAgent()
		}
		return fetcher.NewCoinMarketCap(fetcher.CoinMarketCapOptions{
			APIKey:    cfg.CoinMarketCap.APIKey,
			BaseURL:   cfg.CoinMarketCap.BaseURL,
			Timeout:   cfg.CoinMarketCap.Timeout,
			UserAgent: userAgent,
		}, a.Logger), nil
	}
}

// newRegistry builds a registry whose ids come from the given snowflake node.
func (a *App) newRegistry(store *storage.Store, node int64) (*alert.Registry, error) {
	ids, err := alert.NewSnowflakeIDs(node)
	if err != nil {
		return nil, err
	}
	return alert.NewRegistry(store, store, ids), nil
}

// newNotifier builds the configured fan-out. Every notification is also
// written to the history table. The returned func releases connections.
func (a *App) newNotifier(store storage.NotificationStore, extra ...alerting.Channel) (*alerting.Multi, func(), error) {
	channels := []alerting.Channel{{Name: "history", Notifier: alerting.NewStoreNotifier(store)}}
	closer := func() {}

	for _, name := range a.Config.Alerting.Channels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
			channels = append(channels, alerting.Channel{Name: "log", Notifier: alerting.NewLogNotifier(a.Logger)})
		case "telegram":
			tg := a.Config.Alerting.Telegram
			if !tg.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			var operator alerting.Notifier = alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 10*time.Second, a.Logger)
			if a.Config.Bot.Enabled {
				// chat owners get their alerts from the bot, not the operator chat
				operator = alerting.SkipChatOwners(operator)
			}
			channels = append(channels, alerting.Channel{Name: "telegram", Notifier: operator})
		case "nats":
			conn, err := alerting.DialNATS(a.Config.Alerting.NATS.URL, a.Config.App.Name, a.Logger)
			if err != nil {
				closer()
				return nil, nil, err
			}
			prev := closer
			closer = func() {
				if err := conn.Drain(); err != nil {
					conn.Close()
				}
				prev()
			}
			channels = append(channels, alerting.Channel{
				Name:     "nats",
				Notifier: alerting.NewNATSNotifier(conn, a.Config.Alerting.NATS.Subject, a.Logger),
			})
		}
	}
	channels = append(channels, extra...)
	return alerting.NewMulti(a.Metrics, a.Logger, channels...), closer, nil
}

// RunOptions tune the run command.
type RunOptions struct {
	Once bool
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	source, err := a.newPriceSource()
	if err != nil {
		return err
	}
	registry, err := a.newRegistry(store, a.Config.IDs.Node)
	if err != nil {
		return err
	}

	var extra []alerting.Channel
	var tgBot *bot.Bot
	if a.Config.Bot.Enabled && !opts.Once {
		handler := bot.NewHandler(alert.NewActions(registry, a.Logger), registry, store, store)
		tgBot, err = bot.New(a.Config.Bot, handler, a.Logger)
		if err != nil {
			return err
		}
		extra = append(extra, alerting.Channel{Name: "bot", Notifier: tgBot})
	}

	notifier, closeNotifier, err := a.newNotifier(store, extra...)
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := service.New(a.Config, source, store, registry, notifier, a.Logger,
		service.WithRecorder(a.Metrics),
		service.WithLocker(store),
	)

	if opts.Once {
		a.Logger.Info().Msg("running a single price tick")
		return svc.RefreshPrices(ctx)
	}

	if a.Config.Metrics.Enabled {
		srv := metrics.NewServer(a.Config.Metrics.Listen, a.Metrics, store.Ping, a.Logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.Logger.Info().Strs("channels", notifier.Channels()).Msg("starting monitoring service")
	svc.Start(ctx)
	defer svc.Stop()

	if a.Config.Digest.Enabled {
		digest := a.newDigest(store, notifier)
		crons := scheduler.NewCron(a.Metrics, a.Logger)
		if err := crons.Add(a.Config.Digest.Schedule, "digest", digest.Send); err != nil {
			return err
		}
		crons.Start(ctx)
		defer crons.Stop()
		a.Logger.Info().Time("next", crons.Next()).Msg("market digest scheduled")
	}

	if a.Config.Wallets.Enabled {
		wallets := fetcher.NewWallets(a.walletOptions(), a.Logger)
		defer wallets.Close()
		job := service.NewWalletSync(wallets, store, store, a.Config.Wallets.Addresses, a.Logger)
		sched := scheduler.New(scheduler.Options{
			Name:       "wallets",
			Interval:   a.Config.Wallets.Interval,
			RunOnStart: true,
			Observer:   a.Metrics,
		}, a.Logger)
		sched.Start(ctx, job.Sync)
		defer sched.Stop()
	}

	if tgBot != nil {
		go func() {
			if err := tgBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("telegram bot stopped")
			}
		}()
	}

	<-ctx.Done()
	a.Logger.Info().Msg("shutting down")
	return nil
}

func (a *App) newDigest(store service.HistoryReader, notifier alerting.Notifier) *service.Digest {
	return service.NewDigest(store, notifier, service.DigestOptions{
		Symbols:          a.Config.Poller.TrackedSymbols,
		Window:           a.Config.Digest.Window,
		MoveThresholdPct: a.Config.Digest.MoveThresholdPct,
		Owner:            a.Config.Digest.Owner,
	}, a.Logger)
}

func (a *App) walletOptions() fetcher.WalletOptions {
	return fetcher.WalletOptions{
		RPCURL:        a.Config.Wallets.RPCURL,
		Timeout:       a.Config.Wallets.Timeout,
		IncludeTokens: a.Config.Wallets.IncludeTokens,
	}
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbol    string
	Window    time.Duration
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the prices show command.
type ShowOptions struct {
	Symbols []string
}

// HistoryOptions configure the prices history command.
type HistoryOptions struct {
	Symbol string
	Window time.Duration
	Limit  int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Symbols  []string
	From     time.Time
	To       time.Time
	Interval string
	DryRun   bool
}
