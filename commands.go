package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vishalnemlekar/instabot/config"
	"github.com/vishalnemlekar/instabot/internal"
	"github.com/vishalnemlekar/instabot/internal/crawler"
	"github.com/vishalnemlekar/instabot/logger"
	pkgerrors "github.com/vishalnemlekar/instabot/pkg/errors"
	"github.com/vishalnemlekar/instabot/services/alerter"
	"github.com/vishalnemlekar/instabot/services/cache"
	"github.com/vishalnemlekar/instabot/services/publisher"
	"github.com/vishalnemlekar/instabot/services/status"
	"github.com/vishalnemlekar/instabot/services/store"
	"github.com/vishalnemlekar/instabot/services/syncer"
	"github.com/vishalnemlekar/instabot/services/worker"
)

const cooldownPrefix = "instabot"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "instabot",
	Short:         "Instamart catalog crawler and discount alerter",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		return err
	},
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the configured parent categories and sync them to the store",
	Long: `Runs the crawl worker: every pass opens a browser, crawls each parent
category with its tiles, and upserts rows whose content changed.
Passes repeat every CRAWL_INTERVAL until interrupted.`,
	RunE: runCrawl,
}

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Scan the store for deep discounts and notify Telegram",
	RunE:  runAlert,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the product table and add missing columns",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(crawlCmd, alertCmd, migrateCmd)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateCrawl(); err != nil {
		return err
	}
	log := logger.ForWorker()

	ctx, stop := signalContext(cmd)
	defer stop()

	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	opts := crawler.DefaultChromeOptions()
	opts.Headless = cfg.Headless
	opts.ExecPath = cfg.ChromePath

	w := worker.NewWorker(
		ctx,
		cfg.ParentURLs,
		crawler.NewChromeFactory(opts),
		crawler.NewCategoryCrawler(),
		syncer.NewSyncer(deps.Store, deps.Publisher, cfg.StoreBatchSize),
		cfg.CrawlInterval,
		worker.WithPublisher(deps.Publisher),
		worker.WithCooldown(cache.NewCooldown(deps.Cache, cooldownPrefix, cfg.RateLimitBlock)),
		worker.WithVerbose(!cfg.IsProduction()),
	)

	if cfg.StatusAddr != "" {
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, status.NewRouter(w, cfg.IsProduction())); err != nil {
				logger.LogError("status", err, "Status endpoint stopped on %s", cfg.StatusAddr)
			}
		}()
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("parents", len(cfg.ParentURLs)).
		Dur("crawl_interval", cfg.CrawlInterval).
		Str("table", deps.Store.Table()).
		Msg("Starting crawl worker")

	w.Start()
	log.Info().Msg("Shutting down gracefully...")
	return nil
}

func runAlert(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateAlert(); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	a := alerter.NewAlerter(
		deps.Store,
		alerter.NewRedisState(deps.Redis, cfg.RedisAlertKey),
		alerter.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID),
		cfg.AlertThreshold,
		cfg.AlertPageSize,
		cfg.PollInterval(),
	)

	logger.ForAlerter().Info().
		Int("threshold", cfg.AlertThreshold).
		Dur("poll", cfg.PollInterval()).
		Msg("Starting alerter")
	return a.Run(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateStore(); err != nil {
		return err
	}

	st, err := store.Open(cmd.Context(), cfg.StoreDriver, cfg.StoreDSN, cfg.StoreTable)
	if err != nil {
		return err
	}
	defer st.Close()

	return st.Migrate(cmd.Context())
}

// initializeServices connects the store and whichever of memcache and redis
// are configured
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, cfg.StoreTable)
	if err != nil {
		return nil, err
	}
	deps.Store = st
	logger.ForStore().Info().Str("driver", cfg.StoreDriver).Str("table", cfg.StoreTable).Msg("Store opened")

	if cfg.MemcacheAddr != "" {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			// cooldowns degrade to never blocking
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache not reachable")
		}
		deps.Cache = mc
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			deps.Cleanup()
			return nil, pkgerrors.NewPublisher(cfg.RedisAddr, "failed to connect to redis", err)
		}
		deps.Redis = client
		deps.Publisher = publisher.NewRedisPublisher(client, cfg.RedisStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)

		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	return deps, nil
}
