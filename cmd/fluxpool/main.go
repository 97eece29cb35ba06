package main

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/elys-network/fluxpool/internal/config"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/pool"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/utils"
	"github.com/elys-network/fluxpool/internal/vault"
	"github.com/elys-network/fluxpool/internal/web"

	"github.com/joho/godotenv"
	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
)

const SHUTDOWN_TIMEOUT = 10 * time.Second

// journal is both written by the pool and read by the web server.
type journal interface {
	pool.Journal
	web.OperationJournal
}

// main is the entry point of the pool service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var logWriters []io.Writer
	if config.LogFile != "" {
		w, err := logger.FileWriter(config.LogFile)
		if err != nil {
			log.Warn().Err(err).Str("path", config.LogFile).Msg("Failed to open log file, logging to console only")
		} else {
			logWriters = append(logWriters, w)
		}
	}
	logger.Initialize(config.LogLevel, logWriters...)
	log.Info().Msg("Fluxpool Starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var assets []config.AssetSpec
	if config.AssetsFile != "" {
		var err error
		if assets, err = config.LoadAssets(config.AssetsFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load assets file")
		}
	}

	// --- 2. Dependencies ---
	store, opJournal := openStore(ctx)
	defer store.Close()

	feed, err := openFeed(assets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price feed")
	}

	ledger, err := openLedger()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transfer ledger")
	}
	defer ledger.Close()

	p, err := pool.NewPool(pool.Config{
		Store:         store,
		Feed:          feed,
		Ledger:        ledger,
		Journal:       opJournal,
		AddressPrefix: config.AddressPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool")
	}

	// --- 3. Bootstrap ---
	if err := bootstrap(ctx, p, assets); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap pool state")
	}

	// transfers a previous run could not hand to the ledger
	if _, err := p.DrainOutbox(ctx); err != nil {
		log.Warn().Err(err).Msg("Outbox not drained at startup, will retry")
	}

	// --- 4. Run ---
	webServer := web.NewWebServer(web.Config{Pool: p, Journal: opJournal, Port: config.WebPort, APIKey: config.APIKey})

	var g run.Group
	g.Add(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting pool API")
		return webServer.Start()
	}, func(error) {
		shutdownCtx, done := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer done()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Web server shutdown failed")
		}
	})
	outboxCtx, stopOutbox := context.WithCancel(ctx)
	g.Add(func() error {
		return retryOutbox(outboxCtx, p, config.OutboxRetryInterval)
	}, func(error) {
		stopOutbox()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if err != nil && !errors.As(err, &sigErr) {
		// Fatal skips the deferred closes
		ledger.Close()
		store.Close()
		log.Fatal().Err(err).Msg("Fluxpool stopped with error")
	}
	log.Info().Msg("Fluxpool stopped")
}

// retryOutbox drains the transfer outbox every interval until ctx is cancelled.
func retryOutbox(ctx context.Context, p *pool.Pool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.DrainOutbox(ctx); err != nil {
				log.Warn().Err(err).Msg("Outbox drain failed, will retry")
			}
		}
	}
}

// openStore selects the state backend. Receipts go to PostgreSQL when it holds the state.
func openStore(ctx context.Context) (state.KVStore, journal) {
	switch config.StoreBackend {
	case config.StorePostgres:
		if err := state.InitDB(config.DB); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store, err := state.NewPostgresStore(state.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create postgres store")
		}
		j, err := state.NewPostgresJournal(state.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create operation journal")
		}
		return closingStore{store}, j

	case config.StoreRedis:
		store, err := state.NewRedisStore(ctx, config.RedisAddr, config.RedisPassword, config.RedisDB, config.RedisNamespace)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		return store, state.NewMemoryJournal()

	default:
		log.Warn().Msg("Using the in-memory store. State is lost on restart.")
		return state.NewMemoryStore(), state.NewMemoryJournal()
	}
}

// closingStore releases the shared database handle when the store is closed.
type closingStore struct {
	*state.PostgresStore
}

func (s closingStore) Close() error {
	state.CloseDB()
	return nil
}

func openFeed(assets []config.AssetSpec) (pricefeed.Feed, error) {
	if config.PriceFeed != "static" {
		log.Info().Str("url", config.PriceFeedURL).Msg("Using Pyth Hermes price feed")
		return pricefeed.NewHermesFeed(config.PriceFeedURL), nil
	}

	feed := pricefeed.NewStaticFeed()
	for _, a := range assets {
		if a.Price == "" {
			continue
		}
		price, err := utils.DecFromString(a.Price)
		if err != nil {
			return nil, err
		}
		// zero publish time keeps operator prices fresh
		quote, err := pricefeed.QuoteFromDec(price, time.Time{})
		if err != nil {
			return nil, err
		}
		feed.Set(feedRef(a), quote)
	}
	log.Info().Int("assets", len(assets)).Msg("Using static price feed")
	return feed, nil
}

func openLedger() (vault.Ledger, error) {
	if len(config.KafkaBrokers) == 0 {
		log.Warn().Msg("No Kafka brokers configured, transfers are settled in memory")
		return vault.NewMemoryLedger(), nil
	}
	return vault.NewKafkaLedger(config.KafkaBrokers, config.KafkaTransferTopic)
}

// feedRef falls back to the asset id for statically priced assets.
func feedRef(a config.AssetSpec) string {
	if a.PriceFeed != "" {
		return a.PriceFeed
	}
	return a.ID
}

// bootstrap stores the configured pool parameters on first start and registers the listed assets.
func bootstrap(ctx context.Context, p *pool.Pool, assets []config.AssetSpec) error {
	now := time.Now()
	if _, err := p.Instantiate(ctx, now, config.Pool); err != nil && !errors.Is(err, pool.ErrAlreadyInstantiated) {
		return err
	}

	cfg, err := p.QueryConfig(ctx)
	if err != nil {
		return err
	}
	for _, a := range assets {
		if _, err := p.RegisterOrUpdateAsset(ctx, now, cfg.Admin, a.ID, a.Symbol, feedRef(a)); err != nil {
			return err
		}
	}
	log.Info().Int("assets", len(assets)).Str("admin", cfg.Admin).Msg("Pool state ready")
	return nil
}
