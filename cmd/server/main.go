package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/auction-engine/internal/api"
	"github.com/atmx/auction-engine/internal/archive"
	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/config"
	"github.com/atmx/auction-engine/internal/crosschain"
	"github.com/atmx/auction-engine/internal/keeper"
	"github.com/atmx/auction-engine/internal/metrics"
	"github.com/atmx/auction-engine/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUCTION_CONFIG"), "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("auction-engine exited", "err", err)
		os.Exit(1)
	}
	fmt.Println("auction-engine stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Redis (cache, replay protection, cross-chain bus) ---
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
	}

	// --- Initialize store ---
	var st store.Store
	if cfg.Postgres.DSN != "" {
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("invalid postgres dsn: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Postgres.PoolMaxConns)
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if cfg.Postgres.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("postgres dsn not set, using in-memory store (history will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Engine ---
	params, err := cfg.AuctionParams()
	if err != nil {
		return err
	}

	sinks := auction.MultiSink{auction.LogSink{}}
	if cfg.S3.Bucket != "" {
		w, err := archive.NewS3Writer(ctx, archive.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, archive.NewArchiver(w, cfg.S3.Prefix))
		slog.Info("settled batch archive enabled", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}

	var bus *crosschain.Bus
	if cfg.CrossChain.Enabled {
		bus = crosschain.NewBus(rdb)
		sinks = append(sinks, crosschain.NewResultRelay(
			bus,
			cfg.CrossChain.ResultChannel,
			cfg.CrossChain.ChainName,
			common.HexToAddress(cfg.CrossChain.SenderAddress),
		))
	}

	opts := []auction.Option{
		auction.WithSettlementSink(sinks),
		auction.WithOwner(common.HexToAddress(cfg.Auction.Owner)),
	}
	if len(cfg.Auction.AllowList) > 0 {
		addrs := make([]common.Address, 0, len(cfg.Auction.AllowList))
		for _, a := range cfg.Auction.AllowList {
			addrs = append(addrs, common.HexToAddress(a))
		}
		opts = append(opts, auction.WithAuthorizer(auction.NewAllowList(addrs...)))
	}

	engine, err := auction.New(params, opts...)
	if err != nil {
		return err
	}

	state, err := store.LoadState(ctx, st)
	if err != nil {
		return err
	}
	if err := engine.Restore(state); err != nil {
		return err
	}

	// --- Event subscribers ---
	journal := store.NewJournal(st)
	stopJournal := startJournal(journal)
	wsHub := api.NewWSHub()
	engine.Subscribe(journal.Record)
	engine.Subscribe(metrics.RecordEvent)
	engine.Subscribe(wsHub.Publish)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"auction-engine","batch_id":%d,"phase":%q}`,
			engine.CurrentBatchID(), engine.CurrentPhase())
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	handler := api.NewHandler(engine, api.WithHistory(st))
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for engine events; outside the request timeout.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
			handler.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout.Duration + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return wsHub.Run(gctx) })

	if cfg.Keeper.Enabled {
		k := keeper.New(engine, keeper.Config{
			Interval:        cfg.Keeper.Interval.Duration,
			Address:         common.HexToAddress(cfg.Keeper.Address),
			SlashUnrevealed: cfg.Keeper.SlashUnrevealed,
		})
		g.Go(func() error { return k.Run(gctx) })
	}

	if cfg.CrossChain.Enabled {
		trusted := make(map[string]common.Address, len(cfg.CrossChain.TrustedSenders))
		for chain, sender := range cfg.CrossChain.TrustedSenders {
			trusted[chain] = common.HexToAddress(sender)
		}
		recv := crosschain.NewReceiver(engine, trusted, crosschain.NewRedisProcessedSet(rdb, cfg.CrossChain.ProcessedTTL.Duration))
		g.Go(func() error { return recv.Run(gctx, bus, cfg.CrossChain.InboundChannel) })
	}

	g.Go(func() error {
		slog.Info("auction-engine listening",
			"port", cfg.Server.Port,
			"batch_id", engine.CurrentBatchID(),
			"keeper", cfg.Keeper.Enabled,
			"crosschain", cfg.CrossChain.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down auction-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// Every producer of engine events has returned; persist what they left.
	if jerr := stopJournal(); err == nil {
		err = jerr
	}
	return err
}

// startJournal runs j until the returned stop function is called. The
// journal is not tied to the process context: events acknowledged while the
// HTTP server drains must still reach the store.
func startJournal(j *store.Journal) (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}

// corsMiddleware allows the configured origins to send signed requests.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", api.CallerHeader, api.TimestampHeader, api.SignatureHeader},
	}).Handler
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
