// README: Entry point; loads config, wires the parser, sessions and optional backends, starts the HTTP server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wayfarer/internal/ai"
	"wayfarer/internal/config"
	httptransport "wayfarer/internal/http"
	"wayfarer/internal/infra"
	"wayfarer/internal/logging"
	"wayfarer/internal/maps"
	"wayfarer/internal/metrics"
	"wayfarer/internal/modules/aiquota"
	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/modify"
	"wayfarer/internal/modules/preference"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.RegisterDefault()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		verifier = v
	} else {
		logger.Warn("WAYFARER_FIREBASE_PROJECT_ID not set, requests are anonymous")
	}

	var matcher extract.CityMatcher
	if cfg.Maps.APIKey != "" {
		m, err := maps.NewGeocodeMatcher(cfg.Maps.APIKey, logger)
		if err != nil {
			return err
		}
		defer m.Close()
		matcher = m
	}
	det := extract.NewExtractor(matcher, logger)
	prefs := preference.NewExtractor(logger)

	var quota ai.Quota
	if cfg.DB.DSN != "" {
		db, err := infra.NewDB(ctx, cfg.DB.DSN, 10)
		if err != nil {
			return err
		}
		defer db.Close()
		quota = aiquota.NewService(aiquota.NewStore(db, cfg.AI.TokensPerMonth))
	}

	var aiX *ai.Extractor
	if cfg.AI.GeminiKey != "" && cfg.Parser.EnableAIFallback {
		provider, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey, cfg.AI.Model)
		if err != nil {
			return err
		}
		defer provider.Close()
		aiX = ai.NewExtractor(provider, quota, ai.Options{
			ConfidenceThreshold: cfg.Parser.AIThreshold,
			Timeout:             cfg.Parser.MaxProcessingTime,
			RPS:                 cfg.AI.RPS,
			Burst:               cfg.AI.Burst,
		}, logger)
	} else {
		logger.Info("AI extraction disabled")
	}

	var (
		store  session.Store
		locker session.Locker
		memory *session.MemoryStore
	)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)
		store = session.NewRedisStore(rdb, cfg.Session.TTL)
		locker = session.NewRedisLocker(rdb, cfg.Session.LockTTL)
	} else {
		memory = session.NewMemoryStore(cfg.Session.Capacity, cfg.Session.TTL, time.Minute, logger)
		store = memory
	}

	parser := service.NewHybridParser(det, prefs, aiX, service.ParserOptions{
		DeterministicThreshold: cfg.Parser.DeterministicThreshold,
		AIThreshold:            cfg.Parser.AIThreshold,
		MaxProcessingTime:      cfg.Parser.MaxProcessingTime,
		EnableAIFallback:       cfg.Parser.EnableAIFallback,
	}, logger)
	resolver := modify.NewResolver(det, modify.Options{
		MaxDestinations: cfg.Modify.MaxDestinations,
		MaxOps:          cfg.Modify.MaxOps,
	}, logger)
	conv := service.NewConversation(parser, resolver, session.NewManager(store, locker, logger), logger)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Conversation:   conv,
		Verifier:       verifier,
		Logger:         logger,
		RequestTimeout: 2 * cfg.Parser.MaxProcessingTime,
	})
	server := httptransport.NewServer(cfg.HTTP.Addr, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if memory != nil {
		g.Go(func() error {
			<-gctx.Done()
			return memory.Close()
		})
	}
	return g.Wait()
}
