package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/medserve/discovery/internal/adapters/cache"
	cachedcatalog "github.com/medserve/discovery/internal/adapters/catalog"
	"github.com/medserve/discovery/internal/adapters/events"
	appservices "github.com/medserve/discovery/internal/application/services"
	"github.com/medserve/discovery/internal/infrastructure/clients/catalogapi"
	redisclient "github.com/medserve/discovery/internal/infrastructure/clients/redis"
	"github.com/medserve/discovery/internal/infrastructure/observability"
	queryservices "github.com/medserve/discovery/internal/query/services"
	"github.com/medserve/discovery/pkg/config"
)

// The discovery command runs one browsing session end to end: it loads the
// catalog snapshot, answers a sample query, and then follows the live rating
// stream until interrupted.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger("service-discovery", os.Getenv("APP_ENV"))

	var metrics *observability.Metrics
	if cfg.OTEL.Enabled {
		shutdown, err := observability.Setup(context.Background(), cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to set up telemetry")
		}
		defer func() {
			_ = shutdown(context.Background())
		}()

		metrics, err = observability.InitMetrics()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init metrics")
		}
	}

	redisClient, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize redis client")
	}
	defer redisClient.Close()

	eventBus := events.NewRedisEventBus(redisClient)
	defer eventBus.Close()

	catalogClient := catalogapi.NewClient(cfg.CatalogAPI.BaseURL, metrics)
	catalog := cachedcatalog.NewCachedCatalogAdapter(catalogClient, cache.NewRedisAdapter(redisClient), metrics)

	store := appservices.NewSnapshotStore(catalog, cfg.Session.OwnerID, cfg.CatalogAPI.PageSize)
	compare := appservices.NewCompareService(store)
	bridge := appservices.NewRatingBridge(store, catalog, eventBus, cfg.Session.UserID, metrics)
	queries := queryservices.NewCatalogQueryService()
	suggestions := queryservices.NewSuggestionService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionLog := observability.SessionLogger(cfg.Session.UserID)

	for store.HasMore() {
		loaded, err := store.LoadPage(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("page load failed, continuing with partial snapshot")
			break
		}
		if loaded == 0 {
			break
		}
	}
	if !store.Loaded() {
		sessionLog.Warn().Msg("no catalog pages loaded, starting with an empty snapshot")
	}
	sessionLog.Info().Int("records", store.Len()).Msg("catalog snapshot loaded")

	results := queries.Search(store.Records(), queryservices.FilterSpec{
		ComparedIDs: compare.IDs(),
	})
	sessionLog.Info().Int("results", len(results)).Msg("default catalog view ready")

	if names := suggestions.Suggest(store.DistinctNames(), ""); len(names) > 0 {
		sessionLog.Info().Int("names", len(names)).Msg("suggestion index ready")
	}

	go func() {
		if err := bridge.Run(ctx); err != nil {
			sessionLog.Error().Err(err).Msg("rating bridge stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down discovery session")
	cancel()
}
