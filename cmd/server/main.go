package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"queryforge/internal/adapters"
	"queryforge/internal/classifier"
	"queryforge/internal/config"
	"queryforge/internal/database"
	"queryforge/internal/docs"
	"queryforge/internal/engine"
	"queryforge/internal/execution"
	"queryforge/internal/jobs"
	"queryforge/internal/llm"
	"queryforge/internal/logging"
	"queryforge/internal/mining"
	"queryforge/internal/models"
	"queryforge/internal/plancache"
	"queryforge/internal/planner"
	"queryforge/internal/rotation"
	"queryforge/internal/schema"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting QueryForge Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// MongoDB backs the plan and failure caches. Optional: without it the
	// engine plans and executes but doesn't learn.
	var mongoDB *database.MongoDB
	if cfg.MongoURI != "" {
		log.Println("🔗 Connecting to MongoDB...")
		var err error
		mongoDB, err = database.NewMongoDB(cfg.MongoURI)
		if err != nil {
			log.Printf("⚠️ Failed to connect to MongoDB: %v (plan learning disabled)", err)
		} else {
			defer mongoDB.Close(context.Background())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := mongoDB.Initialize(ctx); err != nil {
				log.Printf("⚠️ Failed to initialize MongoDB indexes: %v", err)
			}
			cancel()
		}
	} else {
		log.Println("⚠️ MONGODB_URI not set — plan learning disabled")
	}

	// Redis is an optional L2 cache for documentation lookups
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Invalid REDIS_URL: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				log.Printf("⚠️ Redis unreachable: %v (docs L2 cache disabled)", err)
				redisClient = nil
			} else {
				log.Println("✅ Redis connected")
				defer redisClient.Close()
			}
		}
	}

	// Schema layer: registry, miners, resolver, classifier
	registry := schema.NewRegistry()
	if path := os.Getenv("REGISTRY_FILE"); path != "" {
		if err := registry.LoadFile(path); err != nil {
			log.Printf("⚠️ Failed to load registry file: %v", err)
		} else {
			log.Printf("✅ Registry file loaded: %s", path)
		}
	}

	miners := mining.NewService(cfg.ArtifactsDir)

	resolverOpts := []schema.ResolverOption{
		schema.WithTTL(cfg.SchemaCacheTTL),
		schema.WithConcurrency(cfg.ResolveConcurrency),
	}
	if cfg.DocsServiceURL != "" {
		resolverOpts = append(resolverOpts, schema.WithDocs(docs.NewClient(cfg.DocsServiceURL)))
	}
	if redisClient != nil {
		resolverOpts = append(resolverOpts, schema.WithRedis(redisClient))
	}
	resolver := schema.NewResolver(registry, miners, resolverOpts...)
	cls := classifier.New(registry, resolver)

	// Model providers and rotation
	var providers []models.ModelProvider
	if providersCfg, err := config.LoadProviders(cfg.ProvidersFile); err != nil {
		log.Printf("⚠️ Failed to load providers from %s: %v", cfg.ProvidersFile, err)
	} else {
		providers = providersCfg.Providers
	}
	rotator := rotation.NewRotator(providers,
		rotation.WithCooldown(cfg.RateLimitCooldown),
		rotation.WithCallSpacing(cfg.MinCallSpacing),
	)
	log.Printf("✅ Loaded %d model provider(s)", len(providers))

	// Learning caches (require MongoDB and an embedding key)
	bands := plancache.Bands{
		Floor:    cfg.SimilarityFloor,
		Moderate: cfg.SimilarityModerate,
		High:     cfg.SimilarityHigh,
	}
	var planCache *plancache.PlanCache
	var failureCache *plancache.FailureCache
	var snippets *plancache.SnippetStore
	if mongoDB != nil && cfg.EmbeddingKey != "" {
		embedder := llm.NewOpenAIEmbedder(cfg.EmbeddingURL, cfg.EmbeddingKey, cfg.EmbeddingModel)
		planCache = plancache.NewPlanCache(mongoDB, embedder, bands)
		failureCache = plancache.NewFailureCache(mongoDB, embedder, bands)
		snippets = plancache.NewSnippetStore(embedder, cfg.SimilarityFloor)
		log.Println("✅ Plan learning caches initialized")

		// Index the registry as documentation snippets so prompts can
		// pull relevant entity docs by similarity
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			for _, d := range registry.All() {
				text := schema.DescribeForDocs(d)
				if err := snippets.Add(ctx, d.Name, text); err != nil {
					log.Printf("⚠️ Failed to index snippet for %s: %v", d.Name, err)
				}
			}
			log.Printf("📚 Indexed %d documentation snippet(s)", snippets.Len())
		}()
	}

	// Planner and executor
	var planSearch planner.PlanSearcher
	var failureSearch planner.FailureSearcher
	var snippetSearch planner.SnippetSearcher
	if planCache != nil {
		planSearch = planCache
		failureSearch = failureCache
		snippetSearch = snippets
	}
	p := planner.New(registry, resolver, miners, cls, planSearch, failureSearch, snippetSearch,
		rotator, llm.NewClient(), cfg.DefaultEntity)

	adapterRegistry := adapters.NewRegistry()
	adapterRegistry.Register(models.AccessHTTPAPI, adapters.NewHTTPAdapter(
		os.Getenv("BACKEND_API_URL"), os.Getenv("BACKEND_API_KEY"),
		func(entity string) string {
			if d, ok := registry.Get(entity); ok && d.APIPath != "" {
				return d.APIPath
			}
			return "/admin/" + entity + "s"
		},
	))
	adapterRegistry.Register(models.AccessInProcess, adapters.NewServiceAdapter())
	adapterRegistry.Register(models.AccessGraph, adapters.NewGraphAdapter())
	executor := execution.NewExecutor(adapterRegistry, 50)

	var planStore engine.PlanStore
	var failureStore engine.FailureStore
	if planCache != nil {
		planStore = planCache
		failureStore = failureCache
	}
	eng := engine.New(p, executor, registry, planStore, failureStore)

	// Re-mine source artifacts when they change on disk
	go watchArtifacts(cfg.ArtifactsDir, miners)

	// Nightly cache retention
	if planCache != nil {
		scheduler, err := jobs.NewScheduler()
		if err != nil {
			log.Printf("⚠️ Failed to create scheduler: %v", err)
		} else {
			retention := jobs.NewRetentionJob(planCache, failureCache,
				time.Duration(cfg.RetentionDays)*24*time.Hour)
			if err := scheduler.Register("cache-retention", cfg.PurgeCron, retention.Run); err != nil {
				log.Printf("⚠️ %v", err)
			}
			scheduler.Start()
			defer scheduler.Stop()
		}
	}

	// HTTP surface: health, metrics, and the engine endpoints
	app := fiber.New(fiber.Config{
		AppName:      "QueryForge",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	prometheus := fiberprometheus.New("queryforge")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	registerRoutes(app, eng, mongoDB)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Server listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

// watchArtifacts invalidates the mined context whenever a source artifact
// changes, so the next plan picks up new entities without a restart.
func watchArtifacts(dir string, miners *mining.Service) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", dir, err)
		return
	}
	if err := watcher.Add(absDir); err != nil {
		log.Printf("⚠️  Failed to watch %s: %v (mining hot-reload disabled)", absDir, err)
		return
	}

	log.Printf("👁️  Watching %s for changes (mining hot-reload enabled)", absDir)

	// Debounce rapid successive writes into one re-mine
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create ||
				event.Op&fsnotify.Remove == fsnotify.Remove {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 Detected changes in %s, re-mining artifacts...", dir)
					miners.Reset()
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
