package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"studio/internal/adapter/repo"
	"studio/internal/executor"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/providers/genai"
	"studio/internal/providers/image"
	"studio/internal/queue"
	"studio/internal/refs"
	"studio/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	jobs := repo.NewJobRepository(dbpool)
	girls := repo.NewGirlRepository(dbpool)
	library := repo.NewLibraryRepository(dbpool)
	fileCache := repo.NewFileCacheRepository(dbpool)

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init file store")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init gemini client")
	}
	generator := image.NewGeminiGenerator(client)

	resolver := refs.NewResolver(refs.Options{
		Library:   library,
		Cache:     fileCache,
		Store:     store,
		Uploader:  client,
		HandleTTL: cfg.FileHandleTTL,
		Logger:    logger,
	})

	exec := executor.New(executor.Options{
		Jobs:      jobs,
		Girls:     girls,
		Refs:      resolver,
		Generator: generator,
		Store:     store,
		Logger:    logger,
	})

	q := queue.New(queue.Options{
		Concurrency: cfg.QueueConcurrency,
		MaxRetries:  cfg.QueueMaxRetries,
		RetryDelay:  cfg.QueueRetryDelay,
		Executor:    exec,
		Jobs:        jobs,
		Logger:      logger,
	})
	q.Start(ctx)
	q.ResumeOnBoot(ctx)

	app := &handlers.App{
		Jobs:    jobs,
		Girls:   girls,
		Library: library,
		Queue:   q,
		Store:   store,
		Logger:  logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       cfg.StoragePath,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
