package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datapilot/internal/api"
	"datapilot/internal/config"
	"datapilot/internal/data"
	"datapilot/internal/logger"
	"datapilot/internal/service"

	// Target database drivers
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\nCheck .env file or SECRET_KEY environment variable.\n", err)
		os.Exit(1)
	}

	log, err := logger.New(false)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Infow("starting", "app", cfg.AppName)

	db, err := data.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalw("database init failed", "path", cfg.DatabasePath, "error", err)
	}
	defer db.Close()

	rdb, err := data.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Warnw("redis unavailable, continuing without it", "error", err)
	}
	defer rdb.Close()

	userRepo := data.NewUserRepo(db)
	connRepo := data.NewConnectionRepo(db)
	queryRepo := data.NewQueryRepo(db)
	datasetRepo := data.NewDatasetRepo(db)
	docRepo := data.NewDocumentRepo(db)

	vault, err := service.NewVault(cfg.SecretKey)
	if err != nil {
		log.Fatalw("vault init failed", "error", err)
	}

	var invoker service.ModelInvoker = service.DisabledInvoker{}
	if cfg.BedrockEnabled {
		bedrock, err := service.NewBedrockInvoker(context.Background(), cfg.AWSRegion)
		if err != nil {
			log.Fatalw("bedrock init failed", "region", cfg.AWSRegion, "error", err)
		}
		invoker = bedrock
	}

	introspector := service.NewIntrospector(log)
	generator := service.NewGenerator(invoker, cfg.BedrockModelID, cfg.BedrockMaxTokens, cfg.BedrockTemperature, log)
	tester := service.NewConnectionTester(log)
	executor := service.NewQueryExecutor(connRepo, queryRepo, docRepo, vault, introspector, generator, log)

	verifier := api.NewJWTVerifier(cfg.SecretKey)
	handler := api.NewHandler(cfg, log, verifier, userRepo, connRepo, queryRepo, datasetRepo, executor, tester, vault, db, rdb)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Routes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Infow("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server startup failed", "error", err)
		}
	}()

	<-stop
	log.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server shutdown error", "error", err)
	}
	log.Infow("server stopped")
}
