package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/zhaxinji/recagent/internal/analysis"
	"github.com/zhaxinji/recagent/internal/audit"
	"github.com/zhaxinji/recagent/internal/auth"
	"github.com/zhaxinji/recagent/internal/cache"
	"github.com/zhaxinji/recagent/internal/config"
	"github.com/zhaxinji/recagent/internal/database"
	"github.com/zhaxinji/recagent/internal/embedding"
	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/queue"
	"github.com/zhaxinji/recagent/internal/queue/workers"
	"github.com/zhaxinji/recagent/internal/storage"
	"github.com/zhaxinji/recagent/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	paperSvc := paper.NewService(db)
	keyStore := auth.NewKeyStore(db)
	auditSvc := audit.NewService(db)
	fabric := llm.NewFabric(cfg.LLM,
		llm.WithKeyResolver(keyStore),
		llm.WithUsageRecorder(auditSvc),
	)
	vs := vectorstore.NewPgVectorStore(db)
	embedSvc := embedding.NewService(fabric, vs, cfg.LLM.DefaultProvider)
	pipeline := analysis.NewPipeline(paperSvc, fabric).WithIndexer(embedSvc)

	store := storage.NewSupabaseStorage(cfg.Storage)
	queueClient := queue.NewClient(cfg.Redis)
	c := cache.NewCache(rdb)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// The LLM fabric's own semaphore caps provider concurrency;
			// worker slots above it just keep the queue draining.
			Concurrency: 5,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePaperIngest,
		workers.NewIngestWorker(paperSvc, store, queueClient).ProcessTask)
	mux.HandleFunc(queue.TypePaperAnalyze,
		workers.NewAnalysisWorker(pipeline, c).ProcessTask)

	slog.Info("starting worker", "concurrency", 5)
	if err := srv.Run(mux); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
