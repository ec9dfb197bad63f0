package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/zhaxinji/recagent/internal/api/handlers"
	"github.com/zhaxinji/recagent/internal/api/middleware"
	"github.com/zhaxinji/recagent/internal/audit"
	"github.com/zhaxinji/recagent/internal/auth"
	"github.com/zhaxinji/recagent/internal/config"
	"github.com/zhaxinji/recagent/internal/embedding"
	"github.com/zhaxinji/recagent/internal/generator"
	"github.com/zhaxinji/recagent/internal/llm"
	"github.com/zhaxinji/recagent/internal/paper"
	"github.com/zhaxinji/recagent/internal/queue"
	"github.com/zhaxinji/recagent/internal/session"
	"github.com/zhaxinji/recagent/internal/storage"
	"github.com/zhaxinji/recagent/internal/vectorstore"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	paperSvc := paper.NewService(rt.db)
	sessionSvc := session.NewService(rt.db)
	keyStore := auth.NewKeyStore(rt.db)
	auditSvc := audit.NewService(rt.db)
	store := storage.NewSupabaseStorage(rt.cfg.Storage)
	queueClient := queue.NewClient(rt.cfg.Redis)

	fabric := llm.NewFabric(rt.cfg.LLM,
		llm.WithKeyResolver(keyStore),
		llm.WithUsageRecorder(auditSvc),
	)
	vs := vectorstore.NewPgVectorStore(rt.db)
	embedSvc := embedding.NewService(fabric, vs, rt.cfg.LLM.DefaultProvider)
	gen := generator.New(fabric, sessionSvc, rt.cfg.Generator).WithPapers(paperSvc)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		// Paper routes
		paperH := handlers.NewPaperHandler(paperSvc, store, queueClient, embedSvc)
		r.Route("/papers", func(r chi.Router) {
			r.Post("/", paperH.Create)
			r.Post("/upload", paperH.Upload)
			r.Get("/", paperH.List)
			r.Get("/{id}", paperH.Get)
			r.Delete("/{id}", paperH.Delete)
			r.Get("/{id}/status", paperH.Status)
			r.Post("/{id}/analyze", paperH.Analyze)
			r.Get("/{id}/similar", paperH.Similar)
		})

		// Generation routes
		genH := handlers.NewGenerateHandler(gen)
		r.Route("/generate", func(r chi.Router) {
			r.Post("/research-gaps", genH.ResearchGaps)
			r.Post("/innovations", genH.Innovations)
			r.Post("/experiment-design", genH.ExperimentDesign)
		})

		// Session routes
		sessionH := handlers.NewSessionHandler(sessionSvc)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionH.List)
			r.Get("/{id}", sessionH.Get)
			r.Get("/{id}/messages", sessionH.Messages)
			r.Put("/{id}", sessionH.Update)
			r.Delete("/{id}", sessionH.Delete)
			r.Delete("/{id}/hard", sessionH.HardDelete)
		})

		// Provider key routes
		keyH := handlers.NewKeyHandler(keyStore)
		r.Route("/keys", func(r chi.Router) {
			r.Post("/", keyH.Set)
			r.Get("/", keyH.List)
			r.Delete("/{provider}", keyH.Delete)
		})

		// Usage routes
		usageH := handlers.NewUsageHandler(auditSvc)
		r.Route("/usage", func(r chi.Router) {
			r.Get("/", usageH.Logs)
			r.Get("/summary", usageH.Summary)
		})
	})

	return r
}
