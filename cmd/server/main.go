package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/traderisk/trade-engine/internal/audit"
	"github.com/traderisk/trade-engine/internal/cache"
	"github.com/traderisk/trade-engine/internal/metrics"
	"github.com/traderisk/trade-engine/internal/risk"
	"github.com/traderisk/trade-engine/internal/seed"
	"github.com/traderisk/trade-engine/internal/store"
	"github.com/traderisk/trade-engine/internal/trade"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Redis read-path cache ---
	var c *cache.Cache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })

		ttl := 30 * time.Second
		if v := os.Getenv("CACHE_TTL"); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				slog.Error("invalid CACHE_TTL", "err", err)
				os.Exit(1)
			}
			ttl = parsed
		}
		c = cache.New(rdb, ttl)
		slog.Info("Redis cache enabled", "ttl", ttl.String())
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Seed data ---
	if os.Getenv("SEED") == "true" {
		if err := seed.Load(context.Background(), st); err != nil {
			slog.Error("seed failed", "err", err)
			os.Exit(1)
		}
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Services ---
	recorder := audit.NewRecorder(st)
	tradeSvc := trade.NewService(st, recorder, c, wsHub)
	riskSvc := risk.NewService(risk.NewEngine(st, recorder), st, c)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time executed-trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// Trade execution and history.
		r.Post("/trades", tradeSvc.ExecuteTrade)
		r.Get("/trades", tradeSvc.ListTrades)

		// Instrument management.
		r.Post("/instruments", tradeSvc.CreateInstrument)
		r.Get("/instruments", tradeSvc.ListInstruments)
		r.Get("/instruments/{instrumentID}", tradeSvc.GetInstrument)

		// Portfolio management.
		r.Post("/portfolios", tradeSvc.CreatePortfolio)
		r.Get("/portfolios", tradeSvc.ListPortfolios)
		r.Get("/portfolios/{portfolioID}", tradeSvc.GetPortfolio)

		// Risk queries.
		r.Get("/risk/{portfolioID}", riskSvc.GetRisk)
		r.Get("/risk/{portfolioID}/history", riskSvc.GetRiskHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("trade-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down trade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trade-engine stopped")
}
