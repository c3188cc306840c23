package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/logsight"
	"github.com/brunobiangulo/logsight/auth"
	"github.com/brunobiangulo/logsight/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (JSON)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	engine, err := logsight.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// In-process worker pool. A standalone pool (cmd/worker) can run
	// alongside against the same database and broker.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.RunWorkers(workerCtx)
	}()

	authn := auth.New(cfg.JWTSecret, cfg.TokenTTL())
	h := newHandler(engine, authn, cfg)

	rl, err := buildLimiters(cfg)
	if err != nil {
		slog.Error("building rate limiters", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	h.routes(mux, rl)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	// Middleware chain: recovery -> security headers -> cors -> auth ->
	// body cap -> timeout -> logging -> mux.
	skipAuth := map[string]bool{
		"/api/v1/auth/register": true,
		"/api/v1/auth/login":    true,
		"/health":               true,
		"/metrics":              true,
	}
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = timeoutMiddleware(cfg.RequestTimeout(), handler)
	handler = maxBodyMiddleware(cfg.MaxBodyBytes, handler)
	handler = authMiddleware(authn, skipAuth, handler)
	handler = corsMiddleware(cfg.AllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr, "workers", cfg.Workers)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop accepting jobs only after HTTP traffic has drained; in-flight
	// jobs finish before Run returns.
	stopWorkers()
	wg.Wait()

	slog.Info("server stopped")
}

// loadConfig layers defaults, an optional JSON file, and env overrides.
func loadConfig(path string) (logsight.Config, error) {
	cfg := logsight.DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides config fields from LOGSIGHT_* environment variables.
func applyEnv(cfg *logsight.Config) {
	if v := os.Getenv("LOGSIGHT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOGSIGHT_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("LOGSIGHT_BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("LOGSIGHT_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LOGSIGHT_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("LOGSIGHT_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("LOGSIGHT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("LOGSIGHT_CHAT_PROVIDER"); v != "" {
		cfg.Chat.Provider = v
	}
	if v := os.Getenv("LOGSIGHT_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}
	if v := os.Getenv("LOGSIGHT_CHAT_BASE_URL"); v != "" {
		cfg.Chat.BaseURL = v
	}
	if v := os.Getenv("LOGSIGHT_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}

	// Fallback: well-known provider env vars for the API key.
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// buildLimiters constructs one limiter per route class.
func buildLimiters(cfg logsight.Config) (limiters, error) {
	var rl limiters
	var err error
	if rl.read, err = newRateLimiter(cfg.RateLimits.Read); err != nil {
		return rl, err
	}
	if rl.mutate, err = newRateLimiter(cfg.RateLimits.Mutate); err != nil {
		return rl, err
	}
	if rl.insight, err = newRateLimiter(cfg.RateLimits.Insight); err != nil {
		return rl, err
	}
	if rl.login, err = newRateLimiter(cfg.RateLimits.Login); err != nil {
		return rl, err
	}
	if rl.register, err = newRateLimiter(cfg.RateLimits.Register); err != nil {
		return rl, err
	}
	return rl, nil
}
