// README: Smoke and load runner for a deployed booking API; checks HTTP, DB and Redis and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/config"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	fmt.Println("\n== Summary ==")
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", counts[statusPass], counts[statusFail], counts[statusSkip])

	if counts[statusFail] > 0 || (cfg.Strict && counts[statusSkip] > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL     string
	DSN         string
	RedisAddr   string
	JWTSecret   string
	Migrate     bool
	Strict      bool
	Timeout     time.Duration
	Concurrency int
	Duration    time.Duration
	ServiceDate string
}

func loadConfig() Config {
	app, _ := config.Load()

	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("CURVAS_BENCH_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", app.DB.DSN, "Postgres DSN used to seed drivers and vouchers")
	flag.StringVar(&cfg.RedisAddr, "redis", app.Redis.Addr, "Redis address (empty skips the Redis check)")
	flag.StringVar(&cfg.JWTSecret, "jwt-secret", app.Auth.JWTSecret, "secret used to mint customer and admin tokens")
	flag.BoolVar(&cfg.Migrate, "migrate", false, "apply migrations before running")
	flag.BoolVar(&cfg.Strict, "strict", false, "treat skipped checks as failures")
	flag.DurationVar(&cfg.Timeout, "timeout", 2*time.Minute, "total timeout")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "parallel clients for concurrency and load checks")
	flag.DurationVar(&cfg.Duration, "duration", 10*time.Second, "duration of load checks")
	flag.StringVar(&cfg.ServiceDate, "date", time.Now().AddDate(0, 0, 30).Format("2006-01-02"), "service date used for admissions")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
