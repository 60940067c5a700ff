// README: Check cases for the runner: environment, public API, admission concurrency and load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/simaodiazz/curvas-humildes-server/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var requiredTables = []string{"tariff_settings", "drivers", "bookings", "booking_status_events", "vouchers", "voucher_usages"}

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// runID keeps seeded rows from different runs apart.
	runID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 15 * time.Second},
		runID: uuid.NewString()[:8],
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.Migrate && r.cfg.DSN != "" {
		if err := infra.Migrate(r.cfg.DSN); err != nil {
			fmt.Printf("migrate: %v\n", err)
		}
	}
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = infra.NewRedis(r.cfg.RedisAddr, "", 0)
		defer func() { _ = r.redis.Close() }()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency.Round(time.Millisecond))
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	estimate := map[string]any{
		"passengers":       2,
		"bags":             1,
		"pickup_location":  "Aeroporto Lisboa",
		"dropoff_location": "Cascais",
		"time":             "10:00",
	}
	return []TestCase{
		{Name: "Env: Postgres reachable", Run: checkDB},
		{Name: "Env: Redis reachable", Run: checkRedis},
		{Name: "Env: schema migrated", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, "", http.StatusOK)
		}},
		{Name: "Fare: predefined route estimate", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/estimate", estimate, "", http.StatusOK)
		}},
		{Name: "Fare: missing locations -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/fares/estimate", map[string]any{"passengers": 1}, "", http.StatusBadRequest)
		}},
		{Name: "Availability: malformed time -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"date": r.cfg.ServiceDate, "time": "25:99", "duration_minutes": 60}
			return r.expect(ctx, http.MethodPost, "/api/availability", body, "", http.StatusBadRequest)
		}},
		{Name: "Voucher: unknown code -> 400", Run: func(ctx context.Context, r *Runner) Result {
			body := map[string]any{"code": "NOPE-" + r.runID, "booking_value": 30}
			return r.expect(ctx, http.MethodPost, "/api/vouchers/validate", body, "", http.StatusBadRequest)
		}},
		{Name: "Booking: anonymous -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/bookings", map[string]any{}, "", http.StatusUnauthorized)
		}},
		{Name: "Admin: customer token -> 403", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/admin/tariffs", nil, r.token("customer"), http.StatusForbidden)
		}},
		{Name: "Admin: read tariffs", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/admin/tariffs", nil, r.token("admin"), http.StatusOK)
		}},
		{Name: "Concurrency: one driver, many admissions", Run: concurrentAdmissions},
		{Name: "Load: fare estimation throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/fares/estimate", estimate)
		}},
	}
}

func checkDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	for _, t := range requiredTables {
		var exists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass}
}

// concurrentAdmissions fires simultaneous admissions for one slot. More
// bookings than active drivers means the day lock is not holding.
func concurrentAdmissions(ctx context.Context, r *Runner) Result {
	if r.db == nil || r.cfg.JWTSecret == "" {
		return Result{Status: statusSkip, Note: "needs -dsn and -jwt-secret"}
	}
	var active int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM drivers WHERE is_active`).Scan(&active); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if active == 0 {
		driverID := "bench-" + r.runID
		if _, err := r.db.Exec(ctx,
			`INSERT INTO drivers (id, first_name, last_name, email, is_active) VALUES ($1, 'Bench', 'Driver', $2, TRUE)`,
			driverID, driverID+"@bench.invalid",
		); err != nil {
			return Result{Status: statusFail, Note: "seed driver: " + err.Error()}
		}
		active = 1
	}

	body := map[string]any{
		"passenger_name":   "Bench " + r.runID,
		"date":             r.cfg.ServiceDate,
		"time":             "04:00",
		"duration_minutes": 45,
		"pickup_location":  "Aeroporto Lisboa",
		"dropoff_location": "Cascais",
		"passengers":       1,
	}
	token := r.token("customer")

	var created, conflicts atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			code, _, err := r.do(ctx, http.MethodPost, "/api/bookings", body, token)
			if err != nil {
				return
			}
			switch code {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict:
				conflicts.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("created=%d conflicts=%d drivers=%d", created.Load(), conflicts.Load(), active)
	if created.Load() > int64(active) {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var ok, limited, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.do(ctx, http.MethodPost, path, payload, "")
				switch {
				case err != nil || code >= 500:
					failed.Add(1)
				case code == http.StatusTooManyRequests:
					limited.Add(1)
				default:
					ok.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if ok.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(ok.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f rate_limited=%d errors=%d", rps, limited.Load(), failed.Load())}
}

func (r *Runner) token(role string) string {
	if r.cfg.JWTSecret == "" {
		return ""
	}
	raw, err := infra.IssueToken(r.cfg.JWTSecret, role+"-"+r.runID, role, time.Hour)
	if err != nil {
		return ""
	}
	return raw
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, token string, want int) Result {
	start := time.Now()
	code, _, err := r.do(ctx, method, path, body, token)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
}

func (r *Runner) do(ctx context.Context, method, path string, body any, token string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}
