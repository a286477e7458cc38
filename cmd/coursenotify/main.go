package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/analytics"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/api"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/circuitbreaker"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/config"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/cron"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/digest"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/mailer"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/metrics"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/notify"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/reconciler"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/store/postgres"
	"github.com/iaai-platform/iaai-training-platform-sub002/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`coursenotify - course announcement notification scheduler

Usage:
  coursenotify <command>

Commands:
  serve      Start the notification scheduler and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL               PostgreSQL connection string (required)
  REDIS_ADDR                 Redis address for analytics counters (optional)
  HTTP_ADDR                  HTTP server address (default: ":8080")

  GRACE_WINDOW               Announcement delay after course creation (default: "2h")
  MAILER_URL                 Mail relay endpoint (required)
  MAILER_SECRET              HMAC secret for relay request signing
  MAILER_TIMEOUT             Mail relay request timeout (default: "30s")
  IMMEDIATE_CANCELS_PENDING  notify-now also cancels the pending job (default: "false")

  DB_OP_TIMEOUT              Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS          Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS          Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME       Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME      Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT      Graceful HTTP shutdown timeout (default: "10s")
  EVENTBUS_BUFFER_SIZE       Lifecycle event buffer size (default: "100")

  CIRCUIT_BREAKER_THRESHOLD  Failures before the relay circuit opens, 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN   Open-circuit cooldown (default: "2m")

  METRICS_ENABLED            Enable Prometheus metrics (default: "false")
  METRICS_PATH               Metrics endpoint path (default: "/metrics")

  RECOVER_ENABLED            Reschedule ledger-recorded jobs on startup (default: "false")
  RECOVER_INTERVAL           How often to re-scan the ledger (default: "10m")
  RECOVER_BATCH_SIZE         Max courses recovered per cycle (default: "100")

  DIGEST_CRON                Cron expression for the summary email, empty disables
  DIGEST_TIMEZONE            Timezone for the digest schedule (default: "UTC")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	// Parse the digest schedule before opening any connections.
	var digestSchedule cron.Schedule
	if cfg.DigestCron != "" {
		sched, err := cron.ParseSchedule(cfg.DigestCron, cfg.DigestTimezone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: DIGEST_CRON: %v\n", err)
			return exitInvalidConfig
		}
		digestSchedule = sched
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("coursenotify: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("coursenotify: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("coursenotify: METRICS_ENABLED not set; metrics disabled")
	}

	// Event bus carrying lifecycle events to the recorder
	bus := channel.NewEventBus(cfg.EventBusBufferSize)
	if metricsSink != nil {
		bus = bus.WithMetrics(metricsSink)
	}

	// Mail relay with retry, audit trail, and circuit breaker
	sender := mailer.NewHTTPRelaySender(cfg.MailerURL, cfg.MailerSecret, cfg.MailerTimeout)
	mail := mailer.New(sender).WithAttemptStore(store)
	if cfg.CircuitBreakerThreshold > 0 {
		mail = mail.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("coursenotify: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	if metricsSink != nil {
		mail = mail.WithMetrics(metricsSink)
	}

	sched := notify.New(
		notify.Config{
			GraceWindow:             cfg.GraceWindow,
			ImmediateCancelsPending: cfg.ImmediateCancelsPending,
		},
		store, store, store, store,
		mail,
	).WithLedger(store).WithEvents(bus)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}

	// Recorder persists lifecycle events; Redis counters are optional
	recorder := analytics.NewRecorder(bus.Channel()).WithAuditStore(store)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		recorder = recorder.WithCounters(analytics.NewRedisSink(redisClient))
		log.Printf("coursenotify: analytics counters enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("coursenotify: REDIS_ADDR not set; analytics counters disabled")
	}

	recorderCtx, cancelRecorder := context.WithCancel(context.Background())
	var recorderWg sync.WaitGroup
	recorderWg.Add(1)
	go func() {
		defer recorderWg.Done()
		recorder.Run(recorderCtx)
	}()

	// Reconciler reschedules ledger-recorded jobs lost to a restart
	var reconcilerWg sync.WaitGroup
	var cancelReconciler context.CancelFunc
	if cfg.RecoverEnabled {
		var reconcilerCtx context.Context
		reconcilerCtx, cancelReconciler = context.WithCancel(context.Background())
		recon := reconciler.New(
			reconciler.Config{
				Interval:  cfg.RecoverInterval,
				BatchSize: cfg.RecoverBatchSize,
			},
			store,
			sched,
		)
		if metricsSink != nil {
			recon = recon.WithMetrics(metricsSink)
		}
		reconcilerWg.Add(1)
		go func() {
			defer reconcilerWg.Done()
			recon.Run(reconcilerCtx)
		}()
		log.Printf("coursenotify: recovery enabled (interval=%s, batch=%d)",
			cfg.RecoverInterval, cfg.RecoverBatchSize)
	} else {
		log.Println("coursenotify: RECOVER_ENABLED not set; ledger recovery disabled")
	}

	// Weekly digest (optional)
	var digestWg sync.WaitGroup
	var cancelDigest context.CancelFunc
	if digestSchedule != nil {
		var digestCtx context.Context
		digestCtx, cancelDigest = context.WithCancel(context.Background())
		dig := digest.New(digestSchedule, store, store, mail)
		digestWg.Add(1)
		go func() {
			defer digestWg.Done()
			dig.Run(digestCtx)
		}()
		log.Printf("coursenotify: digest enabled (cron=%q, tz=%s)", cfg.DigestCron, cfg.DigestTimezone)
	} else {
		log.Println("coursenotify: DIGEST_CRON not set; digest disabled")
	}

	// HTTP API, with metrics mounted on the same server when enabled
	apiHandler := api.NewHandler(sched).WithHealthChecker(db)
	mux := http.NewServeMux()
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("coursenotify: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("coursenotify: http server error: %v", err)
		}
	}()

	log.Printf("coursenotify: started (grace_window=%s, http=%s)", cfg.GraceWindow, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("coursenotify: received signal %v, shutting down", received)

	// Phase 1: Stop HTTP server so no new events arrive
	log.Println("coursenotify: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("coursenotify: http server shutdown error: %v", err)
	}
	log.Println("coursenotify: http server stopped")

	// Phase 2: Stop background loops feeding the scheduler
	if cancelReconciler != nil {
		log.Println("coursenotify: stopping reconciler...")
		cancelReconciler()
		reconcilerWg.Wait()
		log.Println("coursenotify: reconciler stopped")
	}
	if cancelDigest != nil {
		log.Println("coursenotify: stopping digest...")
		cancelDigest()
		digestWg.Wait()
		log.Println("coursenotify: digest stopped")
	}

	// Phase 3: Stop pending job timers. Ledger rows survive for the
	// next startup's recovery scan.
	log.Println("coursenotify: stopping scheduler...")
	sched.Shutdown()
	log.Println("coursenotify: scheduler stopped")

	// Phase 4: Stop the recorder (drains buffered events before returning)
	log.Println("coursenotify: stopping recorder (draining events)...")
	cancelRecorder()
	recorderWg.Wait()
	log.Println("coursenotify: recorder stopped")

	log.Println("coursenotify: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("coursenotify version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
