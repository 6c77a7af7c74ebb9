package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/studyquiz-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	analysisRequests *prometheus.CounterVec
	analysisLatency  *prometheus.HistogramVec

	uploadOutcomes *prometheus.CounterVec
	uploadAttempts prometheus.Counter
	queueDepth     *prometheus.GaugeVec
	inflight       *prometheus.GaugeVec

	generations      *prometheus.CounterVec
	answersSubmitted *prometheus.CounterVec
	previewCache     *prometheus.CounterVec

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process metrics, or nil when metrics are disabled.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	if v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 15 * time.Second
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sq_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sq_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		analysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_analysis_requests_total",
			Help: "Gemini calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		analysisLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sq_analysis_duration_seconds",
			Help:    "Gemini call latency in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"operation"}),
		uploadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_upload_outcomes_total",
			Help: "Terminal upload outcomes by result and error class.",
		}, []string{"result", "error_class"}),
		uploadAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sq_upload_attempts_total",
			Help: "Analysis attempts made by the dispatcher.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sq_queue_depth",
			Help: "Items waiting in a dispatch queue.",
		}, []string{"queue"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sq_queue_inflight",
			Help: "Items currently being processed by a dispatcher.",
		}, []string{"queue"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_quiz_generations_total",
			Help: "Quiz generations by quiz type and result.",
		}, []string{"quiz_type", "result"}),
		answersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_answers_submitted_total",
			Help: "Answers recorded by correctness.",
		}, []string{"correct"}),
		previewCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sq_preview_cache_lookups_total",
			Help: "Preview cache lookups by result (hit/miss).",
		}, []string{"result"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sq_db_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sq_redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sq_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.analysisRequests, m.analysisLatency,
		m.uploadOutcomes, m.uploadAttempts, m.queueDepth, m.inflight,
		m.generations, m.answersSubmitted, m.previewCache,
		m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAnalysis(operation, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.analysisRequests.WithLabelValues(operation, outcome).Inc()
	m.analysisLatency.WithLabelValues(operation).Observe(dur.Seconds())
}

func (m *Metrics) IncUploadAttempt() {
	if m == nil {
		return
	}
	m.uploadAttempts.Inc()
}

// ObserveUploadOutcome records a terminal upload result: "persisted" or "failed".
func (m *Metrics) ObserveUploadOutcome(result, errorClass string) {
	if m == nil {
		return
	}
	if errorClass == "" {
		errorClass = "none"
	}
	m.uploadOutcomes.WithLabelValues(result, errorClass).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth, inflight int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
	m.inflight.WithLabelValues(queue).Set(float64(inflight))
}

func (m *Metrics) IncGeneration(quizType, result string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(quizType, result).Inc()
}

func (m *Metrics) IncAnswer(correct bool) {
	if m == nil {
		return
	}
	m.answersSubmitted.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) ObservePreviewCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.previewCache.WithLabelValues(result).Inc()
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
