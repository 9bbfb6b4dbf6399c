// Package api exposes the registry and estimator over HTTP
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/registry"
	"github.com/Emmet-Finance/Bridge-Data/internal/security"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Version is reported by the health and status endpoints
const Version = "1.0.0"

// Options configures a Server
type Options struct {
	Registry  *registry.Registry
	Estimator *estimate.Estimator

	// Feeds is listed by the feed endpoints; optional
	Feeds *oracle.Directory

	// Signer signs quotes when ?signed=true; optional
	Signer *security.DataIntegrityService

	// Status contributes extra sections to /status; optional
	Status func() map[string]interface{}

	// MaxSignatureAge caps how far ahead an admin request may set its expiry
	MaxSignatureAge time.Duration

	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	BatchWorkers   int
	MaxBatchSize   int
}

// Server is the HTTP front of the registry
type Server struct {
	opts      Options
	router    *mux.Router
	registry  *registry.Registry
	estimator *estimate.Estimator
	metrics   *serverMetrics
	rateLimit *rate.Limiter
	replays   *replayGuard
	startTime time.Time
}

type serverMetrics struct {
	registry        *prometheus.Registry
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	estimates       *prometheus.CounterVec
	writes          *prometheus.CounterVec
}

func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_requests_total",
				Help: "Total number of requests processed",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		estimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_estimates_total",
				Help: "Fee estimates by outcome",
			},
			[]string{"result"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_registry_writes_total",
				Help: "Committed registry writes by kind",
			},
			[]string{"kind"},
		),
	}

	m.registry.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.estimates,
		m.writes,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// NewServer creates a server; zero limits get defaults
func NewServer(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = estimate.DefaultWorkers
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 100
	}
	if opts.MaxSignatureAge <= 0 {
		opts.MaxSignatureAge = 5 * time.Minute
	}

	s := &Server{
		opts:      opts,
		registry:  opts.Registry,
		estimator: opts.Estimator,
		metrics:   registerMetrics(),
		replays:   newReplayGuard(opts.MaxSignatureAge),
		startTime: time.Now(),
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		s.rateLimit = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", opts.RateLimitRPS, burst)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	limited := r.NewRoute().Subrouter()
	limited.Use(s.limit)

	// Chainlink External Adapter endpoint
	limited.HandleFunc("/", s.handleAdapterRequest).Methods(http.MethodPost)

	v1 := limited.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/chains", s.handleSetChains).Methods(http.MethodPost)
	v1.HandleFunc("/chains/{chainId:[0-9]+}", s.handleGetChain).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainId:[0-9]+}", s.handleSetChain).Methods(http.MethodPut)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/supported", s.handleChainSupported).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chainId:[0-9]+}/fees/{step}", s.handleForeignFee).Methods(http.MethodGet)

	v1.HandleFunc("/tokens/{symbol}", s.handleGetToken).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{symbol}", s.handleSetToken).Methods(http.MethodPut)
	v1.HandleFunc("/tokens/{symbol}/supported", s.handleTokenSupported).Methods(http.MethodGet)

	v1.HandleFunc("/strategies/{chainId:[0-9]+}/{fromToken}/{toToken}", s.handleGetStrategies).Methods(http.MethodGet)
	v1.HandleFunc("/strategies/{chainId:[0-9]+}/{fromToken}/{toToken}", s.handleSetStrategies).Methods(http.MethodPut)

	v1.HandleFunc("/estimate", s.handleEstimateBatch).Methods(http.MethodPost)
	v1.HandleFunc("/estimate/{chainId:[0-9]+}/{fromToken}/{toToken}", s.handleEstimate).Methods(http.MethodGet)

	v1.HandleFunc("/admin", s.handleGetAdmin).Methods(http.MethodGet)
	v1.HandleFunc("/admin", s.handleUpdateAdmin).Methods(http.MethodPost)
	v1.HandleFunc("/admin/roles/{account}", s.handleRole).Methods(http.MethodGet)

	v1.HandleFunc("/feeds", s.handleListFeeds).Methods(http.MethodGet)
	v1.HandleFunc("/feeds/{address}/price", s.handleUpdatePrice).Methods(http.MethodPut)
	v1.HandleFunc("/feeds/{address}/reset", s.handleResetFeed).Methods(http.MethodPost)

	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("Server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.requestCounter.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.rateLimit != nil && !s.rateLimit.Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":   "operational",
		"uptime":   time.Since(s.startTime).String(),
		"version":  Version,
		"registry": s.registry.Summary(),
		"configuration": map[string]interface{}{
			"request_timeout": s.opts.RequestTimeout.String(),
			"rate_limited":    s.rateLimit != nil,
			"batch_workers":   s.opts.BatchWorkers,
			"max_batch_size":  s.opts.MaxBatchSize,
			"signed_quotes":   s.opts.Signer != nil,
			"max_sig_age":     s.opts.MaxSignatureAge.String(),
		},
	}
	if s.opts.Feeds != nil {
		status["feeds"] = s.feedStatus()
	}
	if s.opts.Status != nil {
		for k, v := range s.opts.Status() {
			status[k] = v
		}
	}
	writeJSON(w, http.StatusOK, status)
}
