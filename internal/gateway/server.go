package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/tollgate/tollgate/internal/admission"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/quota"
	"github.com/tollgate/tollgate/internal/store"
)

// Server is the data plane: it resolves the caller's identity, runs the
// admission protocol around each transaction and forwards admitted ones
// upstream.
type Server struct {
	config        *config.Config
	httpServer    *http.Server
	metricsServer *http.Server
	grpcServer    *grpc.Server
	grpcHealth    *health.Server
	controller    *admission.Controller
	records       store.Store
	clock         quota.Clock
	limits        quota.Limits
	upstream      *http.Client
	logger        *slog.Logger
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	var records store.Store
	switch cfg.Gateway.Mode {
	case "strong":
		records = store.NewRedis(store.RedisConfig(cfg.Redis))
		logger.Info("using Redis record store (strong mode)")
	case "fast", "":
		records = store.NewMemory()
		logger.Info("using in-memory record store (fast mode)")
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Gateway.Mode)
	}

	limits := quota.Limits{
		MaxTx:    cfg.Quota.MaxTxPerWindow,
		MaxBytes: cfg.Quota.MaxBytesPerWindow,
		Period:   cfg.Quota.WindowEpochs,
	}
	clock := quota.NewEpochClock(cfg.Quota.EpochLength)

	var m *metrics.Admission
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	s := &Server{
		config:     cfg,
		controller: admission.NewController(limits, records, clock, logger, m),
		records:    records,
		clock:      clock,
		limits:     limits,
		upstream:   &http.Client{Timeout: cfg.Gateway.WriteTimeout},
		logger:     logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	if cfg.Observability.TracingEnabled {
		router.Use(TracingMiddleware(cfg.Observability.ServiceName))
	}
	s.setupRoutes(router)

	s.httpServer = &http.Server{
		Addr:         cfg.Gateway.Address,
		Handler:      router,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}

	if cfg.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{Addr: cfg.Observability.MetricsAddress, Handler: mux}
	}

	s.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(s.unaryInterceptor))
	s.grpcHealth = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	reflection.Register(s.grpcServer)

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Gateway.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", s.config.Gateway.GRPCAddress)
		if err != nil {
			s.logger.Error("failed to listen for gRPC", "error", err)
			return
		}
		lis = netutil.LimitListener(lis, s.config.Gateway.MaxGRPCConns)
		s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.logger.Info("starting gRPC server", "address", s.config.Gateway.GRPCAddress)
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("gRPC server error", "error", err)
		}
	}()

	if s.metricsServer != nil {
		go func() {
			s.logger.Info("starting metrics server", "address", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down gateway server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.grpcServer.GracefulStop()

	if err := s.records.Close(); err != nil {
		s.logger.Error("failed to close record store", "error", err)
	}
	return nil
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	api.Use(AuthMiddleware(s.config.Gateway.APIKeys, s.config.Gateway.PrivilegedKeys))
	{
		api.POST("/transactions", s.handleSubmit)
		api.GET("/quota/:account", s.handleQuota)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	if err := s.records.Ping(c.Request.Context()); err != nil {
		status = "unhealthy"
		checks["store"] = fmt.Sprintf("error: %v", err)
	} else {
		checks["store"] = "healthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": s.config.Observability.ServiceVersion,
		"checks":  checks,
	})
}

// handleSubmit is the unit of work: Check, Reserve, dispatch, Commit.
func (s *Server) handleSubmit(c *gin.Context) {
	ctx := c.Request.Context()

	// Privileged callers are not resolved to an account: the anonymous path
	// is admitted unconditionally and never committed.
	account := ""
	if !c.GetBool(ctxKeyPrivileged) {
		account = c.GetHeader("X-Account-ID")
		if account == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Account-ID header is required"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Gateway.MaxRequestSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	size := uint32(len(body))

	err = s.controller.Dispatch(ctx, account, size, func(ctx context.Context) error {
		return s.forward(ctx, body, c.ContentType())
	})

	switch {
	case errors.Is(err, admission.ErrQuotaExceeded):
		s.writeQuotaHeaders(c, account)
		retryAfter := s.retryAfter(ctx, account)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"admitted":            false,
			"error":               "quota exceeded",
			"retry_after_seconds": retryAfter,
		})
		return
	case err != nil:
		s.logger.Error("transaction dispatch failed", "account", account, "size", size, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "dispatch failed"})
		return
	}

	s.writeQuotaHeaders(c, account)
	c.JSON(http.StatusAccepted, gin.H{
		"admitted": true,
		"size":     size,
	})
}

func (s *Server) handleQuota(c *gin.Context) {
	account := c.Param("account")

	rec, _, err := s.records.Get(c.Request.Context(), account)
	if err != nil {
		s.logger.Error("quota lookup failed", "account", account, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	now := s.clock.Now()
	c.JSON(http.StatusOK, gin.H{
		"account":      account,
		"status":       rec.Status.String(),
		"window_start": rec.WindowStart,
		"tx_count":     rec.TxCount,
		"bytes":        rec.Bytes,
		"limit":        s.limits.MaxTx,
		"max_bytes":    s.limits.MaxBytes,
		"remaining":    s.limits.Remaining(rec, now),
		"reset_epoch":  s.limits.WindowReset(rec),
		"epoch":        now,
	})
}

// forward delivers an admitted transaction to the configured upstream. With
// no upstream the gateway accepts it locally.
func (s *Server) forward(ctx context.Context, body []byte, contentType string) error {
	if s.config.Gateway.UpstreamURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Gateway.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.upstream.Do(req)
	if err != nil {
		return fmt.Errorf("forward to upstream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Server) writeQuotaHeaders(c *gin.Context, account string) {
	if account == "" {
		return
	}
	rec, _, err := s.records.Get(c.Request.Context(), account)
	if err != nil {
		return
	}
	now := s.clock.Now()
	c.Header("X-Quota-Limit", strconv.FormatUint(uint64(s.limits.MaxTx), 10))
	c.Header("X-Quota-Remaining", strconv.FormatUint(uint64(s.limits.Remaining(rec, now)), 10))
	c.Header("X-Quota-Reset", strconv.FormatUint(s.limits.WindowReset(rec), 10))
}

// retryAfter converts the epochs until the window rolls into wall seconds.
func (s *Server) retryAfter(ctx context.Context, account string) int {
	rec, _, err := s.records.Get(ctx, account)
	if err != nil {
		return int(s.config.Quota.EpochLength.Seconds())
	}
	now := s.clock.Now()
	reset := s.limits.WindowReset(rec)
	if reset <= now {
		return 0
	}
	return int(float64(reset-now) * s.config.Quota.EpochLength.Seconds())
}

func (s *Server) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info("gRPC request completed",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"error", err,
	)
	return resp, err
}
