// Package control is the administrative plane: account status overrides and
// the deployment policy document. It never sits on the admission hot path.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/tollgate/tollgate/internal/admin"
	"github.com/tollgate/tollgate/internal/config"
	"github.com/tollgate/tollgate/internal/metrics"
	"github.com/tollgate/tollgate/internal/quota"
	"github.com/tollgate/tollgate/internal/store"
)

const policyKey = "/tollgate/policy"

// QuotaPolicy is the operator-facing policy document kept in etcd. It records
// the deployment's window constants; gateways read their enforced limits from
// the environment at startup, this document is the operators' source of truth.
type QuotaPolicy struct {
	MaxTxPerWindow    uint32    `json:"max_tx_per_window"`
	MaxBytesPerWindow uint32    `json:"max_bytes_per_window"`
	WindowEpochs      uint64    `json:"window_epochs"`
	Updated           time.Time `json:"updated"`
}

type Server struct {
	config     *config.Config
	logger     *slog.Logger
	etcd       *clientv3.Client
	records    *store.Redis
	status     *admin.StatusManager
	httpServer *http.Server
}

func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	// The control plane always works against the shared store: status flips
	// must be visible to every gateway.
	records := store.NewRedis(store.RedisConfig(cfg.Redis))

	var m *metrics.Admission
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}
	notifier := admin.RedisNotifier{Client: records.Client(), Logger: logger}

	return &Server{
		config:  cfg,
		logger:  logger,
		etcd:    etcdClient,
		records: records,
		status:  admin.NewStatusManager(records, notifier, logger, m),
	}, nil
}

func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"remote_addr", c.ClientIP(),
		)
	})

	router.GET("/health", s.handleHealth)
	if s.config.Observability.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(s.adminAuth())
	{
		api.GET("/accounts/:account", s.handleGetAccount)
		api.PUT("/accounts/:account/status", s.handleSetStatus)
		api.GET("/policy", s.handleGetPolicy)
		api.PUT("/policy", s.handlePutPolicy)
	}

	s.httpServer = &http.Server{
		Addr:         s.config.Control.Address,
		Handler:      router,
		ReadTimeout:  s.config.Control.ReadTimeout,
		WriteTimeout: s.config.Control.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("control plane server started", "address", s.config.Control.Address)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down control plane server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	if err := s.records.Close(); err != nil {
		s.logger.Error("failed to close record store", "error", err)
	}
	if s.etcd != nil {
		return s.etcd.Close()
	}
	return nil
}

// adminAuth gates every administrative endpoint behind the configured bearer
// token. An empty token locks the API.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if s.config.Control.AdminToken == "" || token != s.config.Control.AdminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin token required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "healthy"

	if _, err := s.etcd.Status(ctx, s.config.Etcd.Endpoints[0]); err != nil {
		status = "unhealthy"
		checks["etcd"] = fmt.Sprintf("error: %v", err)
	} else {
		checks["etcd"] = "healthy"
	}
	if err := s.records.Ping(ctx); err != nil {
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
		"status":    status,
		"service":   "tollgate-control",
		"version":   s.config.Observability.ServiceVersion,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleGetAccount(c *gin.Context) {
	account := c.Param("account")

	rec, err := s.status.Record(c.Request.Context(), account)
	if errors.Is(err, admin.ErrUnknownAccount) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		s.logger.Error("account lookup failed", "account", account, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":      account,
		"status":       rec.Status.String(),
		"window_start": rec.WindowStart,
		"tx_count":     rec.TxCount,
		"bytes":        rec.Bytes,
	})
}

func (s *Server) handleSetStatus(c *gin.Context) {
	account := c.Param("account")

	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := quota.ParseStatus(body.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = s.status.SetStatus(c.Request.Context(), account, status)
	if errors.Is(err, admin.ErrUnknownAccount) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	if err != nil {
		s.logger.Error("status change failed", "account", account, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account, "status": status.String()})
}

func (s *Server) handleGetPolicy(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp, err := s.etcd.Get(ctx, policyKey)
	if err != nil {
		s.logger.Error("failed to get policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve policy"})
		return
	}
	if len(resp.Kvs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no policy document"})
		return
	}

	var policy QuotaPolicy
	if err := json.Unmarshal(resp.Kvs[0].Value, &policy); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to parse policy"})
		return
	}
	c.JSON(http.StatusOK, policy)
}

func (s *Server) handlePutPolicy(c *gin.Context) {
	var policy QuotaPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if policy.MaxBytesPerWindow == 0 || policy.WindowEpochs == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_bytes_per_window and window_epochs must be positive"})
		return
	}
	policy.Updated = time.Now().UTC()

	data, err := json.Marshal(policy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to marshal policy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.etcd.Put(ctx, policyKey, string(data)); err != nil {
		s.logger.Error("failed to store policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store policy"})
		return
	}
	c.JSON(http.StatusOK, policy)
}
