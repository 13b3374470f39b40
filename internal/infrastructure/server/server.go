package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/app"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
)

const (
	shutdownTimeout    = 5 * time.Second
	goroutineThreshold = 10_000
)

// Server is the simulator's introspection server.
type Server struct {
	router  *gin.Engine
	kernel  *simkernel.Kernel
	apps    *app.Manager
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// Config holds what the server exposes.
type Config struct {
	Kernel   *simkernel.Kernel
	Apps     *app.Manager
	Metrics  *monitoring.Metrics // optional
	Gatherer prometheus.Gatherer // serves /metrics when Metrics is set
	Logger   *zap.Logger
	Release  bool
}

// New creates the server and its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:  router,
		kernel:  cfg.Kernel,
		apps:    cfg.Apps,
		metrics: cfg.Metrics,
		logger:  logger,
	}

	if s.metrics != nil {
		router.Use(monitoring.Middleware(s.metrics))
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
		router.GET("/metrics/json", s.metricsSnapshot)
	}

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(goroutineThreshold))
	health.AddReadinessCheck("services", s.servicesReady)

	router.GET("/health", s.health)
	router.GET("/live", gin.WrapF(health.LiveEndpoint))
	router.GET("/ready", gin.WrapF(health.ReadyEndpoint))

	debug := router.Group("/debug")
	debug.GET("/processes", s.processes)
	debug.GET("/handles", s.handles)
	debug.GET("/memory", s.memory)
	debug.GET("/services", s.services)
	debug.GET("/console", s.console)
	debug.GET("/errors", s.errorReports)

	router.GET("/apps", s.listApps)
	router.POST("/apps", s.spawnApp)
	router.GET("/apps/:id", s.getApp)
	router.DELETE("/apps/:id", s.stopApp)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting debug server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down debug server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(c *gin.Context, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "application/json; charset=utf-8", b)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, gin.H{"error": msg})
}

// pidQuery reads the optional pid filter; 0 means every process.
func pidQuery(c *gin.Context) (uint32, bool) {
	raw := c.Query("pid")
	if raw == "" {
		return 0, true
	}
	pid, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid pid")
		return 0, false
	}
	return uint32(pid), true
}

func (s *Server) health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":       "ok",
		"processes":    len(s.kernel.Processes()),
		"live_handles": s.kernel.LiveHandles(),
	})
}

// servicesReady fails until the built-in services are registered.
func (s *Server) servicesReady() error {
	if len(s.kernel.Services()) == 0 {
		return errors.New("no services registered")
	}
	return nil
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) processes(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.kernel.Processes())
}

func (s *Server) handles(c *gin.Context) {
	if pid, ok := pidQuery(c); ok {
		writeJSON(c, http.StatusOK, s.kernel.Handles(pid))
	}
}

func (s *Server) memory(c *gin.Context) {
	if pid, ok := pidQuery(c); ok {
		writeJSON(c, http.StatusOK, s.kernel.Memory(pid))
	}
}

func (s *Server) services(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.kernel.Services())
}

func (s *Server) console(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.kernel.DebugOutput())
}

func (s *Server) errorReports(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.kernel.ErrorReports())
}

func (s *Server) listApps(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.apps.List())
}

type spawnRequest struct {
	Name       string `json:"name"`
	Rounds     int    `json:"rounds"`
	IntervalMS int    `json:"interval_ms"`
}

func (s *Server) spawnApp(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	var req spawnRequest
	if err := sonic.Unmarshal(body, &req); err != nil || req.Name == "" {
		writeError(c, http.StatusBadRequest, "body must be {\"name\": ..., \"rounds\": ..., \"interval_ms\": ...}")
		return
	}

	cfg := app.DefaultConfig()
	cfg.Rounds = req.Rounds
	if req.IntervalMS > 0 {
		cfg.Interval = time.Duration(req.IntervalMS) * time.Millisecond
	}
	a, err := s.apps.Spawn(req.Name, cfg)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusCreated, a.Info())
}

func (s *Server) getApp(c *gin.Context) {
	a, ok := s.apps.Get(id.AppID(c.Param("id")))
	if !ok {
		writeError(c, http.StatusNotFound, "app not found")
		return
	}
	writeJSON(c, http.StatusOK, a.Info())
}

func (s *Server) stopApp(c *gin.Context) {
	if !s.apps.Stop(id.AppID(c.Param("id"))) {
		writeError(c, http.StatusNotFound, "app not found")
		return
	}
	c.Status(http.StatusNoContent)
}
