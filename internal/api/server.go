// Package api exposes targeting runs over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fctarget/internal"
	apperrors "fctarget/internal/errors"
)

// Server wires the run handler, SSE hub and operational endpoints into gin
type Server struct {
	router  *gin.Engine
	runs    *RunHandler
	hub     *SSEHub
	logger  *internal.Logger
	httpSrv *http.Server
}

// NewServer builds the router
func NewServer(runs *RunHandler, hub *SSEHub, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router: gin.New(),
		runs:   runs,
		hub:    hub,
		logger: logger.Component("http"),
	}
	s.router.Use(gin.CustomRecovery(s.recoverPanic), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.POST("/runs", s.runs.CreateRun)
	v1.GET("/runs", s.runs.ListRuns)
	v1.GET("/runs/:id", s.runs.GetRun)
	v1.GET("/runs/:id/events", s.hub.HandleSSE)
}

func (s *Server) recoverPanic(c *gin.Context, v interface{}) {
	s.logger.Error("[HTTP] panic serving %s: %v", c.Request.URL.Path, v)
	respondError(c, apperrors.InternalError("internal server error"))
	c.Abort()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[HTTP] %s %s %d %s", c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Handler returns the HTTP handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("[HTTP] listening on %s", addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels in-flight runs and closes the hub
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.runs.Shutdown()
	s.hub.Close()
	return err
}
