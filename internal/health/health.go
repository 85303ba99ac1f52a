// Package health serves the ops endpoints shared by both the scheduler and
// worker processes: /healthz, /readyz, /metrics.
package health

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes liveness/readiness over HTTP. Readiness starts false and
// is flipped true once the caller's main loop has finished startup
// (pool ping, etc.), and flipped back to false during graceful shutdown so
// a load balancer stops routing new traffic before the process exits.
type Server struct {
	mu    sync.RWMutex
	ready bool

	engine *gin.Engine
	srv    *http.Server
}

// NewServer wires /metrics to gatherer, the same *prometheus.Registry the
// caller registered its collectors on. Passing promhttp.Handler()'s default
// gatherer here would silently serve an empty scrape, since every collector
// in this codebase is registered on a purpose-built registry, not the global
// default one.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		srv:    &http.Server{Addr: addr, Handler: engine},
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", func(c *gin.Context) {
		if s.Ready() {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// ListenAndServe blocks until the server is closed. Run it in its own
// goroutine.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Close() error {
	return s.srv.Close()
}
