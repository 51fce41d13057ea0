// Package server exposes job triggers over HTTP for external cron services.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"etfwatch/internal/jobs"
)

// SecretHeader carries the trigger secret when the query parameter is not used.
const SecretHeader = "X-Cron-Secret"

// JobRunner is the subset of jobs.Runner the server needs.
type JobRunner interface {
	Run(ctx context.Context, name string) (jobs.Result, error)
	Names() []string
}

// Options configure the HTTP server.
type Options struct {
	Addr     string
	Secret   string
	Location *time.Location
	// RatePerMinute caps trigger requests per client IP; zero disables it.
	RatePerMinute int
	// Now overrides the clock used by /health.
	Now func() time.Time
}

// Server routes trigger requests to the job runner.
type Server struct {
	opts   Options
	runner JobRunner
	engine *gin.Engine
	logger zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds the router. An empty secret rejects every trigger.
func New(opts Options, runner JobRunner, logger zerolog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:     opts,
		runner:   runner,
		logger:   logger.With().Str("component", "server").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())
	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cron := engine.Group("/cron", s.throttle(), s.requireSecret())
	{
		cron.POST("/:job", s.trigger)
		cron.GET("/:job", s.trigger)
	}
	s.engine = engine
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("http server stopped")
		return nil
	}
}

func (s *Server) throttle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.RatePerMinute <= 0 {
			c.Next()
			return
		}
		if !s.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(s.opts.RatePerMinute)/60.0), s.opts.RatePerMinute)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.Query("secret")
		if given == "" {
			given = c.GetHeader(SecretHeader)
		}
		if s.opts.Secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(s.opts.Secret)) != 1 {
			s.logger.Warn().Str("path", c.Request.URL.Path).Str("client", c.ClientIP()).Msg("rejected trigger with invalid secret")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret"})
			return
		}
		c.Next()
	}
}

func (s *Server) trigger(c *gin.Context) {
	name := c.Param("job")
	res, err := s.runner.Run(c.Request.Context(), name)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": err.Error(), "jobs": s.runner.Names()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "job": name, "run_id": res.RunID, "message": err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   s.opts.Now().In(s.opts.Location).Format("2006-01-02 15:04:05"),
		"jobs":   s.runner.Names(),
	})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}
