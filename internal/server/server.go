// Package server exposes the pipeline over HTTP for the translating
// agent. Every response is JSON; delivery and save failures come back
// with their machine-readable code so the agent can react without
// parsing prose.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/valpere/transpipe/internal/chunks"
	"github.com/valpere/transpipe/internal/pipeline"
	"github.com/valpere/transpipe/internal/store"
)

// tokenCleanupGrace keeps recently expired tokens around long enough for
// a late save to get a precise error.
const tokenCleanupGrace = time.Hour

// Server is the HTTP surface over one pipeline.
type Server struct {
	pipe    *pipeline.Pipeline
	log     *zap.Logger
	engine  *gin.Engine
	metrics *metrics
	cron    *cron.Cron
}

// New builds the router and schedules the hourly token cleanup.
func New(pipe *pipeline.Pipeline, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	s := &Server{
		pipe:    pipe,
		log:     log,
		engine:  gin.New(),
		metrics: newMetrics(reg),
		cron:    cron.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestID(), s.logRequests())

	v1 := s.engine.Group("/v1")
	v1.GET("/next", s.handleNext)
	v1.GET("/articles/:id/chunks/:index", s.handleChunk)
	v1.POST("/articles/:id/validate", s.handleValidate)
	v1.POST("/articles/:id/save", s.handleSave)
	v1.POST("/articles/:id/skip", s.handleSkip)
	v1.GET("/progress", s.handleProgress)
	v1.POST("/session/reset", s.handleSessionReset)
	v1.PUT("/session/interval", s.handleSessionInterval)

	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	if _, err := s.cron.AddFunc("@hourly", s.cleanupTokens); err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves until the listener fails.
func (s *Server) Run(listen string) error {
	s.cleanupTokens()
	s.cron.Start()
	defer s.cron.Stop()
	s.log.Info("listening", zap.String("addr", listen))
	return s.engine.Run(listen)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) cleanupTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.pipe.Tokens().Cleanup(ctx, tokenCleanupGrace)
	if err != nil {
		s.log.Error("token cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.metrics.tokensCleaned.Add(float64(n))
		s.log.Info("tokens cleaned up", zap.Int64("removed", n))
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) handleNext(c *gin.Context) {
	sel, err := s.pipe.SelectNext(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, sel)
}

func (s *Server) handleChunk(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": chunks.CodeBadIndex, "message": "chunk index must be an integer"})
		return
	}

	chunk, err := s.pipe.RequestChunk(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		if de, ok := chunks.AsError(err); ok {
			c.JSON(deliveryStatus(de.Code), de)
			return
		}
		s.internalError(c, err)
		return
	}
	s.metrics.chunksServed.Inc()
	c.JSON(http.StatusOK, chunk)
}

func (s *Server) handleValidate(c *gin.Context) {
	var prop pipeline.Proposal
	if err := c.ShouldBindJSON(&prop); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}
	prop.ArticleID = c.Param("id")

	result, err := s.pipe.Validate(c.Request.Context(), &prop)
	if err != nil {
		if errors.Is(err, store.ErrArticleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": chunks.CodeArticleNotFound, "message": err.Error()})
			return
		}
		if de, ok := chunks.AsError(err); ok {
			c.JSON(deliveryStatus(de.Code), de)
			return
		}
		s.internalError(c, err)
		return
	}
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

func (s *Server) handleSave(c *gin.Context) {
	var in pipeline.SaveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}
	in.ArticleID = c.Param("id")

	result, err := s.pipe.Save(c.Request.Context(), &in)
	if err != nil {
		if errors.Is(err, store.ErrArticleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": chunks.CodeArticleNotFound, "message": err.Error()})
			return
		}
		if de, ok := chunks.AsError(err); ok {
			c.JSON(deliveryStatus(de.Code), de)
			return
		}
		s.internalError(c, err)
		return
	}
	if !result.Saved {
		s.metrics.savesRejected.WithLabelValues(result.Code).Inc()
		c.JSON(http.StatusUnprocessableEntity, result)
		return
	}
	s.metrics.savesAccepted.Inc()
	s.metrics.articlesDone.WithLabelValues("translated").Inc()
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSkip(c *gin.Context) {
	var body struct {
		FlagCode string `json:"flag_code"`
		Reason   string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}

	err := s.pipe.Skip(c.Request.Context(), c.Param("id"), body.FlagCode, body.Reason)
	if err != nil {
		if errors.Is(err, store.ErrArticleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": chunks.CodeArticleNotFound, "message": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	s.metrics.articlesDone.WithLabelValues("skipped").Inc()
	c.JSON(http.StatusOK, gin.H{"skipped": true})
}

func (s *Server) handleProgress(c *gin.Context) {
	pr, err := s.pipe.Progress(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

func (s *Server) handleSessionReset(c *gin.Context) {
	status, err := s.pipe.ResetSession(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleSessionInterval(c *gin.Context) {
	var body struct {
		Interval int `json:"interval"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body: " + err.Error()})
		return
	}
	if err := s.pipe.SetReviewInterval(c.Request.Context(), body.Interval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"interval": body.Interval})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request failed",
		zap.String("request_id", c.GetString("request_id")),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

func deliveryStatus(code string) int {
	switch code {
	case chunks.CodeArticleNotFound:
		return http.StatusNotFound
	case chunks.CodeBadIndex:
		return http.StatusBadRequest
	default:
		// PAYWALLED, NOT_CACHED, NO_SOURCE, EXTRACT_FAILED: the request
		// was fine, the document is not workable.
		return http.StatusConflict
	}
}
