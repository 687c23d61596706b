// Package server exposes the chat, summarization and profile endpoints over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theracowch/cowch/pkg/compression"
	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/metrics"
	"github.com/theracowch/cowch/pkg/persona"
	"github.com/theracowch/cowch/pkg/profile"
)

type Deps struct {
	Store      *profile.Store
	Compressor *compression.Compressor
	Chat       *persona.ChatService
	// Summarizer backs /api/compress-profile. It must not be an
	// HTTPSummarizer pointing back at this server.
	Summarizer compression.Summarizer
}

type Options struct {
	Addr           string
	Mode           string
	AllowOrigins   []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	deps   Deps
	opts   Options
	engine *gin.Engine

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
}

func New(deps Deps, opts Options) *Server {
	switch opts.Mode {
	case gin.DebugMode, gin.TestMode, gin.ReleaseMode:
		gin.SetMode(opts.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:     deps,
		opts:     opts,
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(accessLogMiddleware())
	r.Use(corsMiddleware(s.opts.AllowOrigins))

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(rateLimitMiddleware(s.opts.RateLimitRPS, s.opts.RateLimitBurst))
	api.Use(userMiddleware())
	{
		api.POST("/chat", s.handleChat)
		api.POST("/compress-profile", s.handleCompressProfile)

		api.GET("/profile", s.handleGetProfile)
		api.POST("/profile/compress", s.handleForceCompress)
		api.GET("/history", s.handleGetHistory)
		api.POST("/history", s.handleAppendHistory)
		api.GET("/context", s.handleGetContext)
		api.POST("/imagine", s.handleImagine)
		api.DELETE("/data", s.handleClearData)
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	logger.InfoCF("server", "HTTP server listening", map[string]interface{}{"addr": s.opts.Addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, cancels background compressions and
// waits for them to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// WaitBackground blocks until in-flight background compressions finish.
func (s *Server) WaitBackground() {
	s.bgWG.Wait()
}

func (s *Server) compressInBackground(userID string) {
	if s.deps.Compressor == nil {
		return
	}
	if s.bgCtx.Err() != nil {
		return
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.deps.Compressor.MaybeCompress(s.bgCtx, userID)
	}()
}
