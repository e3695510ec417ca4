package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dnodevkis/tg-news-bot/internal/handler"
	"github.com/dnodevkis/tg-news-bot/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	router *gin.Engine
	status handler.StatusHandler
	secret []byte
	logger *zap.Logger
}

func NewServer(status handler.StatusHandler, jwtSecret string, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	s := &Server{
		router: router,
		status: status,
		secret: []byte(jwtSecret),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.status.Health)

	api := s.router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(s.secret, s.logger))
	{
		api.GET("/status", s.status.GetStatus)
		api.GET("/scheduled", s.status.GetScheduled)
		api.GET("/sessions", s.status.GetSessions)
		api.POST("/check", s.status.TriggerCheck)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
