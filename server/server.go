// Package server 运行定价 HTTP 接口，ctx 取消时优雅关闭.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optionpricer/config"
)

// NewEngine 不带默认中间件的 Gin 引擎，中间件集合与顺序由调用方决定。
func NewEngine(middlewares ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(middlewares...)
	return engine
}

// GinServer 包装 http.Server。
type GinServer struct {
	server          *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewGinServer 按 cfg 的监听地址与关闭超时创建服务器。
func NewGinServer(engine *gin.Engine, cfg config.ServerConfig, logger *slog.Logger) *GinServer {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GinServer{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger:          logger,
		shutdownTimeout: timeout,
	}
}

// Start 监听 cfg.Addr 并阻塞，直到 ctx 取消（优雅关闭，返回 nil）或监听失败。
func (s *GinServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 同 Start，使用已有的 listener。
func (s *GinServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("http server starting", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server stopping", "timeout", s.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
