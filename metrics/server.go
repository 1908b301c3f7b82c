package metrics

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
	"github.com/saiset-co/sai-aggregator/utils"
)

// Server exposes a metrics manager over a dedicated fasthttp listener:
// prometheus text format for PrometheusMetrics, a JSON snapshot for MemoryMetrics.
type Server struct {
	logger  types.Logger
	path    string
	addr    string
	server  *fasthttp.Server
	handler fasthttp.RequestHandler
}

func NewServer(config *types.MetricsConfig, manager types.MetricsManager, logger types.Logger) (*Server, error) {
	cfg := types.MetricsHTTPConfig{}
	if config != nil {
		cfg = config.HTTP
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	s := &Server{
		logger: logger,
		path:   cfg.Path,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}

	switch m := manager.(type) {
	case *PrometheusMetrics:
		s.handler = fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	case *MemoryMetrics:
		s.handler = s.memoryHandler(m)
	default:
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "cannot serve %T", manager)
	}

	s.server = &fasthttp.Server{
		Name:         "sai-aggregator-metrics",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      s.Handle,
	}

	return s, nil
}

func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != s.path {
		utils.CreateErrorResponse(ctx, fasthttp.StatusNotFound, "unknown path")
		return
	}
	s.handler(ctx)
}

func (s *Server) memoryHandler(m *MemoryMetrics) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		data, err := utils.Marshal(m.Snapshot())
		if err != nil {
			utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}

		ctx.Response.Header.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusOK)
		if _, err = ctx.Write(data); err != nil {
			s.logger.Error("Failed to write metrics", zap.Error(err))
		}
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Metrics server listening", zap.String("addr", s.addr), zap.String("path", s.path))
		errCh <- s.server.ListenAndServe(s.addr)
	}()

	select {
	case err := <-errCh:
		return types.WrapError(err, "metrics server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Warn("Metrics server shutdown error", zap.Error(err))
		}
		return nil
	}
}
