package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/evmbootstrap/pkg/config"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/contracts"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/logging"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/node"
	"github.com/DeBrosOfficial/evmbootstrap/pkg/peercache"
)

// Deps are the node services the gateway reads from. Cache may be nil
// when peer caching is disabled.
type Deps struct {
	Host      host.Host
	Discovery contracts.Discovery
	Cache     *peercache.Cache
	Usage     func() node.Usage
}

// Gateway serves the node's HTTP status and control surface.
type Gateway struct {
	logger    *logging.ColoredLogger
	config    *config.GatewayConfig
	deps      Deps
	router    chi.Router
	server    *http.Server
	startedAt time.Time
}

// NewGateway builds the router. Returns nil when the gateway is disabled.
func NewGateway(logger *logging.ColoredLogger, cfg *config.GatewayConfig, deps Deps) (*Gateway, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if logger == nil {
		var err error
		logger, err = logging.NewColoredLogger(logging.ComponentGateway, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	g := &Gateway{
		logger:    logger,
		config:    cfg,
		deps:      deps,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}

	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.RealIP)
	g.router.Use(g.loggingMiddleware)
	g.router.Use(middleware.Recoverer)
	g.router.Use(middleware.Timeout(30 * time.Second))

	g.router.Get("/health", g.healthHandler)
	g.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", g.healthHandler)
		r.Get("/status", g.statusHandler)
		r.Get("/peers", g.peersHandler)
		r.Get("/discovery", g.discoveryHandler)
		r.Post("/discovery/start", g.discoveryStartHandler)
		r.Post("/discovery/stop", g.discoveryStopHandler)
		r.Get("/cache/peers", g.cachePeersHandler)
	})

	return g, nil
}

// loggingMiddleware logs basic request info and duration.
func (g *Gateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		g.logger.ComponentInfo(logging.ComponentGateway, "request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("duration", time.Since(start).String()),
		)
	})
}

// Start serves until the context is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	if g == nil {
		return nil
	}

	g.server = &http.Server{
		Addr:    g.config.ListenAddr,
		Handler: g.router,
	}

	listener, err := net.Listen("tcp", g.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.config.ListenAddr, err)
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "Gateway starting",
		zap.String("listen_addr", g.config.ListenAddr))

	go func() {
		if err := g.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			g.logger.ComponentError(logging.ComponentGateway, "Gateway server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	return g.Stop()
}

// Stop shuts the server down gracefully.
func (g *Gateway) Stop() error {
	if g == nil || g.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.ComponentError(logging.ComponentGateway, "Gateway shutdown error", zap.Error(err))
		return err
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "Gateway shutdown complete")
	return nil
}

// Router exposes the chi router for tests.
func (g *Gateway) Router() chi.Router {
	return g.router
}
