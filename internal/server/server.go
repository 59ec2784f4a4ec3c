// Package server exposes the marketplace over HTTP: transaction submission,
// read views, the log index and the websocket feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nft_market/internal/domain"
	"nft_market/internal/engine"
	"nft_market/internal/event"
	"nft_market/internal/execution"
	"nft_market/internal/infra"
	"nft_market/internal/infra/storage"
	"nft_market/internal/market"

	"github.com/ethereum/go-ethereum/common"
)

// Engine is the transaction sequencer as seen by the API.
type Engine interface {
	Submit(ctx context.Context, tx engine.Tx) (*event.Receipt, error)
	View(fn func(m *market.Market, c *execution.Chain))
	NextSeq() uint64
	Nonce(account common.Address) uint64
}

// LogStore is the persisted transaction and log index.
type LogStore interface {
	GetTx(ctx context.Context, hash string) (*domain.TxRecord, error)
	ListLogs(ctx context.Context, f storage.LogFilter) ([]domain.LogRecord, error)
}

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // if empty, authentication is disabled
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	engine     Engine
	store      LogStore
	metrics    *infra.Metrics
	logger     *slog.Logger
}

// NewServer registers every route. store and feed may be nil; the routes
// they back then answer 503.
func NewServer(cfg Config, eng Engine, store LogStore, feed http.HandlerFunc, metrics *infra.Metrics, logger *slog.Logger) *Server {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  eng,
		store:   store,
		metrics: metrics,
		logger:  logger.With(slog.String("module", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/tx", s.handleSubmit)
	mux.HandleFunc("GET /api/tx/{hash}", s.handleGetTx)
	mux.HandleFunc("GET /api/nonces/{account}", s.handleNonce)
	mux.HandleFunc("GET /api/methods", s.handleMethods)

	mux.HandleFunc("GET /api/items/{collection}/{id}", s.handleItem)
	mux.HandleFunc("GET /api/auctions/{collection}/{id}", s.handleAuction)
	mux.HandleFunc("GET /api/fees/{token}", s.handleFee)
	mux.HandleFunc("GET /api/tokens/{token}", s.handleToken)
	mux.HandleFunc("GET /api/balances/{token}/{account}", s.handleBalance)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	if feed != nil {
		mux.HandleFunc("GET /ws", feed)
	}

	var h http.Handler = mux
	h = Auth(cfg.APIKey)(h)
	h = Logging(s.logger, metrics)(h)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler (for tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
