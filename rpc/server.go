// Package rpc exposes the escrow host over HTTP.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cyberswap/core/host"
	"cyberswap/core/types"
	"cyberswap/indexer"
	"cyberswap/native/escrow"
)

// Backend is the escrow host as seen by the HTTP layer.
type Backend interface {
	Execute(ctx context.Context, info escrow.Info, msg escrow.ExecuteMsg) (*host.Result, error)
	SendToken(ctx context.Context, sender, contract types.Address, amount *uint256.Int, hook []byte) (*host.Result, error)
	SendNFT(ctx context.Context, sender, collection types.Address, tokenID string, hook []byte) (*host.Result, error)
	Approve(ctx context.Context, owner, collection types.Address, tokenID string, spender types.Address, expires escrow.Expiration) (*host.Result, error)
	Revoke(ctx context.Context, owner, collection types.Address, tokenID string, spender types.Address) (*host.Result, error)
	Query(ctx context.Context, msg escrow.QueryMsg) (any, error)
	Balance(ctx context.Context, addr types.Address, denom string) (*uint256.Int, error)
	TokenBalance(ctx context.Context, contract, holder types.Address) (*uint256.Int, error)
	NFT(ctx context.Context, collection types.Address, tokenID string) (escrow.NFTAccess, error)
	Height(ctx context.Context) (uint64, error)
}

var _ Backend = (*host.Host)(nil)

// EventSource answers event history queries.
type EventSource interface {
	Find(ctx context.Context, f indexer.Filter) ([]types.Event, error)
}

// Timeouts bound the HTTP server.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// Options configure a Server.
type Options struct {
	Backend      Backend
	Events       EventSource
	Logger       *slog.Logger
	Auth         *Authenticator
	RateLimiter  *RateLimiter
	MaxBodyBytes int64
	Timeouts     Timeouts
}

// Server routes HTTP requests to the backend.
type Server struct {
	backend  Backend
	events   EventSource
	logger   *slog.Logger
	auth     *Authenticator
	limiter  *RateLimiter
	maxBody  int64
	timeouts Timeouts
}

// NewServer builds a server. A nil limiter or authenticator disables that
// layer.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Server{
		backend:  opts.Backend,
		events:   opts.Events,
		logger:   logger.With("component", "rpc"),
		auth:     opts.Auth,
		limiter:  opts.RateLimiter,
		maxBody:  maxBody,
		timeouts: opts.Timeouts,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v chi.Router) {
		s.route(v, http.MethodPost, "/execute", s.handleExecute)
		s.route(v, http.MethodPost, "/send-token", s.handleSendToken)
		s.route(v, http.MethodPost, "/send-nft", s.handleSendNFT)
		s.route(v, http.MethodPost, "/approve", s.handleApprove)
		s.route(v, http.MethodPost, "/revoke", s.handleRevoke)
		s.route(v, http.MethodPost, "/query", s.handleQuery)

		s.route(v, http.MethodGet, "/config", s.handleConfig)
		s.route(v, http.MethodGet, "/admin", s.handleAdmin)
		s.route(v, http.MethodGet, "/height", s.handleHeight)
		s.route(v, http.MethodGet, "/listings", s.handleListings)
		s.route(v, http.MethodGet, "/listings/{id}", s.handleListing)
		s.route(v, http.MethodGet, "/market", s.handleMarket)
		s.route(v, http.MethodGet, "/buckets/{owner}", s.handleBuckets)
		s.route(v, http.MethodGet, "/balances/{address}/{denom}", s.handleBalance)
		s.route(v, http.MethodGet, "/tokens/{contract}/balances/{holder}", s.handleTokenBalance)
		s.route(v, http.MethodGet, "/nfts/{collection}/{tokenID}", s.handleNFT)
		s.route(v, http.MethodGet, "/events", s.handleEvents)
	})
	return r
}

// route registers h behind the rate limiter, tracing and request metrics, all
// labelled by pattern.
func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	name := "/v1" + pattern
	handler := s.instrument(name, s.limiter.Wrap(name, h))
	r.Method(method, pattern, otelhttp.NewHandler(handler, name))
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.timeouts.ReadHeader,
		ReadTimeout:       s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
		IdleTimeout:       s.timeouts.Idle,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "listen", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
