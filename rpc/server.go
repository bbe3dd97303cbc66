// Package rpc exposes a thin, read-only HTTP surface over the hub's
// registries for operators and monitoring tooling: operation lookups,
// protocol snapshots, agent stake snapshots, and stream finalized data /
// Merkle roots, plus an admin-gated round-trigger endpoint. It deliberately
// carries no write surface over consensus-critical state beyond that one
// trigger; every other mutation happens through the native packages
// directly (an in-process caller, a p2p/ingestion layer, a CLI), none of
// which this package knows about.
package rpc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photon/rpc/auth"
)

// Server bundles every registry view the HTTP surface reads from.
type Server struct {
	Operations OperationView
	Protocols  ProtocolView
	Agents     AgentView
	Streams    StreamView
	Rounds     RoundTrigger

	Authenticator *auth.Authenticator
	RateLimit     RateLimitConfig
}

// New builds the chi router: request-id, access-log, and rate-limit
// middleware on every route, bearer-auth middleware gating the admin group
// on top of that. A zero-value RateLimit disables the limiter.
func New(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(NewRateLimiter(s.RateLimit).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/operations/{opHash}", s.handleOperation)
		v1.Get("/protocols/{protocolId}", s.handleProtocol)
		v1.Get("/protocols/{protocolId}/chains", s.handleProtocolChains)
		v1.Get("/protocols/{protocolId}/chains/{chainId}/state", s.handleChainState)
		v1.Get("/agents/{agentId}", s.handleAgent)
		v1.Get("/streams/{protocolId}/{sourceId}/root", s.handleMerkleRoot)
		v1.Get("/streams/{protocolId}/{sourceId}/{dataKey}", s.handleFinalizedValue)

		v1.Group(func(admin chi.Router) {
			if s.Authenticator != nil {
				admin.Use(s.Authenticator.Middleware("round:trigger"))
			}
			admin.Post("/round/turn", s.handleTurnRound)
		})
	})

	return r
}

type contextKey string

const requestIDKey contextKey = "rpc.request_id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger().Info("rpc request", "method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}
