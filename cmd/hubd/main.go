// Command hubd runs the cross-chain coordination hub: every native
// registry wired together, fronted by the read-mostly HTTP surface in the
// rpc package.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"photon/config"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
	"photon/native/agent"
	"photon/native/bet"
	"photon/native/consensus/round"
	"photon/native/endpoint"
	"photon/native/ledger"
	"photon/native/operation"
	"photon/native/protocol"
	"photon/native/staking"
	"photon/native/stream"
	"photon/observability/logging"
	"photon/rpc"
	"photon/rpc/auth"
)

func main() {
	var cfgPath string
	var listenAddr string
	flag.StringVar(&cfgPath, "config", "hub.toml", "path to hub configuration")
	flag.StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides HUB_LISTEN_ADDR)")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("HUB_ENV"))
	logger := logging.Setup("hubd", env)
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	authorities := loadAuthorities()
	emitter := &events.CollectingEmitter{}

	server, coordinator := wire(cfg, authorities, emitter)

	addr := listenAddr
	if addr == "" {
		addr = strings.TrimSpace(os.Getenv("HUB_LISTEN_ADDR"))
	}
	if addr == "" {
		addr = ":8080"
	}

	authEnabled := strings.EqualFold(strings.TrimSpace(os.Getenv("HUB_AUTH_ENABLED")), "true")
	authenticator := auth.NewAuthenticator(auth.Config{
		Enabled: authEnabled,
		Secret:  os.Getenv("HUB_AUTH_SECRET"),
		Issuer:  os.Getenv("HUB_AUTH_ISSUER"),
	})

	handler := rpc.New(&rpc.Server{
		Operations:    server.operations,
		Protocols:     server.protocols,
		Agents:        server.staking,
		Streams:       server.streams,
		Rounds:        coordinator,
		Authenticator: authenticator,
		RateLimit:     rateLimitFromEnv(),
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen", "addr", addr, "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("hubd listening", "addr", listener.Addr().String())
		if serveErr := httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve", "error", serveErr)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("hubd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// authorities collects every identity trusted for one or more of the
// native registries' admin-gated capabilities. A production deployment
// supplies these through environment variables; a dev run falls back to
// fixed well-known identities, a distinct one for each.
type authorities struct {
	admin        crypto.Identity
	roundManager crypto.Identity
	endpoint     crypto.Identity
	pruner       crypto.Identity
	localChainId types.ChainId
	govProtoId   types.ProtocolId
	bootstrapTx  types.TransmitterId
}

func loadAuthorities() authorities {
	admin := identityFromEnv("HUB_ADMIN_ADDR", "0x00000000000000000000000000000000000000ad")
	roundManager := identityFromEnv("HUB_ROUND_MANAGER_ADDR", "0x000000000000000000000000000000000000ff01")
	endpointId := identityFromEnv("HUB_ENDPOINT_ADDR", "0x000000000000000000000000000000000000ff02")
	pruner := identityFromEnv("HUB_PRUNER_ADDR", "0x000000000000000000000000000000000000ff03")
	bootstrapTx := identityFromEnv("HUB_BOOTSTRAP_TRANSMITTER_ADDR", "0x000000000000000000000000000000000000ff04")
	return authorities{
		admin:        admin,
		roundManager: roundManager,
		endpoint:     endpointId,
		pruner:       pruner,
		localChainId: types.NewChainId(chainIdFromEnv()),
		govProtoId:   types.ProtocolIdFromString("gov"),
		bootstrapTx:  bootstrapTx,
	}
}

// rateLimitFromEnv reads the per-client token-bucket limit the RPC surface
// enforces. Defaults to 20 requests/sec with a burst of 40; set
// HUB_RATE_LIMIT_RPS to 0 to disable limiting entirely (useful for local
// development and the integration test harness).
func rateLimitFromEnv() rpc.RateLimitConfig {
	rps := 20.0
	if raw := strings.TrimSpace(os.Getenv("HUB_RATE_LIMIT_RPS")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 {
			rps = parsed
		}
	}
	burst := 40
	if raw := strings.TrimSpace(os.Getenv("HUB_RATE_LIMIT_BURST")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			burst = parsed
		}
	}
	return rpc.RateLimitConfig{RequestsPerSecond: rps, Burst: burst}
}

func chainIdFromEnv() uint64 {
	raw := strings.TrimSpace(os.Getenv("HUB_LOCAL_CHAIN_ID"))
	if raw == "" {
		return 1
	}
	var v uint64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 1
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}

func identityFromEnv(key, fallbackHex string) crypto.Identity {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = fallbackHex
	}
	id, err := crypto.IdentityFromBytes(common.FromHex(raw))
	if err != nil {
		id, _ = crypto.IdentityFromBytes(common.FromHex(fallbackHex))
	}
	return id
}

// hub bundles the registries the RPC server reads through, named the way
// the RPC views group them.
type hub struct {
	operations *operation.Registry
	protocols  *protocol.Registry
	staking    *staking.Ledger
	streams    *stream.Registry
}

func wire(cfg *config.GlobalConfig, authz authorities, emitter events.Emitter) (*hub, *round.Coordinator) {
	tokens := ledger.New()
	tokens.Fund(authz.admin, 100_000_000)

	stakingLedger := staking.NewLedger(cfg, staking.Authority{
		Admin:        authz.admin,
		BetManager:   authz.admin,
		RoundManager: authz.roundManager,
	}, emitter)

	opRef := &operationRef{}
	protocolRegistry := protocol.NewRegistry(cfg, protocol.Authority{
		Admin:        authz.admin,
		RoundManager: authz.roundManager,
	}, authz.govProtoId, opRef, opRef, opRef, opRef, emitter)

	agentDirectory := agent.NewDirectory(cfg, agent.Authority{Admin: authz.admin}, stakingLedger, protocolRegistry, emitter)

	betRef := &betRef{}
	endpointRef := &endpointRef{}
	operationRegistry := operation.NewRegistry(cfg, operation.Authority{
		Endpoint: authz.endpoint,
		Admin:    authz.admin,
	}, authz.govProtoId, betRef, protocolRegistry, endpointRef, emitter)
	opRef.target = operationRegistry

	betBook := bet.NewBook(cfg, bet.Authority{
		Self:   authz.admin,
		Pruner: authz.pruner,
	}, stakingLedger, protocolRegistry, agentDirectory, operationRegistry, tokens, emitter)
	betRef.target = betBook

	endpointEmitter := endpoint.NewEmitter(authz.govProtoId, authz.localChainId, operationRegistry)
	endpointRef.target = endpointEmitter

	streamRegistry := stream.NewRegistry(stream.Authority{Admin: authz.admin}, betBook, protocolRegistry, emitter)

	roundCoordinator := round.NewCoordinator(cfg, round.Authority{Trigger: authz.roundManager},
		stakingLedger, protocolRegistry, protocolRegistry, agentDirectory, stakingLedger, operationRegistry, streamRegistry)

	bootstrapGovProtocol(protocolRegistry, authz, tokens)

	return &hub{
		operations: operationRegistry,
		protocols:  protocolRegistry,
		staking:    stakingLedger,
		streams:    streamRegistry,
	}, roundCoordinator
}

// bootstrapGovProtocol registers the reserved governance protocol so
// IsGovProtocol-gated paths (fee-free bets, ProposeInternalOperation) have
// a real protocol record to attach to from the first round onward.
func bootstrapGovProtocol(protocolRegistry *protocol.Registry, authz authorities, tokens *ledger.Ledger) {
	params := protocol.Params{
		ConsensusTargetRateBps: 6000,
		MaxTransmitters:        1,
		MinDelegateStake:       0,
		MinPersonalStake:       0,
		MsgBetAmount:           0,
		DataBetAmount:          0,
		MsgBetFirstReward:      0,
		MsgBetReward:           0,
		DataBetFirstReward:     0,
		DataBetReward:          0,
		ProtocolFee:            0,
	}
	manual := []types.TransmitterId{authz.bootstrapTx}
	if err := protocolRegistry.RegisterProtocol(authz.admin, authz.govProtoId, params, manual, true, tokens); err != nil {
		slog.Default().Warn("bootstrap gov protocol registration failed", "error", err)
	}
}
