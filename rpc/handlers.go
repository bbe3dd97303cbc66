package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"photon/core/types"
	"photon/crypto"
	"photon/rpc/auth"
)

func callerFromContext(ctx context.Context) (crypto.Identity, bool) {
	return auth.CallerFromContext(ctx)
}

var defaultLogger = slog.Default()

func logger() *slog.Logger { return defaultLogger }

var (
	errBadOpHash  = stderrors.New("rpc: malformed operation hash")
	errBadChainId = stderrors.New("rpc: malformed chain id")
	errBadAgentId = stderrors.New("rpc: malformed agent id")
	errNotFound   = stderrors.New("rpc: not found")
	errNoCaller   = stderrors.New("rpc: no authenticated caller")
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseOpHash(s string) (types.OpHash, bool) {
	raw := common.FromHex(s)
	if len(raw) != 32 {
		return types.OpHash{}, false
	}
	var h types.OpHash
	copy(h[:], raw)
	return h, true
}

func parseChainId(s string) (types.ChainId, bool) {
	raw := common.FromHex(s)
	if len(raw) == 0 || len(raw) > 32 {
		return types.ChainId{}, false
	}
	var buf [32]byte
	copy(buf[32-len(raw):], raw)
	return types.ChainIdFromBytes32(buf), true
}

func parseAgentId(s string) (types.AgentId, bool) {
	raw := common.FromHex(s)
	if len(raw) != 20 {
		return types.AgentId{}, false
	}
	var id types.AgentId
	copy(id[:], raw)
	return id, true
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	opHash, ok := parseOpHash(chi.URLParam(r, "opHash"))
	if !ok {
		writeError(w, http.StatusBadRequest, errBadOpHash)
		return
	}
	op, found := s.Operations.Operation(opHash)
	if !found {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	protocolId := types.ProtocolIdFromString(chi.URLParam(r, "protocolId"))
	info, err := s.Protocols.Snapshot(protocolId)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleProtocolChains(w http.ResponseWriter, r *http.Request) {
	protocolId := types.ProtocolIdFromString(chi.URLParam(r, "protocolId"))
	writeJSON(w, http.StatusOK, s.Operations.ChainsOf(protocolId))
}

func (s *Server) handleChainState(w http.ResponseWriter, r *http.Request) {
	protocolId := types.ProtocolIdFromString(chi.URLParam(r, "protocolId"))
	chainId, ok := parseChainId(chi.URLParam(r, "chainId"))
	if !ok {
		writeError(w, http.StatusBadRequest, errBadChainId)
		return
	}
	state := s.Operations.ChainState(protocolId, chainId)
	writeJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agentId, ok := parseAgentId(chi.URLParam(r, "agentId"))
	if !ok {
		writeError(w, http.StatusBadRequest, errBadAgentId)
		return
	}
	snap, err := s.Agents.AgentSnapshot(agentId)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMerkleRoot(w http.ResponseWriter, r *http.Request) {
	protocolId := types.ProtocolIdFromString(chi.URLParam(r, "protocolId"))
	sourceId := chi.URLParam(r, "sourceId")
	root, ok := s.Streams.MerkleRoot(protocolId, sourceId)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": common.Bytes2Hex(root[:])})
}

func (s *Server) handleFinalizedValue(w http.ResponseWriter, r *http.Request) {
	protocolId := types.ProtocolIdFromString(chi.URLParam(r, "protocolId"))
	sourceId := chi.URLParam(r, "sourceId")
	dataKey := chi.URLParam(r, "dataKey")
	value, ok := s.Streams.FinalizedValue(protocolId, sourceId, dataKey)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": common.Bytes2Hex(value)})
}

func (s *Server) handleTurnRound(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errNoCaller)
		return
	}
	if err := s.Rounds.Turn(caller); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
