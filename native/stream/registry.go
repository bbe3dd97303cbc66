package stream

import (
	"sync"
	"time"

	"photon/core/codec"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
	"photon/observability/metrics"
)

// BetPlacer is the narrow slice of BetBook StreamConsensus drives: one
// data bet per vote, released with reward once a key finalizes.
type BetPlacer interface {
	PlaceBet(protocolId types.ProtocolId, transmitter types.TransmitterId, betType types.BetType, opHash types.OpHash) error
	ReleaseBetsAndReward(protocolId types.ProtocolId, winnerTransmitters []types.TransmitterId, opHash types.OpHash) error
}

// ProtocolView is the narrow slice of ProtocolRegistry state
// StreamConsensus reads: whether the protocol exists and is paused, its
// owner (to gate source registration), its current transmitter order, and
// its consensus target rate.
type ProtocolView interface {
	Exists(protocolId types.ProtocolId) bool
	IsPaused(protocolId types.ProtocolId) bool
	OwnerOf(protocolId types.ProtocolId) (types.AgentId, bool)
	CurrentTransmitters(protocolId types.ProtocolId) []types.TransmitterId
	ConsensusTargetRate(protocolId types.ProtocolId) uint32
}

// ProcessingLib is the pluggable finalization callback a source supplies:
// given a dataKey and the current votes lined up against the protocol's
// transmitter order (a zero Vote for any transmitter that did not
// participate), decide whether the round finalizes, what value it
// finalizes to, and which transmitters are rewarded as winners.
type ProcessingLib interface {
	Finalize(dataKey string, votes []Vote, agents []types.TransmitterId) (ok bool, finalized []byte, winners []types.TransmitterId)
}

// Vote is one transmitter's vote as handed to ProcessingLib; Value is nil
// for a transmitter slot that never voted this round.
type Vote struct {
	Value     []byte
	Timestamp time.Time
}

// Authority names the identity trusted to register new sources; per-source
// spotter and executor identities are supplied at registration time and
// checked independently of this table.
type Authority struct {
	Admin crypto.Identity
}

// Registry is StreamConsensus plus the MasterStreamDataSpotter records it
// drives, keyed by (protocolId, sourceId).
type Registry struct {
	mu        sync.Mutex
	authority Authority
	bets      BetPlacer
	protocols ProtocolView
	emitter   events.Emitter
	nowFn     func() time.Time

	sources map[sourceKey]*sourceConfig
}

// NewRegistry constructs a StreamConsensus registry.
func NewRegistry(authority Authority, bets BetPlacer, protocols ProtocolView, emitter events.Emitter) *Registry {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Registry{
		authority: authority,
		bets:      bets,
		protocols: protocols,
		emitter:   emitter,
		nowFn:     time.Now,
		sources:   make(map[sourceKey]*sourceConfig),
	}
}

// RegisterSource declares a new (protocolId, sourceId) data stream,
// callable only by the protocol's owner or the table-wide admin. spotter
// is the identity trusted to recalculate the Merkle root; executor is the
// identity trusted to call FinalizeData.
func (r *Registry) RegisterSource(caller types.AgentId, protocolId types.ProtocolId, sourceId string, spotter, executor crypto.Identity, allowedKeys []string, onlyAllowedKeys bool, minFinalizationInterval time.Duration) error {
	if !r.protocols.Exists(protocolId) {
		return errors.ErrProtocolIsNotAllowed
	}
	owner, _ := r.protocols.OwnerOf(protocolId)
	if caller != owner && caller != r.authority.Admin {
		return errors.ErrIsNotOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sourceKey{ProtocolId: protocolId, SourceId: sourceId}
	if _, exists := r.sources[key]; exists {
		return errors.ErrDuplicateTransmitter
	}
	r.sources[key] = newSourceConfig(spotter, executor, allowedKeys, onlyAllowedKeys, minFinalizationInterval)
	r.emitter.Emit(events.NewStreamDataSpotter{ProtocolId: protocolId, SourceId: sourceId})
	return nil
}

// ProposeData records one transmitter's vote for dataKey's current round.
// A first vote on a dataKey opens a new round and places a BetData bet on
// the freshly minted round opHash; later votes from the same transmitter
// within the round replace their recorded value.
func (r *Registry) ProposeData(transmitter types.TransmitterId, protocolId types.ProtocolId, sourceId, dataKey string, value []byte) error {
	if r.protocols.IsPaused(protocolId) {
		return errors.ErrProtocolIsNotAllowed
	}
	r.mu.Lock()
	src, ok := r.sources[sourceKey{ProtocolId: protocolId, SourceId: sourceId}]
	if !ok {
		r.mu.Unlock()
		return errors.ErrCallerIsNotSpotter
	}
	if src.OnlyAllowedKeys {
		if _, allowed := src.AllowedKeys[dataKey]; !allowed {
			r.mu.Unlock()
			return errors.ErrInvalidProtocolId
		}
	}
	a := src.asset(dataKey)
	now := r.nowFn()
	isFirst := a.UpdateTimestamp.IsZero()
	if isFirst {
		a.UpdateTimestamp = now
		a.CurrentRoundOpHash = roundOpHash(protocolId, sourceId, dataKey, now)
	}
	opHash := a.CurrentRoundOpHash

	if _, voted := a.participant[transmitter]; !voted {
		a.participant[transmitter] = struct{}{}
		a.NVotes++
	}
	a.votes[transmitter] = vote{Value: value, Timestamp: now}
	r.mu.Unlock()

	if err := r.bets.PlaceBet(protocolId, transmitter, types.BetData, opHash); err != nil {
		return err
	}
	metrics.Hub().IncStreamVote(protocolId.String(), sourceId)

	r.mu.Lock()
	total := len(r.protocols.CurrentTransmitters(protocolId))
	rate := r.protocols.ConsensusTargetRate(protocolId)
	ready := total > 0 &&
		uint64(a.NVotes)*10000/uint64(total) >= uint64(rate) &&
		!now.Before(a.UpdateTimestamp.Add(src.MinInterval))
	r.mu.Unlock()
	if ready {
		r.emitter.Emit(events.ConsensusReadyToFinalize{ProtocolId: protocolId, SourceId: sourceId, DataKey: dataKey})
	}
	return nil
}

// roundOpHash mints the bet-tracking hash for a dataKey's voting window:
// keccak256(protocolId || sourceId || dataKey || updateTimestamp).
func roundOpHash(protocolId types.ProtocolId, sourceId, dataKey string, windowStart time.Time) types.OpHash {
	b := codec.NewBuilder()
	b.WriteBytes(protocolId[:])
	b.WriteUint32(uint32(len(sourceId)))
	b.WriteBytes([]byte(sourceId))
	b.WriteUint32(uint32(len(dataKey)))
	b.WriteBytes([]byte(dataKey))
	b.WriteUint64(uint64(windowStart.UnixNano()))
	return types.OpHash(crypto.Keccak256(b.Bytes()))
}

// FinalizeData re-enforces the consensus threshold and minimum interval,
// builds the (agents, votes) arrays in the protocol's current transmitter
// order, and invokes the source's ProcessingLib. On success it records
// the finalized value, resets the voting window, pushes the datum to the
// MasterStreamDataSpotter, and releases bets to the reported winners.
// Callable only by the source's registered executor.
func (r *Registry) FinalizeData(caller crypto.Identity, protocolId types.ProtocolId, sourceId, dataKey string, lib ProcessingLib) error {
	r.mu.Lock()
	src, ok := r.sources[sourceKey{ProtocolId: protocolId, SourceId: sourceId}]
	if !ok {
		r.mu.Unlock()
		return errors.ErrCallerIsNotSpotter
	}
	if caller != src.Executor {
		r.mu.Unlock()
		return errors.ErrUnauthorized
	}
	a, ok := src.assets[dataKey]
	if !ok {
		r.mu.Unlock()
		return errors.ErrOperationNotFound
	}
	now := r.nowFn()
	if now.Before(a.UpdateTimestamp.Add(src.MinInterval)) {
		r.mu.Unlock()
		return errors.ErrNotEnoughTimeHasPassed
	}
	total := len(r.protocols.CurrentTransmitters(protocolId))
	rate := r.protocols.ConsensusTargetRate(protocolId)
	if total == 0 || uint64(a.NVotes)*10000/uint64(total) < uint64(rate) {
		r.mu.Unlock()
		return errors.ErrNotEnoughTransmittersHaveVoted
	}

	agents := r.protocols.CurrentTransmitters(protocolId)
	votes := make([]Vote, len(agents))
	for i, agent := range agents {
		if v, voted := a.votes[agent]; voted {
			votes[i] = Vote{Value: v.Value, Timestamp: v.Timestamp}
		}
	}
	opHash := a.CurrentRoundOpHash
	r.mu.Unlock()

	ok2, finalized, winners := lib.Finalize(dataKey, votes, agents)
	if !ok2 {
		return errors.ErrNotEnoughTransmittersHaveVoted
	}

	r.mu.Lock()
	a.AcceptedValue = finalized
	a.UpdateTimestamp = now
	a.NVotes = 0
	a.votes = make(map[types.TransmitterId]vote)
	a.participant = make(map[types.TransmitterId]struct{})
	a.CurrentRoundOpHash = roundOpHash(protocolId, sourceId, dataKey, now)

	datum := finalizedDatum{Timestamp: now, Data: finalized, DataKey: dataKey}
	r.pushFinalizedLocked(src, protocolId, sourceId, datum)
	r.mu.Unlock()

	if err := r.bets.ReleaseBetsAndReward(protocolId, winners, opHash); err != nil {
		return err
	}
	metrics.Hub().IncStreamFinalization(protocolId.String(), sourceId)
	r.emitter.Emit(events.DataFinalized{ProtocolId: protocolId, SourceId: sourceId, DataKey: dataKey})
	return nil
}

// pushFinalizedLocked records datum against the source's allowed-key
// policy and bumps its since-last-root counter. Called with r.mu held.
func (r *Registry) pushFinalizedLocked(src *sourceConfig, protocolId types.ProtocolId, sourceId string, datum finalizedDatum) error {
	if src.OnlyAllowedKeys {
		if _, allowed := src.AllowedKeys[datum.DataKey]; !allowed {
			return errors.ErrInvalidProtocolId
		}
	}
	src.FinalizedData[datum.DataKey] = datum
	src.SinceLastRoot++
	return nil
}

// RecalculateMerkleRoot rebuilds the Merkle root over every allowed key's
// latest finalized datum and snapshots those values as the root's basis.
// Callable only by the source's registered spotter; a no-op call (nothing
// finalized since the last root) is rejected.
func (r *Registry) RecalculateMerkleRoot(caller crypto.Identity, protocolId types.ProtocolId, sourceId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceKey{ProtocolId: protocolId, SourceId: sourceId}]
	if !ok {
		return errors.ErrCallerIsNotSpotter
	}
	if caller != src.Spotter {
		return errors.ErrCallerIsNotSpotter
	}
	if src.SinceLastRoot == 0 {
		return errors.ErrNotEnoughTimeHasPassed
	}

	keys := make([]string, 0, len(src.AllowedKeys))
	for k := range src.AllowedKeys {
		keys = append(keys, k)
	}
	leaves := make([][32]byte, 0, len(keys))
	snapshot := make(map[string]finalizedDatum, len(keys))
	for _, k := range keys {
		d, ok := src.FinalizedData[k]
		if !ok {
			continue
		}
		leaves = append(leaves, leafOf(d))
		snapshot[k] = d
	}
	src.MerkleRoot = calcMerkleRoot(leaves)
	src.LatestSnapshot = snapshot
	src.SinceLastRoot = 0

	metrics.Hub().IncMerkleRoot(protocolId.String(), sourceId)
	r.emitter.Emit(events.NewMerkleRoot{ProtocolId: protocolId, SourceId: sourceId, Root: src.MerkleRoot})
	return nil
}

// MerkleRoot reports sourceId's last computed root.
func (r *Registry) MerkleRoot(protocolId types.ProtocolId, sourceId string) ([32]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceKey{ProtocolId: protocolId, SourceId: sourceId}]
	if !ok {
		return [32]byte{}, false
	}
	return src.MerkleRoot, true
}

// FinalizedValue reports dataKey's last accepted value for sourceId.
func (r *Registry) FinalizedValue(protocolId types.ProtocolId, sourceId, dataKey string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[sourceKey{ProtocolId: protocolId, SourceId: sourceId}]
	if !ok {
		return nil, false
	}
	d, ok := src.FinalizedData[dataKey]
	if !ok {
		return nil, false
	}
	return d.Data, true
}

// TurnRound is the last step of RoundCoordinator's turn. It has no pended
// per-source parameter changes to promote (consensus rate and interval are
// read live from ProtocolRegistry and the source record), so it always
// returns nil.
func (r *Registry) TurnRound() error { return nil }
