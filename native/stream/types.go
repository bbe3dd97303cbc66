// Package stream implements StreamConsensus: per-(protocol, source, key)
// data vote tallying with a pluggable finalization callback, and the
// MasterStreamDataSpotter that snapshots finalized data into a Merkle root.
package stream

import (
	"time"

	"photon/core/types"
	"photon/crypto"
)

// vote is one transmitter's latest submitted value for a dataKey within
// the current voting window.
type vote struct {
	Value     []byte
	Timestamp time.Time
}

// asset is the per-(sourceId, dataKey) voting state machine (StreamAsset).
type asset struct {
	AcceptedValue      []byte
	CurrentRoundOpHash types.OpHash
	UpdateTimestamp    time.Time
	NVotes             uint32

	votes       map[types.TransmitterId]vote
	participant map[types.TransmitterId]struct{}
}

func newAsset() *asset {
	return &asset{
		votes:       make(map[types.TransmitterId]vote),
		participant: make(map[types.TransmitterId]struct{}),
	}
}

// finalizedDatum is one key's last finalized value (FinalizedData).
type finalizedDatum struct {
	Timestamp time.Time
	Data      []byte
	DataKey   string
}

// sourceConfig is the per-(protocolId, sourceId) MasterStreamDataSpotter
// record: its registered operator identities, voting policy, and the
// Merkle-snapshotted finalized data it accumulates.
type sourceConfig struct {
	Spotter  crypto.Identity
	Executor crypto.Identity

	AllowedKeys     map[string]struct{}
	OnlyAllowedKeys bool
	MinInterval     time.Duration

	assets map[string]*asset

	MerkleRoot        [32]byte
	FinalizedData     map[string]finalizedDatum
	LatestSnapshot    map[string]finalizedDatum
	SinceLastRoot     uint32
}

func newSourceConfig(spotter, executor crypto.Identity, allowedKeys []string, onlyAllowedKeys bool, minInterval time.Duration) *sourceConfig {
	keys := make(map[string]struct{}, len(allowedKeys))
	for _, k := range allowedKeys {
		keys[k] = struct{}{}
	}
	return &sourceConfig{
		Spotter:         spotter,
		Executor:        executor,
		AllowedKeys:     keys,
		OnlyAllowedKeys: onlyAllowedKeys,
		MinInterval:     minInterval,
		assets:          make(map[string]*asset),
		FinalizedData:   make(map[string]finalizedDatum),
		LatestSnapshot:  make(map[string]finalizedDatum),
	}
}

func (s *sourceConfig) asset(dataKey string) *asset {
	a, ok := s.assets[dataKey]
	if !ok {
		a = newAsset()
		s.assets[dataKey] = a
	}
	return a
}

type sourceKey struct {
	ProtocolId types.ProtocolId
	SourceId   string
}
