package staking

import (
	"photon/core/types"
)

// ProtocolView is the narrow slice of ProtocolRegistry/AgentDirectory state
// the elector needs. Consuming it as an interface (rather than importing
// native/protocol directly) keeps native/staking free of a dependency on
// the packages that in turn depend on it.
type ProtocolView interface {
	ManualTransmitters() []types.TransmitterId
	IsGovDriven() bool
	MaxTransmitters() uint32
	MinDelegateStake() uint64
	MinPersonalStake() uint64
	SupportsProtocol(agent types.AgentId) bool
	TransmitterFor(agent types.AgentId) (types.TransmitterId, bool)
}

// SelectTransmittersForProtocol picks the transmitter set for one protocol
// (the TransmitterElector). Manual transmitters are always kept verbatim,
// in order, capped at MaxTransmitters. The gov protocol stops there. Every
// other protocol then fills any remaining slots by walking the directory in
// descending-delegation order, admitting each candidate that declared
// support for the protocol and clears both the delegation and personal
// stake floors, until MaxTransmitters is filled.
func (l *Ledger) SelectTransmittersForProtocol(p ProtocolView) ([]types.TransmitterId, error) {
	max := int(p.MaxTransmitters())
	if max <= 0 {
		return nil, nil
	}
	manual := p.ManualTransmitters()
	if len(manual) > max {
		manual = manual[:max]
	}
	out := make([]types.TransmitterId, len(manual))
	copy(out, manual)

	if p.IsGovDriven() || len(out) >= max {
		return out, nil
	}

	sorted, err := l.SortedAgentsDescending()
	if err != nil {
		return nil, err
	}
	minDelegate := p.MinDelegateStake()
	minPersonal := p.MinPersonalStake()

	claimed := make(map[types.TransmitterId]struct{}, len(out))
	for _, t := range out {
		claimed[t] = struct{}{}
	}

	for _, agent := range sorted {
		if len(out) >= max {
			break
		}
		if !p.SupportsProtocol(agent) {
			continue
		}
		if !l.Eligible(agent, minDelegate, minPersonal) {
			continue
		}
		transmitter, ok := p.TransmitterFor(agent)
		if !ok {
			continue
		}
		if _, dup := claimed[transmitter]; dup {
			continue
		}
		claimed[transmitter] = struct{}{}
		out = append(out, transmitter)
	}
	return out, nil
}
