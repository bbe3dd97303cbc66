// Package agent implements AgentDirectory: the per-protocol agent to
// transmitter mapping. An agent declares one transmitter address per
// protocol it wants to support, capped by how much personal stake it has
// bonded; StakingLedger and ProtocolRegistry consult the directory through
// narrow interfaces to resolve "who speaks for this agent on this
// protocol" without importing this package back.
package agent

import (
	"photon/core/types"
)

// protocolSet is the set of protocols an agent currently supports, kept so
// BanAgent can walk and clear them without a reverse scan over every
// registered protocol.
type protocolSet map[types.ProtocolId]struct{}

func (s protocolSet) add(id types.ProtocolId)    { s[id] = struct{}{} }
func (s protocolSet) remove(id types.ProtocolId) { delete(s, id) }

func (s protocolSet) list() []types.ProtocolId {
	out := make([]types.ProtocolId, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
