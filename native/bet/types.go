// Package bet implements the per-operation stake-locking and reward
// settlement engine: a transmitter's agent locks personal stake the moment
// its first proof lands on an operation, and that stake is released with a
// reward on execution, refunded on round-change eviction, forfeited on
// prolonged inactivity, or swept to the system fee after a timeout.
package bet

import (
	"time"

	"photon/core/types"
)

// record is one open (agent, opHash) bet.
type record struct {
	Amount    uint64
	Timestamp time.Time
}

// opState tracks the bet-type and snapshot captured by the first bet
// placed against an operation hash. betType never changes once set.
type opState struct {
	ProtocolId       types.ProtocolId
	BetType          types.BetType
	FirstBet         types.TransmitterId
	CurTransmitters  map[types.TransmitterId]struct{}
	ProcessedAt      time.Time
}
