// Package metrics exposes Prometheus instrumentation for the hub's
// consensus, staking, bet and stream subsystems through a single
// lazily-registered Hub singleton that holds every concern's collectors.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics aggregates the counters/gauges emitted by the operation
// registry, staking ledger, bet book and stream consensus engine.
type HubMetrics struct {
	operationsProposed  *prometheus.CounterVec
	proofsAccepted      *prometheus.CounterVec
	operationsApproved  *prometheus.CounterVec
	operationsExecuted  *prometheus.CounterVec
	proofsRefunded      *prometheus.CounterVec
	betsPlaced          *prometheus.CounterVec
	betsReleased        *prometheus.CounterVec
	betsRefunded        *prometheus.CounterVec
	betsPruned          *prometheus.CounterVec
	agentsSlashed       *prometheus.CounterVec
	delegatedStake      *prometheus.GaugeVec
	activeRoundStake    *prometheus.GaugeVec
	roundNumber         prometheus.Gauge
	roundDuration       prometheus.Gauge
	streamVotes         *prometheus.CounterVec
	streamFinalizations *prometheus.CounterVec
	merkleRoots         *prometheus.CounterVec
}

var (
	hubOnce     sync.Once
	hubRegistry *HubMetrics
)

// Hub returns the process-wide HubMetrics singleton, registering it with
// the default Prometheus registry on first use.
func Hub() *HubMetrics {
	hubOnce.Do(func() {
		hubRegistry = &HubMetrics{
			operationsProposed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_operations_proposed_total",
				Help: "Count of proposeOperation calls accepted by protocol.",
			}, []string{"protocol"}),
			proofsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_proofs_accepted_total",
				Help: "Count of transmitter proofs appended to an operation by protocol.",
			}, []string{"protocol"}),
			operationsApproved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_operations_approved_total",
				Help: "Count of operations reaching consensus approval by protocol.",
			}, []string{"protocol"}),
			operationsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_operations_executed_total",
				Help: "Count of operations confirmed executed by watchers by protocol.",
			}, []string{"protocol"}),
			proofsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_proofs_refunded_total",
				Help: "Count of proofs evicted and refunded on round-change rotation by protocol.",
			}, []string{"protocol"}),
			betsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_bets_placed_total",
				Help: "Count of bets placed by protocol and bet type.",
			}, []string{"protocol", "bet_type"}),
			betsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_bets_released_total",
				Help: "Count of bets released with reward by protocol.",
			}, []string{"protocol"}),
			betsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_bets_refunded_total",
				Help: "Count of bets refunded without reward by protocol.",
			}, []string{"protocol"}),
			betsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_bets_pruned_total",
				Help: "Count of timed-out bets swept to the system fee by protocol.",
			}, []string{"protocol"}),
			agentsSlashed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_agents_slashed_total",
				Help: "Count of slashing events by reason.",
			}, []string{"reason"}),
			delegatedStake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "hub_agent_realtime_stake",
				Help: "Current realtime delegated stake per agent.",
			}, []string{"agent"}),
			activeRoundStake: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "hub_agent_active_round_stake",
				Help: "Active-round snapshot of delegated stake per agent.",
			}, []string{"agent"}),
			roundNumber: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "hub_round_number",
				Help: "Current round identifier.",
			}),
			roundDuration: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "hub_round_duration_seconds",
				Help: "Wall-clock duration of the most recently completed round.",
			}),
			streamVotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_stream_votes_total",
				Help: "Count of data-stream votes accepted by protocol and source.",
			}, []string{"protocol", "source"}),
			streamFinalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_stream_finalizations_total",
				Help: "Count of data-stream finalizations by protocol and source.",
			}, []string{"protocol", "source"}),
			merkleRoots: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "hub_stream_merkle_roots_total",
				Help: "Count of Merkle root recalculations by protocol and source.",
			}, []string{"protocol", "source"}),
		}
		prometheus.MustRegister(
			hubRegistry.operationsProposed,
			hubRegistry.proofsAccepted,
			hubRegistry.operationsApproved,
			hubRegistry.operationsExecuted,
			hubRegistry.proofsRefunded,
			hubRegistry.betsPlaced,
			hubRegistry.betsReleased,
			hubRegistry.betsRefunded,
			hubRegistry.betsPruned,
			hubRegistry.agentsSlashed,
			hubRegistry.delegatedStake,
			hubRegistry.activeRoundStake,
			hubRegistry.roundNumber,
			hubRegistry.roundDuration,
			hubRegistry.streamVotes,
			hubRegistry.streamFinalizations,
			hubRegistry.merkleRoots,
		)
	})
	return hubRegistry
}

func (m *HubMetrics) IncOperationProposed(protocol string) {
	if m == nil {
		return
	}
	m.operationsProposed.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncProofAccepted(protocol string) {
	if m == nil {
		return
	}
	m.proofsAccepted.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncOperationApproved(protocol string) {
	if m == nil {
		return
	}
	m.operationsApproved.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncOperationExecuted(protocol string) {
	if m == nil {
		return
	}
	m.operationsExecuted.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncProofsRefunded(protocol string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.proofsRefunded.WithLabelValues(norm(protocol)).Add(float64(n))
}

func (m *HubMetrics) IncBetPlaced(protocol, betType string) {
	if m == nil {
		return
	}
	m.betsPlaced.WithLabelValues(norm(protocol), norm(betType)).Inc()
}

func (m *HubMetrics) IncBetReleased(protocol string) {
	if m == nil {
		return
	}
	m.betsReleased.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncBetRefunded(protocol string) {
	if m == nil {
		return
	}
	m.betsRefunded.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncBetPruned(protocol string) {
	if m == nil {
		return
	}
	m.betsPruned.WithLabelValues(norm(protocol)).Inc()
}

func (m *HubMetrics) IncAgentSlashed(reason string) {
	if m == nil {
		return
	}
	m.agentsSlashed.WithLabelValues(norm(reason)).Inc()
}

func (m *HubMetrics) SetDelegatedStake(agent string, amount float64) {
	if m == nil {
		return
	}
	m.delegatedStake.WithLabelValues(norm(agent)).Set(amount)
}

func (m *HubMetrics) SetActiveRoundStake(agent string, amount float64) {
	if m == nil {
		return
	}
	m.activeRoundStake.WithLabelValues(norm(agent)).Set(amount)
}

func (m *HubMetrics) SetRound(round uint64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.roundNumber.Set(float64(round))
	m.roundDuration.Set(durationSeconds)
}

func (m *HubMetrics) IncStreamVote(protocol, source string) {
	if m == nil {
		return
	}
	m.streamVotes.WithLabelValues(norm(protocol), norm(source)).Inc()
}

func (m *HubMetrics) IncStreamFinalization(protocol, source string) {
	if m == nil {
		return
	}
	m.streamFinalizations.WithLabelValues(norm(protocol), norm(source)).Inc()
}

func (m *HubMetrics) IncMerkleRoot(protocol, source string) {
	if m == nil {
		return
	}
	m.merkleRoots.WithLabelValues(norm(protocol), norm(source)).Inc()
}

func norm(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
