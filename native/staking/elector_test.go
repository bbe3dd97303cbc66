package staking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"photon/core/types"
)

func testTransmitter(b byte) types.TransmitterId {
	var t types.TransmitterId
	t[19] = b
	return t
}

type fakeProtocolView struct {
	manual       []types.TransmitterId
	govDriven    bool
	maxTx        uint32
	minDelegate  uint64
	minPersonal  uint64
	supports     map[types.AgentId]bool
	transmitters map[types.AgentId]types.TransmitterId
}

func (f *fakeProtocolView) ManualTransmitters() []types.TransmitterId { return f.manual }
func (f *fakeProtocolView) IsGovDriven() bool                         { return f.govDriven }
func (f *fakeProtocolView) MaxTransmitters() uint32                   { return f.maxTx }
func (f *fakeProtocolView) MinDelegateStake() uint64                  { return f.minDelegate }
func (f *fakeProtocolView) MinPersonalStake() uint64                  { return f.minPersonal }
func (f *fakeProtocolView) SupportsProtocol(agent types.AgentId) bool { return f.supports[agent] }
func (f *fakeProtocolView) TransmitterFor(agent types.AgentId) (types.TransmitterId, bool) {
	t, ok := f.transmitters[agent]
	return t, ok
}

func TestSelectTransmittersForProtocolGovReturnsManualOnly(t *testing.T) {
	l, authority := testLedger()
	agentHigh := testIdentity(1)
	l.EnsureAgent(agentHigh)
	require.NoError(t, l.Delegate(testIdentity(9), agentHigh, 1000, nil))
	require.NoError(t, l.DepositPersonalStake(agentHigh, 1000, nil))
	require.NoError(t, l.TurnRound(authority.RoundManager))

	manual := []types.TransmitterId{testTransmitter(0xaa)}
	p := &fakeProtocolView{
		manual:       manual,
		govDriven:    true,
		maxTx:        5,
		supports:     map[types.AgentId]bool{agentHigh: true},
		transmitters: map[types.AgentId]types.TransmitterId{agentHigh: testTransmitter(1)},
	}

	out, err := l.SelectTransmittersForProtocol(p)
	require.NoError(t, err)
	require.Equal(t, manual, out)
}

func TestSelectTransmittersForProtocolNonGovFillsRemainingSlotsWithElected(t *testing.T) {
	l, authority := testLedger()
	agentHigh := testIdentity(1)
	agentLow := testIdentity(2)
	l.EnsureAgent(agentHigh)
	l.EnsureAgent(agentLow)
	require.NoError(t, l.Delegate(testIdentity(9), agentHigh, 1000, nil))
	require.NoError(t, l.Delegate(testIdentity(9), agentLow, 100, nil))
	require.NoError(t, l.DepositPersonalStake(agentHigh, 500, nil))
	require.NoError(t, l.DepositPersonalStake(agentLow, 500, nil))
	require.NoError(t, l.TurnRound(authority.RoundManager))

	manualTx := testTransmitter(0xaa)
	txHigh := testTransmitter(1)
	txLow := testTransmitter(2)
	p := &fakeProtocolView{
		manual:      []types.TransmitterId{manualTx},
		govDriven:   false,
		maxTx:       3,
		minDelegate: 50,
		minPersonal: 50,
		supports:    map[types.AgentId]bool{agentHigh: true, agentLow: true},
		transmitters: map[types.AgentId]types.TransmitterId{
			agentHigh: txHigh,
			agentLow:  txLow,
		},
	}

	out, err := l.SelectTransmittersForProtocol(p)
	require.NoError(t, err)
	require.Equal(t, []types.TransmitterId{manualTx, txHigh, txLow}, out)
}

func TestSelectTransmittersForProtocolSkipsIneligibleAgents(t *testing.T) {
	l, authority := testLedger()
	agentUnsupported := testIdentity(1)
	agentBelowFloor := testIdentity(2)
	agentEligible := testIdentity(3)
	l.EnsureAgent(agentUnsupported)
	l.EnsureAgent(agentBelowFloor)
	l.EnsureAgent(agentEligible)
	require.NoError(t, l.Delegate(testIdentity(9), agentUnsupported, 1000, nil))
	require.NoError(t, l.Delegate(testIdentity(9), agentBelowFloor, 10, nil))
	require.NoError(t, l.Delegate(testIdentity(9), agentEligible, 500, nil))
	require.NoError(t, l.DepositPersonalStake(agentUnsupported, 500, nil))
	require.NoError(t, l.DepositPersonalStake(agentBelowFloor, 500, nil))
	require.NoError(t, l.DepositPersonalStake(agentEligible, 500, nil))
	require.NoError(t, l.TurnRound(authority.RoundManager))

	txEligible := testTransmitter(3)
	p := &fakeProtocolView{
		manual:      nil,
		govDriven:   false,
		maxTx:       2,
		minDelegate: 100,
		minPersonal: 100,
		supports:    map[types.AgentId]bool{agentBelowFloor: true, agentEligible: true},
		transmitters: map[types.AgentId]types.TransmitterId{
			agentUnsupported: testTransmitter(1),
			agentBelowFloor:  testTransmitter(2),
			agentEligible:    txEligible,
		},
	}

	out, err := l.SelectTransmittersForProtocol(p)
	require.NoError(t, err)
	require.Equal(t, []types.TransmitterId{txEligible}, out)
}

func TestSelectTransmittersForProtocolManualCappedAtMax(t *testing.T) {
	l, _ := testLedger()
	manual := []types.TransmitterId{testTransmitter(1), testTransmitter(2), testTransmitter(3)}
	p := &fakeProtocolView{manual: manual, govDriven: true, maxTx: 2}

	out, err := l.SelectTransmittersForProtocol(p)
	require.NoError(t, err)
	require.Equal(t, manual[:2], out)
}

func TestSelectTransmittersForProtocolZeroMaxReturnsEmpty(t *testing.T) {
	l, _ := testLedger()
	p := &fakeProtocolView{manual: []types.TransmitterId{testTransmitter(1)}, maxTx: 0}

	out, err := l.SelectTransmittersForProtocol(p)
	require.NoError(t, err)
	require.Nil(t, out)
}
