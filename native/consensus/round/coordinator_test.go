package round

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"photon/config"
	"photon/core/types"
	"photon/crypto"
	"photon/native/staking"
)

type fakeStaking struct {
	turns   int
	caller  crypto.Identity
	err     error
}

func (f *fakeStaking) TurnRound(caller crypto.Identity) error {
	f.turns++
	f.caller = caller
	return f.err
}

type fakeProtocolRegistry struct {
	turns       int
	caller      types.AgentId
	electable   []types.ProtocolId
	turnErr     error
}

func (f *fakeProtocolRegistry) TurnRound(caller types.AgentId) error {
	f.turns++
	f.caller = caller
	return f.turnErr
}
func (f *fakeProtocolRegistry) ActiveElectableProtocolIds() []types.ProtocolId { return f.electable }

type fakeElector struct {
	calls []staking.ProtocolView
	set   []types.TransmitterId
	err   error
}

func (f *fakeElector) SelectTransmittersForProtocol(p staking.ProtocolView) ([]types.TransmitterId, error) {
	f.calls = append(f.calls, p)
	return f.set, f.err
}

type fakeParams struct{}

func (fakeParams) IsGovDriven(types.ProtocolId) bool                    { return true }
func (fakeParams) MaxTransmittersOf(types.ProtocolId) uint32            { return 3 }
func (fakeParams) MinDelegateStakeOf(types.ProtocolId) uint64           { return 0 }
func (fakeParams) MinPersonalStakeOf(types.ProtocolId) uint64           { return 0 }
func (fakeParams) ManualTransmittersOf(types.ProtocolId) []types.TransmitterId { return nil }

type fakeAgents struct{}

func (fakeAgents) SupportsProtocol(types.ProtocolId, types.AgentId) bool { return true }
func (fakeAgents) TransmitterFor(types.ProtocolId, types.AgentId) (types.TransmitterId, bool) {
	return types.TransmitterId{}, true
}

type fakeSink struct {
	calls map[types.ProtocolId][]types.TransmitterId
}

func newFakeSink() *fakeSink { return &fakeSink{calls: make(map[types.ProtocolId][]types.TransmitterId)} }

func (f *fakeSink) UpdateTransmitters(protocolId types.ProtocolId, newSet []types.TransmitterId) error {
	f.calls[protocolId] = newSet
	return nil
}

type fakeStreams struct {
	turns int
}

func (f *fakeStreams) TurnRound() error {
	f.turns++
	return nil
}

func testCoordinator(t *testing.T) (*Coordinator, *fakeStaking, *fakeProtocolRegistry, *fakeElector, *fakeSink, *fakeStreams, crypto.Identity) {
	t.Helper()
	cfg := config.Default()
	cfg.MinRoundTimeSeconds = 60
	trigger := crypto.Identity{0x01}
	authority := Authority{Trigger: trigger}
	fs := &fakeStaking{}
	fp := &fakeProtocolRegistry{electable: []types.ProtocolId{types.ProtocolIdFromString("demo")}}
	fe := &fakeElector{set: []types.TransmitterId{{0xAA}}}
	sink := newFakeSink()
	streams := &fakeStreams{}
	c := NewCoordinator(cfg, authority, fs, fp, fakeParams{}, fakeAgents{}, fe, sink, streams)
	return c, fs, fp, fe, sink, streams, trigger
}

func TestTurnRejectsNonTriggerCaller(t *testing.T) {
	c, _, _, _, _, _, _ := testCoordinator(t)
	err := c.Turn(crypto.Identity{0x99})
	require.Error(t, err)
}

func TestTurnRunsFullSequenceAndElectsTransmitters(t *testing.T) {
	c, fs, fp, fe, sink, streams, trigger := testCoordinator(t)
	protocolId := types.ProtocolIdFromString("demo")

	require.NoError(t, c.Turn(trigger))

	require.Equal(t, 1, fp.turns)
	require.Equal(t, 1, fs.turns)
	require.Len(t, fe.calls, 1)
	require.Equal(t, []types.TransmitterId{{0xAA}}, sink.calls[protocolId])
	require.Equal(t, 1, streams.turns)
	require.False(t, c.LastRoundTimestamp().IsZero())
}

func TestTurnEnforcesMinRoundTime(t *testing.T) {
	c, _, _, _, _, _, trigger := testCoordinator(t)
	require.NoError(t, c.Turn(trigger))

	c.nowFn = func() time.Time { return c.LastRoundTimestamp().Add(time.Second) }
	err := c.Turn(trigger)
	require.Error(t, err)
}

func TestTurnAllowsSecondRoundOnceMinRoundTimeElapses(t *testing.T) {
	c, _, _, _, _, _, trigger := testCoordinator(t)
	require.NoError(t, c.Turn(trigger))

	c.nowFn = func() time.Time { return c.LastRoundTimestamp().Add(2 * time.Minute) }
	require.NoError(t, c.Turn(trigger))
}
