package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	huberrors "photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
)

type betCall struct {
	kind        string
	protocolId  types.ProtocolId
	opHash      types.OpHash
	transmitter types.TransmitterId
	winners     []types.TransmitterId
}

type fakeBets struct {
	calls []betCall
}

func (f *fakeBets) PlaceBet(protocolId types.ProtocolId, transmitter types.TransmitterId, betType types.BetType, opHash types.OpHash) error {
	f.calls = append(f.calls, betCall{kind: "place", protocolId: protocolId, transmitter: transmitter, opHash: opHash})
	return nil
}

func (f *fakeBets) ReleaseBetsAndReward(protocolId types.ProtocolId, winnerTransmitters []types.TransmitterId, opHash types.OpHash) error {
	f.calls = append(f.calls, betCall{kind: "release", protocolId: protocolId, opHash: opHash, winners: winnerTransmitters})
	return nil
}

type fakeProtocols struct {
	known       map[types.ProtocolId]bool
	paused      map[types.ProtocolId]bool
	owner       types.AgentId
	rate        uint32
	transmitter []types.TransmitterId
}

func (f *fakeProtocols) Exists(protocolId types.ProtocolId) bool   { return f.known[protocolId] }
func (f *fakeProtocols) IsPaused(protocolId types.ProtocolId) bool { return f.paused[protocolId] }
func (f *fakeProtocols) OwnerOf(types.ProtocolId) (types.AgentId, bool) {
	return f.owner, true
}
func (f *fakeProtocols) CurrentTransmitters(types.ProtocolId) []types.TransmitterId {
	return append([]types.TransmitterId(nil), f.transmitter...)
}
func (f *fakeProtocols) ConsensusTargetRate(types.ProtocolId) uint32 { return f.rate }

const demoProto = "demo-proto"
const demoSource = "demo-source"

func testIdentity(b byte) crypto.Identity {
	var id crypto.Identity
	id[len(id)-1] = b
	return id
}

func testSetup(t *testing.T, rate uint32) (*Registry, *fakeBets, *fakeProtocols, *events.CollectingEmitter) {
	t.Helper()
	protocolId := types.ProtocolIdFromString(demoProto)
	owner := testIdentity(0xA0)
	a := testIdentity(0x01)
	b := testIdentity(0x02)

	bets := &fakeBets{}
	protocols := &fakeProtocols{
		known:       map[types.ProtocolId]bool{protocolId: true},
		paused:      map[types.ProtocolId]bool{},
		owner:       owner,
		rate:        rate,
		transmitter: []types.TransmitterId{a, b},
	}
	emitter := &events.CollectingEmitter{}
	r := NewRegistry(Authority{Admin: testIdentity(0xFF)}, bets, protocols, emitter)
	r.nowFn = fixedClock()
	return r, bets, protocols, emitter
}

// fixedClock returns a monotonically advancing clock so successive calls
// within one test never collide on the same instant, while staying
// deterministic across runs (no wall-clock reliance).
func fixedClock() func() time.Time {
	base := time.Unix(1_700_000_000, 0)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

type stubLib struct {
	ok       bool
	data     []byte
	winnerAt []int
}

func (s stubLib) Finalize(dataKey string, votes []Vote, agents []types.TransmitterId) (bool, []byte, []types.TransmitterId) {
	if !s.ok {
		return false, nil, nil
	}
	winners := make([]types.TransmitterId, 0, len(s.winnerAt))
	for _, i := range s.winnerAt {
		winners = append(winners, agents[i])
	}
	return true, s.data, winners
}

func TestRegisterSourceRequiresOwnerOrAdmin(t *testing.T) {
	r, _, protocols, _ := testSetup(t, 5000)
	protocolId := types.ProtocolIdFromString(demoProto)

	outsider := testIdentity(0x99)
	err := r.RegisterSource(outsider, protocolId, demoSource, testIdentity(0x10), testIdentity(0x11), nil, false, time.Minute)
	require.ErrorIs(t, err, huberrors.ErrIsNotOwner)

	err = r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), testIdentity(0x11), []string{"price"}, true, time.Minute)
	require.NoError(t, err)

	err = r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), testIdentity(0x11), nil, false, time.Minute)
	require.ErrorIs(t, err, huberrors.ErrDuplicateTransmitter)
}

func TestProposeDataRejectsDisallowedKey(t *testing.T) {
	r, _, protocols, _ := testSetup(t, 5000)
	protocolId := types.ProtocolIdFromString(demoProto)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), testIdentity(0x11), []string{"price"}, true, time.Minute))

	err := r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "volume", []byte{1})
	require.ErrorIs(t, err, huberrors.ErrInvalidProtocolId)

	err = r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{1})
	require.NoError(t, err)
}

func TestProposeDataEmitsConsensusReadyAtThreshold(t *testing.T) {
	r, bets, protocols, emitter := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), testIdentity(0x11), nil, false, 0))

	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{1}))
	require.Len(t, readyEvents(emitter), 0)

	require.NoError(t, r.ProposeData(protocols.transmitter[1], protocolId, demoSource, "price", []byte{1}))
	require.Len(t, readyEvents(emitter), 1)

	require.Len(t, bets.calls, 2)
	require.Equal(t, "place", bets.calls[0].kind)
}

func TestFinalizeDataRequiresExecutor(t *testing.T) {
	r, _, protocols, _ := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	executor := testIdentity(0x11)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), executor, nil, false, 0))
	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{9}))
	require.NoError(t, r.ProposeData(protocols.transmitter[1], protocolId, demoSource, "price", []byte{9}))

	err := r.FinalizeData(testIdentity(0x77), protocolId, demoSource, "price", stubLib{ok: true, data: []byte{9}, winnerAt: []int{0, 1}})
	require.ErrorIs(t, err, huberrors.ErrUnauthorized)
}

func TestFinalizeDataBelowThresholdRejected(t *testing.T) {
	r, _, protocols, _ := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	executor := testIdentity(0x11)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), executor, nil, false, 0))
	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{9}))

	err := r.FinalizeData(executor, protocolId, demoSource, "price", stubLib{ok: true, data: []byte{9}, winnerAt: []int{0}})
	require.ErrorIs(t, err, huberrors.ErrNotEnoughTransmittersHaveVoted)
}

func TestFinalizeDataReleasesBetsAndRecordsValue(t *testing.T) {
	r, bets, protocols, emitter := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	executor := testIdentity(0x11)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), executor, nil, false, 0))
	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{9}))
	require.NoError(t, r.ProposeData(protocols.transmitter[1], protocolId, demoSource, "price", []byte{9}))

	err := r.FinalizeData(executor, protocolId, demoSource, "price", stubLib{ok: true, data: []byte{42}, winnerAt: []int{0, 1}})
	require.NoError(t, err)

	value, ok := r.FinalizedValue(protocolId, demoSource, "price")
	require.True(t, ok)
	require.Equal(t, []byte{42}, value)

	last := bets.calls[len(bets.calls)-1]
	require.Equal(t, "release", last.kind)
	require.ElementsMatch(t, protocols.transmitter, last.winners)

	finalized := 0
	for _, e := range emitter.Events {
		if _, ok := e.(events.DataFinalized); ok {
			finalized++
		}
	}
	require.Equal(t, 1, finalized)
}

func TestFinalizeDataLibRejectionKeepsBetsPending(t *testing.T) {
	r, bets, protocols, _ := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	executor := testIdentity(0x11)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, testIdentity(0x10), executor, nil, false, 0))
	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{9}))
	require.NoError(t, r.ProposeData(protocols.transmitter[1], protocolId, demoSource, "price", []byte{9}))
	placedBefore := len(bets.calls)

	err := r.FinalizeData(executor, protocolId, demoSource, "price", stubLib{ok: false})
	require.ErrorIs(t, err, huberrors.ErrNotEnoughTransmittersHaveVoted)
	require.Len(t, bets.calls, placedBefore)
}

func TestRecalculateMerkleRootRequiresSpotterAndFreshData(t *testing.T) {
	r, _, protocols, emitter := testSetup(t, 10000)
	protocolId := types.ProtocolIdFromString(demoProto)
	spotter := testIdentity(0x10)
	executor := testIdentity(0x11)
	require.NoError(t, r.RegisterSource(protocols.owner, protocolId, demoSource, spotter, executor, []string{"price", "volume"}, true, 0))

	err := r.RecalculateMerkleRoot(testIdentity(0x33), protocolId, demoSource)
	require.ErrorIs(t, err, huberrors.ErrCallerIsNotSpotter)

	err = r.RecalculateMerkleRoot(spotter, protocolId, demoSource)
	require.ErrorIs(t, err, huberrors.ErrNotEnoughTimeHasPassed)

	require.NoError(t, r.ProposeData(protocols.transmitter[0], protocolId, demoSource, "price", []byte{1}))
	require.NoError(t, r.ProposeData(protocols.transmitter[1], protocolId, demoSource, "price", []byte{1}))
	require.NoError(t, r.FinalizeData(executor, protocolId, demoSource, "price", stubLib{ok: true, data: []byte{1}, winnerAt: []int{0, 1}}))

	require.NoError(t, r.RecalculateMerkleRoot(spotter, protocolId, demoSource))
	root, ok := r.MerkleRoot(protocolId, demoSource)
	require.True(t, ok)
	require.NotEqual(t, [32]byte{}, root)

	rootEvents := 0
	for _, e := range emitter.Events {
		if _, ok := e.(events.NewMerkleRoot); ok {
			rootEvents++
		}
	}
	require.Equal(t, 1, rootEvents)

	err = r.RecalculateMerkleRoot(spotter, protocolId, demoSource)
	require.ErrorIs(t, err, huberrors.ErrNotEnoughTimeHasPassed)
}

func TestMerkleRootIsOrderInsensitiveAcrossFinalizationSequence(t *testing.T) {
	// Both registries see the same instant, so datum timestamps (part of
	// each leaf) match and only the finalization order differs.
	sameInstant := func() time.Time { return time.Unix(1_700_000_000, 0) }
	r1, _, protocols1, _ := testSetup(t, 10000)
	r1.nowFn = sameInstant
	protocolId := types.ProtocolIdFromString(demoProto)
	spotter := testIdentity(0x10)
	executor := testIdentity(0x11)
	require.NoError(t, r1.RegisterSource(protocols1.owner, protocolId, demoSource, spotter, executor, []string{"a", "b"}, true, 0))
	require.NoError(t, r1.ProposeData(protocols1.transmitter[0], protocolId, demoSource, "a", []byte{1}))
	require.NoError(t, r1.ProposeData(protocols1.transmitter[1], protocolId, demoSource, "a", []byte{1}))
	require.NoError(t, r1.FinalizeData(executor, protocolId, demoSource, "a", stubLib{ok: true, data: []byte{1}, winnerAt: []int{0, 1}}))
	require.NoError(t, r1.ProposeData(protocols1.transmitter[0], protocolId, demoSource, "b", []byte{2}))
	require.NoError(t, r1.ProposeData(protocols1.transmitter[1], protocolId, demoSource, "b", []byte{2}))
	require.NoError(t, r1.FinalizeData(executor, protocolId, demoSource, "b", stubLib{ok: true, data: []byte{2}, winnerAt: []int{0, 1}}))
	require.NoError(t, r1.RecalculateMerkleRoot(spotter, protocolId, demoSource))
	root1, _ := r1.MerkleRoot(protocolId, demoSource)

	r2, _, protocols2, _ := testSetup(t, 10000)
	r2.nowFn = sameInstant
	require.NoError(t, r2.RegisterSource(protocols2.owner, protocolId, demoSource, spotter, executor, []string{"a", "b"}, true, 0))
	require.NoError(t, r2.ProposeData(protocols2.transmitter[0], protocolId, demoSource, "b", []byte{2}))
	require.NoError(t, r2.ProposeData(protocols2.transmitter[1], protocolId, demoSource, "b", []byte{2}))
	require.NoError(t, r2.FinalizeData(executor, protocolId, demoSource, "b", stubLib{ok: true, data: []byte{2}, winnerAt: []int{0, 1}}))
	require.NoError(t, r2.ProposeData(protocols2.transmitter[0], protocolId, demoSource, "a", []byte{1}))
	require.NoError(t, r2.ProposeData(protocols2.transmitter[1], protocolId, demoSource, "a", []byte{1}))
	require.NoError(t, r2.FinalizeData(executor, protocolId, demoSource, "a", stubLib{ok: true, data: []byte{1}, winnerAt: []int{0, 1}}))
	require.NoError(t, r2.RecalculateMerkleRoot(spotter, protocolId, demoSource))
	root2, _ := r2.MerkleRoot(protocolId, demoSource)

	require.Equal(t, root1, root2)
}

func readyEvents(e *events.CollectingEmitter) []events.ConsensusReadyToFinalize {
	var out []events.ConsensusReadyToFinalize
	for _, ev := range e.Events {
		if c, ok := ev.(events.ConsensusReadyToFinalize); ok {
			out = append(out, c)
		}
	}
	return out
}
