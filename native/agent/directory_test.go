package agent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"photon/config"
	huberrors "photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
)

func testIdentity(b byte) crypto.Identity {
	var id crypto.Identity
	id[19] = b
	return id
}

type fakeStake struct {
	personal map[crypto.Identity]uint64
	banned   map[crypto.Identity]uint64
}

func newFakeStake() *fakeStake {
	return &fakeStake{personal: make(map[crypto.Identity]uint64), banned: make(map[crypto.Identity]uint64)}
}

func (f *fakeStake) PersonalStakeOf(agent types.AgentId) uint64 { return f.personal[agent] }

func (f *fakeStake) BanAgent(agent types.AgentId) (uint64, error) {
	amount := f.personal[agent]
	f.personal[agent] = 0
	f.banned[agent] = amount
	return amount, nil
}

type fakeProtocols struct {
	known map[types.ProtocolId]bool
	gov   types.ProtocolId
}

func (f *fakeProtocols) Exists(protocolId types.ProtocolId) bool { return f.known[protocolId] }
func (f *fakeProtocols) IsGovProtocol(protocolId types.ProtocolId) bool {
	return protocolId == f.gov
}

func testDirectory() (*Directory, *fakeStake, *fakeProtocols) {
	cfg := config.Default()
	cfg.AgentStakePerTransmitter = 100
	stake := newFakeStake()
	protocols := &fakeProtocols{known: map[types.ProtocolId]bool{types.ProtocolIdFromString("demo"): true}, gov: types.ProtocolIdFromString("gov")}
	dir := NewDirectory(cfg, Authority{Admin: testIdentity(0xaa)}, stake, protocols, &events.CollectingEmitter{})
	return dir, stake, protocols
}

func TestDeclareProtocolSupportMapsTransmitter(t *testing.T) {
	dir, stake, _ := testDirectory()
	agentA := testIdentity(1)
	stake.personal[agentA] = 500
	protoID := types.ProtocolIdFromString("demo")

	err := dir.DeclareProtocolSupport(agentA, protoID, testIdentity(2))
	require.NoError(t, err)

	got, ok := dir.TransmitterFor(protoID, agentA)
	require.True(t, ok)
	require.Equal(t, testIdentity(2), got)

	resolved, ok := dir.AgentByTransmitter(protoID, testIdentity(2))
	require.True(t, ok)
	require.Equal(t, agentA, resolved)
}

func TestDeclareProtocolSupportRejectsUnknownOrGovProtocol(t *testing.T) {
	dir, stake, protocols := testDirectory()
	agentA := testIdentity(1)
	stake.personal[agentA] = 500

	err := dir.DeclareProtocolSupport(agentA, types.ProtocolIdFromString("ghost"), testIdentity(2))
	require.ErrorIs(t, err, huberrors.ErrProtocolIsNotAllowed)

	err = dir.DeclareProtocolSupport(agentA, protocols.gov, testIdentity(2))
	require.ErrorIs(t, err, huberrors.ErrProtocolIsNotAllowed)
}

func TestDeclareProtocolSupportRejectsTransmitterClaimedByAnotherAgent(t *testing.T) {
	dir, stake, _ := testDirectory()
	agentA, agentB := testIdentity(1), testIdentity(2)
	stake.personal[agentA] = 500
	stake.personal[agentB] = 500
	protoID := types.ProtocolIdFromString("demo")
	shared := testIdentity(9)

	require.NoError(t, dir.DeclareProtocolSupport(agentA, protoID, shared))
	err := dir.DeclareProtocolSupport(agentB, protoID, shared)
	require.ErrorIs(t, err, huberrors.ErrDuplicateTransmitter)
}

func TestDeclareProtocolSupportEnforcesPersonalStakeCap(t *testing.T) {
	dir, stake, protocols := testDirectory()
	protocols.known[types.ProtocolIdFromString("demo2")] = true
	agentA := testIdentity(1)
	stake.personal[agentA] = 150 // cap of 100 per transmitter -> only 1 allowed

	require.NoError(t, dir.DeclareProtocolSupport(agentA, types.ProtocolIdFromString("demo"), testIdentity(2)))
	err := dir.DeclareProtocolSupport(agentA, types.ProtocolIdFromString("demo2"), testIdentity(3))
	require.ErrorIs(t, err, huberrors.ErrTransmitterCapExceeded)
}

func TestRevokeProtocolSupportLeavesStaleReverseClaim(t *testing.T) {
	dir, stake, _ := testDirectory()
	agentA, agentB := testIdentity(1), testIdentity(2)
	stake.personal[agentA] = 500
	stake.personal[agentB] = 500
	protoID := types.ProtocolIdFromString("demo")
	transmitter := testIdentity(9)

	require.NoError(t, dir.DeclareProtocolSupport(agentA, protoID, transmitter))
	require.NoError(t, dir.RevokeProtocolSupport(agentA, protoID))

	_, ok := dir.TransmitterFor(protoID, agentA)
	require.False(t, ok, "forward mapping must be cleared")

	// The reverse index was never actually cleared (the documented ordering
	// quirk), so the transmitter address remains claimed by agentA and a
	// second agent cannot pick it up.
	err := dir.DeclareProtocolSupport(agentB, protoID, transmitter)
	require.ErrorIs(t, err, huberrors.ErrDuplicateTransmitter)
}

func TestBanAgentClearsBothIndicesAndSlashesStake(t *testing.T) {
	dir, stake, _ := testDirectory()
	agentA, agentB := testIdentity(1), testIdentity(2)
	stake.personal[agentA] = 500
	stake.personal[agentB] = 500
	protoID := types.ProtocolIdFromString("demo")
	transmitter := testIdentity(9)

	require.NoError(t, dir.DeclareProtocolSupport(agentA, protoID, transmitter))
	require.NoError(t, dir.BanAgent(testIdentity(0xaa), agentA))
	require.Equal(t, uint64(500), stake.banned[agentA])

	// Unlike revoke, ban clears the reverse index correctly, so the
	// transmitter is immediately available to another agent.
	require.NoError(t, dir.DeclareProtocolSupport(agentB, protoID, transmitter))
}

func TestBanAgentRejectsNonAdmin(t *testing.T) {
	dir, stake, _ := testDirectory()
	agentA := testIdentity(1)
	stake.personal[agentA] = 500

	err := dir.BanAgent(testIdentity(0x01), agentA)
	require.ErrorIs(t, err, huberrors.ErrUnauthorized)
}
