package protocol

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

type fakeTokens struct {
	debited  map[crypto.Identity]uint64
	credited map[crypto.Identity]uint64
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{debited: make(map[crypto.Identity]uint64), credited: make(map[crypto.Identity]uint64)}
}

func (f *fakeTokens) Debit(from crypto.Identity, amount uint64) error {
	f.debited[from] += amount
	return nil
}

func (f *fakeTokens) Credit(to crypto.Identity, amount uint64) {
	f.credited[to] += amount
}

type fakeAdmitter struct {
	admitted []types.ProtocolId
	fail     bool
}

func (a *fakeAdmitter) AdmitProtocol(protocolId types.ProtocolId) error {
	if a.fail {
		return huberrors.ErrInvalidProtocolId
	}
	a.admitted = append(a.admitted, protocolId)
	return nil
}

type fakeRateNotifier struct {
	calls []uint32
}

func (n *fakeRateNotifier) EmitConsensusRateChange(_ types.ProtocolId, _ types.ChainId, rateBps uint32) error {
	n.calls = append(n.calls, rateBps)
	return nil
}

type fakeChains struct {
	chains []types.ChainId
}

func (c *fakeChains) ChainsOf(types.ProtocolId) []types.ChainId { return c.chains }

type fakeClearer struct {
	cleared []types.ProtocolId
}

func (c *fakeClearer) ClearTransmitters(protocolId types.ProtocolId) error {
	c.cleared = append(c.cleared, protocolId)
	return nil
}

func testRegistry() (*Registry, Authority, *fakeAdmitter, *fakeRateNotifier, *fakeChains, *fakeClearer) {
	cfg := config.Default()
	authority := Authority{Admin: testIdentity(0x01), RoundManager: testIdentity(0xff)}
	admitter := &fakeAdmitter{}
	notifier := &fakeRateNotifier{}
	chains := &fakeChains{chains: []types.ChainId{types.NewChainId(1), types.NewChainId(2)}}
	clearer := &fakeClearer{}
	reg := NewRegistry(cfg, authority, types.ProtocolIdFromString("gov"), admitter, notifier, chains, clearer, &events.CollectingEmitter{})
	return reg, authority, admitter, notifier, chains, clearer
}

func validParams() Params {
	return Params{
		ConsensusTargetRateBps: 6000,
		MaxTransmitters:        10,
		MinDelegateStake:       100,
		MinPersonalStake:       50,
		MsgBetAmount:           10,
		DataBetAmount:          5,
		MsgBetFirstReward:      20,
		MsgBetReward:           8,
		DataBetFirstReward:     10,
		DataBetReward:          4,
		ProtocolFee:            1,
	}
}

func TestRegisterProtocolChargesFeeAndAdmits(t *testing.T) {
	reg, _, admitter, _, _, _ := testRegistry()
	owner := testIdentity(1)
	tokens := newFakeTokens()
	protoID := types.ProtocolIdFromString("demo")

	err := reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, tokens)
	require.NoError(t, err)
	require.Equal(t, reg.cfg.ProtocolRegisterFee, tokens.debited[owner])
	require.Contains(t, admitter.admitted, protoID)

	snap, err := reg.Snapshot(protoID)
	require.NoError(t, err)
	require.True(t, snap.Active)
	require.Equal(t, owner, snap.Owner)
}

func TestRegisterProtocolRejectsManualCapOverflow(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	params := validParams()
	params.MaxTransmitters = 10
	params.ConsensusTargetRateBps = 7000 // cap = floor(10*3000/10000)+1 = 4
	manual := []types.TransmitterId{testIdentity(1), testIdentity(2), testIdentity(3), testIdentity(4), testIdentity(5)}

	err := reg.RegisterProtocol(owner, types.ProtocolIdFromString("demo"), params, manual, false, nil)
	require.ErrorIs(t, err, huberrors.ErrManualTransmittersLimitExceeded)
}

func TestRegisterProtocolRejectsTransmitterClaimedByAnotherProtocol(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	shared := testIdentity(9)

	require.NoError(t, reg.RegisterProtocol(owner, types.ProtocolIdFromString("a"), validParams(), []types.TransmitterId{shared}, false, nil))
	err := reg.RegisterProtocol(owner, types.ProtocolIdFromString("b"), validParams(), []types.TransmitterId{shared}, false, nil)
	require.ErrorIs(t, err, huberrors.ErrDuplicateTransmitter)
}

func TestSetManualTransmittersChargesFeePerAddedAddress(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))
	require.NoError(t, reg.Deposit(protoID, 1_000_000))

	err := reg.SetManualTransmitters(owner, protoID, []types.TransmitterId{testIdentity(2), testIdentity(3)}, newFakeTokens())
	require.NoError(t, err)

	snap, err := reg.Snapshot(protoID)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000-reg.cfg.ManualTransmitterFee), snap.Balance)
}

func TestSetManualTransmittersRejectsNonOwner(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))

	err := reg.SetManualTransmitters(testIdentity(0x77), protoID, []types.TransmitterId{testIdentity(2)}, nil)
	require.ErrorIs(t, err, huberrors.ErrIsNotOwner)
}

func TestDeduceFeePausesProtocolOnInsufficientBalance(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))
	require.NoError(t, reg.Deposit(protoID, 5))

	require.False(t, reg.DeduceFee(protoID, 10))
	require.True(t, reg.IsPaused(protoID))
}

func TestTurnRoundPromotesParamsAndPropagatesRateChange(t *testing.T) {
	reg, authority, _, notifier, _, _ := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))

	newParams := validParams()
	newParams.ConsensusTargetRateBps = 8000
	require.NoError(t, reg.SetParams(owner, protoID, newParams, nil))

	require.NoError(t, reg.TurnRound(authority.RoundManager))

	require.Equal(t, []uint32{8000, 8000}, notifier.calls)
	snap, err := reg.Snapshot(protoID)
	require.NoError(t, err)
	require.Equal(t, uint32(8000), snap.ActiveParams.ConsensusTargetRateBps)
}

func TestActiveElectableProtocolIdsIncludesNonGovRegardlessOfManualCount(t *testing.T) {
	reg, _, _, _, _, _ := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	govID := types.ProtocolIdFromString("gov")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))
	require.NoError(t, reg.RegisterProtocol(owner, govID, validParams(), []types.TransmitterId{testIdentity(3)}, true, nil))

	ids := reg.ActiveElectableProtocolIds()
	require.Contains(t, ids, protoID)
	require.NotContains(t, ids, govID)
}

func TestTurnRoundSweepsDeactivatedProtocolBalance(t *testing.T) {
	reg, authority, _, _, _, clearer := testRegistry()
	owner := testIdentity(1)
	protoID := types.ProtocolIdFromString("demo")
	require.NoError(t, reg.RegisterProtocol(owner, protoID, validParams(), []types.TransmitterId{testIdentity(2)}, false, nil))
	require.NoError(t, reg.Deposit(protoID, 777))
	require.NoError(t, reg.SetActiveTransmitters(protoID, []types.TransmitterId{testIdentity(2)}))

	require.NoError(t, reg.Deactivate(owner, protoID))
	require.NoError(t, reg.TurnRound(authority.RoundManager))

	require.Equal(t, uint64(777), reg.UnlockedBalance(owner))
	require.Contains(t, clearer.cleared, protoID)

	tokens := newFakeTokens()
	require.NoError(t, reg.WithdrawUnlockedBalance(owner, tokens))
	require.Equal(t, uint64(777), tokens.credited[owner])
	require.Equal(t, uint64(0), reg.UnlockedBalance(owner))
}
