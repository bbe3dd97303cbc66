package staking

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
	credited map[string]uint64
	debited  map[string]uint64
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{credited: make(map[string]uint64), debited: make(map[string]uint64)}
}

func (f *fakeTokens) Credit(to crypto.Identity, amount uint64) {
	f.credited[identityKey(to)] += amount
}

func (f *fakeTokens) Debit(from crypto.Identity, amount uint64) error {
	f.debited[identityKey(from)] += amount
	return nil
}

func testLedger() (*Ledger, Authority) {
	cfg := config.Default()
	roundManager := testIdentity(0xff)
	betManager := testIdentity(0xfe)
	authority := Authority{Admin: testIdentity(0x01), BetManager: betManager, RoundManager: roundManager}
	return NewLedger(cfg, authority, &events.CollectingEmitter{}), authority
}

func TestDelegateAndWithdrawTrackRealtimeStake(t *testing.T) {
	l, _ := testLedger()
	agent := testIdentity(1)
	delegator := testIdentity(2)
	l.EnsureAgent(agent)

	require.NoError(t, l.Delegate(delegator, agent, 100, nil))
	snap, err := l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(100), snap.RealtimeStake)

	require.NoError(t, l.Withdraw(delegator, agent, 40, nil))
	snap, err = l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(60), snap.RealtimeStake)
}

func TestWithdrawMoreThanStakedFails(t *testing.T) {
	l, _ := testLedger()
	agent := testIdentity(1)
	delegator := testIdentity(2)
	l.EnsureAgent(agent)
	require.NoError(t, l.Delegate(delegator, agent, 10, nil))
	require.Error(t, l.Withdraw(delegator, agent, 20, nil))
}

func TestRewardsAccrueProportionallyToRoundStartStake(t *testing.T) {
	l, authority := testLedger()
	agent := testIdentity(1)
	d1 := testIdentity(2)
	d2 := testIdentity(3)
	l.EnsureAgent(agent)

	require.NoError(t, l.Delegate(d1, agent, 300, nil))
	require.NoError(t, l.Delegate(d2, agent, 700, nil))

	require.NoError(t, l.TurnRound(authority.RoundManager))

	_, err := l.DistributeRewards(authority.RoundManager, []AgentReward{{Agent: agent, Amount: 1000}})
	require.NoError(t, err)
	// Rewards land in the current round, which is claimable once it closes.
	require.NoError(t, l.TurnRound(authority.RoundManager))

	tokens := newFakeTokens()
	require.NoError(t, l.ClaimRewards(d1, agent, tokens))
	require.NoError(t, l.ClaimRewards(d2, agent, tokens))

	got1 := tokens.credited[identityKey(d1)]
	got2 := tokens.credited[identityKey(d2)]
	require.Greater(t, got1, uint64(0))
	require.Greater(t, got2, uint64(0))
	require.InDelta(t, float64(got1)*7.0/3.0, float64(got2), 2)
}

func TestSlashedRoundSkipsDelegateReward(t *testing.T) {
	l, authority := testLedger()
	agent := testIdentity(1)
	delegator := testIdentity(2)
	l.EnsureAgent(agent)
	require.NoError(t, l.Delegate(delegator, agent, 100, nil))
	require.NoError(t, l.TurnRound(authority.RoundManager))

	_, err := l.Slash(agent, 10, "test")
	require.NoError(t, err)

	_, err = l.DistributeRewards(authority.RoundManager, []AgentReward{{Agent: agent, Amount: 500}})
	require.NoError(t, err)

	tokens := newFakeTokens()
	require.NoError(t, l.ClaimRewards(delegator, agent, tokens))
	require.Equal(t, uint64(0), tokens.credited[identityKey(delegator)])
}

func TestPersonalStakeWithdrawLifecycle(t *testing.T) {
	l, authority := testLedger()
	agent := testIdentity(1)
	tokens := newFakeTokens()

	require.NoError(t, l.DepositPersonalStake(agent, 500, tokens))
	require.NoError(t, l.RequestWithdrawPersonalStake(agent, 200))
	require.NoError(t, l.TurnRound(authority.RoundManager))

	snap, err := l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(200), snap.WithdrawReady)
	require.Equal(t, uint64(300), snap.PersonalStake)

	require.NoError(t, l.WithdrawPersonalStake(agent, tokens))
	require.Equal(t, uint64(200), tokens.credited[identityKey(agent)])

	snap, err = l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.WithdrawReady)
}

func TestCancelWithdrawClearsRequest(t *testing.T) {
	l, _ := testLedger()
	agent := testIdentity(1)
	require.NoError(t, l.DepositPersonalStake(agent, 500, nil))
	require.NoError(t, l.RequestWithdrawPersonalStake(agent, 200))
	require.NoError(t, l.CancelWithdrawPersonalStake(agent))

	snap, err := l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.WithdrawRequested)
}

func TestLockUnlockAgentStakeRequiresBetManager(t *testing.T) {
	l, authority := testLedger()
	agent := testIdentity(1)
	require.NoError(t, l.DepositPersonalStake(agent, 100, nil))

	require.ErrorIs(t, l.LockAgentStake(testIdentity(0x99), agent, 50), huberrors.ErrUnauthorized)
	require.NoError(t, l.LockAgentStake(authority.BetManager, agent, 50))

	snap, err := l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(50), snap.PersonalStake)
	require.Equal(t, uint64(50), snap.LockedPersonalStake)

	require.NoError(t, l.UnlockAgentStake(authority.BetManager, agent, 50))
	snap, err = l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(100), snap.PersonalStake)
}

func TestSortedAgentsDescendingOrdersByDelegation(t *testing.T) {
	l, _ := testLedger()
	agentLow := testIdentity(1)
	agentHigh := testIdentity(2)
	delegator := testIdentity(3)
	l.EnsureAgent(agentLow)
	l.EnsureAgent(agentHigh)

	require.NoError(t, l.Delegate(delegator, agentLow, 10, nil))
	require.NoError(t, l.Delegate(delegator, agentHigh, 100, nil))

	sorted, err := l.SortedAgentsDescending()
	require.NoError(t, err)
	require.Equal(t, []types.AgentId{agentHigh, agentLow}, sorted)
}

func TestBanAgentSlashesFullPersonalStake(t *testing.T) {
	l, _ := testLedger()
	agent := testIdentity(1)
	require.NoError(t, l.DepositPersonalStake(agent, 300, nil))

	slashed, err := l.BanAgent(agent)
	require.NoError(t, err)
	require.Equal(t, uint64(300), slashed)

	snap, err := l.AgentSnapshot(agent)
	require.NoError(t, err)
	require.False(t, snap.Approved)
	require.Equal(t, uint64(0), snap.PersonalStake)
}
