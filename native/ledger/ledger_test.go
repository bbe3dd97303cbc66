package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"photon/crypto"
)

func TestCreditThenDebit(t *testing.T) {
	l := New()
	var id crypto.Identity
	id[0] = 7

	l.Credit(id, 100)
	require.Equal(t, uint64(100), l.BalanceOf(id))

	require.NoError(t, l.Debit(id, 40))
	require.Equal(t, uint64(60), l.BalanceOf(id))
}

func TestDebitInsufficientBalanceFails(t *testing.T) {
	l := New()
	var id crypto.Identity
	id[0] = 9

	err := l.Debit(id, 1)
	require.Error(t, err)
	require.Equal(t, uint64(0), l.BalanceOf(id))
}

func TestFundSeedsBalanceOutOfBand(t *testing.T) {
	l := New()
	var id crypto.Identity
	id[0] = 3

	l.Fund(id, 500)
	require.NoError(t, l.Debit(id, 500))
}
