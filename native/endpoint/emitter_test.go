package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"

	huberrors "photon/core/errors"
	"photon/core/types"
)

type fakeSink struct {
	calls []types.OperationData
	err   error
}

func (f *fakeSink) ProposeInternalOperation(data types.OperationData) (types.OpHash, error) {
	if f.err != nil {
		return types.OpHash{}, f.err
	}
	f.calls = append(f.calls, data)
	return types.OpHash{byte(len(f.calls))}, nil
}

func TestEmitRejectsUnknownDestination(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(types.ProtocolIdFromString("gov"), types.NewChainId(1), sink)

	err := e.Emit(types.NewChainId(2), types.EVMSelector([4]byte{0x45, 0xa0, 0x04, 0xb9}), []byte{1, 2})
	require.ErrorIs(t, err, huberrors.ErrAddressNotFound)
	require.Empty(t, sink.calls)
}

func TestEmitRecordsOperationWithIncrementingNonce(t *testing.T) {
	sink := &fakeSink{}
	govId := types.ProtocolIdFromString("gov")
	localChain := types.NewChainId(1)
	destChain := types.NewChainId(2)
	e := NewEmitter(govId, localChain, sink)
	e.SetDestination(destChain, types.OpaqueAddr{0xAA, 0xBB})

	selector := types.EVMSelector([4]byte{0x45, 0xa0, 0x04, 0xb9})
	require.NoError(t, e.Emit(destChain, selector, []byte{1}))
	require.NoError(t, e.Emit(destChain, selector, []byte{2}))

	require.Len(t, sink.calls, 2)
	first, second := sink.calls[0], sink.calls[1]

	require.Equal(t, govId, first.ProtocolId)
	require.Equal(t, localChain, first.SrcChainId)
	require.Equal(t, destChain, first.DestChainId)
	require.Equal(t, types.OpaqueAddr{0xAA, 0xBB}, first.ProtocolAddr)
	require.True(t, first.Meta.IsInOrder())
	require.Equal(t, []byte{1}, first.Params)

	require.NotEqual(t, first.Nonce, second.Nonce)
}

func TestSetDestinationIsPerChain(t *testing.T) {
	sink := &fakeSink{}
	e := NewEmitter(types.ProtocolIdFromString("gov"), types.NewChainId(1), sink)
	chainA := types.NewChainId(10)
	chainB := types.NewChainId(20)
	e.SetDestination(chainA, types.OpaqueAddr{0x01})

	selector := types.EVMSelector([4]byte{0x00, 0x00, 0x00, 0x01})
	require.NoError(t, e.Emit(chainA, selector, nil))
	require.ErrorIs(t, e.Emit(chainB, selector, nil), huberrors.ErrAddressNotFound)
}
