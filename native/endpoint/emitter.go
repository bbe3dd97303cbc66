// Package endpoint implements EndpointEmitter: the single outbound
// governance proposal encoder every admin mutation in native/protocol,
// native/operation, and native/stream is routed through. It carries no
// state of its own beyond per-chain destination addresses and a per-chain
// nonce counter; every emission is recorded through OperationRegistry's
// own pipeline so governance gets the same consensus treatment as user
// traffic.
package endpoint

import (
	"sync"

	"photon/core/errors"
	"photon/core/types"
)

// OperationSink is the narrow slice of OperationRegistry the emitter
// drives: recording the hub's own outbound message as a pre-approved
// Operation.
type OperationSink interface {
	ProposeInternalOperation(data types.OperationData) (types.OpHash, error)
}

// Emitter is EndpointEmitter (C11).
type Emitter struct {
	mu sync.Mutex

	govProtocolId types.ProtocolId
	localChainId  types.ChainId
	sink          OperationSink

	destAddrs map[types.ChainId]types.OpaqueAddr
	nonces    map[types.ChainId]uint64
}

// NewEmitter constructs an EndpointEmitter. govProtocolId is the hub's
// reserved gov protocol, registered as its own target on localChainId so
// self-emitted messages flow through OperationRegistry exactly like
// externally proposed ones.
func NewEmitter(govProtocolId types.ProtocolId, localChainId types.ChainId, sink OperationSink) *Emitter {
	return &Emitter{
		govProtocolId: govProtocolId,
		localChainId:  localChainId,
		sink:          sink,
		destAddrs:     make(map[types.ChainId]types.OpaqueAddr),
		nonces:        make(map[types.ChainId]uint64),
	}
}

// SetDestination records the gov contract address governance messages for
// chainId are addressed to. Called once per destination chain at setup,
// the same idempotent single-shot shape setContracts uses elsewhere.
func (e *Emitter) SetDestination(chainId types.ChainId, destGovAddress types.OpaqueAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destAddrs[chainId] = append(types.OpaqueAddr(nil), destGovAddress...)
}

// Emit wraps one admin change as a self-addressed propose-to-destination
// message and records it through OperationRegistry. It satisfies the
// GovEmitter interface native/operation, native/protocol, and
// native/stream all consume.
func (e *Emitter) Emit(chainId types.ChainId, selector types.Selector, params []byte) error {
	e.mu.Lock()
	addr, ok := e.destAddrs[chainId]
	if !ok {
		e.mu.Unlock()
		return errors.ErrAddressNotFound
	}
	e.nonces[chainId]++
	nonce := e.nonces[chainId]
	e.mu.Unlock()

	data := types.OperationData{
		ProtocolId:   e.govProtocolId,
		Meta:         types.Meta{}.SetInOrder(true),
		SrcChainId:   e.localChainId,
		Nonce:        types.NewChainId(nonce),
		DestChainId:  chainId,
		ProtocolAddr: addr,
		Selector:     selector,
		Params:       params,
	}
	_, err := e.sink.ProposeInternalOperation(data)
	return err
}
