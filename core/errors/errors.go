// Package errors defines the hub's tagged error kinds. Errors are sentinel
// values grouped by category; callers compare with errors.Is, never by
// string. No mutator ever returns a bare string error for a condition
// named here.
package errors

import stderrors "errors"

// Input validation errors: the transaction aborts before any state change.
var (
	ErrAddrTooBig           = stderrors.New("hub: address exceeds maximum length")
	ErrParamsTooBig         = stderrors.New("hub: params exceed maximum length")
	ErrInvalidChainId       = stderrors.New("hub: invalid chain id")
	ErrInvalidProtocolId    = stderrors.New("hub: invalid protocol id")
	ErrZeroAmount           = stderrors.New("hub: amount must be non-zero")
	ErrZeroAddress          = stderrors.New("hub: address must be non-zero")
	ErrDuplicateTransmitter = stderrors.New("hub: duplicate transmitter")
	ErrInvalidConsensusRate = stderrors.New("hub: invalid consensus target rate")
)

// Authorization errors: the transaction aborts; never downgraded to silent.
var (
	ErrProtocolIsNotAllowed    = stderrors.New("hub: protocol is not allowed")
	ErrTransmitterIsNotAllowed = stderrors.New("hub: transmitter is not allowed")
	ErrWatcherIsNotAllowed     = stderrors.New("hub: watcher is not allowed")
	ErrIsNotOwner              = stderrors.New("hub: caller is not the protocol owner")
	ErrCallerIsNotSpotter      = stderrors.New("hub: caller is not the registered spotter")
	ErrNotApprovedAgent        = stderrors.New("hub: caller is not an approved agent")
	ErrIsNotFeeCollector       = stderrors.New("hub: caller is not the fee collector")
	ErrUnauthorized            = stderrors.New("hub: caller lacks the required capability")
)

// State/invariant errors: the transaction aborts.
var (
	ErrProtocolIsNotInited         = stderrors.New("hub: protocol is not inited")
	ErrProtocolIsNotInitedOnChain  = stderrors.New("hub: protocol is not inited on this chain")
	ErrOperationIsAlreadyApproved  = stderrors.New("hub: operation is already approved")
	ErrTransmitterIsAlreadyApproved = stderrors.New("hub: transmitter already has a proof on this operation")
	ErrWatcherIsAlreadyApproved    = stderrors.New("hub: watcher already confirmed this operation")
	ErrOpIsNotApproved             = stderrors.New("hub: operation is not approved")
	ErrOperationNotFound           = stderrors.New("hub: operation not found")
	ErrAgentNotFound               = stderrors.New("hub: agent not found")
	ErrAgentNotActive              = stderrors.New("hub: agent is not active")
	ErrSupportAlreadyDeclared      = stderrors.New("hub: protocol support already declared")
	ErrSupportNotDeclared          = stderrors.New("hub: protocol support not declared")
	ErrManualTransmittersLimitExceeded = stderrors.New("hub: manual transmitters limit exceeded")
	ErrTransmitterCapExceeded      = stderrors.New("hub: agent's personal-stake transmitter cap exceeded")
	ErrInvalidFeeRate              = stderrors.New("hub: invalid fee rate")
	ErrInvalidRoundCondition       = stderrors.New("hub: invalid round condition")
	ErrUnlockTooMuch               = stderrors.New("hub: cannot unlock more than locked")
	ErrNoWithdrawRequested         = stderrors.New("hub: no withdraw requested")
	ErrInvalidAdmissionState       = stderrors.New("hub: chain is not awaiting admission confirmation")
	ErrLastExecutor                = stderrors.New("hub: cannot remove the last executor on a chain")
	ErrAddressNotFound             = stderrors.New("hub: address not found")
)

// Signature failure: the transaction aborts, including any bet already
// placed earlier in the same call.
var ErrSignatureCheckFailed = stderrors.New("hub: signature check failed")

// Economic errors: the transaction aborts.
var (
	ErrInsufficientFunds         = stderrors.New("hub: insufficient funds")
	ErrInsufficientStake         = stderrors.New("hub: insufficient stake")
	ErrInsufficientPersonalStake = stderrors.New("hub: insufficient personal stake")
	ErrTryingToWithdrawTooMuch   = stderrors.New("hub: trying to withdraw too much")
)

// Timing errors: the transaction aborts.
var (
	ErrMinRoundTimeNotReached        = stderrors.New("hub: minimum round time not reached")
	ErrNotEnoughTimeHasPassed        = stderrors.New("hub: not enough time has passed")
	ErrTimeoutNotElapsed             = stderrors.New("hub: timeout not elapsed")
	ErrNotEnoughTransmittersHaveVoted = stderrors.New("hub: not enough transmitters have voted")
)
