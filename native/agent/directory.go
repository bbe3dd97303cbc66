package agent

import (
	"sync"

	"photon/config"
	"photon/core/errors"
	"photon/core/events"
	"photon/core/types"
	"photon/crypto"
)

// StakeView is the narrow slice of StakingLedger the directory needs: the
// personal-stake figure that bounds how many transmitters an agent may
// support, and the ban operation itself (slash + not-approved).
type StakeView interface {
	PersonalStakeOf(agent types.AgentId) uint64
	BanAgent(agent types.AgentId) (uint64, error)
}

// ProtocolLookup is the narrow slice of ProtocolRegistry the directory
// needs to validate a support declaration.
type ProtocolLookup interface {
	Exists(protocolId types.ProtocolId) bool
	IsGovProtocol(protocolId types.ProtocolId) bool
}

// Authority names the identity trusted to ban an agent.
type Authority struct {
	Admin crypto.Identity
}

// Directory is AgentDirectory: the per-protocol agent↔transmitter mapping.
type Directory struct {
	mu        sync.Mutex
	cfg       *config.GlobalConfig
	authority Authority
	stake     StakeView
	protocols ProtocolLookup
	emitter   events.Emitter

	transmitterOf      map[types.ProtocolId]map[types.AgentId]types.TransmitterId
	agentByTransmitter map[types.ProtocolId]map[types.TransmitterId]types.AgentId
	transmitterCount   map[types.AgentId]uint32
	supported          map[types.AgentId]protocolSet
}

func NewDirectory(cfg *config.GlobalConfig, authority Authority, stake StakeView, protocols ProtocolLookup, emitter events.Emitter) *Directory {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Directory{
		cfg:                cfg,
		authority:          authority,
		stake:              stake,
		protocols:          protocols,
		emitter:            emitter,
		transmitterOf:      make(map[types.ProtocolId]map[types.AgentId]types.TransmitterId),
		agentByTransmitter: make(map[types.ProtocolId]map[types.TransmitterId]types.AgentId),
		transmitterCount:   make(map[types.AgentId]uint32),
		supported:          make(map[types.AgentId]protocolSet),
	}
}

func (d *Directory) agentMap(protocolId types.ProtocolId) map[types.AgentId]types.TransmitterId {
	m, ok := d.transmitterOf[protocolId]
	if !ok {
		m = make(map[types.AgentId]types.TransmitterId)
		d.transmitterOf[protocolId] = m
	}
	return m
}

func (d *Directory) reverseMap(protocolId types.ProtocolId) map[types.TransmitterId]types.AgentId {
	m, ok := d.agentByTransmitter[protocolId]
	if !ok {
		m = make(map[types.TransmitterId]types.AgentId)
		d.agentByTransmitter[protocolId] = m
	}
	return m
}

// DeclareProtocolSupport maps caller's transmitter address to protocolId.
// Rejects a zero transmitter, an unknown or gov protocol, or a transmitter
// already claimed by another agent on this protocol, and enforces the
// personal-stake-derived cap on how many protocols one agent may support.
func (d *Directory) DeclareProtocolSupport(caller types.AgentId, protocolId types.ProtocolId, transmitter types.TransmitterId) error {
	if transmitter.IsZero() {
		return errors.ErrZeroAddress
	}
	if protocolId.IsZero() || !d.protocols.Exists(protocolId) || d.protocols.IsGovProtocol(protocolId) {
		return errors.ErrProtocolIsNotAllowed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reverse := d.reverseMap(protocolId)
	if owner, claimed := reverse[transmitter]; claimed && owner != caller {
		return errors.ErrDuplicateTransmitter
	}
	forward := d.agentMap(protocolId)
	if _, already := forward[caller]; already {
		return errors.ErrSupportAlreadyDeclared
	}

	perTransmitter := d.cfg.AgentStakePerTransmitter
	if perTransmitter > 0 {
		personal := d.stake.PersonalStakeOf(caller)
		if uint64(d.transmitterCount[caller]) >= personal/perTransmitter {
			return errors.ErrTransmitterCapExceeded
		}
	}

	forward[caller] = transmitter
	reverse[transmitter] = caller
	d.transmitterCount[caller]++
	set, ok := d.supported[caller]
	if !ok {
		set = make(protocolSet)
		d.supported[caller] = set
	}
	set.add(protocolId)

	d.emitter.Emit(events.DeclareProtocolSupport{Agent: caller, ProtocolId: protocolId, Transmitter: transmitter})
	return nil
}

// RevokeProtocolSupport clears caller's mapping for protocolId. This
// reproduces a quirk in the mapping clear order: the reverse index is
// cleared using the forward entry's value *after* the forward entry has
// already been zeroed, so it ends up clearing whatever (possibly nothing)
// sits at the zero transmitter key rather than the transmitter the agent
// actually had mapped. The forward entry and bookkeeping are still removed
// correctly; only the reverse-index cleanup is affected.
func (d *Directory) RevokeProtocolSupport(caller types.AgentId, protocolId types.ProtocolId) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	forward := d.agentMap(protocolId)
	if _, ok := forward[caller]; !ok {
		return errors.ErrSupportNotDeclared
	}
	delete(forward, caller)
	stale := forward[caller] // zero value, read after the delete above
	reverse := d.reverseMap(protocolId)
	delete(reverse, stale)

	if d.transmitterCount[caller] > 0 {
		d.transmitterCount[caller]--
	}
	if set, ok := d.supported[caller]; ok {
		set.remove(protocolId)
	}

	d.emitter.Emit(events.RevokeProtocolSupport{Agent: caller, ProtocolId: protocolId})
	return nil
}

// BanAgent marks target not-approved and slashes its full personal stake
// via StakingLedger, then walks every protocol target declared support for
// and removes its transmitter mapping from each (unlike
// RevokeProtocolSupport, this path clears the reverse index correctly,
// since it still holds the transmitter value at the time of removal).
func (d *Directory) BanAgent(caller crypto.Identity, target types.AgentId) error {
	if caller != d.authority.Admin {
		return errors.ErrUnauthorized
	}
	d.mu.Lock()
	protocolIds := d.supported[target].list()
	for _, protocolId := range protocolIds {
		forward := d.agentMap(protocolId)
		transmitter, ok := forward[target]
		delete(forward, target)
		if ok {
			delete(d.reverseMap(protocolId), transmitter)
		}
	}
	delete(d.supported, target)
	delete(d.transmitterCount, target)
	d.mu.Unlock()

	slashed, err := d.stake.BanAgent(target)
	if err != nil {
		return err
	}
	d.emitter.Emit(events.BanAgent{Agent: target, Slashed: slashed})
	return nil
}

// SupportsProtocol reports whether agent has declared support for
// protocolId. Satisfies one leg of staking.ProtocolView once bound into a
// per-protocol adapter.
func (d *Directory) SupportsProtocol(protocolId types.ProtocolId, agent types.AgentId) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.agentMap(protocolId)[agent]
	return ok
}

// TransmitterFor returns the transmitter address agent has mapped for
// protocolId, if any.
func (d *Directory) TransmitterFor(protocolId types.ProtocolId, agent types.AgentId) (types.TransmitterId, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.agentMap(protocolId)[agent]
	return t, ok
}

// AgentByTransmitter reverse-resolves a transmitter address back to the
// agent that mapped it for protocolId. Satisfies native/bet's Directory
// interface.
func (d *Directory) AgentByTransmitter(protocolId types.ProtocolId, transmitter types.TransmitterId) (types.AgentId, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.reverseMap(protocolId)[transmitter]
	return a, ok
}
