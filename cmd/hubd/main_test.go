package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"photon/config"
	"photon/core/events"
)

func TestWireProducesUsableHub(t *testing.T) {
	cfg := config.Default()
	authz := loadAuthorities()
	emitter := &events.CollectingEmitter{}

	h, coordinator := wire(cfg, authz, emitter)
	require.NotNil(t, h)
	require.NotNil(t, coordinator)

	info, err := h.protocols.Snapshot(authz.govProtoId)
	require.NoError(t, err)
	require.True(t, info.IsGov)
	require.True(t, info.Active)

	require.NoError(t, coordinator.Turn(authz.roundManager))
}

func TestWireRejectsRoundTurnFromWrongCaller(t *testing.T) {
	cfg := config.Default()
	authz := loadAuthorities()
	emitter := &events.CollectingEmitter{}

	_, coordinator := wire(cfg, authz, emitter)
	err := coordinator.Turn(authz.admin)
	require.Error(t, err)
}

func TestLoadAuthoritiesFallsBackToDefaults(t *testing.T) {
	authz := loadAuthorities()
	require.False(t, authz.admin.IsZero())
	require.False(t, authz.roundManager.IsZero())
	require.Equal(t, "gov", authz.govProtoId.String())
}
