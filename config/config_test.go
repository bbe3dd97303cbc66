package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().AgentRewardFeeBps, cfg.AgentRewardFeeBps)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.MaxTransmittersCount, reloaded.MaxTransmittersCount)
}

func TestValidateRejectsOutOfRangeAgentRewardFee(t *testing.T) {
	cfg := Default()
	cfg.AgentRewardFeeBps = 10001
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsShortBetTimeout(t *testing.T) {
	cfg := Default()
	cfg.BetTimeoutSeconds = 60
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsWatcherRateOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.WatchersConsensusRateBps = 5500
	require.Error(t, cfg.Validate())

	cfg.WatchersConsensusRateBps = 10001
	require.Error(t, cfg.Validate())
}
