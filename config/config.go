// Package config holds the hub's process-wide tunables (GlobalConfig). It
// is loaded once at process start and passed down to constructors as an
// immutable value; no package mutates a process-wide global after load.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"photon/crypto"
)

// minBetTimeout is the floor enforced on BetTimeout (30 days).
const minBetTimeout = 30 * 24 * time.Hour

// GlobalConfig is the process-wide tunable set.
// Every setter that would mutate it is admin-gated at the call site that
// owns the authority table (see native/staking.Authority); this struct
// itself carries no access control.
type GlobalConfig struct {
	FeeCollector              crypto.Identity `toml:"-"`
	FeeCollectorAddr          string          `toml:"FeeCollector"`
	ProtocolRegisterFee       uint64          `toml:"ProtocolRegisterFee"`
	ManualTransmitterFee      uint64          `toml:"ManualTransmitterFee"`
	ChangeProtocolParamsFee   uint64          `toml:"ChangeProtocolParamsFee"`
	MinProtocolBalance        uint64          `toml:"MinProtocolBalance"`
	MaxTransmittersCount      uint32          `toml:"MaxTransmittersCount"`
	AgentRewardFeeBps         uint32          `toml:"AgentRewardFeeBps"`
	AgentStakePerTransmitter  uint64          `toml:"AgentStakePerTransmitter"`
	SlashingBorder            uint32          `toml:"SlashingBorder"`
	ProtocolOperationFee      uint64          `toml:"ProtocolOperationFee"`
	InitNewChainFee           uint64          `toml:"InitNewChainFee"`
	BetTimeoutSeconds         uint64          `toml:"BetTimeoutSeconds"`
	MinRoundTimeSeconds       uint64          `toml:"MinRoundTimeSeconds"`
	WatchersConsensusRateBps  uint32          `toml:"WatchersConsensusRateBps"`
}

// BetTimeout is the parsed duration form of BetTimeoutSeconds.
func (g GlobalConfig) BetTimeout() time.Duration {
	return time.Duration(g.BetTimeoutSeconds) * time.Second
}

// MinRoundTime is the parsed duration form of MinRoundTimeSeconds.
func (g GlobalConfig) MinRoundTime() time.Duration {
	return time.Duration(g.MinRoundTimeSeconds) * time.Second
}

// Validate enforces the invariants required of every setter: an
// invalid value is rejected outright rather than clamped.
func (g *GlobalConfig) Validate() error {
	if g.FeeCollectorAddr == "" {
		return fmt.Errorf("config: FeeCollector must not be empty")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(g.FeeCollectorAddr, "0x"))
	if err != nil {
		return fmt.Errorf("config: invalid FeeCollector hex: %w", err)
	}
	addr, err := crypto.IdentityFromBytes(raw)
	if err != nil {
		return fmt.Errorf("config: invalid FeeCollector: %w", err)
	}
	g.FeeCollector = addr
	if g.AgentRewardFeeBps > 10000 {
		return fmt.Errorf("config: AgentRewardFeeBps %d exceeds 10000", g.AgentRewardFeeBps)
	}
	if g.BetTimeout() < minBetTimeout {
		return fmt.Errorf("config: BetTimeoutSeconds %d below 30-day floor", g.BetTimeoutSeconds)
	}
	if g.WatchersConsensusRateBps <= 5500 || g.WatchersConsensusRateBps > 10000 {
		return fmt.Errorf("config: WatchersConsensusRateBps %d out of range (5500,10000]", g.WatchersConsensusRateBps)
	}
	if g.MaxTransmittersCount == 0 {
		return fmt.Errorf("config: MaxTransmittersCount must be positive")
	}
	return nil
}

// Load reads a TOML-encoded GlobalConfig from path, writing sane defaults
// back to disk if the file does not yet exist (mirrors the common
// config.Load).
func Load(path string) (*GlobalConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &GlobalConfig{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*GlobalConfig, error) {
	cfg := Default()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the hub's baseline tunables, valid against Validate.
func Default() *GlobalConfig {
	return &GlobalConfig{
		FeeCollectorAddr:         "0x00000000000000000000000000000000000000fe",
		ProtocolRegisterFee:      1_000_000,
		ManualTransmitterFee:     100_000,
		ChangeProtocolParamsFee:  50_000,
		MinProtocolBalance:       500_000,
		MaxTransmittersCount:     32,
		AgentRewardFeeBps:        1000,
		AgentStakePerTransmitter: 10_000,
		SlashingBorder:           3,
		ProtocolOperationFee:     1_000,
		InitNewChainFee:          200_000,
		BetTimeoutSeconds:        uint64(minBetTimeout.Seconds()),
		MinRoundTimeSeconds:      3600,
		WatchersConsensusRateBps: 6000,
	}
}
