// Package voting runs a single step on several independent workers in
// parallel and accepts the first answer that K of them agree on.
package voting

import (
	"time"

	"github.com/ShayCichocki/geodecomp/pkg/models"
)

// Tier selects how many voters run and how many must agree.
type Tier string

const (
	TierNone     Tier = "none"
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// DefaultTimeout bounds a single voting round.
const DefaultTimeout = 2 * time.Minute

// DefaultBaseTemperature is the temperature of the first voter.
const DefaultBaseTemperature = 0.7

// Config configures a voting round.
type Config struct {
	// Voters is the number of parallel workers per round.
	Voters int
	// K is the number of matching responses required for consensus.
	K int
	// Timeout bounds a round. Zero means no deadline beyond the caller's context.
	Timeout time.Duration
	// Decorrelate spreads temperature and seed across voters.
	Decorrelate bool
	// BaseTemperature is the temperature given to voter 0.
	BaseTemperature float64
	// Mode controls response comparison. Empty means ModeNormalized.
	Mode Mode
}

var tierConfigs = map[Tier]Config{
	TierNone:     {Voters: 1, K: 1},
	TierLow:      {Voters: 2, K: 2},
	TierMedium:   {Voters: 3, K: 2},
	TierHigh:     {Voters: 5, K: 3},
	TierCritical: {Voters: 7, K: 4},
}

// ConfigForTier returns the fixed configuration for tier. Unknown tiers
// behave like TierNone.
func ConfigForTier(tier Tier) Config {
	cfg, ok := tierConfigs[tier]
	if !ok {
		cfg = tierConfigs[TierNone]
	}
	cfg.Timeout = DefaultTimeout
	cfg.Decorrelate = cfg.Voters > 1
	cfg.BaseTemperature = DefaultBaseTemperature
	cfg.Mode = ModeNormalized
	return cfg
}

// TierForPriority maps a run priority to a voting tier.
func TierForPriority(p models.Priority) Tier {
	switch p {
	case models.PriorityCritical:
		return TierCritical
	case models.PriorityHigh:
		return TierHigh
	case models.PriorityLow:
		return TierLow
	default:
		return TierMedium
	}
}
