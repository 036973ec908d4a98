package domain

import "fmt"

// XPPerLevel scales the threshold: advancing from level L needs L*XPPerLevel XP.
const XPPerLevel = 100

// LevelThreshold returns the XP required to advance from level.
func LevelThreshold(level int) int {
	return level * XPPerLevel
}

// LevelGrant is the result of applying an XP grant.
type LevelGrant struct {
	Level        int
	XP           int
	LevelsGained int
}

// LeveledUp reports whether at least one threshold was crossed.
func (g LevelGrant) LeveledUp() bool {
	return g.LevelsGained > 0
}

// Grant adds amount to xp and carries the remainder across as many level
// thresholds as it covers. The result satisfies 0 <= XP < LevelThreshold(Level).
func Grant(level, xp, amount int) (LevelGrant, error) {
	if amount < 0 {
		return LevelGrant{}, fmt.Errorf("%w: xp grant %d", ErrInvalidAmount, amount)
	}
	if level < 1 || xp < 0 || xp >= LevelThreshold(level) {
		return LevelGrant{}, fmt.Errorf("%w: level=%d xp=%d", ErrCorruptState, level, xp)
	}

	result := LevelGrant{Level: level, XP: xp + amount}
	for threshold := LevelThreshold(result.Level); result.XP >= threshold; threshold = LevelThreshold(result.Level) {
		result.XP -= threshold
		result.Level++
		result.LevelsGained++
	}
	return result, nil
}
