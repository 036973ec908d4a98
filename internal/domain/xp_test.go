package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrant(t *testing.T) {
	cases := []struct {
		name              string
		level, xp, amount int
		wantLevel, wantXP int
		wantLevelsGained  int
	}{
		{name: "no level up", level: 1, xp: 0, amount: 50, wantLevel: 1, wantXP: 50},
		{name: "single crossing", level: 1, xp: 80, amount: 50, wantLevel: 2, wantXP: 30, wantLevelsGained: 1},
		{name: "exact threshold", level: 1, xp: 50, amount: 50, wantLevel: 2, wantXP: 0, wantLevelsGained: 1},
		{name: "multi level jump", level: 1, xp: 0, amount: 450, wantLevel: 3, wantXP: 150, wantLevelsGained: 2},
		{name: "zero amount", level: 4, xp: 399, amount: 0, wantLevel: 4, wantXP: 399},
		{name: "large reward", level: 2, xp: 10, amount: 1000, wantLevel: 5, wantXP: 110, wantLevelsGained: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Grant(tc.level, tc.xp, tc.amount)
			require.NoError(t, err)
			require.Equal(t, tc.wantLevel, got.Level)
			require.Equal(t, tc.wantXP, got.XP)
			require.Equal(t, tc.wantLevelsGained, got.LevelsGained)
			require.Equal(t, tc.wantLevelsGained > 0, got.LeveledUp())
			require.GreaterOrEqual(t, got.XP, 0)
			require.Less(t, got.XP, LevelThreshold(got.Level))
		})
	}
}

func TestGrantRejectsNegativeAmount(t *testing.T) {
	_, err := Grant(1, 0, -1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestGrantRejectsCorruptInput(t *testing.T) {
	for _, in := range [][2]int{{0, 0}, {1, -1}, {1, 100}, {3, 301}} {
		_, err := Grant(in[0], in[1], 10)
		require.ErrorIs(t, err, ErrCorruptState, "level=%d xp=%d", in[0], in[1])
	}
}

func TestGrantNeverLowersLevel(t *testing.T) {
	level, xp := 1, 0
	for amount := 0; amount < 400; amount += 37 {
		got, err := Grant(level, xp, amount)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.Level, level)
		level, xp = got.Level, got.XP
	}
}
