package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPForLevel(t *testing.T) {
	tests := []struct {
		skill string
		level int
		want  int
	}{
		{"Cooking", 0, 0},
		{"Cooking", 1, 75},
		{"Cooking", 3, 525},
		{"Cooking", 10, 32775},
		{"Cooking", 12, 32775},
		{"Fitness", 1, 1500},
		{"Fitness", 6, 67500},
		{"Strength", -1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, XPForLevel(tt.skill, tt.level), "%s level %d", tt.skill, tt.level)
	}
}

func TestDeficits(t *testing.T) {
	pre := Levels{"Cooking": 3, "Fitness": 7, "Axe": 1, "Sprinting": 2}
	current := Levels{"Cooking": 0, "Fitness": 5, "Axe": 4}

	assert.Equal(t, []Grant{
		{Skill: "Cooking", XP: 525},
		{Skill: "Fitness", XP: 30000 + 60000},
		{Skill: "Sprinting", XP: 225},
	}, Deficits(pre, current))
	assert.Empty(t, Deficits(current, current))
}

func TestAnalyzeMostSignificantDeath(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "death_PerkLog.txt"))
	require.NoError(t, err)
	defer f.Close()

	a, err := Analyze(f, "Bob")
	require.NoError(t, err)

	assert.Equal(t, 35, a.DeathHours)
	assert.Equal(t, Levels{"Cooking": 3, "Fitness": 7, "Strength": 5, "Axe": 3}, a.PreDeath)
	assert.Equal(t, Levels{"Cooking": 0, "Fitness": 5, "Strength": 5, "Axe": 0}, a.Current)
	assert.Equal(t, []Grant{
		{Skill: "Axe", XP: 525},
		{Skill: "Cooking", XP: 525},
		{Skill: "Fitness", XP: 30000 + 60000},
	}, a.Deficits())
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want error
	}{
		{
			name: "no entries",
			log:  "[01-03-26 18:02:12.001] [1][Alice][0,0,0][Login][Hours Survived: 3].\n",
			want: ErrNoEntries,
		},
		{
			name: "no death",
			log:  "[01-03-26 18:02:12.001] [1][Bob][0,0,0][Login][Hours Survived: 3].\n",
			want: ErrNoDeath,
		},
		{
			name: "no login before death",
			log:  "[01-03-26 18:02:12.001] [1][Bob][0,0,0][Died][Hours Survived: 3].\n",
			want: ErrNoLogin,
		},
		{
			name: "snapshot too far from login",
			log: "[01-03-26 18:00:00.000] [1][Bob][0,0,0][Login][Hours Survived: 3].\n" +
				"[01-03-26 18:00:05.000] [1][Bob][0,0,0][Cooking=2][Hours Survived: 3].\n" +
				"[01-03-26 19:00:00.000] [1][Bob][0,0,0][Died][Hours Survived: 4].\n",
			want: ErrNoSkillData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(strings.NewReader(tt.log), "Bob")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAnalyzeSnapshotBeforeLogin(t *testing.T) {
	log := "[01-03-26 18:00:00.900] [1][Bob][0,0,0][Cooking=2, Axe=1][Hours Survived: 3].\n" +
		"[01-03-26 18:00:01.000] [1][Bob][0,0,0][Login][Hours Survived: 3].\n" +
		"[01-03-26 19:00:00.000] [1][Bob][0,0,0][Died][Hours Survived: 4].\n"

	a, err := Analyze(strings.NewReader(log), "Bob")
	require.NoError(t, err)
	assert.Equal(t, Levels{"Cooking": 2, "Axe": 1}, a.PreDeath)
	assert.Empty(t, a.Current)
}

func TestPlayerNamesDoNotOverlap(t *testing.T) {
	log := "[01-03-26 18:00:00.000] [1][Bobby][0,0,0][Login][Hours Survived: 3].\n" +
		"[01-03-26 18:00:00.100] [1][Bobby][0,0,0][Cooking=2][Hours Survived: 3].\n" +
		"[01-03-26 19:00:00.000] [1][Bobby][0,0,0][Died][Hours Survived: 4].\n"

	_, err := Analyze(strings.NewReader(log), "Bob")
	assert.ErrorIs(t, err, ErrNoEntries)
}

func TestLatestPerkLog(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "2026-03-01_PerkLog.txt")
	newer := filepath.Join(dir, "2026-03-02_PerkLog.txt")
	require.NoError(t, os.WriteFile(older, nil, 0o644))
	require.NoError(t, os.WriteFile(newer, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat.txt"), nil, 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	got, err := LatestPerkLog(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	_, err = LatestPerkLog(t.TempDir())
	assert.ErrorIs(t, err, ErrNoPerkLog)
}
