package skills

import "sort"

// Cumulative xp per level step. Index i is the xp needed to go from
// level i-1 to level i.
var (
	passiveXP = [...]int{0, 1500, 3000, 6000, 9000, 18000, 30000, 60000, 90000, 120000, 150000}
	regularXP = [...]int{0, 75, 150, 300, 750, 1500, 3000, 4500, 6000, 7500, 9000}
)

// passiveSkills level on the passive table.
var passiveSkills = map[string]bool{
	"Fitness":  true,
	"Strength": true,
}

// MaxLevel is the highest skill level.
const MaxLevel = len(regularXP) - 1

// XPForLevel returns the total xp needed to reach level in skill from
// zero. Levels outside 0..MaxLevel are clamped.
func XPForLevel(skill string, level int) int {
	table := regularXP[:]
	if passiveSkills[skill] {
		table = passiveXP[:]
	}
	level = min(max(level, 0), MaxLevel)
	total := 0
	for _, step := range table[1 : level+1] {
		total += step
	}
	return total
}

// Grant is one xp award needed to restore a skill.
type Grant struct {
	Skill string
	XP    int
}

// Deficits returns the grants that bring current up to pre, one per skill
// that lost levels, ordered by skill name. Skills missing from current
// count as level 0.
func Deficits(pre, current Levels) []Grant {
	var out []Grant
	for skill, want := range pre {
		have := current[skill]
		if want <= have {
			continue
		}
		if xp := XPForLevel(skill, want) - XPForLevel(skill, have); xp > 0 {
			out = append(out, Grant{Skill: skill, XP: xp})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Skill < out[j].Skill })
	return out
}
