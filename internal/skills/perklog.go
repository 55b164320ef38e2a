// Package skills reconstructs a player's skill levels from the server's
// PerkLog so they can be restored after a death.
//
// The PerkLog records logins, deaths, level changes and periodic skill
// snapshots per player. The analysis picks the player's most significant
// death (most hours survived), takes the snapshot logged with the login
// preceding it, replays level changes up to the death, and compares the
// result with the snapshot logged at the first login or character
// creation after it.
package skills

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Levels maps skill name to level.
type Levels map[string]int

var (
	ErrNoPerkLog   = errors.New("no PerkLog file")
	ErrNoEntries   = errors.New("no PerkLog entries for player")
	ErrNoDeath     = errors.New("no death recorded for player")
	ErrNoLogin     = errors.New("no login before death")
	ErrNoSkillData = errors.New("skill levels not found near login")
)

// Proximity is how far apart in time an event and its skill snapshot may
// be logged.
const Proximity = time.Second

// searchRange is how many lines around an event are searched for its
// snapshot.
const searchRange = 3

var (
	timestampRe    = regexp.MustCompile(`\[\d{2}-\d{2}-\d{2} (\d{2}):(\d{2}):(\d{2}\.\d{3})\]`)
	skillDataRe    = regexp.MustCompile(`\[([^\]]*)\]\[Hours Survived:`)
	diedRe         = regexp.MustCompile(`\[Died\]\[Hours Survived: (\d+)\]`)
	levelChangedRe = regexp.MustCompile(`\[Level Changed\]\[([^\]]+)\]\[(\d+)\]`)
)

// Analysis is the outcome of reading one player's PerkLog history.
type Analysis struct {
	// DeathHours is the hours survived at the analysed death.
	DeathHours int

	// PreDeath are the levels the player had when they died.
	PreDeath Levels

	// Current are the levels logged after respawning. Empty when the
	// player has not logged in since.
	Current Levels
}

// Deficits returns the grants restoring the pre-death levels.
func (a *Analysis) Deficits() []Grant {
	return Deficits(a.PreDeath, a.Current)
}

// LatestPerkLog returns the most recently modified *PerkLog.txt in dir.
func LatestPerkLog(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*PerkLog.txt"))
	if err != nil {
		return "", fmt.Errorf("list PerkLogs in %s: %w", dir, err)
	}
	var (
		latest string
		newest time.Time
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(newest) {
			latest, newest = path, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoPerkLog)
	}
	return latest, nil
}

// AnalyzeDir analyses the latest PerkLog in dir for player.
func AnalyzeDir(dir, player string) (*Analysis, error) {
	path, err := LatestPerkLog(dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PerkLog: %w", err)
	}
	defer f.Close()
	return Analyze(f, player)
}

// Analyze reads a PerkLog and reconstructs player's levels around their
// most significant death.
func Analyze(r io.Reader, player string) (*Analysis, error) {
	lines, err := playerLines(r, player)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: %w", player, ErrNoEntries)
	}

	death, hours := -1, -1
	for i, line := range lines {
		m := diedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		if h > hours {
			death, hours = i, h
		}
	}
	if death < 0 {
		return nil, fmt.Errorf("%s: %w", player, ErrNoDeath)
	}

	login := -1
	for i := death - 1; i >= 0; i-- {
		if strings.Contains(lines[i], "[Login][Hours Survived:") {
			login = i
			break
		}
	}
	if login < 0 {
		return nil, fmt.Errorf("%s: %w", player, ErrNoLogin)
	}

	pre := snapshotNear(lines, login)
	if len(pre) == 0 {
		return nil, fmt.Errorf("%s: %w", player, ErrNoSkillData)
	}
	for _, line := range lines[login+1 : death] {
		if m := levelChangedRe.FindStringSubmatch(line); m != nil {
			level, _ := strconv.Atoi(m[2])
			pre[m[1]] = level
		}
	}

	current := Levels{}
	for i := death + 1; i < len(lines); i++ {
		line := lines[i]
		if !strings.Contains(line, "[Login][Hours Survived:") && !strings.Contains(line, "[Created Player") {
			continue
		}
		if skills := snapshotNear(lines, i); len(skills) > 0 {
			current = skills
			break
		}
	}

	return &Analysis{DeathHours: hours, PreDeath: pre, Current: current}, nil
}

func playerLines(r io.Reader, player string) ([]string, error) {
	marker := "][" + player + "]["
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); strings.Contains(line, marker) {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read PerkLog: %w", err)
	}
	return out, nil
}

// snapshotNear finds the skill snapshot logged with the event at ref,
// looking forward first and then backward.
func snapshotNear(lines []string, ref int) Levels {
	at, ok := timestamp(lines[ref])
	if !ok {
		return nil
	}
	try := func(i int) Levels {
		if i < 0 || i >= len(lines) || !isSnapshot(lines[i]) {
			return nil
		}
		ts, ok := timestamp(lines[i])
		if !ok || (ts-at).Abs() > Proximity {
			return nil
		}
		return parseSnapshot(lines[i])
	}
	for off := 1; off <= searchRange; off++ {
		if s := try(ref + off); s != nil {
			return s
		}
	}
	for off := 1; off <= searchRange; off++ {
		if s := try(ref - off); s != nil {
			return s
		}
	}
	return nil
}

// timestamp returns the time of day a line was logged.
func timestamp(line string) (time.Duration, bool) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(mi)*time.Minute +
		time.Duration(sec*float64(time.Second)), true
}

func isSnapshot(line string) bool {
	if !strings.Contains(line, "=") || !strings.Contains(line, "Hours Survived:") {
		return false
	}
	for _, event := range []string{"[Login]", "[Died]", "[Created Player", "[Level Changed]"} {
		if strings.Contains(line, event) {
			return false
		}
	}
	return true
}

func parseSnapshot(line string) Levels {
	m := skillDataRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	out := Levels{}
	for _, pair := range strings.Split(m[1], ", ") {
		name, level, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(level))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = n
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
