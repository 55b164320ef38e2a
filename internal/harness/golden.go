package harness

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Outcome      string       `json:"outcome"`
	Status       string       `json:"status"`
	Trace        []TraceEvent `json:"trace"`
}

// Snapshot renders the golden bytes for a result: indented JSON with a
// trailing newline.
func Snapshot(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(TraceSnapshot{
		ScenarioName: name,
		Outcome:      result.Outcome,
		Status:       result.Status,
		Trace:        result.Trace,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// GoldenPath returns where the golden file of a scenario file lives:
// golden/<name>.golden next to it.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// CompareGolden reports whether the golden file of scenarioFile holds
// exactly the snapshot of result. exists is false when there is no
// golden file.
func CompareGolden(scenarioFile, name string, result *Result) (match, exists bool, err error) {
	want, err := os.ReadFile(GoldenPath(scenarioFile))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, true, err
	}
	got, err := Snapshot(name, result)
	if err != nil {
		return false, true, err
	}
	return string(want) == string(got), true, nil
}

// UpdateGolden writes the snapshot of result as the golden file of
// scenarioFile.
func UpdateGolden(scenarioFile, name string, result *Result) error {
	path := GoldenPath(scenarioFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AssertGolden compares the result's snapshot against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
