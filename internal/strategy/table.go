package strategy

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed strategies.cue
var builtinSource []byte

// Table maps versions to strategies.
type Table struct {
	byVersion map[Version]*Strategy
}

// LoadError reports a problem in a strategy CUE document.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Builtin returns the embedded table.
func Builtin() (*Table, error) {
	return Load("")
}

// Load returns the embedded table with the strategies of the CUE file at
// overridePath layered on top. An entry in the override replaces the
// built-in entry of the same version; new versions are added. Override
// entries are validated against the same schema.
func Load(overridePath string) (*Table, error) {
	ctx := cuecontext.New()
	base := ctx.CompileBytes(builtinSource, cue.Filename("strategies.cue"))
	if err := base.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	table := &Table{byVersion: make(map[Version]*Strategy)}
	if err := table.add(base.LookupPath(cue.ParsePath("strategies")), cue.Value{}); err != nil {
		return nil, err
	}

	if overridePath == "" {
		return table, nil
	}
	src, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read strategy override: %w", err)
	}
	override := ctx.CompileBytes(src, cue.Filename(overridePath))
	if err := override.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := base.LookupPath(cue.ParsePath("#Strategy"))
	if err := table.add(override.LookupPath(cue.ParsePath("strategies")), schema); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table) add(strategies, schema cue.Value) error {
	if !strategies.Exists() {
		return &LoadError{Field: "strategies", Message: "no strategies defined"}
	}
	iter, err := strategies.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		v := iter.Value()
		if schema.Exists() {
			v = schema.Unify(v)
		}
		s, err := decode(Version(iter.Label()), v)
		if err != nil {
			return err
		}
		t.byVersion[s.Version] = s
	}
	return nil
}

func decode(version Version, v cue.Value) (*Strategy, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw struct {
		JavaMarker string       `json:"java_marker"`
		Commands   Commands     `json:"commands"`
		Phrases    Phrases      `json:"phrases"`
		Access     AccessRule   `json:"access"`
		Timing     timingSource `json:"timing"`
	}
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	timing, err := raw.Timing.parse()
	if err != nil {
		return nil, &LoadError{Field: "strategies." + string(version), Message: err.Error(), Pos: v.Pos()}
	}
	return &Strategy{
		Version:    version,
		JavaMarker: raw.JavaMarker,
		Commands:   raw.Commands,
		Phrases:    raw.Phrases,
		Access:     raw.Access,
		Timing:     timing,
	}, nil
}

// Versions lists the known versions in sorted order.
func (t *Table) Versions() []Version {
	out := make([]Version, 0, len(t.byVersion))
	for v := range t.byVersion {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Lookup returns the strategy for v.
func (t *Table) Lookup(v Version) (*Strategy, error) {
	s, ok := t.byVersion[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, v)
	}
	return s, nil
}

// Detect reads a JRE release file and returns the strategy whose java
// marker matches its JAVA_VERSION line.
func (t *Table) Detect(releaseFile string) (*Strategy, error) {
	content, err := os.ReadFile(releaseFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: release file %s not found", ErrUnknownVersion, releaseFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read release file: %w", err)
	}
	text := string(content)
	for _, v := range t.Versions() {
		s := t.byVersion[v]
		if strings.Contains(text, `JAVA_VERSION="`+s.JavaMarker) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no strategy matches %s", ErrUnknownVersion, releaseFile)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
