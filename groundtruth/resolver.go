// Package groundtruth supplies, for every test clip of a UCSD Pedestrian
// dataset, the set of frame numbers annotated as anomalous.
//
// Three interchangeable strategies implement Resolver:
//
//   - TableResolver backed by a static Table, loaded from configuration
//     (LoadTables, DefaultTables) or parsed from a MATLAB-style .m file
//     (ParseTextFile).
//   - SidecarResolver reading one <clip>_gt.<ext> file per clip.
//
// New selects a strategy from Options by Kind.
package groundtruth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoClipIndex is returned when a clip name carries no numeric suffix.
	ErrNoClipIndex = errors.New("clip name has no numeric suffix")

	// ErrClipOutOfRange is returned when a clip index exceeds the table.
	ErrClipOutOfRange = errors.New("clip index out of range for ground-truth table")

	// ErrSourceMissing is reported when a ground-truth source file does not exist.
	ErrSourceMissing = errors.New("ground-truth source not found")

	// ErrSidecarMissing is returned by a SidecarResolver configured with
	// MissingFail when a clip has no sidecar file.
	ErrSidecarMissing = errors.New("ground-truth sidecar file not found")
)

// Clip identifies a test clip. Index is the 0-based position of the clip in a
// ground-truth table, or -1 when the name has no numeric suffix.
type Clip struct {
	Name  string
	Index int
}

var clipSuffix = regexp.MustCompile(`(\d+)$`)

// ClipFromName derives a Clip from its directory name: "Test001" has index 0,
// "Test12" has index 11.
func ClipFromName(name string) Clip {
	m := clipSuffix.FindStringSubmatch(name)
	if m == nil {
		return Clip{Name: name, Index: -1}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return Clip{Name: name, Index: -1}
	}
	return Clip{Name: name, Index: n - 1}
}

// Resolver returns the anomalous frames of a test clip.
type Resolver interface {
	Resolve(clip Clip) (FrameSet, error)
}

// Reporter is implemented by resolvers that degraded while being built and
// want the loader to surface what happened.
type Reporter interface {
	Report() []error
}

// Kind tags a resolver strategy.
type Kind int

const (
	KindStaticTable Kind = iota
	KindTextParser
	KindSidecar
)

var kindNames = map[Kind]string{
	KindStaticTable: "table",
	KindTextParser:  "text",
	KindSidecar:     "sidecar",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps "table", "text" or "sidecar" (case-insensitive) to a Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown ground-truth resolver %q (want table, text or sidecar)", s)
}

// Options selects and configures a resolver for New.
type Options struct {
	Kind Kind

	// KindStaticTable: Table is used as is when set, otherwise TableName is
	// looked up in TablesPath, or in DefaultTables when TablesPath is empty.
	Table      *Table
	TableName  string
	TablesPath string

	// KindTextParser: path to the .m file.
	TextPath string

	// KindSidecar.
	SidecarDir string
	SidecarExt string
	Field      string
	Missing    MissingPolicy
}

// New builds the resolver selected by opts.Kind. Only configuration errors
// are returned; a missing .m file degrades to an empty table (see Reporter).
func New(opts Options) (Resolver, error) {
	switch opts.Kind {
	case KindStaticTable:
		if opts.Table != nil {
			return NewTableResolver(opts.Table), nil
		}
		var (
			tables Tables
			err    error
		)
		if opts.TablesPath != "" {
			tables, err = LoadTables(opts.TablesPath)
		} else {
			tables, err = DefaultTables()
		}
		if err != nil {
			return nil, err
		}
		t, err := tables.Get(opts.TableName)
		if err != nil {
			return nil, err
		}
		return NewTableResolver(t), nil
	case KindTextParser:
		if opts.TextPath == "" {
			return nil, errors.New("text resolver needs a .m file path")
		}
		return NewTextResolver(opts.TextPath), nil
	case KindSidecar:
		if opts.SidecarDir == "" {
			return nil, errors.New("sidecar resolver needs a directory")
		}
		return NewSidecarResolver(opts.SidecarDir, opts.SidecarExt, opts.Field, opts.Missing)
	}
	return nil, errors.Errorf("unsupported resolver kind %v", opts.Kind)
}
