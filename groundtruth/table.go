package groundtruth

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Table holds the ground truth of every test clip of one dataset, in clip
// order.
type Table struct {
	Name  string
	Clips []FrameSet
}

// Len returns the number of clips covered by the table.
func (t *Table) Len() int { return len(t.Clips) }

// Tables is a named collection of tables, e.g. "UCSDped1" and "UCSDped2".
type Tables map[string]*Table

// Names returns the table names in sorted order.
func (ts Tables) Names() []string {
	names := make([]string, 0, len(ts))
	for n := range ts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the table called name.
func (ts Tables) Get(name string) (*Table, error) {
	t, ok := ts[name]
	if !ok {
		return nil, errors.Errorf("no ground-truth table %q (have %v)", name, ts.Names())
	}
	return t, nil
}

// tablesFile is the JSON layout of a tables document: every clip is a list
// of inclusive [start, end] pairs.
type tablesFile struct {
	Tables map[string][][][2]int `json:"tables"`
}

//go:embed tables.json
var defaultTablesJSON []byte

// DefaultTables returns the UCSDped1 and UCSDped2 tables shipped with the
// package.
func DefaultTables() (Tables, error) {
	ts, err := DecodeTables(bytes.NewReader(defaultTablesJSON))
	if err != nil {
		return nil, errors.Wrap(err, "embedded tables")
	}
	return ts, nil
}

// LoadTables reads a JSON tables document from path.
func LoadTables(path string) (Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open tables %s", path)
	}
	defer f.Close()
	ts, err := DecodeTables(f)
	if err != nil {
		return nil, errors.Wrapf(err, "tables %s", path)
	}
	return ts, nil
}

// DecodeTables parses a tables document of the form
//
//	{"tables": {"UCSDped1": [[[60, 152]], [[5, 90], [140, 200]], ...]}}
func DecodeTables(r io.Reader) (Tables, error) {
	var doc tablesFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode tables")
	}
	if len(doc.Tables) == 0 {
		return nil, errors.New("tables document is empty")
	}
	ts := make(Tables, len(doc.Tables))
	for name, clips := range doc.Tables {
		t := &Table{Name: name, Clips: make([]FrameSet, len(clips))}
		for i, pairs := range clips {
			ranges := make([]Range, len(pairs))
			for j, p := range pairs {
				if p[0] > p[1] {
					return nil, errors.Errorf("table %s clip %d: range %d:%d is reversed", name, i+1, p[0], p[1])
				}
				ranges[j] = Range{Start: p[0], End: p[1]}
			}
			t.Clips[i] = NewFrameSet(ranges...)
		}
		ts[name] = t
	}
	return ts, nil
}

// EncodeTables writes ts in the layout read by DecodeTables.
func EncodeTables(w io.Writer, ts Tables) error {
	doc := tablesFile{Tables: make(map[string][][][2]int, len(ts))}
	for name, t := range ts {
		clips := make([][][2]int, len(t.Clips))
		for i, s := range t.Clips {
			for _, r := range s.Ranges() {
				clips[i] = append(clips[i], [2]int{r.Start, r.End})
			}
		}
		doc.Tables[name] = clips
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&doc)
}

// TableResolver resolves clips by their index into a Table.
type TableResolver struct {
	table  *Table
	report []error
}

// NewTableResolver returns a resolver over t. A nil table behaves as empty.
func NewTableResolver(t *Table) *TableResolver {
	if t == nil {
		t = &Table{}
	}
	return &TableResolver{table: t}
}

// Table returns the underlying table.
func (r *TableResolver) Table() *Table { return r.table }

// Resolve implements Resolver.
func (r *TableResolver) Resolve(clip Clip) (FrameSet, error) {
	if clip.Index < 0 {
		return FrameSet{}, errors.Wrapf(ErrNoClipIndex, "clip %q", clip.Name)
	}
	if clip.Index >= len(r.table.Clips) {
		return FrameSet{}, errors.Wrapf(ErrClipOutOfRange, "clip %q index %d, table %q has %d entries",
			clip.Name, clip.Index, r.table.Name, len(r.table.Clips))
	}
	return r.table.Clips[clip.Index], nil
}

// Report implements Reporter.
func (r *TableResolver) Report() []error { return r.report }

// NewTextResolver parses the .m file at path into a TableResolver. A file
// that cannot be read leaves the table empty; the failure is logged and kept
// for Report, so every test clip then resolves out of range.
func NewTextResolver(path string) *TableResolver {
	t, err := ParseTextFile(path)
	if err != nil {
		klog.Warningf("ground truth: %v; all test frames will be labelled normal", err)
		r := NewTableResolver(&Table{Name: path})
		r.report = append(r.report, err)
		return r
	}
	return NewTableResolver(t)
}
