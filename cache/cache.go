// Package cache persists loaded splits so repeated experiments skip decoding
// thousands of TIFF frames, and writes opaque parameter blobs for the model
// code that consumes the splits.
package cache

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/ucsdped/datasets"
)

// Version is incremented when the on-disk snapshot format changes.
const Version = 2

var (
	// ErrVersion is returned by LoadSplits for snapshots written by another
	// format version.
	ErrVersion = errors.New("snapshot version mismatch")

	// ErrStale is returned by Snapshot.Check for a snapshot written from
	// another root or with other load settings.
	ErrStale = errors.New("snapshot is stale")
)

// snapshot is the on-disk representation of a pair of splits.
type snapshot struct {
	Version   int
	Root      string
	Key       string
	CreatedAt int64
	Train     splitRecord
	Test      splitRecord
}

// splitRecord mirrors datasets.Split. Diagnostic errors are kept as their
// messages.
type splitRecord struct {
	Name        string
	Features    [][]float32
	Labels      []int32
	Frames      []datasets.FrameRef
	Clips       []datasets.ClipSummary
	Discovered  int
	Diagnostics []diagnosticRecord
}

type diagnosticRecord struct {
	Kind    datasets.DiagnosticKind
	Clip    string
	Path    string
	Message string
}

func record(s *datasets.Split) splitRecord {
	if s == nil {
		return splitRecord{}
	}
	r := splitRecord{
		Name:       s.Name,
		Features:   s.Features,
		Labels:     s.Labels,
		Frames:     s.Frames,
		Clips:      s.Clips,
		Discovered: s.Discovered,
	}
	for _, d := range s.Diagnostics {
		msg := ""
		if d.Err != nil {
			msg = d.Err.Error()
		}
		r.Diagnostics = append(r.Diagnostics, diagnosticRecord{Kind: d.Kind, Clip: d.Clip, Path: d.Path, Message: msg})
	}
	return r
}

func (r splitRecord) split() *datasets.Split {
	s := &datasets.Split{
		Name:       r.Name,
		Features:   r.Features,
		Labels:     r.Labels,
		Frames:     r.Frames,
		Clips:      r.Clips,
		Discovered: r.Discovered,
	}
	for _, d := range r.Diagnostics {
		s.Diagnostics = append(s.Diagnostics, datasets.Diagnostic{Kind: d.Kind, Clip: d.Clip, Path: d.Path, Err: errors.New(d.Message)})
	}
	return s
}

// Snapshot is what LoadSplits returns.
type Snapshot struct {
	Root      string
	Key       string
	CreatedAt time.Time
	Train     *datasets.Split
	Test      *datasets.Split
}

// Check reports, wrapping ErrStale, whether the snapshot was written from a
// root or with a key other than the given ones.
func (s *Snapshot) Check(root, key string) error {
	if s.Root != root {
		return errors.Wrapf(ErrStale, "written for root %s, not %s", s.Root, root)
	}
	if s.Key != key {
		return errors.Wrap(ErrStale, "written with other load settings")
	}
	return nil
}

// SaveSplits writes train and test to path atomically. root records where
// the splits were loaded from and key identifies the settings they were
// loaded with (see Snapshot.Check).
func SaveSplits(path, root, key string, train, test *datasets.Split) error {
	snap := snapshot{
		Version:   Version,
		Root:      root,
		Key:       key,
		CreatedAt: time.Now().Unix(),
		Train:     record(train),
		Test:      record(test),
	}
	return writeAtomic(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(&snap)
	})
}

// LoadSplits reads a snapshot written by SaveSplits.
func LoadSplits(path string) (*Snapshot, error) {
	if path == "" {
		return nil, errors.New("empty cache path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open cache file %s", path)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errors.Wrapf(err, "decode cache %s", path)
	}
	if snap.Version != Version {
		return nil, errors.Wrapf(ErrVersion, "cache=%d expected=%d", snap.Version, Version)
	}
	if len(snap.Train.Features) != len(snap.Train.Labels) || len(snap.Test.Features) != len(snap.Test.Labels) {
		return nil, errors.Errorf("cache %s: features and labels differ in length", path)
	}
	return &Snapshot{
		Root:      snap.Root,
		Key:       snap.Key,
		CreatedAt: time.Unix(snap.CreatedAt, 0),
		Train:     snap.Train.split(),
		Test:      snap.Test.split(),
	}, nil
}

// WriteBlob writes whatever src produces to path atomically.
func WriteBlob(path string, src io.WriterTo) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := src.WriteTo(w)
		return err
	})
}

// SaveParams gob-encodes params (e.g. a model's named weight tensors) to path
// atomically.
func SaveParams(path string, params any) error {
	return writeAtomic(path, func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(params)
	})
}

// LoadParams decodes a file written by SaveParams into params, which must be
// a pointer.
func LoadParams(path string, params any) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open params %s", path)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(params); err != nil {
		return errors.Wrapf(err, "decode params %s", path)
	}
	return nil
}

// writeAtomic creates a temp file next to path, lets write fill it and
// renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	if path == "" {
		return errors.New("empty output path")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		// removes the temp file unless it was renamed
		_ = os.Remove(tmpName)
	}()

	if err := write(tmpFile); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	if err := tmpFile.Sync(); err != nil {
		klog.Warningf("sync temp file %s: %v", tmpName, err)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename temp file to %s", path)
	}
	return nil
}
