package datasets

import (
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/ucsdped/groundtruth"
)

// DefaultDivisor scales 8 bit pixel intensities into [0, 1].
const DefaultDivisor = 255

// Loader reads the Train and Test splits below Root.
type Loader struct {
	Root string

	// Resolver supplies the anomalous frames of every Test clip. It is only
	// needed by LoadTest.
	Resolver groundtruth.Resolver

	// Tunables (exported so callers can set them)
	FrameExt      string  // frame file extension, ".tif" by default
	SkipDirSuffix string  // clip directories with this suffix are ignored, "_gt" by default
	Divisor       float32 // pixel values are divided by this, DefaultDivisor by default
	Workers       int     // clips decoded concurrently; <= 1 loads sequentially

	// Frames are resized to Width x Height before flattening. A zero
	// dimension keeps the aspect ratio, both zero keep the native size.
	Width, Height int
}

// NewLoader checks that root holds Train and Test directories and returns a
// Loader with default tunables. Failing checks are configuration errors.
func NewLoader(root string, resolver groundtruth.Resolver) (*Loader, error) {
	if err := isDir(root); err != nil {
		return nil, errors.Wrap(err, "dataset root")
	}
	for _, sub := range []string{TrainDir, TestDir} {
		if err := isDir(filepath.Join(root, sub)); err != nil {
			return nil, errors.Wrapf(err, "dataset %s split", sub)
		}
	}
	return &Loader{
		Root:          root,
		Resolver:      resolver,
		FrameExt:      ".tif",
		SkipDirSuffix: "_gt",
		Divisor:       DefaultDivisor,
		Workers:       1,
	}, nil
}

// Load reads both splits.
func (l *Loader) Load() (train, test *Split, err error) {
	if train, err = l.LoadTrain(); err != nil {
		return nil, nil, err
	}
	if test, err = l.LoadTest(); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// LoadTrain reads the Train split; every row is labelled LabelNormal.
func (l *Loader) LoadTrain() (*Split, error) {
	return l.loadSplit(TrainDir, false)
}

// LoadTest reads the Test split, labelling each frame through Resolver.
func (l *Loader) LoadTest() (*Split, error) {
	if l.Resolver == nil {
		return nil, errors.New("test split needs a ground-truth resolver")
	}
	return l.loadSplit(TestDir, true)
}

// clipResult is everything loaded from one clip directory.
type clipResult struct {
	summary  ClipSummary
	features [][]float32
	labels   []int32
	frames   []FrameRef
	diags    []Diagnostic
	err      error
}

func (l *Loader) loadSplit(name string, test bool) (*Split, error) {
	dir := filepath.Join(l.Root, name)
	clips, err := listClipDirs(dir, l.SkipDirSuffix)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s clips", name)
	}

	split := &Split{Name: name}
	if rep, ok := l.Resolver.(groundtruth.Reporter); ok && test {
		for _, err := range rep.Report() {
			d := Diagnostic{Kind: KindGroundTruth, Err: err}
			logDiagnostic(name, d)
			split.Diagnostics = append(split.Diagnostics, d)
		}
	}

	results := l.loadClips(dir, clips, test)

	// reassemble in clip order whatever order the workers finished in
	for _, res := range results {
		if res.err != nil {
			return nil, errors.Wrapf(res.err, "%s clip %s", name, res.summary.Name)
		}
		for _, d := range res.diags {
			logDiagnostic(name, d)
		}
		split.Features = append(split.Features, res.features...)
		split.Labels = append(split.Labels, res.labels...)
		split.Frames = append(split.Frames, res.frames...)
		split.Diagnostics = append(split.Diagnostics, res.diags...)
		split.Clips = append(split.Clips, res.summary)
		split.Discovered += res.summary.Discovered
	}

	klog.V(1).Infof("%s: %d clips, %d/%d frames loaded, %d anomalous",
		name, len(split.Clips), split.Len(), split.Discovered, split.Anomalies())
	return split, nil
}

func (l *Loader) loadClips(dir string, clips []string, test bool) []*clipResult {
	results := make([]*clipResult, len(clips))
	workers := l.Workers
	if workers < 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(clips) {
		workers = len(clips)
	}
	if workers <= 1 {
		for i, c := range clips {
			results[i] = l.loadClip(dir, c, test)
		}
		return results
	}

	jobs := make(chan int, len(clips))
	var (
		wg   sync.WaitGroup
		done int64
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				// each worker writes only its own slot
				results[i] = l.loadClip(dir, clips[i], test)
				d := atomic.AddInt64(&done, 1)
				klog.V(2).Infof("%s: clip %s done (%d/%d)", filepath.Base(dir), clips[i], d, len(clips))
			}
		}()
	}
	for i := range clips {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (l *Loader) loadClip(splitDir, name string, test bool) *clipResult {
	res := &clipResult{summary: ClipSummary{Name: name}}

	var gt groundtruth.FrameSet
	if test {
		set, err := l.Resolver.Resolve(groundtruth.ClipFromName(name))
		switch {
		case errors.Is(err, groundtruth.ErrSidecarMissing):
			res.err = err
			return res
		case err != nil:
			res.diags = append(res.diags, clipDiagnostic(name, err))
		default:
			gt = set
		}
	}

	ext := l.FrameExt
	if ext == "" {
		ext = ".tif"
	}
	divisor := l.Divisor
	if divisor <= 0 {
		divisor = DefaultDivisor
	}

	clipDir := filepath.Join(splitDir, name)
	files, err := listFrames(clipDir, ext)
	if err != nil {
		res.diags = append(res.diags, Diagnostic{Kind: KindListing, Clip: name, Path: clipDir, Err: err})
		return res
	}
	res.summary.Discovered = len(files)

	for _, file := range files {
		path := filepath.Join(clipDir, file)

		number, numErr := parseFrameNumber(file)
		if numErr != nil {
			if test {
				res.diags = append(res.diags, Diagnostic{Kind: KindFrameNumber, Clip: name, Path: path, Err: numErr})
				continue
			}
			number = -1
		}

		img, err := decodeFrame(path)
		if err != nil {
			res.diags = append(res.diags, Diagnostic{Kind: KindDecode, Clip: name, Path: path, Err: err})
			continue
		}

		img = resize(img, l.Width, l.Height)

		label := LabelNormal
		if test && gt.Contains(number) {
			label = LabelAnomaly
			res.summary.Anomalous++
		}
		res.features = append(res.features, flatten(img, divisor))
		res.labels = append(res.labels, label)
		res.frames = append(res.frames, FrameRef{Clip: name, Number: number, Path: path})
	}
	res.summary.Rows = len(res.labels)
	return res
}
