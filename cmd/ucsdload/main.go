// Command ucsdload loads a UCSD Pedestrian dataset root into memory, logs a
// summary of both splits and optionally snapshots them, plots the labels and
// writes per-pixel training statistics.
//
// Settings come from a JSON config file (see -write-default-config); flags
// given on the command line override the file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/ucsdped/cache"
	"github.com/Noofbiz/ucsdped/config"
	"github.com/Noofbiz/ucsdped/datasets"
	"github.com/Noofbiz/ucsdped/viz"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	defaults := config.DefaultConfig()
	configPath := flag.String("config", "", "path to a JSON config file (optional); flags override its values")
	writeDefault := flag.String("write-default-config", "", "write the default JSON config to this path and exit")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (JSON+CLI merged) configuration and exit")

	root := flag.String("root", defaults.Root, "dataset root holding Train and Test (empty = search the usual locations)")
	resolver := flag.String("resolver", defaults.Resolver, "ground-truth source: table, text or sidecar")
	tableName := flag.String("table", defaults.TableName, "static table name, e.g. UCSDped1 (empty = base name of the root)")
	tablesPath := flag.String("tables", defaults.TablesPath, "JSON file with ground-truth tables (empty = built-in tables)")
	textPath := flag.String("text", defaults.TextPath, "path to the dataset's .m ground-truth file (text resolver)")
	sidecarDir := flag.String("sidecar-dir", defaults.SidecarDir, "directory holding <clip>_gt.<ext> files (sidecar resolver)")
	sidecarExt := flag.String("sidecar-ext", defaults.SidecarExt, "sidecar extension: mat or json")
	sidecarField := flag.String("sidecar-field", defaults.SidecarField, "variable holding the anomalous frame numbers in a sidecar")
	missingSidecar := flag.String("missing-sidecar", defaults.MissingSidecar, "what a missing sidecar means: normal or fail")
	frameExt := flag.String("frame-ext", defaults.FrameExt, "frame file extension")
	skipSuffix := flag.String("skip-suffix", defaults.SkipDirSuffix, "skip clip directories with this suffix (pixel masks)")
	workers := flag.Int("workers", defaults.Workers, "clips decoded in parallel (0 = NumCPU)")
	resizeW := flag.Int("resize-width", defaults.ResizeWidth, "resize frames to this width before flattening (0 = keep)")
	resizeH := flag.Int("resize-height", defaults.ResizeHeight, "resize frames to this height before flattening (0 = keep)")
	cachePath := flag.String("cache", defaults.CachePath, "gob snapshot of the loaded splits (empty = no snapshot)")
	cacheForce := flag.Bool("cache-force", defaults.CacheForce, "reload from the frames and overwrite the snapshot")
	plotDir := flag.String("plots", defaults.PlotDir, "write label plots to this directory (empty = no plots)")
	paramsPath := flag.String("params", defaults.ParamsPath, "write per-pixel training mean/std to this gob file (empty = skip)")
	flag.Parse()

	if *writeDefault != "" {
		if err := os.WriteFile(*writeDefault, config.DefaultJSON(), 0644); err != nil {
			klog.Fatalf("write default config: %v", err)
		}
		klog.Infof("Wrote default config to %s", *writeDefault)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		klog.Fatalf("failed to load config: %v", err)
	}

	// explicit CLI flags always override JSON values
	overrides := map[string]func(){
		"root":            func() { cfg.Root = *root },
		"resolver":        func() { cfg.Resolver = *resolver },
		"table":           func() { cfg.TableName = *tableName },
		"tables":          func() { cfg.TablesPath = *tablesPath },
		"text":            func() { cfg.TextPath = *textPath },
		"sidecar-dir":     func() { cfg.SidecarDir = *sidecarDir },
		"sidecar-ext":     func() { cfg.SidecarExt = *sidecarExt },
		"sidecar-field":   func() { cfg.SidecarField = *sidecarField },
		"missing-sidecar": func() { cfg.MissingSidecar = *missingSidecar },
		"frame-ext":       func() { cfg.FrameExt = *frameExt },
		"skip-suffix":     func() { cfg.SkipDirSuffix = *skipSuffix },
		"workers":         func() { cfg.Workers = *workers },
		"resize-width":    func() { cfg.ResizeWidth = *resizeW },
		"resize-height":   func() { cfg.ResizeHeight = *resizeH },
		"cache":           func() { cfg.CachePath = *cachePath },
		"cache-force":     func() { cfg.CacheForce = *cacheForce },
		"plots":           func() { cfg.PlotDir = *plotDir },
		"params":          func() { cfg.ParamsPath = *paramsPath },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	if err := cfg.Validate(); err != nil {
		klog.Fatalf("invalid configuration: %v", err)
	}
	if *printEffectiveConfig {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			klog.Fatalf("print config: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	train, test, err := loadSplits(cfg)
	if err != nil {
		klog.Fatalf("failed to load %s: %v", cfg.Root, err)
	}
	summarize(train)
	summarize(test)

	if cfg.PlotDir != "" {
		if err := writePlots(cfg.PlotDir, train, test); err != nil {
			klog.Errorf("plots: %v", err)
		} else {
			klog.Infof("Wrote plots to %s", cfg.PlotDir)
		}
	}

	if cfg.ParamsPath != "" {
		mean, std, err := train.Moments()
		if err != nil {
			klog.Fatalf("training statistics: %v", err)
		}
		params := map[string][]float32{"train/mean": mean, "train/std": std}
		if err := cache.SaveParams(cfg.ParamsPath, params); err != nil {
			klog.Fatalf("save params: %v", err)
		}
		klog.Infof("Saved per-pixel statistics (%d columns) to %s", len(mean), cfg.ParamsPath)
	}
}

// loadConfig returns the defaults when path is empty and the file at path
// otherwise. A path that names no file is an error.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Loaded config from %s", path)
	return cfg, nil
}

// loadSplits reads the splits from the snapshot when one was written for the
// same root and load settings, otherwise from the frames, refreshing the
// snapshot. cfg must be validated.
func loadSplits(cfg *config.Config) (train, test *datasets.Split, err error) {
	key := cfg.Fingerprint()
	if cfg.CachePath != "" && !cfg.CacheForce {
		if _, statErr := os.Stat(cfg.CachePath); statErr == nil {
			snap, err := cache.LoadSplits(cfg.CachePath)
			if err == nil {
				err = snap.Check(cfg.Root, key)
			}
			if err != nil {
				klog.Warningf("ignoring snapshot %s: %v", cfg.CachePath, err)
			} else {
				klog.Infof("Loaded splits from %s (written %s)", cfg.CachePath, humanize.Time(snap.CreatedAt))
				return snap.Train, snap.Test, nil
			}
		}
	}

	loader, err := cfg.NewLoader()
	if err != nil {
		return nil, nil, err
	}
	klog.Infof("Loading %s with %s ground truth (%d workers)", cfg.Root, cfg.Resolver, loader.Workers)
	start := time.Now()
	if train, test, err = loader.Load(); err != nil {
		return nil, nil, err
	}
	klog.Infof("Loaded %s rows in %s", humanize.Comma(int64(train.Len()+test.Len())), time.Since(start).Round(time.Millisecond))

	if cfg.CachePath != "" {
		if err := cache.SaveSplits(cfg.CachePath, cfg.Root, key, train, test); err != nil {
			return nil, nil, errors.Wrap(err, "save snapshot")
		}
		if fi, err := os.Stat(cfg.CachePath); err == nil {
			klog.Infof("Saved snapshot %s (%s)", cfg.CachePath, humanize.Bytes(uint64(fi.Size())))
		}
	}
	return train, test, nil
}

func summarize(s *datasets.Split) {
	mem := uint64(s.Len()) * uint64(s.Dim()) * 4
	klog.Infof("%s: %s rows of %s features (%s in memory), %d clips, %s anomalous, %d skipped",
		s.Name, humanize.Comma(int64(s.Len())), humanize.Comma(int64(s.Dim())), humanize.Bytes(mem),
		len(s.Clips), humanize.Comma(int64(s.Anomalies())), s.Skipped())

	counts := datasets.CountByKind(s.Diagnostics)
	if len(counts) == 0 {
		return
	}
	parts := make([]string, 0, len(counts))
	for kind, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(parts)
	klog.Warningf("%s: %d diagnostics (%s)", s.Name, len(s.Diagnostics), strings.Join(parts, ", "))
}

func writePlots(dir string, train, test *datasets.Split) error {
	if err := viz.PlotLabels(test, filepath.Join(dir, "test_labels.png")); err != nil {
		return err
	}
	if err := viz.PlotClipSummary(test, filepath.Join(dir, "test_clips.png")); err != nil {
		return err
	}
	for _, s := range []*datasets.Split{train, test} {
		if err := viz.PlotFeatures(s, filepath.Join(dir, strings.ToLower(s.Name)+"_features.png")); err != nil {
			return err
		}
	}
	return nil
}
