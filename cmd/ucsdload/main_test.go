package main

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/Noofbiz/ucsdped/config"
	"github.com/Noofbiz/ucsdped/datasets"
	"github.com/Noofbiz/ucsdped/groundtruth"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeFrame(t *testing.T, path string, val uint8) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = val
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
}

// ped2Root lays out a UCSDped2-named root: Train001 with two frames and a
// corrupt third, Test001 with frames 1..3 (all normal in the built-in table).
func ped2Root(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "UCSDped2")
	writeFrame(t, filepath.Join(root, "Train", "Train001", "001.tif"), 10)
	writeFrame(t, filepath.Join(root, "Train", "Train001", "002.tif"), 20)
	writeFile(t, filepath.Join(root, "Train", "Train001", "003.tif"), []byte("not a tiff"))
	for i, name := range []string{"001.tif", "002.tif", "003.tif"} {
		writeFrame(t, filepath.Join(root, "Test", "Test001", name), uint8(30*(i+1)))
	}
	return root
}

func validConfig(t *testing.T, root, cachePath string, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Root = root
	cfg.CachePath = cachePath
	mutate(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestLoadSplitsSnapshotFollowsSettings(t *testing.T) {
	root := ped2Root(t)
	cachePath := filepath.Join(t.TempDir(), "snap.gob")

	table := validConfig(t, root, cachePath, func(*config.Config) {})
	_, test, err := loadSplits(table)
	if err != nil {
		t.Fatalf("table load: %v", err)
	}
	if !reflect.DeepEqual(test.Labels, []int32{0, 0, 0}) {
		t.Fatalf("table labels %v", test.Labels)
	}

	// switching to sidecars must not reuse the table snapshot
	writeFile(t, filepath.Join(root, "Test", "Test001_gt.json"), []byte(`{"gt_frame": [1, 2, 3]}`))
	sidecar := validConfig(t, root, cachePath, func(c *config.Config) {
		c.Resolver = "sidecar"
		c.SidecarExt = "json"
	})
	train, test, err := loadSplits(sidecar)
	if err != nil {
		t.Fatalf("sidecar load: %v", err)
	}
	if !reflect.DeepEqual(test.Labels, []int32{1, 1, 1}) {
		t.Fatalf("sidecar labels %v, want [1 1 1]", test.Labels)
	}
	if train.Len() != 2 || len(train.Diagnostics) != 1 {
		t.Fatalf("train: %d rows, %d diagnostics", train.Len(), len(train.Diagnostics))
	}

	// same settings reuse the snapshot, diagnostics included
	if err := os.Remove(filepath.Join(root, "Test", "Test001", "003.tif")); err != nil {
		t.Fatal(err)
	}
	train, test, err = loadSplits(sidecar)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if test.Len() != 3 {
		t.Fatalf("expected the snapshot's 3 test rows, got %d", test.Len())
	}
	counts := datasets.CountByKind(train.Diagnostics)
	if counts[datasets.KindDecode] != 1 || train.Skipped() != 1 {
		t.Fatalf("snapshot lost diagnostics: %v, skipped %d", counts, train.Skipped())
	}

	sidecar.CacheForce = true
	if _, test, err = loadSplits(sidecar); err != nil {
		t.Fatalf("forced reload: %v", err)
	}
	if test.Len() != 2 {
		t.Fatalf("forced reload kept %d test rows", test.Len())
	}

	// a fail policy is honoured even though a snapshot exists
	if err := os.Remove(filepath.Join(root, "Test", "Test001_gt.json")); err != nil {
		t.Fatal(err)
	}
	strict := validConfig(t, root, cachePath, func(c *config.Config) {
		c.Resolver = "sidecar"
		c.SidecarExt = "json"
		c.MissingSidecar = "fail"
	})
	if _, _, err := loadSplits(strict); !errors.Is(err, groundtruth.ErrSidecarMissing) {
		t.Fatalf("expected ErrSidecarMissing, got %v", err)
	}
}

func TestLoadSplitsWithoutCache(t *testing.T) {
	root := ped2Root(t)
	cfg := validConfig(t, root, "", func(*config.Config) {})
	train, test, err := loadSplits(cfg)
	if err != nil {
		t.Fatalf("loadSplits: %v", err)
	}
	if train.Len() != 2 || test.Len() != 3 {
		t.Fatalf("loaded %d/%d rows", train.Len(), test.Len())
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil || !reflect.DeepEqual(cfg, config.DefaultConfig()) {
		t.Fatalf("empty path: %+v, %v", cfg, err)
	}

	dir := t.TempDir()
	if _, err := loadConfig(filepath.Join(dir, "ucsd.jsn")); err == nil {
		t.Fatal("expected an error for a config file that does not exist")
	}

	path := filepath.Join(dir, "ucsd.json")
	writeFile(t, path, []byte(`{"resolver": "sidecar", "workers": 4}`))
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Resolver != "sidecar" || cfg.Workers != 4 {
		t.Fatalf("file not applied: %+v", cfg)
	}
}
