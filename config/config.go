// Package config holds the settings of a dataset load: where the dataset
// lives, how Test clips get their ground truth, and what to do with the
// loaded splits. Settings come from a JSON file layered over embedded
// defaults; the CLI then overrides individual fields with its flags.
package config

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/Noofbiz/ucsdped/datasets"
	"github.com/Noofbiz/ucsdped/groundtruth"
)

//go:embed default.json
var defaultJSON []byte

// Config holds runtime configuration for a dataset load.
type Config struct {
	// Dataset location. Empty means search datasets.DefaultRoots.
	Root string `json:"root"`

	// Ground truth
	Resolver       string `json:"resolver"`   // table, text or sidecar
	TableName      string `json:"table_name"` // defaults to the base name of Root
	TablesPath     string `json:"tables_path"`
	TextPath       string `json:"text_path"`
	SidecarDir     string `json:"sidecar_dir"`
	SidecarExt     string `json:"sidecar_ext"`
	SidecarField   string `json:"sidecar_field"`
	MissingSidecar string `json:"missing_sidecar"` // normal or fail

	// Loader tunables
	FrameExt      string  `json:"frame_ext"`
	SkipDirSuffix string  `json:"skip_dir_suffix"`
	Divisor       float32 `json:"divisor"`
	Workers       int     `json:"workers"` // 0 = NumCPU
	ResizeWidth   int     `json:"resize_width"`
	ResizeHeight  int     `json:"resize_height"`

	// Outputs
	CachePath  string `json:"cache_path"`
	CacheForce bool   `json:"cache_force"`
	PlotDir    string `json:"plot_dir"`
	ParamsPath string `json:"params_path"`
}

// DefaultConfig returns the embedded defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := json.Unmarshal(defaultJSON, cfg); err != nil {
		panic(errors.Wrap(err, "embedded default config"))
	}
	return cfg
}

// DefaultJSON returns a copy of the embedded default configuration document,
// handy as a starting point for a config file.
func DefaultJSON() []byte { return bytes.Clone(defaultJSON) }

// Load reads the JSON file at path over DefaultConfig. A missing file yields
// the defaults. Unknown fields are rejected so typos do not go unnoticed.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Decode reads a JSON document over DefaultConfig.
func Decode(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Save writes the configuration to path in JSON format.
func (c *Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create config %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Validate fills derived defaults and rejects settings no load could run
// with. It resolves an empty Root through datasets.FindDatasetRoot; TableName
// defaults to the base name of Root, TextPath to <Root>/Test/<TableName>.m
// and SidecarDir to <Root>/Test.
func (c *Config) Validate() error {
	if c.Root == "" {
		root, err := datasets.FindDatasetRoot(datasets.DefaultRoots...)
		if err != nil {
			return errors.Wrap(err, "no root configured")
		}
		c.Root = root
	}
	kind, err := groundtruth.ParseKind(c.Resolver)
	if err != nil {
		return err
	}
	if _, err := groundtruth.ParseMissingPolicy(c.MissingSidecar); err != nil {
		return err
	}
	if c.TableName == "" {
		c.TableName = filepath.Base(filepath.Clean(c.Root))
	}
	// the dataset ships its ground truth next to the test clips
	switch kind {
	case groundtruth.KindTextParser:
		if c.TextPath == "" {
			c.TextPath = filepath.Join(c.Root, datasets.TestDir, c.TableName+".m")
		}
	case groundtruth.KindSidecar:
		if c.SidecarDir == "" {
			c.SidecarDir = filepath.Join(c.Root, datasets.TestDir)
		}
	}
	if c.FrameExt == "" {
		c.FrameExt = ".tif"
	}
	if !strings.HasPrefix(c.FrameExt, ".") {
		c.FrameExt = "." + c.FrameExt
	}
	if c.Divisor <= 0 {
		return errors.Errorf("divisor must be positive, got %g", c.Divisor)
	}
	if c.ResizeWidth < 0 || c.ResizeHeight < 0 {
		return errors.Errorf("negative resize %dx%d", c.ResizeWidth, c.ResizeHeight)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	return nil
}

// Fingerprint hashes every setting that changes the rows or labels a load
// produces, plus the contents of the tables and .m files it names. Two
// validated configs with the same fingerprint load the same splits from the
// same files. Workers and the output settings do not take part.
func (c *Config) Fingerprint() string {
	key := struct {
		Root, Resolver, TableName, TablesPath, TextPath string
		SidecarDir, SidecarExt, SidecarField            string
		MissingSidecar, FrameExt, SkipDirSuffix         string
		Divisor                                         float32
		ResizeWidth, ResizeHeight                       int
	}{
		c.Root, c.Resolver, c.TableName, c.TablesPath, c.TextPath,
		c.SidecarDir, c.SidecarExt, c.SidecarField,
		c.MissingSidecar, c.FrameExt, c.SkipDirSuffix,
		c.Divisor,
		c.ResizeWidth, c.ResizeHeight,
	}
	h := sha256.New()
	// encoding a struct of strings and numbers cannot fail
	_ = json.NewEncoder(h).Encode(&key)
	for _, path := range []string{c.TablesPath, c.TextPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(h, "unreadable %s\n", path)
			continue
		}
		fmt.Fprintf(h, "%s %d\n", path, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResolverOptions translates the ground-truth settings for groundtruth.New.
func (c *Config) ResolverOptions() (groundtruth.Options, error) {
	kind, err := groundtruth.ParseKind(c.Resolver)
	if err != nil {
		return groundtruth.Options{}, err
	}
	missing, err := groundtruth.ParseMissingPolicy(c.MissingSidecar)
	if err != nil {
		return groundtruth.Options{}, err
	}
	return groundtruth.Options{
		Kind:       kind,
		TableName:  c.TableName,
		TablesPath: c.TablesPath,
		TextPath:   c.TextPath,
		SidecarDir: c.SidecarDir,
		SidecarExt: c.SidecarExt,
		Field:      c.SidecarField,
		Missing:    missing,
	}, nil
}

// NewLoader builds the resolver and a datasets.Loader with the configured
// tunables. Call Validate first.
func (c *Config) NewLoader() (*datasets.Loader, error) {
	opts, err := c.ResolverOptions()
	if err != nil {
		return nil, err
	}
	resolver, err := groundtruth.New(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "%s resolver", opts.Kind)
	}
	loader, err := datasets.NewLoader(c.Root, resolver)
	if err != nil {
		return nil, err
	}
	loader.FrameExt = c.FrameExt
	loader.SkipDirSuffix = c.SkipDirSuffix
	loader.Divisor = c.Divisor
	loader.Workers = c.Workers
	loader.Width, loader.Height = c.ResizeWidth, c.ResizeHeight
	return loader, nil
}
