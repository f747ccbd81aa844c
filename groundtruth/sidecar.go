package groundtruth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MissingPolicy decides what a SidecarResolver does for a clip without a
// sidecar file.
type MissingPolicy int

const (
	// MissingNormal treats the clip as having no anomalous frames.
	MissingNormal MissingPolicy = iota
	// MissingFail makes Resolve return ErrSidecarMissing.
	MissingFail
)

// ParseMissingPolicy maps "normal" or "fail" to a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return MissingNormal, nil
	case "fail":
		return MissingFail, nil
	}
	return 0, errors.Errorf("unknown missing-sidecar policy %q (want normal or fail)", s)
}

func (p MissingPolicy) String() string {
	if p == MissingFail {
		return "fail"
	}
	return "normal"
}

// DefaultField is the variable holding the anomalous frame numbers.
const DefaultField = "gt_frame"

// SidecarResolver reads <Dir>/<clip>_gt.<Ext> for every clip. Supported
// extensions are "mat" (MATLAB level 5) and "json" (an object with Field
// holding a list of frame numbers).
type SidecarResolver struct {
	Dir     string
	Ext     string
	Field   string
	Missing MissingPolicy
}

// NewSidecarResolver validates the directory and extension. Empty ext and
// field default to "mat" and DefaultField.
func NewSidecarResolver(dir, ext, field string, missing MissingPolicy) (*SidecarResolver, error) {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "mat"
	}
	if ext != "mat" && ext != "json" {
		return nil, errors.Errorf("unsupported sidecar extension %q (want mat or json)", ext)
	}
	if field == "" {
		field = DefaultField
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "sidecar directory")
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("sidecar path %s is not a directory", dir)
	}
	return &SidecarResolver{Dir: dir, Ext: ext, Field: field, Missing: missing}, nil
}

// Path returns the sidecar file consulted for clip.
func (r *SidecarResolver) Path(clip Clip) string {
	return filepath.Join(r.Dir, clip.Name+"_gt."+r.Ext)
}

// Resolve implements Resolver.
func (r *SidecarResolver) Resolve(clip Clip) (FrameSet, error) {
	path := r.Path(clip)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if r.Missing == MissingFail {
			return FrameSet{}, errors.Wrapf(ErrSidecarMissing, "clip %q: %s", clip.Name, path)
		}
		klog.Warningf("ground truth: no sidecar %s, clip %s treated as normal", path, clip.Name)
		return FrameSet{}, nil
	}
	if err != nil {
		return FrameSet{}, errors.Wrapf(err, "open sidecar %s", path)
	}
	defer f.Close()

	var frames []int
	switch r.Ext {
	case "mat":
		vars, err := readMAT(f)
		if err != nil {
			return FrameSet{}, errors.Wrapf(err, "read %s", path)
		}
		if frames, err = matFrames(vars, r.Field); err != nil {
			return FrameSet{}, errors.Wrapf(err, "read %s", path)
		}
	case "json":
		// only Field is read; other members may hold anything
		var doc map[string]json.RawMessage
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			return FrameSet{}, errors.Wrapf(err, "decode %s", path)
		}
		raw, ok := doc[r.Field]
		if !ok {
			return FrameSet{}, errors.Errorf("%s: no field %q", path, r.Field)
		}
		if err := json.Unmarshal(raw, &frames); err != nil {
			return FrameSet{}, errors.Wrapf(err, "%s: field %q", path, r.Field)
		}
	}
	return FrameSetFromFrames(frames), nil
}
