package datasets

import (
	"fmt"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/Noofbiz/ucsdped/groundtruth"
)

// DiagnosticKind names a recoverable failure met while loading a split.
type DiagnosticKind int

const (
	// KindDecode: a frame file could not be read or decoded; the frame was skipped.
	KindDecode DiagnosticKind = iota
	// KindFrameNumber: a test frame's file name has no numeric stem; the frame was skipped.
	KindFrameNumber
	// KindClipIndex: a test clip name has no numeric suffix; its ground truth is empty.
	KindClipIndex
	// KindClipRange: a test clip index is beyond the ground-truth table; its ground truth is empty.
	KindClipRange
	// KindGroundTruth: any other ground-truth failure; the clip's ground truth is empty.
	KindGroundTruth
	// KindListing: a clip directory could not be listed; the clip was skipped.
	KindListing
)

var diagnosticKindNames = [...]string{
	KindDecode:      "decode",
	KindFrameNumber: "frame-number",
	KindClipIndex:   "clip-index",
	KindClipRange:   "clip-range",
	KindGroundTruth: "ground-truth",
	KindListing:     "listing",
}

func (k DiagnosticKind) String() string {
	if int(k) >= 0 && int(k) < len(diagnosticKindNames) {
		return diagnosticKindNames[k]
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Diagnostic records one recovered failure. Path is empty for clip-level
// diagnostics.
type Diagnostic struct {
	Kind DiagnosticKind
	Clip string
	Path string
	Err  error
}

func (d Diagnostic) String() string {
	switch {
	case d.Path != "":
		return fmt.Sprintf("%s: %s: %v", d.Kind, d.Path, d.Err)
	case d.Clip == "":
		return fmt.Sprintf("%s: %v", d.Kind, d.Err)
	}
	return fmt.Sprintf("%s: clip %s: %v", d.Kind, d.Clip, d.Err)
}

// clipDiagnostic classifies a resolver error.
func clipDiagnostic(clip string, err error) Diagnostic {
	kind := KindGroundTruth
	switch {
	case errors.Is(err, groundtruth.ErrNoClipIndex):
		kind = KindClipIndex
	case errors.Is(err, groundtruth.ErrClipOutOfRange):
		kind = KindClipRange
	}
	return Diagnostic{Kind: kind, Clip: clip, Err: err}
}

func logDiagnostic(split string, d Diagnostic) {
	klog.Warningf("%s: %s", split, d)
}

// CountByKind tallies diagnostics per kind.
func CountByKind(diags []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}
