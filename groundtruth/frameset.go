package groundtruth

import (
	"fmt"
	"sort"
	"strings"
)

// Range is an inclusive interval of frame numbers.
type Range struct {
	Start int
	End   int
}

// Contains reports whether frame lies inside the range (both ends included).
func (r Range) Contains(frame int) bool {
	return frame >= r.Start && frame <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// FrameSet is the set of anomalous frame numbers of one clip, stored as a
// sorted list of disjoint inclusive ranges. The zero value is the empty set.
type FrameSet struct {
	ranges []Range
}

// NewFrameSet builds a set from any number of ranges. Overlapping or
// adjacent ranges are merged and ranges with Start > End are ignored.
func NewFrameSet(ranges ...Range) FrameSet {
	rs := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start > r.End {
			continue
		}
		rs = append(rs, r)
	}
	if len(rs) == 0 {
		return FrameSet{}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	merged := rs[:1]
	for _, r := range rs[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return FrameSet{ranges: merged}
}

// FrameSetFromFrames builds a set from an enumerated list of frame numbers,
// collapsing consecutive runs into ranges.
func FrameSetFromFrames(frames []int) FrameSet {
	ranges := make([]Range, len(frames))
	for i, f := range frames {
		ranges[i] = Range{Start: f, End: f}
	}
	return NewFrameSet(ranges...)
}

// Contains reports whether frame is anomalous.
func (s FrameSet) Contains(frame int) bool {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End >= frame })
	return i < len(s.ranges) && s.ranges[i].Start <= frame
}

// Len returns the number of frames in the set.
func (s FrameSet) Len() int {
	n := 0
	for _, r := range s.ranges {
		n += r.End - r.Start + 1
	}
	return n
}

// Empty reports whether the set holds no frames.
func (s FrameSet) Empty() bool { return len(s.ranges) == 0 }

// Ranges returns a copy of the merged ranges in ascending order.
func (s FrameSet) Ranges() []Range {
	return append([]Range(nil), s.ranges...)
}

// Frames enumerates every frame number in ascending order.
func (s FrameSet) Frames() []int {
	out := make([]int, 0, s.Len())
	for _, r := range s.ranges {
		for f := r.Start; f <= r.End; f++ {
			out = append(out, f)
		}
	}
	return out
}

func (s FrameSet) String() string {
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
