package groundtruth

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// gtFrameLine matches one clip declaration of the dataset's .m file, e.g.
//
//	TestVideoFile{end+1}.gt_frame = [60:152];
//	TestVideoFile{end+1}.gt_frame = [5:90, 140:200];
var (
	gtFrameLine  = regexp.MustCompile(`^\s*[A-Za-z_]\w*\{end\+1\}\.gt_frame\s*=\s*\[([^\]]*)\]\s*;`)
	gtFrameRange = regexp.MustCompile(`^\s*(\d+)\s*:\s*(\d+)\s*$`)
)

// ParseText reads .m declarations from r. Each matching line appends one clip
// to the table; any other line is ignored.
func ParseText(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		m := gtFrameLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		ranges, ok := parseRanges(m[1])
		if !ok {
			klog.V(1).Infof("ground truth: ignoring malformed gt_frame on line %d: %q", lineNo, sc.Text())
			continue
		}
		t.Clips = append(t.Clips, NewFrameSet(ranges...))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read line %d", lineNo+1)
	}
	return t, nil
}

func parseRanges(body string) ([]Range, bool) {
	parts := strings.Split(body, ",")
	ranges := make([]Range, 0, len(parts))
	for _, p := range parts {
		m := gtFrameRange.FindStringSubmatch(p)
		if m == nil {
			return nil, false
		}
		start, err1 := strconv.Atoi(m[1])
		end, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || start > end {
			return nil, false
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges, true
}

// ParseTextFile parses the .m file at path. The returned error wraps
// ErrSourceMissing when the file does not exist.
func ParseTextFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrSourceMissing, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	t, err := ParseText(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	t.Name = path
	return t, nil
}
