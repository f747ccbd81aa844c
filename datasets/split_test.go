package datasets

import (
	"io"
	"math"
	"reflect"
	"testing"
)

func mockSplit(n, dim int) *Split {
	s := &Split{Name: "Test"}
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(i*dim+j) / 255
		}
		s.Features = append(s.Features, row)
		s.Labels = append(s.Labels, int32(i%2))
		s.Frames = append(s.Frames, FrameRef{Clip: "Test001", Number: i + 1})
	}
	s.Discovered = n
	return s
}

func TestSplitExampleAndBatch(t *testing.T) {
	s := mockSplit(5, 3)

	in, la, err := s.Example(3)
	if err != nil {
		t.Fatalf("Example: %v", err)
	}
	if !reflect.DeepEqual(in, s.Features[3]) || !reflect.DeepEqual(la, []float32{1}) {
		t.Fatalf("Example(3) = %v, %v", in, la)
	}
	if _, _, err := s.Example(5); err == nil {
		t.Fatal("expected an out-of-range error")
	}

	ins, las, err := s.Batch([]int{4, 0})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(ins) != 2 || las[0][0] != 0 || las[1][0] != 0 || ins[0][0] != s.Features[4][0] {
		t.Fatalf("unexpected batch %v %v", ins, las)
	}
}

func TestSplitFlat(t *testing.T) {
	s := mockSplit(4, 2)
	b, err := s.Flat([]int{1, 2})
	if err != nil {
		t.Fatalf("Flat: %v", err)
	}
	want := append(append([]float32{}, s.Features[1]...), s.Features[2]...)
	if !reflect.DeepEqual(b.Inputs, want) || !reflect.DeepEqual(b.Labels, []int32{1, 0}) {
		t.Fatalf("unexpected flat batch %+v", b)
	}
	if b.BatchSize != 2 || b.InputDim != 2 {
		t.Fatalf("unexpected shape %dx%d", b.BatchSize, b.InputDim)
	}

	s.Features[3] = s.Features[3][:1]
	if _, err := s.Flat([]int{0, 3}); err == nil {
		t.Fatal("expected an error for rows of different widths")
	}
}

func TestSplitTensors(t *testing.T) {
	s := mockSplit(6, 4)
	in, la, err := s.Tensors([]int{0, 1, 2})
	if err != nil {
		t.Fatalf("Tensors: %v", err)
	}
	if got := in.Shape().Dimensions; !reflect.DeepEqual(got, []int{3, 4}) {
		t.Fatalf("inputs shape %v", got)
	}
	if got := la.Shape().Dimensions; !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("labels shape %v", got)
	}
}

func TestSplitEqual(t *testing.T) {
	a, b := mockSplit(3, 2), mockSplit(3, 2)
	if !a.Equal(b) {
		t.Fatal("identical splits should be equal")
	}
	b.Labels[1] = 0
	if a.Equal(b) {
		t.Fatal("splits with different labels should differ")
	}
	b = mockSplit(3, 2)
	b.Features[2][1] += 1e-6
	if a.Equal(b) {
		t.Fatal("splits with different features should differ")
	}
}

func TestBatcherEpoch(t *testing.T) {
	s := mockSplit(5, 2)
	b := NewBatcher(s, 2)
	if b.Name() != "Test" {
		t.Fatalf("Name: %q", b.Name())
	}

	var sizes []int
	for {
		_, inputs, labels, err := b.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield: %v", err)
		}
		if len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("expected one input and one label tensor")
		}
		sizes = append(sizes, inputs[0].Shape().Dimensions[0])
	}
	if !reflect.DeepEqual(sizes, []int{2, 2, 1}) {
		t.Fatalf("batch sizes %v", sizes)
	}

	b.Reset()
	b.DropIncomplete = true
	n := 0
	for b.Next() != nil {
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 full batches, got %d", n)
	}
}

func TestBatcherShuffleIsDeterministic(t *testing.T) {
	s := mockSplit(20, 1)
	a, b := NewBatcher(s, 20), NewBatcher(s, 20)
	a.Shuffle(7)
	b.Shuffle(7)
	ia, ib := a.Next(), b.Next()
	if !reflect.DeepEqual(ia, ib) {
		t.Fatalf("same seed gave different orders: %v vs %v", ia, ib)
	}
	seen := make(map[int]bool)
	for _, i := range ia {
		seen[i] = true
	}
	if len(seen) != 20 {
		t.Fatalf("shuffle lost rows: %v", ia)
	}
}

func TestParseFrameNumber(t *testing.T) {
	cases := map[string]int{"001.tif": 1, "150.tif": 150, "0200.TIF": 200, "7": 7}
	for name, want := range cases {
		got, err := parseFrameNumber(name)
		if err != nil || got != want {
			t.Errorf("parseFrameNumber(%q) = %d, %v; want %d", name, got, err, want)
		}
	}
	for _, bad := range []string{"frame1.tif", ".tif", "-3.tif", "1e3.tif"} {
		if _, err := parseFrameNumber(bad); err == nil {
			t.Errorf("parseFrameNumber(%q): expected an error", bad)
		}
	}
}

func TestSplitMoments(t *testing.T) {
	s := &Split{Name: "Train", Features: [][]float32{{0, 1}, {1, 1}, {0.5, 1}, {0.5, 1}}, Labels: []int32{0, 0, 0, 0}}
	mean, std, err := s.Moments()
	if err != nil {
		t.Fatalf("Moments: %v", err)
	}
	if !reflect.DeepEqual(mean, []float32{0.5, 1}) {
		t.Fatalf("mean %v", mean)
	}
	if math.Abs(float64(std[0])-math.Sqrt(0.125)) > 1e-6 || std[1] != 0 {
		t.Fatalf("std %v", std)
	}
	if _, _, err := (&Split{Name: "Test"}).Moments(); err == nil {
		t.Fatal("expected an error for an empty split")
	}
}
