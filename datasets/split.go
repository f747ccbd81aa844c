package datasets

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Split names.
const (
	TrainDir = "Train"
	TestDir  = "Test"
)

// ClipSummary describes one clip directory of a split.
type ClipSummary struct {
	Name       string
	Discovered int // frame files with the configured extension
	Rows       int // frames that made it into the split
	Anomalous  int // rows labelled LabelAnomaly
}

// Split is one loaded half of the dataset. Features, Labels and Frames are
// parallel: row i of each describes the same frame.
type Split struct {
	Name        string
	Features    [][]float32
	Labels      []int32
	Frames      []FrameRef
	Clips       []ClipSummary
	Discovered  int
	Diagnostics []Diagnostic
}

// Len returns the number of rows.
func (s *Split) Len() int { return len(s.Labels) }

// Skipped returns how many discovered frames did not make it into the split.
func (s *Split) Skipped() int { return s.Discovered - s.Len() }

// Anomalies returns the number of rows labelled LabelAnomaly.
func (s *Split) Anomalies() int {
	n := 0
	for _, l := range s.Labels {
		if l == LabelAnomaly {
			n++
		}
	}
	return n
}

// Dim returns the feature width, or 0 for an empty split.
func (s *Split) Dim() int {
	if len(s.Features) == 0 {
		return 0
	}
	return len(s.Features[0])
}

// Example returns row i with its label as a one-element vector.
func (s *Split) Example(i int) ([]float32, []float32, error) {
	if i < 0 || i >= s.Len() {
		return nil, nil, errors.Errorf("index %d out of range [0, %d)", i, s.Len())
	}
	return s.Features[i], []float32{float32(s.Labels[i])}, nil
}

// Batch returns the rows at indices.
func (s *Split) Batch(indices []int) ([][]float32, [][]float32, error) {
	inputs := make([][]float32, len(indices))
	labels := make([][]float32, len(indices))
	for pos, idx := range indices {
		in, la, err := s.Example(idx)
		if err != nil {
			return nil, nil, err
		}
		inputs[pos] = in
		labels[pos] = la
	}
	return inputs, labels, nil
}

// Tensors returns the rows at indices as gomlx tensors: features shaped
// [batch, dim] and labels shaped [batch].
func (s *Split) Tensors(indices []int) (inputs *tensors.Tensor, labels *tensors.Tensor, err error) {
	flat, err := s.Flat(indices)
	if err != nil {
		return nil, nil, err
	}
	return flat.ToGomlxTensors()
}

// Equal reports whether both splits hold bit-identical features and the same
// labels in the same order.
func (s *Split) Equal(o *Split) bool {
	if s.Len() != o.Len() || len(s.Features) != len(o.Features) {
		return false
	}
	for i := range s.Labels {
		if s.Labels[i] != o.Labels[i] {
			return false
		}
	}
	for i := range s.Features {
		a, b := s.Features[i], o.Features[i]
		if len(a) != len(b) {
			return false
		}
		for j := range a {
			if math.Float32bits(a[j]) != math.Float32bits(b[j]) {
				return false
			}
		}
	}
	return true
}

// Moments returns the per-column mean and population standard deviation of
// the features. Rows narrower than the first are an error.
func (s *Split) Moments() (mean, std []float32, err error) {
	dim := s.Dim()
	if dim == 0 {
		return nil, nil, errors.Errorf("split %s is empty", s.Name)
	}
	sum := make([]float64, dim)
	sq := make([]float64, dim)
	for i, row := range s.Features {
		if len(row) != dim {
			return nil, nil, errors.Errorf("inconsistent frame size at row %d: expected %d, got %d", i, dim, len(row))
		}
		for j, v := range row {
			sum[j] += float64(v)
			sq[j] += float64(v) * float64(v)
		}
	}
	n := float64(len(s.Features))
	mean = make([]float32, dim)
	std = make([]float32, dim)
	for j := range sum {
		m := sum[j] / n
		mean[j] = float32(m)
		std[j] = float32(math.Sqrt(math.Max(sq[j]/n-m*m, 0)))
	}
	return mean, std, nil
}

// BatchFlat stores a batch in flat contiguous buffers.
type BatchFlat struct {
	Inputs    []float32
	Labels    []int32
	BatchSize int
	InputDim  int
}

// Flat copies the rows at indices into contiguous buffers.
func (s *Split) Flat(indices []int) (*BatchFlat, error) {
	if len(indices) == 0 {
		return &BatchFlat{}, nil
	}
	dim := s.Dim()
	b := &BatchFlat{
		Inputs:    make([]float32, len(indices)*dim),
		Labels:    make([]int32, len(indices)),
		BatchSize: len(indices),
		InputDim:  dim,
	}
	for pos, idx := range indices {
		if idx < 0 || idx >= s.Len() {
			return nil, errors.Errorf("index %d out of range [0, %d)", idx, s.Len())
		}
		row := s.Features[idx]
		if len(row) != dim {
			return nil, errors.Errorf("inconsistent frame size at row %d: expected %d, got %d", idx, dim, len(row))
		}
		copy(b.Inputs[pos*dim:], row)
		b.Labels[pos] = s.Labels[idx]
	}
	return b, nil
}

// ToGomlxTensors converts the batch to gomlx tensors.
func (b *BatchFlat) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	// handle empty batch gracefully
	if b.BatchSize == 0 || b.InputDim == 0 {
		return tensors.FromAnyValue(make([][]float32, 0)), tensors.FromAnyValue(make([]int32, 0)), nil
	}
	inputs := make([][]float32, b.BatchSize)
	for i := range b.BatchSize {
		inputs[i] = b.Inputs[i*b.InputDim : (i+1)*b.InputDim]
	}
	return tensors.FromAnyValue(inputs), tensors.FromAnyValue(b.Labels), nil
}
