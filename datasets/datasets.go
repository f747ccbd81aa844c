// Package datasets loads the UCSD Pedestrian anomaly-detection dataset
// (UCSDped1, UCSDped2) into flat float32 feature rows and integer labels.
//
// The on-disk layout is fixed by the dataset:
//
//	<root>/Train/<clip>/<frame>.tif   all frames normal
//	<root>/Test/<clip>/<frame>.tif    labelled through a groundtruth.Resolver
//
// Loading is a single deterministic pass: clip directories and frame files
// are visited in lexicographic order, each frame is decoded, divided by 255,
// flattened, and labelled (0 normal, 1 anomaly). Frames that fail to decode
// are skipped and recorded as Diagnostics on the resulting Split, so a Split
// can hold fewer rows than frames discovered.
//
// A loaded Split is held in memory and implements Dataset; Batcher adapts it
// to gomlx training loops by yielding batches as gomlx tensors.
package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// Label values.
const (
	LabelNormal  int32 = 0
	LabelAnomaly int32 = 1
)

// LabelNames maps label values to their names.
var LabelNames = map[int32]string{
	LabelNormal:  "normal",
	LabelAnomaly: "anomaly",
}

// Dataset is the random-access view shared by Split and anything wrapping
// one. Labels are returned as a single float32 so rows can feed the same
// buffers as the features.
type Dataset interface {
	Len() int
	Example(i int) (inputs []float32, labels []float32, err error)
	Batch(indices []int) (inputs [][]float32, labels [][]float32, err error)
}

// TensorDataset is the gomlx train.Dataset contract implemented by Batcher.
type TensorDataset interface {
	Name() string
	Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error)
	Reset()
}
