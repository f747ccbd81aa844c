package datasets

import (
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Batcher yields a Split in batches of gomlx tensors. It implements
// TensorDataset: Yield returns io.EOF once the epoch is exhausted and Reset
// starts the next one.
type Batcher struct {
	split     *Split
	BatchSize int

	// DropIncomplete skips the final batch when it is smaller than BatchSize.
	DropIncomplete bool

	order []int
	pos   int
}

// NewBatcher returns a Batcher over split in row order. A batchSize <= 0
// yields the whole split at once.
func NewBatcher(split *Split, batchSize int) *Batcher {
	if batchSize <= 0 || batchSize > split.Len() {
		batchSize = split.Len()
	}
	order := make([]int, split.Len())
	for i := range order {
		order[i] = i
	}
	return &Batcher{split: split, BatchSize: batchSize, order: order}
}

// Name returns the split name.
func (b *Batcher) Name() string { return b.split.Name }

// Shuffle permutes the row order deterministically from seed and restarts
// the epoch.
func (b *Batcher) Shuffle(seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(b.order), func(i, j int) { b.order[i], b.order[j] = b.order[j], b.order[i] })
	b.pos = 0
}

// Reset restarts the epoch.
func (b *Batcher) Reset() { b.pos = 0 }

// Next returns the row indices of the next batch, or nil at the end of the
// epoch.
func (b *Batcher) Next() []int {
	if b.BatchSize <= 0 || b.pos >= len(b.order) {
		return nil
	}
	end := b.pos + b.BatchSize
	if end > len(b.order) {
		if b.DropIncomplete {
			b.pos = len(b.order)
			return nil
		}
		end = len(b.order)
	}
	indices := b.order[b.pos:end]
	b.pos = end
	return indices
}

// Yield returns the next batch: inputs holds one [batch, dim] float32 tensor
// and labels one [batch] int32 tensor.
func (b *Batcher) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	indices := b.Next()
	if indices == nil {
		return nil, nil, nil, io.EOF
	}
	in, la, err := b.split.Tensors(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	return b, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}
