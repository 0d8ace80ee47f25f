package dataset

import (
	"fmt"

	"github.com/tsawler/go-vaegan/tensor"
)

// Provider yields fixed-size training batches in NHWC layout.
type Provider interface {
	// Name is the dataset name used in model directory keys.
	Name() string
	// Len is the number of examples currently available.
	Len() int
	// Shape returns the per-example image shape.
	Shape() (height, width, channels int)
	// LabelDim is the one-hot label width, or 0 for unlabeled data.
	LabelDim() int
	// Range is the value range images are scaled to.
	Range() (low, high float32)
	// Batch returns examples [start, start+size). Labels are nil when
	// LabelDim is 0.
	Batch(start, size int) (images, labels *tensor.Tensor, err error)
}

// Reloader is implemented by providers that rescan their source at the
// start of every epoch.
type Reloader interface {
	Reload() error
}

// Batches returns the number of full batches in one epoch, reading at most
// trainSize examples. A non-positive trainSize means no cap.
func Batches(p Provider, batchSize, trainSize int) int {
	if batchSize <= 0 {
		return 0
	}
	n := p.Len()
	if trainSize > 0 && trainSize < n {
		n = trainSize
	}
	return n / batchSize
}

func checkRange(name string, start, size, n int) error {
	if start < 0 || size <= 0 || start+size > n {
		return fmt.Errorf("%s: batch [%d, %d) out of range [0, %d)", name, start, start+size, n)
	}
	return nil
}
