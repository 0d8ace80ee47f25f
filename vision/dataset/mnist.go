package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/tsawler/go-vaegan/tensor"
)

const (
	idxImageMagic = 0x00000803
	idxLabelMagic = 0x00000801

	// MNISTShuffleSeed fixes the example order across runs.
	MNISTShuffleSeed = 547
)

var mnistParts = [][2]string{
	{"train-images-idx3-ubyte", "train-labels-idx1-ubyte"},
	{"t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte"},
}

// MNIST holds the training and test splits concatenated and shuffled, with
// pixels scaled to [0, 1] and one-hot labels.
type MNIST struct {
	name   string
	height int
	width  int
	yDim   int
	pixels []uint8
	labels []uint8
}

// LoadMNIST reads the four idx files from dir. Each file may also be
// stored gzip-compressed with a .gz suffix. yDim is the one-hot width and
// must exceed every label.
func LoadMNIST(dir string, yDim int) (*MNIST, error) {
	if yDim <= 0 {
		return nil, fmt.Errorf("mnist: label dimension must be positive, got %d", yDim)
	}
	m := &MNIST{name: filepath.Base(dir), yDim: yDim}
	for _, part := range mnistParts {
		dims, pixels, err := readIDX(filepath.Join(dir, part[0]), idxImageMagic)
		if err != nil {
			return nil, err
		}
		if len(dims) != 3 {
			return nil, fmt.Errorf("mnist: %s has %d dimensions, want 3", part[0], len(dims))
		}
		if m.height == 0 {
			m.height, m.width = dims[1], dims[2]
		} else if dims[1] != m.height || dims[2] != m.width {
			return nil, fmt.Errorf("mnist: %s images are %dx%d, want %dx%d", part[0], dims[1], dims[2], m.height, m.width)
		}
		ldims, labels, err := readIDX(filepath.Join(dir, part[1]), idxLabelMagic)
		if err != nil {
			return nil, err
		}
		if ldims[0] != dims[0] {
			return nil, fmt.Errorf("mnist: %d labels for %d images in %s", ldims[0], dims[0], part[1])
		}
		for i, l := range labels {
			if int(l) >= yDim {
				return nil, fmt.Errorf("mnist: label %d at %s[%d] does not fit %d classes", l, part[1], i, yDim)
			}
		}
		m.pixels = append(m.pixels, pixels...)
		m.labels = append(m.labels, labels...)
	}
	m.shuffle(rand.New(rand.NewSource(MNISTShuffleSeed)))
	return m, nil
}

// shuffle applies one permutation to images and labels.
func (m *MNIST) shuffle(rng *rand.Rand) {
	per := m.height * m.width
	pixels := make([]uint8, len(m.pixels))
	labels := make([]uint8, len(m.labels))
	for dst, src := range rng.Perm(len(m.labels)) {
		copy(pixels[dst*per:(dst+1)*per], m.pixels[src*per:(src+1)*per])
		labels[dst] = m.labels[src]
	}
	m.pixels, m.labels = pixels, labels
}

func (m *MNIST) Name() string { return m.name }

func (m *MNIST) Len() int { return len(m.labels) }

func (m *MNIST) Shape() (int, int, int) { return m.height, m.width, 1 }

func (m *MNIST) LabelDim() int { return m.yDim }

func (m *MNIST) Range() (float32, float32) { return 0, 1 }

// Label returns the class of example i.
func (m *MNIST) Label(i int) int { return int(m.labels[i]) }

// Batch returns images [size,H,W,1] in [0,1] and one-hot labels [size,yDim].
func (m *MNIST) Batch(start, size int) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := checkRange(m.name, start, size, m.Len()); err != nil {
		return nil, nil, err
	}
	per := m.height * m.width
	data := make([]float32, size*per)
	for i, p := range m.pixels[start*per : (start+size)*per] {
		data[i] = float32(p) / 255
	}
	onehot := make([]float32, size*m.yDim)
	for i, l := range m.labels[start : start+size] {
		onehot[i*m.yDim+int(l)] = 1
	}
	images, err := tensor.NewTensor([]int{size, m.height, m.width, 1}, data)
	if err != nil {
		return nil, nil, err
	}
	labels, err := tensor.NewTensor([]int{size, m.yDim}, onehot)
	if err != nil {
		return nil, nil, err
	}
	return images, labels, nil
}

// readIDX reads an unsigned-byte idx file at path, falling back to
// path+".gz".
func readIDX(path string, magic uint32) ([]int, []uint8, error) {
	f, err := os.Open(path)
	gz := false
	if os.IsNotExist(err) {
		f, err = os.Open(path + ".gz")
		gz = true
	}
	if err != nil {
		return nil, nil, fmt.Errorf("mnist: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if gz {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("mnist: %s.gz: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var header uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("mnist: read header of %s: %w", path, err)
	}
	if header != magic {
		return nil, nil, fmt.Errorf("mnist: %s has magic %#08x, want %#08x", path, header, magic)
	}
	ndim := int(header & 0xff)
	dims := make([]int, ndim)
	total := 1
	for i := range dims {
		var d uint32
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, nil, fmt.Errorf("mnist: read dims of %s: %w", path, err)
		}
		dims[i] = int(d)
		total *= dims[i]
	}
	data := make([]uint8, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, fmt.Errorf("mnist: read %d values from %s: %w", total, path, err)
	}
	return dims, data, nil
}
