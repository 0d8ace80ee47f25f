package dataset

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/tsawler/go-vaegan/tensor"
	"github.com/tsawler/go-vaegan/vision/preprocessing"
)

// ErrNoImages is returned when a dataset pattern matches no files.
var ErrNoImages = errors.New("no images found")

// ImageFolderOptions configures an ImageFolder.
type ImageFolderOptions struct {
	// Root is the data directory; images are matched by Root/Dataset/Pattern.
	Root    string
	Dataset string
	Pattern string

	InputHeight  int
	InputWidth   int
	OutputHeight int
	OutputWidth  int
	Crop         bool

	// Workers bounds concurrent decodes per batch.
	Workers int
	// CacheSize is the number of preprocessed images kept in memory.
	CacheSize int
}

// ImageFolder serves unlabeled images matched by a glob pattern, scaled
// to [-1, 1]. The channel count is taken from the first matched file.
type ImageFolder struct {
	opts      ImageFolderOptions
	processor *preprocessing.ImageProcessor
	files     []string
	cache     *Cache
}

// NewImageFolder globs the dataset directory and inspects the first file
// to decide between grayscale and color.
func NewImageFolder(opts ImageFolderOptions) (*ImageFolder, error) {
	if opts.Pattern == "" {
		opts.Pattern = "*.jpg"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	d := &ImageFolder{opts: opts, cache: NewCache(opts.CacheSize)}
	if err := d.Reload(); err != nil {
		return nil, err
	}

	first, err := preprocessing.DecodeFile(d.files[0])
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", d.files[0], err)
	}
	d.processor = preprocessing.NewImageProcessor(
		opts.InputHeight, opts.InputWidth, opts.OutputHeight, opts.OutputWidth,
		opts.Crop, preprocessing.IsGrayscale(first))
	return d, nil
}

// Glob returns the pattern the folder matches.
func (d *ImageFolder) Glob() string {
	return filepath.Join(d.opts.Root, d.opts.Dataset, d.opts.Pattern)
}

// Reload rescans the dataset directory.
func (d *ImageFolder) Reload() error {
	files, err := filepath.Glob(d.Glob())
	if err != nil {
		return fmt.Errorf("glob %s: %w", d.Glob(), err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w matching %s", ErrNoImages, d.Glob())
	}
	d.files = files
	return nil
}

func (d *ImageFolder) Name() string { return d.opts.Dataset }

func (d *ImageFolder) Len() int { return len(d.files) }

func (d *ImageFolder) Shape() (int, int, int) {
	return d.opts.OutputHeight, d.opts.OutputWidth, d.processor.Channels()
}

func (d *ImageFolder) LabelDim() int { return 0 }

func (d *ImageFolder) Range() (float32, float32) { return -1, 1 }

// Files returns the matched paths in glob order.
func (d *ImageFolder) Files() []string { return d.files }

// CacheStats reports cache usage.
func (d *ImageFolder) CacheStats() CacheStats { return d.cache.Stats() }

// Batch decodes files [start, start+size), serving repeats from the cache.
func (d *ImageFolder) Batch(start, size int) (*tensor.Tensor, *tensor.Tensor, error) {
	if err := checkRange(d.Name(), start, size, len(d.files)); err != nil {
		return nil, nil, err
	}
	paths := d.files[start : start+size]
	rows := make([][]float32, size)
	var missing []string
	var slots []int
	for i, p := range paths {
		if data, ok := d.cache.Get(p); ok {
			rows[i] = data
			continue
		}
		missing = append(missing, p)
		slots = append(slots, i)
	}
	if len(missing) > 0 {
		decoded, err := preprocessing.PreprocessBatch(missing, d.processor, d.opts.Workers)
		if err != nil {
			return nil, nil, err
		}
		for j, img := range decoded {
			rows[slots[j]] = img.Data
			d.cache.Put(missing[j], img.Data)
		}
	}

	h, w, c := d.Shape()
	per := h * w * c
	data := make([]float32, 0, size*per)
	for i, row := range rows {
		if len(row) != per {
			return nil, nil, fmt.Errorf("%s: decoded %d values, want %d", paths[i], len(row), per)
		}
		data = append(data, row...)
	}
	images, err := tensor.NewTensor([]int{size, h, w, c}, data)
	if err != nil {
		return nil, nil, err
	}
	return images, nil, nil
}
