package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/tsawler/go-vaegan/tensor"
)

// SaveResult reports the outcome of writing an image grid. A failed write
// sets Err; callers log it and carry on.
type SaveResult struct {
	Path string
	Rows int
	Cols int
	Err  error
}

// OK reports whether the grid was written.
func (r SaveResult) OK() bool {
	return r.Err == nil
}

// ManifoldSize returns the grid shape floor(sqrt n) × ceil(sqrt n). It
// fails when n images do not fill that grid exactly.
func ManifoldSize(n int) (rows, cols int, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("cannot lay out %d images", n)
	}
	root := math.Sqrt(float64(n))
	rows, cols = int(math.Floor(root)), int(math.Ceil(root))
	if rows*cols != n {
		return 0, 0, fmt.Errorf("%d images do not fill a %dx%d grid", n, rows, cols)
	}
	return rows, cols, nil
}

// MergeImages tiles a [N,H,W,C] batch into a rows×cols image. Values are
// mapped from [low, high] to 8 bits and clamped.
func MergeImages(images *tensor.Tensor, rows, cols int, low, high float32) (image.Image, error) {
	if images.Rank() != 4 {
		return nil, fmt.Errorf("images must be [N,H,W,C], got %v", images.Shape)
	}
	n, h, w, c := images.Shape[0], images.Shape[1], images.Shape[2], images.Shape[3]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("images must have 1 or 3 channels, got %d", c)
	}
	if n > rows*cols {
		return nil, fmt.Errorf("%d images do not fit a %dx%d grid", n, rows, cols)
	}

	scale := 255 / (high - low)
	pixel := func(v float32) uint8 {
		x := (v - low) * scale
		switch {
		case x != x || x < 0:
			return 0
		case x > 255:
			return 255
		}
		return uint8(x + 0.5)
	}

	bounds := image.Rect(0, 0, w*cols, h*rows)
	var gray *image.Gray
	var rgb *image.RGBA
	if c == 1 {
		gray = image.NewGray(bounds)
	} else {
		rgb = image.NewRGBA(bounds)
	}
	for idx := 0; idx < n; idx++ {
		oy, ox := (idx/cols)*h, (idx%cols)*w
		base := idx * h * w * c
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				off := base + (y*w+x)*c
				if gray != nil {
					gray.SetGray(ox+x, oy+y, color.Gray{Y: pixel(images.Data[off])})
					continue
				}
				rgb.SetRGBA(ox+x, oy+y, color.RGBA{
					R: pixel(images.Data[off]),
					G: pixel(images.Data[off+1]),
					B: pixel(images.Data[off+2]),
					A: 255,
				})
			}
		}
	}
	if gray != nil {
		return gray, nil
	}
	return rgb, nil
}

// SaveImages writes images as a near-square PNG grid at path. Values in
// [low, high] map to the full 8-bit range.
func SaveImages(images *tensor.Tensor, path string, low, high float32) SaveResult {
	res := SaveResult{Path: path}
	if images.Rank() != 4 {
		res.Err = fmt.Errorf("images must be [N,H,W,C], got %v", images.Shape)
		return res
	}
	res.Rows, res.Cols, res.Err = ManifoldSize(images.Shape[0])
	if res.Err != nil {
		return res
	}
	img, err := MergeImages(images, res.Rows, res.Cols, low, high)
	if err != nil {
		res.Err = err
		return res
	}
	res.Err = writePNG(path, img)
	return res
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
