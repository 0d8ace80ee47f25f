package preprocessing

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// ImageProcessor turns image files into normalized HWC float rows.
type ImageProcessor struct {
	// InputHeight and InputWidth size the center crop taken when Crop is
	// set. A zero InputWidth uses InputHeight.
	InputHeight int
	InputWidth  int
	// OutputHeight and OutputWidth are the final image size.
	OutputHeight int
	OutputWidth  int
	Crop         bool
	Grayscale    bool
}

// NewImageProcessor returns a processor that center-crops input-sized
// patches when crop is set and resizes to the output size.
func NewImageProcessor(inputHeight, inputWidth, outputHeight, outputWidth int, crop, grayscale bool) *ImageProcessor {
	return &ImageProcessor{
		InputHeight:  inputHeight,
		InputWidth:   inputWidth,
		OutputHeight: outputHeight,
		OutputWidth:  outputWidth,
		Crop:         crop,
		Grayscale:    grayscale,
	}
}

// Channels returns 1 for grayscale output and 3 otherwise.
func (p *ImageProcessor) Channels() int {
	if p.Grayscale {
		return 1
	}
	return 3
}

// ProcessedImage is a decoded image in HWC order, scaled to [-1, 1].
type ProcessedImage struct {
	Data     []float32
	Width    int
	Height   int
	Channels int
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeFile opens and decodes path.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// IsGrayscale reports whether img uses a single-channel color model.
func IsGrayscale(img image.Image) bool {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return true
	}
	return false
}

// CenterCrop returns the h×w region at the center of img. A crop larger
// than the image is clamped to the image bounds.
func CenterCrop(img image.Image, h, w int) image.Image {
	b := img.Bounds()
	h, w = min(h, b.Dy()), min(w, b.Dx())
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, image.Pt(x0, y0), draw.Src)
	return dst
}

// Resize scales img to h×w with bilinear interpolation.
func Resize(img image.Image, h, w int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Transform crops (if configured) and resizes img to the output size.
func (p *ImageProcessor) Transform(img image.Image) *image.RGBA {
	if p.Crop {
		w := p.InputWidth
		if w == 0 {
			w = p.InputHeight
		}
		img = CenterCrop(img, p.InputHeight, w)
	}
	return Resize(img, p.OutputHeight, p.OutputWidth)
}

// Normalize maps an 8-bit image to HWC floats in [-1, 1] using
// x/127.5 - 1. Grayscale output uses ITU-R 601 luma.
func Normalize(img *image.RGBA, grayscale bool) []float32 {
	b := img.Bounds()
	c := 3
	if grayscale {
		c = 1
	}
	out := make([]float32, 0, b.Dx()*b.Dy()*c)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px := img.RGBAAt(x, y)
			if grayscale {
				g := color.GrayModel.Convert(px).(color.Gray)
				out = append(out, float32(g.Y)/127.5-1)
				continue
			}
			out = append(out, float32(px.R)/127.5-1, float32(px.G)/127.5-1, float32(px.B)/127.5-1)
		}
	}
	return out
}

// Process decodes r and returns the transformed, normalized image.
func (p *ImageProcessor) Process(r io.Reader) (*ProcessedImage, error) {
	img, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return p.process(img), nil
}

// ProcessFile is Process for a file on disk.
func (p *ImageProcessor) ProcessFile(path string) (*ProcessedImage, error) {
	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return p.process(img), nil
}

func (p *ImageProcessor) process(img image.Image) *ProcessedImage {
	return &ProcessedImage{
		Data:     Normalize(p.Transform(img), p.Grayscale),
		Width:    p.OutputWidth,
		Height:   p.OutputHeight,
		Channels: p.Channels(),
	}
}

// PreprocessBatch processes paths concurrently with at most maxWorkers
// decodes in flight. Results keep the order of paths.
func PreprocessBatch(paths []string, p *ImageProcessor, maxWorkers int) ([]*ProcessedImage, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	results := make([]*ProcessedImage, len(paths))
	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for i, path := range paths {
		g.Go(func() error {
			img, err := p.ProcessFile(path)
			if err != nil {
				return fmt.Errorf("failed to process image %d: %w", i, err)
			}
			results[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
