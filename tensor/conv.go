package tensor

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

var parallelism atomic.Int32

func init() {
	parallelism.Store(int32(runtime.GOMAXPROCS(0)))
}

// SetParallelism bounds the number of goroutines used by convolution
// kernels. Values below 1 reset to GOMAXPROCS.
func SetParallelism(n int) {
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	parallelism.Store(int32(n))
}

// Parallelism returns the current kernel goroutine limit.
func Parallelism() int {
	return int(parallelism.Load())
}

// SamePadding returns the output size and leading pad of a SAME-padded
// convolution over a dimension of size in. Any odd padding goes to the
// trailing edge.
func SamePadding(in, kernel, stride int) (out, padBefore int) {
	out = (in + stride - 1) / stride
	total := max((out-1)*stride+kernel-in, 0)
	return out, total / 2
}

// convGeometry describes a 2D SAME convolution over NHWC input with an
// HWIO filter.
type convGeometry struct {
	batch, inH, inW, inC int
	kH, kW, outC         int
	stride               int
	outH, outW           int
	padTop, padLeft      int
}

func newConvGeometry(inShape, filterShape []int, stride int) (convGeometry, error) {
	if len(inShape) != 4 || len(filterShape) != 4 {
		return convGeometry{}, fmt.Errorf("conv2d requires NHWC input and HWIO filter, got %v and %v", inShape, filterShape)
	}
	if stride < 1 {
		return convGeometry{}, fmt.Errorf("conv2d stride must be positive, got %d", stride)
	}
	if inShape[3] != filterShape[2] {
		return convGeometry{}, fmt.Errorf("conv2d input channels %d do not match filter %v", inShape[3], filterShape)
	}
	g := convGeometry{
		batch: inShape[0], inH: inShape[1], inW: inShape[2], inC: inShape[3],
		kH: filterShape[0], kW: filterShape[1], outC: filterShape[3],
		stride: stride,
	}
	g.outH, g.padTop = SamePadding(g.inH, g.kH, stride)
	g.outW, g.padLeft = SamePadding(g.inW, g.kW, stride)
	return g, nil
}

func (g convGeometry) outShape() []int { return []int{g.batch, g.outH, g.outW, g.outC} }
func (g convGeometry) patch() int      { return g.kH * g.kW * g.inC }
func (g convGeometry) rows() int       { return g.outH * g.outW }

// im2col writes the patches of image b into col, one row per output pixel.
func (g convGeometry) im2col(x []float32, b int, col []float32) {
	img := x[b*g.inH*g.inW*g.inC:]
	k := g.patch()
	for oh := 0; oh < g.outH; oh++ {
		for ow := 0; ow < g.outW; ow++ {
			row := col[(oh*g.outW+ow)*k:]
			for i := 0; i < g.kH; i++ {
				ih := oh*g.stride + i - g.padTop
				for j := 0; j < g.kW; j++ {
					dst := row[(i*g.kW+j)*g.inC : (i*g.kW+j+1)*g.inC]
					iw := ow*g.stride + j - g.padLeft
					if ih < 0 || ih >= g.inH || iw < 0 || iw >= g.inW {
						clear(dst)
						continue
					}
					copy(dst, img[(ih*g.inW+iw)*g.inC:])
				}
			}
		}
	}
}

// col2im scatters-adds the patch rows of col back into image b of dx.
func (g convGeometry) col2im(col []float32, b int, dx []float32) {
	img := dx[b*g.inH*g.inW*g.inC:]
	k := g.patch()
	for oh := 0; oh < g.outH; oh++ {
		for ow := 0; ow < g.outW; ow++ {
			row := col[(oh*g.outW+ow)*k:]
			for i := 0; i < g.kH; i++ {
				ih := oh*g.stride + i - g.padTop
				if ih < 0 || ih >= g.inH {
					continue
				}
				for j := 0; j < g.kW; j++ {
					iw := ow*g.stride + j - g.padLeft
					if iw < 0 || iw >= g.inW {
						continue
					}
					src := row[(i*g.kW+j)*g.inC : (i*g.kW+j+1)*g.inC]
					dst := img[(ih*g.inW+iw)*g.inC:]
					for c, v := range src {
						dst[c] += v
					}
				}
			}
		}
	}
}

// columns lowers the whole batch to a [batch*outH*outW, kH*kW*inC] matrix.
func (g convGeometry) columns(x []float32) ([]float32, error) {
	k, rows := g.patch(), g.rows()
	col := make([]float32, g.batch*rows*k)
	var eg errgroup.Group
	eg.SetLimit(Parallelism())
	for b := 0; b < g.batch; b++ {
		eg.Go(func() error {
			g.im2col(x, b, col[b*rows*k:(b+1)*rows*k])
			return nil
		})
	}
	return col, eg.Wait()
}

// Conv2D computes a SAME-padded strided convolution of x [N,H,W,C] with
// filter [kH,kW,C,O].
func Conv2D(x, filter *Tensor, stride int) (*Tensor, error) {
	g, err := newConvGeometry(x.Shape, filter.Shape, stride)
	if err != nil {
		return nil, err
	}
	col, err := g.columns(x.Data)
	if err != nil {
		return nil, err
	}
	n, k := g.batch*g.rows(), g.patch()
	out := make([]float32, n*g.outC)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: n, Cols: k, Stride: k, Data: col},
		blas32.General{Rows: k, Cols: g.outC, Stride: g.outC, Data: filter.Data},
		0, blas32.General{Rows: n, Cols: g.outC, Stride: g.outC, Data: out})
	return NewTensor(g.outShape(), out)
}

// Conv2DBackpropInput returns the gradient of Conv2D with respect to its
// input, given the output gradient dy and the input shape. It is also the
// forward pass of a transposed convolution.
func Conv2DBackpropInput(dy, filter *Tensor, inShape []int, stride int) (*Tensor, error) {
	g, err := newConvGeometry(inShape, filter.Shape, stride)
	if err != nil {
		return nil, err
	}
	if !ShapesEqual(dy.Shape, g.outShape()) {
		return nil, fmt.Errorf("conv2d backprop input: gradient shape %v does not match output shape %v", dy.Shape, g.outShape())
	}
	n, k, rows := g.batch*g.rows(), g.patch(), g.rows()
	col := make([]float32, n*k)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: n, Cols: g.outC, Stride: g.outC, Data: dy.Data},
		blas32.General{Rows: k, Cols: g.outC, Stride: g.outC, Data: filter.Data},
		0, blas32.General{Rows: n, Cols: k, Stride: k, Data: col})
	dx := make([]float32, calculateNumElements(inShape))
	var eg errgroup.Group
	eg.SetLimit(Parallelism())
	for b := 0; b < g.batch; b++ {
		eg.Go(func() error {
			g.col2im(col[b*rows*k:(b+1)*rows*k], b, dx)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return NewTensor(inShape, dx)
}

// Conv2DBackpropFilter returns the gradient of Conv2D with respect to its
// filter, given the input x and output gradient dy.
func Conv2DBackpropFilter(x, dy *Tensor, filterShape []int, stride int) (*Tensor, error) {
	g, err := newConvGeometry(x.Shape, filterShape, stride)
	if err != nil {
		return nil, err
	}
	if !ShapesEqual(dy.Shape, g.outShape()) {
		return nil, fmt.Errorf("conv2d backprop filter: gradient shape %v does not match output shape %v", dy.Shape, g.outShape())
	}
	col, err := g.columns(x.Data)
	if err != nil {
		return nil, err
	}
	n, k := g.batch*g.rows(), g.patch()
	dw := make([]float32, k*g.outC)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		blas32.General{Rows: n, Cols: k, Stride: k, Data: col},
		blas32.General{Rows: n, Cols: g.outC, Stride: g.outC, Data: dy.Data},
		0, blas32.General{Rows: k, Cols: g.outC, Stride: g.outC, Data: dw})
	return NewTensor(filterShape, dw)
}
