package training

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-vaegan/tensor"
)

func TestSummaryWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sw, err := NewSummaryWriter(dir, "run-1", 4)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(sw.Path(), ".run-1.jsonl"))

	require.NoError(t, sw.Scalars(3, map[string]float32{"g_loss": 2, "d_loss": 1}))
	require.NoError(t, sw.Scalar(3, "e_loss", float32(math.NaN())))
	require.NoError(t, sw.Histogram(3, "z", tensor.MustNew([]int{2, 2}, []float32{0, 1, 2, 3})))

	images := tensor.MustNew([]int{2, 2, 2, 1}, []float32{0, 0.5, 1, 0, 1, 1, 1, 1})
	require.NoError(t, sw.Images(4, "G", images, 0, 1, 3))
	require.NoError(t, sw.Close())

	f, err := os.Open(sw.Path())
	require.NoError(t, err)
	defer f.Close()
	events, err := ReadEvents(f)
	require.NoError(t, err)
	require.Len(t, events, 6)

	// Scalars are written in tag order.
	require.Equal(t, "d_loss", events[0].Tag)
	require.Equal(t, KindScalar, events[0].Kind)
	require.InDelta(t, 1, *events[0].Value, 1e-9)
	require.Equal(t, "g_loss", events[1].Tag)

	require.Equal(t, "e_loss", events[2].Tag)
	require.Nil(t, events[2].Value)
	require.Equal(t, "NaN", events[2].NonFinite)

	h := events[3].Histogram
	require.NotNil(t, h)
	require.Equal(t, 4, h.Num)
	require.Len(t, h.Edges, 5)
	require.Len(t, h.Counts, 4)
	var total float64
	for _, c := range h.Counts {
		total += c
	}
	require.InDelta(t, 4, total, 1e-9)
	require.InDelta(t, 1.5, h.Mean, 1e-9)

	for i, e := range events[4:] {
		require.Equal(t, KindImage, e.Kind)
		require.Equal(t, 4, e.Step)
		require.Equal(t, "G/image/"+string(rune('0'+i)), e.Tag)
		img, err := png.Decode(bytes.NewReader(e.Image.PNG))
		require.NoError(t, err)
		require.Equal(t, 2, img.Bounds().Dx())
	}
	for _, e := range events {
		if e.WallTime <= 0 {
			t.Errorf("event %s has no wall time", e.Tag)
		}
	}
}

func TestSummaryWriterSkipsNonFiniteHistogram(t *testing.T) {
	sw, err := NewSummaryWriter(t.TempDir(), "run-2", 2)
	require.NoError(t, err)
	require.NoError(t, sw.Histogram(1, "d", tensor.MustNew([]int{2}, []float32{1, float32(math.Inf(1))})))
	require.Error(t, sw.Histogram(1, "d", nil))
	require.NoError(t, sw.Close())

	data, err := os.ReadFile(sw.Path())
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestNewSummaryWriterRejectsZeroBins(t *testing.T) {
	_, err := NewSummaryWriter(t.TempDir(), "run", 0)
	require.Error(t, err)
}
