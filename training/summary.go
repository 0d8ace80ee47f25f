package training

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tsawler/go-vaegan/tensor"
	"github.com/tsawler/go-vaegan/vision/preprocessing"
)

// Event kinds written to the summary stream.
const (
	KindScalar    = "scalar"
	KindHistogram = "histogram"
	KindImage     = "image"
)

// Event is one record of the summary stream.
type Event struct {
	WallTime float64 `json:"wall_time"`
	Step     int     `json:"step"`
	Kind     string  `json:"kind"`
	Tag      string  `json:"tag"`

	// Value is nil for a non-finite scalar, which is spelled out in
	// NonFinite instead.
	Value     *float64        `json:"value,omitempty"`
	NonFinite string          `json:"non_finite,omitempty"`
	Histogram *HistogramValue `json:"histogram,omitempty"`
	Image     *ImageValue     `json:"image,omitempty"`
}

// HistogramValue summarizes a tensor's distribution.
type HistogramValue struct {
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	Mean   float64   `json:"mean"`
	Std    float64   `json:"std"`
	Num    int       `json:"num"`
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// ImageValue is a PNG-encoded image.
type ImageValue struct {
	Height int    `json:"height"`
	Width  int    `json:"width"`
	PNG    []byte `json:"png"`
}

// SummaryWriter appends events as JSON lines to a file in the log
// directory. It is not safe for concurrent use.
type SummaryWriter struct {
	path  string
	runID string
	bins  int
	f     *os.File
	w     *bufio.Writer
	enc   *json.Encoder
	now   func() time.Time
}

// NewSummaryWriter creates dir if needed and opens a new event file named
// after runID.
func NewSummaryWriter(dir, runID string, bins int) (*SummaryWriter, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("histogram bins must be positive, got %d", bins)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("events.out.%d.%s.jsonl", time.Now().Unix(), runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	w := bufio.NewWriter(f)
	return &SummaryWriter{
		path:  path,
		runID: runID,
		bins:  bins,
		f:     f,
		w:     w,
		enc:   json.NewEncoder(w),
		now:   time.Now,
	}, nil
}

// Path returns the event file path.
func (sw *SummaryWriter) Path() string { return sw.path }

// RunID returns the run identifier in the file name.
func (sw *SummaryWriter) RunID() string { return sw.runID }

func (sw *SummaryWriter) write(e Event) error {
	e.WallTime = float64(sw.now().UnixNano()) / 1e9
	if err := sw.enc.Encode(e); err != nil {
		return fmt.Errorf("write %s event %q: %w", e.Kind, e.Tag, err)
	}
	return nil
}

// Scalar records a single value.
func (sw *SummaryWriter) Scalar(step int, tag string, v float32) error {
	e := Event{Step: step, Kind: KindScalar, Tag: tag}
	f := float64(v)
	switch {
	case math.IsNaN(f):
		e.NonFinite = "NaN"
	case math.IsInf(f, 1):
		e.NonFinite = "+Inf"
	case math.IsInf(f, -1):
		e.NonFinite = "-Inf"
	default:
		e.Value = &f
	}
	return sw.write(e)
}

// Scalars records every value of m in tag order.
func (sw *SummaryWriter) Scalars(step int, m map[string]float32) error {
	tags := make([]string, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if err := sw.Scalar(step, tag, m[tag]); err != nil {
			return err
		}
	}
	return nil
}

// Histogram records the distribution of t. Tensors with non-finite
// values are skipped.
func (sw *SummaryWriter) Histogram(step int, tag string, t *tensor.Tensor) error {
	if t == nil || t.NumElems == 0 {
		return fmt.Errorf("histogram %q: empty tensor", tag)
	}
	if !t.IsFinite() {
		return nil
	}
	s := tensor.Describe(t)
	edges, counts := tensor.Histogram(t, sw.bins)
	return sw.write(Event{
		Step: step,
		Kind: KindHistogram,
		Tag:  tag,
		Histogram: &HistogramValue{
			Min:    s.Min,
			Max:    s.Max,
			Mean:   s.Mean,
			Std:    s.Std,
			Num:    t.NumElems,
			Edges:  edges,
			Counts: counts,
		},
	})
}

// Images records up to maxOutputs images of a [N,H,W,C] batch as tags
// "<tag>/image/<i>". Values in [low, high] map to the 8-bit range.
func (sw *SummaryWriter) Images(step int, tag string, images *tensor.Tensor, low, high float32, maxOutputs int) error {
	if images.Rank() != 4 {
		return fmt.Errorf("images %q must be [N,H,W,C], got %v", tag, images.Shape)
	}
	n := min(maxOutputs, images.Dim(0))
	for i := 0; i < n; i++ {
		one, err := tensor.SliceBatch(images, i, i+1)
		if err != nil {
			return err
		}
		img, err := preprocessing.MergeImages(one, 1, 1, low, high)
		if err != nil {
			return fmt.Errorf("images %q: %w", tag, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("images %q: %w", tag, err)
		}
		err = sw.write(Event{
			Step: step,
			Kind: KindImage,
			Tag:  fmt.Sprintf("%s/image/%d", tag, i),
			Image: &ImageValue{
				Height: images.Dim(1),
				Width:  images.Dim(2),
				PNG:    buf.Bytes(),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered events to disk.
func (sw *SummaryWriter) Flush() error {
	return sw.w.Flush()
}

// Close flushes and closes the event file.
func (sw *SummaryWriter) Close() error {
	return errors.Join(sw.w.Flush(), sw.f.Close())
}

// ReadEvents decodes an event stream.
func ReadEvents(r io.Reader) ([]Event, error) {
	dec := json.NewDecoder(r)
	var events []Event
	for {
		var e Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
}
