package training

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/tsawler/go-vaegan/checkpoints"
	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/tensor"
)

// progressKeys orders the losses shown per step.
var progressKeys = []string{"d_loss", "g_loss", "e_loss", "w_distance", "reconstruction_loss"}

// ProgressBar draws a single-line epoch progress bar with the latest
// losses.
type ProgressBar struct {
	out         io.Writer
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	metrics     map[string]float32
}

// NewProgressBar creates a bar of the given character width.
func NewProgressBar(out io.Writer, description string, total, width int) *ProgressBar {
	return &ProgressBar{
		out:         out,
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       max(width, 10),
		metrics:     map[string]float32{},
	}
}

// Update advances the bar to step and replaces the displayed metrics.
func (pb *ProgressBar) Update(step int, metrics map[string]float32) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// Finish draws the completed bar and ends the line.
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *ProgressBar) render() {
	percentage := 1.0
	if pb.total > 0 {
		percentage = min(float64(pb.current)/float64(pb.total), 1)
	}
	filled := min(int(percentage*float64(pb.width)), pb.width)
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		eta = time.Duration(float64(elapsed)/percentage) - elapsed
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))
	if rate > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", rate)
	}
	line += formatMetrics(pb.metrics, ", ", "=")
	line += "]"
	fmt.Fprint(pb.out, line)
}

// formatDuration formats d as MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// formatMetrics renders the known losses in display order.
func formatMetrics(metrics map[string]float32, sep, eq string) string {
	var b strings.Builder
	for _, k := range progressKeys {
		if v, ok := metrics[k]; ok {
			fmt.Fprintf(&b, "%s%s%s%.8f", sep, k, eq, v)
		}
	}
	return b.String()
}

// StepReport is the per-batch progress record.
type StepReport struct {
	Epoch   int
	Index   int
	Batches int
	Counter int
	Elapsed time.Duration
	Losses  map[string]float32
}

// Progress receives per-step and per-epoch events from the trainer.
type Progress interface {
	Step(r StepReport)
	EndEpoch(epoch int)
}

// LogProgress emits one structured log line per step.
type LogProgress struct{}

func (LogProgress) Step(r StepReport) {
	attrs := []any{
		"epoch", r.Epoch,
		"batch", fmt.Sprintf("%d/%d", r.Index, r.Batches),
		"step", r.Counter,
		"time", r.Elapsed.Round(time.Millisecond),
	}
	for _, k := range progressKeys {
		if v, ok := r.Losses[k]; ok {
			attrs = append(attrs, k, v)
		}
	}
	slog.Info("train", attrs...)
}

func (LogProgress) EndEpoch(int) {}

// BarProgress draws a ProgressBar per epoch.
type BarProgress struct {
	out    io.Writer
	epochs int
	width  int
	bar    *ProgressBar
}

// NewBarProgress draws bars sized for a terminal of the given column
// count.
func NewBarProgress(out io.Writer, epochs, columns int) *BarProgress {
	return &BarProgress{out: out, epochs: epochs, width: min(max(columns/4, 10), 40)}
}

func (p *BarProgress) Step(r StepReport) {
	if p.bar == nil {
		p.bar = NewProgressBar(p.out, fmt.Sprintf("Epoch %d/%d", r.Epoch+1, p.epochs), r.Batches, p.width)
	}
	p.bar.Update(r.Index+1, r.Losses)
}

func (p *BarProgress) EndEpoch(int) {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

// TerminalProgress returns a BarProgress when f is an interactive
// terminal and LogProgress otherwise.
func TerminalProgress(f *os.File, epochs int) Progress {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return LogProgress{}
	}
	columns, _, err := term.GetSize(fd)
	if err != nil {
		columns = 80
	}
	return NewBarProgress(f, epochs, columns)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// PrintArchitecture writes one row per layer of spec.
func PrintArchitecture(w io.Writer, spec *layers.ModelSpec) {
	table := newTable(w, []string{"LAYER", "TYPE", "OUTPUT", "PARAMS"})
	for _, l := range spec.Layers {
		table.Append([]string{l.Name, l.Type.String(), l.ShapeString(), formatParameterCount(l.ParameterCount)})
	}
	table.Render()
	fmt.Fprintf(w, "\nTotal parameters: %s\n", formatParameterCount(spec.TotalParameters))
}

// PrintWeights writes one row per checkpointed tensor.
func PrintWeights(w io.Writer, weights []checkpoints.WeightTensor) {
	table := newTable(w, []string{"NAME", "SHAPE", "TRAINABLE", "PARAMS", "MEAN", "STD"})
	var total int64
	for _, wt := range weights {
		n := int64(len(wt.Data))
		total += n
		mean, std := "-", "-"
		if t, err := tensor.NewTensor(wt.Shape, wt.Data); err == nil && n > 0 {
			s := tensor.Describe(t)
			mean, std = strconv.FormatFloat(s.Mean, 'g', 4, 64), strconv.FormatFloat(s.Std, 'g', 4, 64)
		}
		table.Append([]string{wt.Name, tensor.FormatShape(wt.Shape), strconv.FormatBool(wt.Trainable),
			formatParameterCount(n), mean, std})
	}
	table.Render()
	fmt.Fprintf(w, "\nTotal parameters: %s\n", formatParameterCount(total))
}

// formatParameterCount formats count with K/M suffixes.
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}
