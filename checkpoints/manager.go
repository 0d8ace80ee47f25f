package checkpoints

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrNoCheckpoint is returned when a model directory holds no checkpoint.
// Callers treat it as a fresh start.
var ErrNoCheckpoint = errors.New("no checkpoint found")

const (
	// ModelName is the file name prefix of every checkpoint.
	ModelName = "DCGAN.model"
	// IndexFile lists the checkpoints of a model directory, newest last.
	IndexFile = "checkpoint"
	// DefaultMaxToKeep is the number of checkpoints retained by default.
	DefaultMaxToKeep = 5
)

var stepPattern = regexp.MustCompile(`(\d+)\D*$`)

// ModelDir returns the checkpoint subdirectory for a run configuration.
// The same configuration always maps to the same directory.
func ModelDir(dataset string, batchSize, outputHeight, outputWidth int) string {
	return fmt.Sprintf("%s_%d_%d_%d", dataset, batchSize, outputHeight, outputWidth)
}

// ParseStep extracts the trailing step number from a checkpoint name such
// as "DCGAN.model-1502".
func ParseStep(name string) (int, error) {
	m := stepPattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, fmt.Errorf("checkpoint name %q has no step suffix", name)
	}
	return strconv.Atoi(m[1])
}

// Manager saves and restores the checkpoints of one model directory.
type Manager struct {
	dir       string
	saver     *CheckpointSaver
	maxToKeep int
}

// NewManager returns a manager for root/modelDir. maxToKeep <= 0 keeps
// every checkpoint.
func NewManager(root, modelDir string, saver *CheckpointSaver, maxToKeep int) *Manager {
	return &Manager{
		dir:       filepath.Join(root, modelDir),
		saver:     saver,
		maxToKeep: maxToKeep,
	}
}

// Dir returns the model directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the file path of the checkpoint for step.
func (m *Manager) Path(step int) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s-%d", ModelName, step))
}

// Save writes c as the checkpoint for step, records it in the index and
// prunes the oldest checkpoints beyond the retention limit.
func (m *Manager) Save(c *Checkpoint, step int) (string, error) {
	path := m.Path(step)
	c.TrainingState.Step = step
	if err := m.saver.SaveCheckpoint(c, path); err != nil {
		return "", err
	}

	names, err := m.readIndex()
	if err != nil && !errors.Is(err, ErrNoCheckpoint) {
		return "", err
	}
	base := filepath.Base(path)
	names = slices.DeleteFunc(names, func(n string) bool { return n == base })
	names = append(names, base)
	if m.maxToKeep > 0 && len(names) > m.maxToKeep {
		for _, old := range names[:len(names)-m.maxToKeep] {
			if err := os.Remove(filepath.Join(m.dir, old)); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to remove old checkpoint", "path", old, "error", err)
			} else {
				slog.Debug("removed old checkpoint", "path", old)
			}
		}
		names = names[len(names)-m.maxToKeep:]
	}
	if err := m.writeIndex(names); err != nil {
		return "", err
	}
	return path, nil
}

// Latest returns the path and step of the newest checkpoint. The index is
// consulted first; without one the directory is scanned for the highest
// step.
func (m *Manager) Latest() (string, int, error) {
	names, err := m.readIndex()
	if err == nil && len(names) > 0 {
		name := names[len(names)-1]
		path := filepath.Join(m.dir, name)
		if _, statErr := os.Stat(path); statErr == nil {
			step, err := ParseStep(name)
			if err != nil {
				return "", 0, err
			}
			return path, step, nil
		}
	} else if err != nil && !errors.Is(err, ErrNoCheckpoint) {
		return "", 0, err
	}

	steps, err := m.scan()
	if err != nil {
		return "", 0, err
	}
	if len(steps) == 0 {
		return "", 0, ErrNoCheckpoint
	}
	step := steps[len(steps)-1]
	return m.Path(step), step, nil
}

// Load reads the newest checkpoint and reports its step.
func (m *Manager) Load() (*Checkpoint, int, error) {
	path, step, err := m.Latest()
	if err != nil {
		return nil, 0, err
	}
	c, err := m.saver.LoadCheckpoint(path)
	if err != nil {
		return nil, 0, err
	}
	return c, step, nil
}

// Steps returns the steps of every checkpoint in the directory, ascending.
func (m *Manager) Steps() ([]int, error) {
	return m.scan()
}

func (m *Manager) scan() ([]int, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, ModelName+"-*"))
	if err != nil {
		return nil, err
	}
	var steps []int
	for _, match := range matches {
		if strings.HasSuffix(match, ".tmp") {
			continue
		}
		if step, err := ParseStep(match); err == nil {
			steps = append(steps, step)
		}
	}
	slices.Sort(steps)
	return steps, nil
}

func (m *Manager) readIndex() ([]string, error) {
	f, err := os.Open(filepath.Join(m.dir, IndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint index: %w", err)
	}
	defer f.Close()

	var latest string
	var all []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value, err := strconv.Unquote(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("malformed checkpoint index line %q: %w", sc.Text(), err)
		}
		switch strings.TrimSpace(key) {
		case "model_checkpoint_path":
			latest = value
		case "all_model_checkpoint_paths":
			all = append(all, value)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if latest != "" {
		all = slices.DeleteFunc(all, func(n string) bool { return n == latest })
		all = append(all, latest)
	}
	return all, nil
}

func (m *Manager) writeIndex(names []string) error {
	var b strings.Builder
	if len(names) > 0 {
		fmt.Fprintf(&b, "model_checkpoint_path: %q\n", names[len(names)-1])
	}
	for _, n := range names {
		fmt.Fprintf(&b, "all_model_checkpoint_paths: %q\n", n)
	}
	if err := os.WriteFile(filepath.Join(m.dir, IndexFile), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint index: %w", err)
	}
	return nil
}
