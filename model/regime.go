package model

import (
	"fmt"
)

// Partition identifies the parameters updated together by one optimizer.
type Partition int

const (
	PartitionEncoder Partition = iota
	PartitionGenerator
	PartitionDiscriminator
)

// Prefix returns the parameter-name prefix owned by the partition.
func (p Partition) Prefix() string {
	switch p {
	case PartitionEncoder:
		return "e_"
	case PartitionGenerator:
		return "g_"
	case PartitionDiscriminator:
		return "d_"
	default:
		return ""
	}
}

func (p Partition) String() string {
	switch p {
	case PartitionEncoder:
		return "E"
	case PartitionGenerator:
		return "G"
	case PartitionDiscriminator:
		return "D"
	default:
		return fmt.Sprintf("Partition(%d)", int(p))
	}
}

// Regime selects the adversarial objective. It is either Classic or
// Wasserstein.
type Regime interface {
	Name() string
	// Schedule lists the partition updates made for every batch.
	Schedule(conditional bool) []Partition
	// DiscriminatorBatchNorm reports whether the discriminator normalizes
	// its hidden layers.
	DiscriminatorBatchNorm() bool
	// Beta2 is the second-moment decay for every optimizer.
	Beta2() float64

	buildLosses(b *builder) error
}

// Classic trains with the sigmoid cross-entropy GAN objective.
type Classic struct{}

func (Classic) Name() string { return "classic" }

func (Classic) Schedule(conditional bool) []Partition {
	if conditional {
		return []Partition{PartitionDiscriminator, PartitionGenerator, PartitionGenerator}
	}
	return []Partition{PartitionEncoder, PartitionGenerator, PartitionGenerator, PartitionDiscriminator}
}

func (Classic) DiscriminatorBatchNorm() bool { return true }

func (Classic) Beta2() float64 { return 0.999 }

// Wasserstein trains a critic with a gradient penalty.
type Wasserstein struct {
	// CriticSteps is the number of critic updates per batch.
	CriticSteps int
	// Lambda weights each gradient-penalty term.
	Lambda float32
	// AdamBeta2 is the optimizers' second-moment decay.
	AdamBeta2 float64
}

// DefaultWasserstein returns five critic steps, lambda 10 and beta2 0.9.
func DefaultWasserstein() Wasserstein {
	return Wasserstein{CriticSteps: 5, Lambda: 10, AdamBeta2: 0.9}
}

func (Wasserstein) Name() string { return "wgan-gp" }

func (w Wasserstein) Schedule(conditional bool) []Partition {
	out := make([]Partition, 0, w.CriticSteps+2)
	for i := 0; i < w.CriticSteps; i++ {
		out = append(out, PartitionDiscriminator)
	}
	if !conditional {
		out = append(out, PartitionEncoder)
	}
	return append(out, PartitionGenerator)
}

func (Wasserstein) DiscriminatorBatchNorm() bool { return false }

func (w Wasserstein) Beta2() float64 { return w.AdamBeta2 }

// Validate checks the penalty settings.
func (w Wasserstein) Validate() error {
	if w.CriticSteps < 1 {
		return fmt.Errorf("critic steps must be at least 1, got %d", w.CriticSteps)
	}
	if w.Lambda < 0 {
		return fmt.Errorf("lambda must not be negative, got %v", w.Lambda)
	}
	if w.AdamBeta2 <= 0 || w.AdamBeta2 >= 1 {
		return fmt.Errorf("beta2 must be in (0, 1), got %v", w.AdamBeta2)
	}
	return nil
}

func validateRegime(r Regime) error {
	switch r := r.(type) {
	case Classic:
		return nil
	case Wasserstein:
		return r.Validate()
	case nil:
		return fmt.Errorf("regime is required")
	default:
		return fmt.Errorf("unsupported regime %T", r)
	}
}
