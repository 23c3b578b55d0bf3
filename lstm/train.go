package lstm

import (
	"fmt"
	"math"
	"math/rand"

	"stockwave/apperrors"
)

// Report summarizes a training run.
type Report struct {
	Samples      int       `json:"samples"`
	Epochs       int       `json:"epochs"`
	Losses       []float64 `json:"losses"`
	FinalLoss    float64   `json:"final_loss"`
	BestLoss     float64   `json:"best_loss"`
	StoppedEarly bool      `json:"stopped_early"`
}

// Train fits the model on samples with shuffled mini-batches. Training stops
// after epochs, or earlier once the epoch loss has not improved for patience
// consecutive epochs (patience <= 0 disables early stopping).
func (m *Model) Train(samples []Sample, epochs, patience int) (Report, error) {
	report := Report{Samples: len(samples), BestLoss: math.Inf(1)}
	if len(samples) == 0 {
		return report, apperrors.New(apperrors.CodeInsufficientHistory, "lstm: no training samples")
	}
	if epochs <= 0 {
		return report, apperrors.New(apperrors.CodeInvalidRequest,
			fmt.Sprintf("lstm: epochs must be positive, got %d", epochs))
	}
	for i, s := range samples {
		if len(s.Input) != m.Config.Window || len(s.Target) != m.Config.Horizon {
			return report, apperrors.New(apperrors.CodeStateMismatch,
				fmt.Sprintf("lstm: sample %d has shape %d->%d, model is %d->%d",
					i, len(s.Input), len(s.Target), m.Config.Window, m.Config.Horizon))
		}
	}

	rng := rand.New(rand.NewSource(m.Config.Seed + 1))
	grads := m.newGradients()
	opt := newAdam(m.Config.LearningRate, m.params())

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sampleLoss := make([]float64, len(samples))
	wait := 0

	for epoch := 0; epoch < epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += m.Config.BatchSize {
			end := min(start+m.Config.BatchSize, len(order))
			batch := order[start:end]
			scale := 1 / float64(len(batch))

			grads.zero()
			for _, idx := range batch {
				sampleLoss[idx] = m.accumulate(samples[idx], grads, scale)
			}
			gp := grads.params()
			clipGradients(gp, clipNorm)
			opt.step(m.params(), gp)
		}

		// summed in index order so the value does not depend on the shuffle
		total := 0.0
		for _, l := range sampleLoss {
			total += l
		}
		loss := total / float64(len(samples))
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return report, apperrors.New(apperrors.CodeInternal,
				fmt.Sprintf("lstm: loss diverged at epoch %d", epoch+1))
		}

		report.Epochs = epoch + 1
		report.Losses = append(report.Losses, loss)
		report.FinalLoss = loss

		if loss < report.BestLoss {
			report.BestLoss = loss
			wait = 0
			continue
		}
		wait++
		if patience > 0 && wait >= patience {
			report.StoppedEarly = true
			break
		}
	}

	return report, nil
}
