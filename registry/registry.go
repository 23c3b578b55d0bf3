// Package registry persists trained models together with the scaler they
// were trained with.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/lstm"
	"stockwave/pricestore"
	"stockwave/scaler"
)

type modelFile struct {
	Generation string      `json:"generation"`
	Ticker     string      `json:"ticker"`
	SavedAt    time.Time   `json:"saved_at"`
	Model      *lstm.Model `json:"model"`
}

type scalerFile struct {
	Generation string       `json:"generation"`
	Ticker     string       `json:"ticker"`
	SavedAt    time.Time    `json:"saved_at"`
	Scaler     scaler.State `json:"scaler"`
}

// Registry stores one (model, scaler) pair per ticker under dir. Both halves
// of a pair carry the same generation id, so a reader never combines a model
// with a scaler from a different training run.
type Registry struct {
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model dir %s: %w", dir, err)
	}
	return &Registry{dir: dir, logger: logger}, nil
}

func (r *Registry) modelPath(ticker string) string {
	return filepath.Join(r.dir, pricestore.Token(ticker)+"_lstm_model.json")
}

func (r *Registry) scalerPath(ticker string) string {
	return filepath.Join(r.dir, pricestore.Token(ticker)+"_scaler.json")
}

// Exists reports whether both halves of the artifact are present.
func (r *Registry) Exists(ticker string) bool {
	for _, p := range []string{r.modelPath(ticker), r.scalerPath(ticker)} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Save writes the model and the scaler, replacing any previous pair.
func (r *Registry) Save(ticker string, model *lstm.Model, state scaler.State) error {
	if err := model.Validate(); err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return err
	}

	gen := uuid.NewString()
	now := time.Now().UTC()

	// scaler first: a reader that sees the new model also sees its scaler
	if err := writeJSON(r.scalerPath(ticker), scalerFile{Generation: gen, Ticker: ticker, SavedAt: now, Scaler: state}); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "save scaler for "+ticker, err)
	}
	if err := writeJSON(r.modelPath(ticker), modelFile{Generation: gen, Ticker: ticker, SavedAt: now, Model: model}); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "save model for "+ticker, err)
	}

	r.logger.Info("Saved model artifact",
		zap.String("ticker", ticker),
		zap.String("generation", gen),
		zap.Int("horizon", model.Horizon()),
	)
	return nil
}

// Load returns the model and scaler saved for ticker.
func (r *Registry) Load(ticker string) (*lstm.Model, scaler.State, error) {
	var mf modelFile
	var sf scalerFile

	if err := readJSON(r.modelPath(ticker), &mf); err != nil {
		return nil, scaler.State{}, loadError("model", ticker, err)
	}
	if err := readJSON(r.scalerPath(ticker), &sf); err != nil {
		return nil, scaler.State{}, loadError("scaler", ticker, err)
	}

	if mf.Generation == "" || mf.Generation != sf.Generation {
		return nil, scaler.State{}, apperrors.New(apperrors.CodeStateMismatch,
			fmt.Sprintf("model %s and scaler %s for %s come from different training runs",
				mf.Generation, sf.Generation, ticker))
	}
	if err := mf.Model.Validate(); err != nil {
		return nil, scaler.State{}, err
	}
	if err := sf.Scaler.Validate(); err != nil {
		return nil, scaler.State{}, err
	}
	return mf.Model, sf.Scaler, nil
}

func loadError(what, ticker string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(apperrors.CodeArtifactMissing, fmt.Sprintf("%s for %s is missing", what, ticker), err)
	}
	return apperrors.Wrap(apperrors.CodeStateMismatch, fmt.Sprintf("%s for %s is unreadable", what, ticker), err)
}

func writeJSON(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
