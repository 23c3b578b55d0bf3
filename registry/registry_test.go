package registry

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"stockwave/apperrors"
	"stockwave/lstm"
	"stockwave/scaler"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func testModel(t *testing.T) *lstm.Model {
	t.Helper()
	m, err := lstm.New(lstm.Config{Window: 5, Horizon: 2, Hidden: 3, Seed: 11})
	if err != nil {
		t.Fatalf("lstm.New: %v", err)
	}
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	m := testModel(t)
	state := scaler.State{Feature: "Close", Min: 10, Max: 20}

	if r.Exists("AAPL") {
		t.Fatal("empty registry should not report an artifact")
	}
	if err := r.Save("AAPL", m, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !r.Exists("aapl") {
		t.Fatal("saved artifact should exist regardless of ticker case")
	}

	loaded, loadedState, err := r.Load("AAPL")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loadedState != state {
		t.Errorf("scaler changed: %+v vs %+v", loadedState, state)
	}

	in := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	want, _ := m.PredictWindow(in)
	got, _ := loaded.PredictWindow(in)
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("prediction %d differs: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestLoadMissing(t *testing.T) {
	r := newTestRegistry(t)
	if _, _, err := r.Load("MSFT"); !errors.Is(err, apperrors.ErrArtifactMissing) {
		t.Fatalf("expected artifact missing, got %v", err)
	}

	if err := r.Save("MSFT", testModel(t), scaler.State{Min: 1, Max: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	os.Remove(r.scalerPath("MSFT"))
	if r.Exists("MSFT") {
		t.Error("half an artifact should not count as existing")
	}
	if _, _, err := r.Load("MSFT"); !errors.Is(err, apperrors.ErrArtifactMissing) {
		t.Fatalf("expected artifact missing without scaler, got %v", err)
	}
}

func TestLoadRejectsForeignScaler(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Save("TSLA", testModel(t), scaler.State{Min: 1, Max: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(r.scalerPath("TSLA"))
	if err != nil {
		t.Fatal(err)
	}
	var sf scalerFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		t.Fatal(err)
	}
	sf.Generation = "00000000-0000-0000-0000-000000000000"
	if err := writeJSON(r.scalerPath("TSLA"), sf); err != nil {
		t.Fatal(err)
	}

	if _, _, err := r.Load("TSLA"); !errors.Is(err, apperrors.ErrStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Save("NVDA", testModel(t), scaler.State{Min: 1, Max: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(r.modelPath("NVDA"), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Load("NVDA"); !errors.Is(err, apperrors.ErrStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}

func TestSaveRejectsInvalidScaler(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Save("AMD", testModel(t), scaler.State{Min: 5, Max: 5})
	if !errors.Is(err, apperrors.ErrStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
	if r.Exists("AMD") {
		t.Error("nothing should be written for an invalid scaler")
	}
}

func TestPunctuatedTickersKeepSeparateArtifacts(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Save("BRK.B", testModel(t), scaler.State{Feature: "Close", Min: 300, Max: 400}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if r.Exists("BRK-B") {
		t.Fatal("BRK-B should not see the BRK.B artifact")
	}
	if _, _, err := r.Load("BRK-B"); !errors.Is(err, apperrors.ErrArtifactMissing) {
		t.Fatalf("expected artifact missing for BRK-B, got %v", err)
	}
}
