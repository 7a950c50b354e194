package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"hft-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSession struct {
	edge, conf float64
	delay      time.Duration
	err        error
}

func (f fakeSession) Run(types.FeatureVec) (float64, float64, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.edge, f.conf, f.err
}

func poolWithSet(set ModelSet, timeout time.Duration) *Pool {
	p := NewPool(timeout, testLogger())
	p.LoadCrypto(&set)
	return p
}

// TestPredictEnsembleS4 reproduces spec.md's Scenario S4 exactly: IDEC
// returns (edge=10, c=0.6), Transformer times out, GBDT returns
// (edge=20, c=0.9). Expected edge = 16, confidence = 0.75, no error.
func TestPredictEnsembleS4(t *testing.T) {
	t.Parallel()

	set := ModelSet{
		IDEC:        fakeSession{edge: 10, conf: 0.6},
		Transformer: fakeSession{delay: 50 * time.Millisecond},
		GBDT:        fakeSession{edge: 20, conf: 0.9},
	}
	p := poolWithSet(set, 10*time.Millisecond)

	pred, err := p.PredictEnsemble(context.Background(), Crypto, types.FeatureVec{Symbol: "BTC-PERP"})
	if err != nil {
		t.Fatalf("PredictEnsemble() error = %v, want nil", err)
	}
	if math.Abs(pred.EdgeBps-16) > 1e-9 {
		t.Fatalf("EdgeBps = %v, want 16", pred.EdgeBps)
	}
	if math.Abs(pred.Confidence-0.75) > 1e-9 {
		t.Fatalf("Confidence = %v, want 0.75", pred.Confidence)
	}
}

func TestPredictEnsembleAllFail(t *testing.T) {
	t.Parallel()

	set := ModelSet{
		IDEC:        fakeSession{err: errors.New("boom")},
		Transformer: fakeSession{delay: 50 * time.Millisecond},
		GBDT:        fakeSession{err: errors.New("boom")},
	}
	p := poolWithSet(set, 5*time.Millisecond)

	_, err := p.PredictEnsemble(context.Background(), Crypto, types.FeatureVec{Symbol: "BTC-PERP"})
	if err == nil {
		t.Fatal("PredictEnsemble() error = nil, want aggregated Model error")
	}
	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Kind != types.ErrModel {
		t.Fatalf("error kind = %v, want ErrModel", err)
	}
}

func TestPredictEnsembleOneSurvivorSucceeds(t *testing.T) {
	t.Parallel()

	set := ModelSet{
		IDEC:        fakeSession{err: errors.New("boom")},
		Transformer: fakeSession{err: errors.New("boom")},
		GBDT:        fakeSession{edge: 5, conf: 0.5},
	}
	p := poolWithSet(set, 10*time.Millisecond)

	pred, err := p.PredictEnsemble(context.Background(), Crypto, types.FeatureVec{Symbol: "BTC-PERP"})
	if err != nil {
		t.Fatalf("PredictEnsemble() error = %v, want nil (one survivor is enough)", err)
	}
	if pred.EdgeBps != 5 || pred.Confidence != 0.5 {
		t.Fatalf("pred = %+v, want edge=5 confidence=0.5", pred)
	}
}

func TestPredictSingleModelTimeout(t *testing.T) {
	t.Parallel()

	set := ModelSet{IDEC: fakeSession{delay: 50 * time.Millisecond}}
	p := poolWithSet(set, 5*time.Millisecond)

	_, err := p.Predict(context.Background(), Crypto, types.FeatureVec{}, IDEC)
	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Kind != types.ErrTimeout {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestPredictWithoutLoadedModelsIsModelError(t *testing.T) {
	t.Parallel()

	p := NewPool(10*time.Millisecond, testLogger())
	_, err := p.Predict(context.Background(), Equity, types.FeatureVec{}, IDEC)

	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Kind != types.ErrModel {
		t.Fatalf("error = %v, want ErrModel", err)
	}
	if p.HasModels(Equity) {
		t.Fatal("HasModels(Equity) = true, want false")
	}
}

func TestLoadModelSetFailsFastOnMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	load := func(path string) (Session, error) { return fakeSession{}, nil }

	_, err := LoadModelSet(dir, load, testLogger())
	var typedErr *types.Error
	if !errors.As(err, &typedErr) || typedErr.Kind != types.ErrModel {
		t.Fatalf("error = %v, want ErrModel for a directory with no model files", err)
	}
}
