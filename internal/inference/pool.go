// Package inference implements the inference pool (C4): per-category
// loaded model sessions, single-model prediction under a hard deadline,
// and confidence-weighted ensemble prediction.
//
// Absence of any required model is fatal at load time — this is a
// deliberate design choice carried over from the reference engine: a
// silent rule-based fallback would mask model regressions, so there is
// none. See DESIGN.md.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hft-engine/pkg/types"
)

// Category is the asset class a model set was trained for.
type Category int

const (
	Crypto Category = iota
	Equity
)

// ModelType names one of the four mandatory models in a ModelSet.
type ModelType int

const (
	IDEC ModelType = iota
	Transformer
	GBDT
	Edge
)

func (m ModelType) String() string {
	switch m {
	case IDEC:
		return "idec"
	case Transformer:
		return "transformer"
	case GBDT:
		return "gbdt"
	default:
		return "edge"
	}
}

// Session is a loaded model, able to turn a feature vector into a raw
// (edge_bps, confidence) pair. Implementations wrap whatever inference
// runtime backs the on-disk model file.
type Session interface {
	Run(features types.FeatureVec) (edgeBps, confidence float64, err error)
}

// ModelSet is the four mandatory models for one category.
type ModelSet struct {
	IDEC        Session
	Transformer Session
	GBDT        Session
	Edge        Session
}

func (ms ModelSet) session(t ModelType) Session {
	switch t {
	case IDEC:
		return ms.IDEC
	case Transformer:
		return ms.Transformer
	case GBDT:
		return ms.GBDT
	default:
		return ms.Edge
	}
}

// Loader turns a model directory into a runnable Session for a named
// model file. Production wiring points this at whatever inference
// runtime the deployment carries; tests supply a fake.
type Loader func(path string) (Session, error)

// LoadModelSet loads all four mandatory models from dir/{idec,
// transformer, gbdt, edge}.onnx. A missing or unloadable file is fatal:
// returns a *types.Error{Kind: ErrModel} immediately, loading nothing
// partially.
func LoadModelSet(dir string, load Loader, logger *slog.Logger) (*ModelSet, error) {
	names := []ModelType{IDEC, Transformer, GBDT, Edge}
	loaded := make(map[ModelType]Session, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name.String()+".onnx")
		if _, err := os.Stat(path); err != nil {
			return nil, types.WrapError(types.ErrModel,
				fmt.Sprintf("model NOT FOUND: %s (required for operation)", path), err)
		}
		session, err := load(path)
		if err != nil {
			return nil, types.WrapError(types.ErrModel,
				fmt.Sprintf("failed to load %s: model file may be corrupted", path), err)
		}
		logger.Info("loaded model", "path", path)
		loaded[name] = session
	}

	return &ModelSet{
		IDEC:        loaded[IDEC],
		Transformer: loaded[Transformer],
		GBDT:        loaded[GBDT],
		Edge:        loaded[Edge],
	}, nil
}

// RLPolicy is the actor/critic pair loaded for the RLAgent decision mode
// (spec §6's models/rl/{actor,critic}.onnx). The actor produces the raw
// (edge_bps, confidence) pair exactly like an ensemble member; the critic
// is loaded and validated at startup (a missing critic is as fatal as a
// missing actor) but is not required to participate in every call — it
// exists for a future value-based confidence blend, not specified
// further here.
type RLPolicy struct {
	Actor  Session
	Critic Session
}

// Pool owns loaded ModelSets per category and runs predictions under a
// hard per-call timeout. Model sets are read-only after load; loading
// itself is guarded so concurrent LoadCrypto/LoadEquity calls don't race.
type Pool struct {
	mu      sync.RWMutex
	crypto  *ModelSet
	equity  *ModelSet
	rl      *RLPolicy
	timeout time.Duration
	logger  *slog.Logger
}

func NewPool(timeout time.Duration, logger *slog.Logger) *Pool {
	return &Pool{timeout: timeout, logger: logger.With("component", "inference")}
}

func (p *Pool) LoadCrypto(set *ModelSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.crypto = set
}

func (p *Pool) LoadEquity(set *ModelSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equity = set
}

// LoadRL installs the RL actor/critic pair. Like LoadCrypto/LoadEquity,
// this is a one-time startup action; the pool never mutates a policy
// in place.
func (p *Pool) LoadRL(policy *RLPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rl = policy
}

// HasRL is the readiness predicate for the RLAgent and Hybrid decision
// modes, the RL analogue of HasModels.
func (p *Pool) HasRL() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rl != nil
}

func (p *Pool) rlPolicy() *RLPolicy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rl
}

// PredictRL runs the RL actor under the pool's standard timeout, the RL
// analogue of Predict for a single named model. Returns a Model error if
// no policy has been loaded.
func (p *Pool) PredictRL(ctx context.Context, features types.FeatureVec) (types.Prediction, error) {
	policy := p.rlPolicy()
	if policy == nil {
		return types.Prediction{}, types.NewError(types.ErrModel,
			"RL policy not loaded; load_rl must run before RLAgent/Hybrid mode")
	}
	return p.runSession(ctx, policy.Actor, features, "rl-actor-v1")
}

// HasModels is the readiness predicate C8 consults before enabling a mode
// for a category.
func (p *Pool) HasModels(category Category) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if category == Crypto {
		return p.crypto != nil
	}
	return p.equity != nil
}

func (p *Pool) modelSet(category Category) *ModelSet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if category == Crypto {
		return p.crypto
	}
	return p.equity
}

// Predict runs a single named model under the pool's timeout. Returns a
// Timeout *types.Error if the call exceeds the deadline, or a Model error
// if the category's models aren't loaded.
func (p *Pool) Predict(ctx context.Context, category Category, features types.FeatureVec, modelType ModelType) (types.Prediction, error) {
	set := p.modelSet(category)
	if set == nil {
		return types.Prediction{}, types.NewError(types.ErrModel,
			fmt.Sprintf("models NOT loaded for category %d; load models before trading", category))
	}
	session := set.session(modelType)
	return p.runSessionNamed(ctx, session, features, modelType.String())
}

// runSession wraps a blocking Session.Run call on its own goroutine so
// the caller can race it against the pool's hard timeout without ever
// blocking on a misbehaving model — the goroutine is abandoned (not
// cancelled) on timeout, matching spec §4.3's "no mid-session
// cancellation of a tensor call".
func (p *Pool) runSession(ctx context.Context, session Session, features types.FeatureVec, modelVersion string) (types.Prediction, error) {
	return p.runSessionNamed(ctx, session, features, modelVersion)
}

func (p *Pool) runSessionNamed(ctx context.Context, session Session, features types.FeatureVec, name string) (types.Prediction, error) {
	type result struct {
		edge, conf float64
		err        error
	}
	resultCh := make(chan result, 1)

	go func() {
		edge, conf, err := session.Run(features)
		resultCh <- result{edge, conf, err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return types.Prediction{}, types.WrapError(types.ErrTimeout, "inference cancelled", ctx.Err())
	case <-timer.C:
		return types.Prediction{}, types.NewError(types.ErrTimeout,
			fmt.Sprintf("inference timeout after %s (%s)", p.timeout, name))
	case res := <-resultCh:
		if res.err != nil {
			return types.Prediction{}, types.WrapError(types.ErrModel, "inference execution failed", res.err)
		}
		return types.Prediction{
			Symbol:       features.Symbol,
			TimestampNs:  features.TimestampNs,
			EdgeBps:      res.edge,
			Confidence:   clamp01(res.conf),
			HorizonMs:    5000,
			ModelVersion: "v1.0",
		}, nil
	}
}

// PredictEnsemble runs IDEC, Transformer, and GBDT concurrently and
// combines the successes with a confidence-weighted average, per spec
// §4.3:
//
//	edge = sum(e_i * c_i) / sum(c_i)
//	confidence = mean(c_i)
//
// If every constituent model fails, returns an aggregated Model error —
// there is no single-model or rule-based fallback.
func (p *Pool) PredictEnsemble(ctx context.Context, category Category, features types.FeatureVec) (types.Prediction, error) {
	members := []ModelType{IDEC, Transformer, GBDT}

	type outcome struct {
		pred types.Prediction
		err  error
	}
	results := make([]outcome, len(members))

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, m ModelType) {
			defer wg.Done()
			pred, err := p.Predict(ctx, category, features, m)
			results[i] = outcome{pred: pred, err: err}
		}(i, m)
	}
	wg.Wait()

	var preds []types.Prediction
	var causes []string
	for i, m := range members {
		if results[i].err != nil {
			causes = append(causes, fmt.Sprintf("%s: %v", m, results[i].err))
			continue
		}
		preds = append(preds, results[i].pred)
	}

	if len(preds) == 0 {
		return types.Prediction{}, types.NewError(types.ErrModel,
			fmt.Sprintf("all ensemble models failed: %v", causes))
	}

	var totalConfidence, weightedEdge float64
	for _, pr := range preds {
		totalConfidence += pr.Confidence
	}
	for _, pr := range preds {
		weightedEdge += pr.EdgeBps * pr.Confidence / totalConfidence
	}

	return types.Prediction{
		Symbol:       features.Symbol,
		TimestampNs:  features.TimestampNs,
		EdgeBps:      weightedEdge,
		Confidence:   totalConfidence / float64(len(preds)),
		HorizonMs:    5000,
		ModelVersion: "ensemble-v1.0",
	}, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
