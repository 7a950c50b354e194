package inference

import (
	"os"

	"hft-engine/pkg/types"
)

// stubSession is the default production Loader's Session: DefaultLoader
// checks the backing file once at load, and Run always refuses. There
// is no Go ONNX runtime binding wired into this repo — ort (the
// reference engine's inference crate) has no Go equivalent anywhere in
// this corpus, so a real binding would mean fabricating one. See
// DESIGN.md. LoadModelSet's fatal-fast file-existence check still
// enforces the "every required model is present at startup" contract
// (spec §4.3/§7); only the actual tensor call is unimplemented here.
type stubSession struct {
	path string
}

func (s *stubSession) Run(features types.FeatureVec) (edgeBps, confidence float64, err error) {
	return 0, 0, types.NewError(types.ErrModel,
		"no ONNX runtime binding is wired in this build; supply a Loader backed by a real inference runtime")
}

// DefaultLoader is the Loader passed to LoadModelSet when no
// runtime-specific implementation has been wired in. It validates that
// the file is present and readable (duplicating LoadModelSet's own
// check so a Loader swapped in independently still fails closed) and
// otherwise returns a stubSession.
func DefaultLoader(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.WrapError(types.ErrModel, "open model file", err)
	}
	f.Close()
	return &stubSession{path: path}, nil
}
