package protocol

import (
	"github.com/rs/zerolog"

	"github.com/qtessera/qkd/channel"
	"github.com/qtessera/qkd/qrand"
)

// Evaluate runs one complete session against the given channel and returns
// its result. It is a pure function of its inputs: rerunning with the same
// parameters and a Seeded source reproduces the result bit for bit, which is
// what parameter sweeps and external optimizers want.
func Evaluate(p Params, cfg channel.Config, src qrand.Source, log zerolog.Logger) (*Result, error) {
	s, err := NewSession(p, cfg, src, log)
	if err != nil {
		return nil, err
	}
	return s.Run()
}
