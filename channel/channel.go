// Package channel simulates the quantum channel between parties: photon
// loss, photon-number pulse statistics, and the standard single-unit noise
// models (depolarizing, dephasing, amplitude damping).
package channel

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum"
)

// NoiseModel selects the stochastic operator applied to delivered units.
type NoiseModel int

const (
	// None delivers states unperturbed.
	None NoiseModel = iota
	// Depolarizing replaces the state, with probability NoiseLevel, by the
	// maximally mixed state: operationally a uniformly random generalized
	// Pauli operator.
	Depolarizing
	// Dephasing applies a phase flip with probability NoiseLevel.
	Dephasing
	// AmplitudeDamping projects toward the ground state with probability
	// proportional to NoiseLevel, simulating energy loss. Qubit units only.
	AmplitudeDamping
)

// String returns the noise model name.
func (m NoiseModel) String() string {
	switch m {
	case None:
		return "none"
	case Depolarizing:
		return "depolarizing"
	case Dephasing:
		return "dephasing"
	case AmplitudeDamping:
		return "amplitude-damping"
	default:
		return "unknown"
	}
}

// ParseNoiseModel maps a model name to its NoiseModel.
func ParseNoiseModel(s string) (NoiseModel, error) {
	switch s {
	case "none", "":
		return None, nil
	case "depolarizing":
		return Depolarizing, nil
	case "dephasing":
		return Dephasing, nil
	case "amplitude-damping", "amplitude_damping":
		return AmplitudeDamping, nil
	default:
		return None, fmt.Errorf("%w: noise model %q", qkderr.ErrInvalidChannelParam, s)
	}
}

// Config describes one channel. The zero value is a perfect channel.
type Config struct {
	// Loss is the per-unit erasure probability, in [0, 1].
	Loss float64

	// Noise selects the noise model applied to delivered units.
	Noise NoiseModel

	// NoiseLevel parameterizes the noise model, in [0, 1].
	NoiseLevel float64

	// MeanPhotons, when positive, models the photon source as emitting
	// Poisson(MeanPhotons) photons per pulse; empty pulses are erasures on
	// top of Loss. Zero disables pulse statistics.
	MeanPhotons float64
}

// Validate checks parameter ranges, failing fast with
// ErrInvalidChannelParam.
func (c Config) Validate() error {
	if c.Loss < 0 || c.Loss > 1 {
		return fmt.Errorf("%w: loss %v", qkderr.ErrInvalidChannelParam, c.Loss)
	}
	if c.NoiseLevel < 0 || c.NoiseLevel > 1 {
		return fmt.Errorf("%w: noise level %v", qkderr.ErrInvalidChannelParam, c.NoiseLevel)
	}
	if c.Noise < None || c.Noise > AmplitudeDamping {
		return fmt.Errorf("%w: noise model %d", qkderr.ErrInvalidChannelParam, int(c.Noise))
	}
	if c.MeanPhotons < 0 {
		return fmt.Errorf("%w: mean photons %v", qkderr.ErrInvalidChannelParam, c.MeanPhotons)
	}
	return nil
}

// A Result is the outcome of transmitting one unit: either lost, or
// delivered with a possibly perturbed state.
type Result struct {
	Lost  bool
	State *quantum.State
}

// A Channel is a stateless stochastic transformation over transmitted
// units. It holds no per-call state beyond its random source.
type Channel struct {
	cfg   Config
	src   qrand.Source
	pulse distuv.Poisson
	log   zerolog.Logger
}

// New builds a channel from cfg, drawing all loss and noise randomness from
// src.
func New(cfg Config, src qrand.Source, log zerolog.Logger) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ch := &Channel{
		cfg: cfg,
		src: src,
		log: log.With().Str("component", "channel").Logger(),
	}
	if cfg.MeanPhotons > 0 {
		ch.pulse = distuv.Poisson{Lambda: cfg.MeanPhotons, Src: qrand.ExpSource(src)}
	}
	return ch, nil
}

// Config returns the channel configuration.
func (c *Channel) Config() Config {
	return c.cfg
}

// Transmit passes a single-unit state through the channel.
func (c *Channel) Transmit(s *quantum.State) (Result, error) {
	if s.Units() != 1 {
		return Result{}, fmt.Errorf("%w: transmitting %d-unit state; use TransmitUnit", qkderr.ErrDimensionMismatch, s.Units())
	}
	return c.TransmitUnit(s, 0)
}

// TransmitUnit passes one unit of a (possibly composite, possibly entangled)
// state through the channel, as when distributing half of a Bell pair. Loss
// erases the whole transmission; noise perturbs only the given unit.
func (c *Channel) TransmitUnit(s *quantum.State, unit int) (Result, error) {
	if unit < 0 || unit >= s.Units() {
		return Result{}, fmt.Errorf("%w: unit %d of %d", qkderr.ErrDimensionMismatch, unit, s.Units())
	}
	if c.lost() {
		c.log.Trace().Int("unit", unit).Msg("unit lost in transit")
		return Result{Lost: true}, nil
	}
	out, err := c.perturb(s, unit)
	if err != nil {
		return Result{}, err
	}
	return Result{State: out}, nil
}

// lost samples the erasure events: configured loss, then empty pulses when
// photon-number statistics are enabled.
func (c *Channel) lost() bool {
	if c.cfg.Loss > 0 && c.src.Float64() < c.cfg.Loss {
		return true
	}
	if c.cfg.MeanPhotons > 0 && int(c.pulse.Rand()) == 0 {
		return true
	}
	return false
}

func (c *Channel) perturb(s *quantum.State, unit int) (*quantum.State, error) {
	d := s.UnitDim()
	switch c.cfg.Noise {
	case None:
		return s, nil

	case Depolarizing:
		if c.src.Float64() >= c.cfg.NoiseLevel {
			return s, nil
		}
		// Uniform generalized Pauli: Shift^a · Clock^b, identity included.
		a, b := c.src.Intn(d), c.src.Intn(d)
		out := s
		var err error
		for i := 0; i < a; i++ {
			if out, err = out.ApplyAt(quantum.Shift(d), unit); err != nil {
				return nil, err
			}
		}
		for i := 0; i < b; i++ {
			if out, err = out.ApplyAt(quantum.Clock(d), unit); err != nil {
				return nil, err
			}
		}
		return out, nil

	case Dephasing:
		if c.src.Float64() >= c.cfg.NoiseLevel {
			return s, nil
		}
		return s.ApplyAt(quantum.Clock(d), unit)

	case AmplitudeDamping:
		return c.damp(s, unit)
	}
	return s, nil
}

// damp applies the single-qubit amplitude damping map to the given unit:
// with probability gamma · P(excited) the excitation decays to ground;
// otherwise the surviving excited amplitude is attenuated by sqrt(1-gamma).
func (c *Channel) damp(s *quantum.State, unit int) (*quantum.State, error) {
	if s.UnitDim() != 2 {
		return nil, fmt.Errorf("%w: amplitude damping on dimension-%d units", qkderr.ErrDimensionMismatch, s.UnitDim())
	}
	gamma := c.cfg.NoiseLevel
	probs, err := quantum.UnitProbabilities(s, unit, quantum.ComputationalBasis(2))
	if err != nil {
		return nil, err
	}
	amps := s.Amplitudes()
	stride := 1 << (s.Units() - 1 - unit)
	if c.src.Float64() < gamma*probs[1] {
		// Decay: move each |1⟩ component of the unit onto |0⟩.
		for i := range amps {
			if (i/stride)%2 == 1 {
				amps[i-stride] = amps[i]
				amps[i] = 0
			}
		}
	} else {
		for i := range amps {
			if (i/stride)%2 == 1 {
				amps[i] *= complex(math.Sqrt(1-gamma), 0)
			}
		}
	}
	return quantum.FromAmplitudes(2, amps)
}
