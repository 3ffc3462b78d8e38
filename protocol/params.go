package protocol

import (
	"fmt"

	qkderr "github.com/qtessera/qkd/internal/errors"
)

// Defaults applied by Params.withDefaults.
var (
	// DefaultEpsilon is the default security parameter for both MAC forgery
	// probability and the statistical distance of the final key from
	// uniform.
	DefaultEpsilon = 1e-12

	// DefaultSampleProportion is the share of sifted positions sacrificed to
	// error estimation.
	DefaultSampleProportion = 0.5

	// DefaultQBERThreshold is the abort threshold for BB84-family sessions.
	// ~11% is the standard one-way post-processing bound for BB84.
	DefaultQBERThreshold = 0.11

	// DefaultCHSHThreshold is the classical CHSH bound; E91 sessions abort
	// unless |S| exceeds it.
	DefaultCHSHThreshold = 2.0

	// DefaultWinnowIters is the iteration schedule for syndrome
	// reconciliation: Hamming bit counts per round.
	DefaultWinnowIters = []int{3, 3, 3, 4, 6, 7, 7, 7}

	// DefaultMinPulses bounds the raw exchange from below so finite-size
	// corrections leave room for a useful key.
	DefaultMinPulses = 4096
)

// Params configures one key-agreement session.
type Params struct {
	// Variant selects the protocol strategy. Defaults to BB84.
	Variant Variant

	// KeyLength is the exact number of final key symbols required. The
	// session fails with ErrInsufficientSiftedBits if the secure extractable
	// length falls short of it.
	KeyLength int

	// Dimension is the per-unit dimension: 2 for qubits, an odd prime for
	// qudit variants. Defaults to 2.
	Dimension int

	// Pulses is the number of raw quantum transmissions. Defaults to
	// max(DefaultMinPulses, 32·KeyLength), scaled up for variants whose
	// sift rate falls below BB84's one half.
	Pulses int

	// SampleProportion is the share of sifted bits compared publicly during
	// error estimation. Defaults to DefaultSampleProportion.
	SampleProportion float64

	// QBERThreshold is the abort threshold for error estimation. Defaults
	// to DefaultQBERThreshold.
	QBERThreshold float64

	// CHSHThreshold is the Bell-test bound for entanglement-based variants.
	// Defaults to DefaultCHSHThreshold.
	CHSHThreshold float64

	// Epsilon is the security parameter. Defaults to DefaultEpsilon.
	Epsilon float64

	// WinnowIters is the reconciliation iteration schedule. Defaults to
	// DefaultWinnowIters.
	WinnowIters []int
}

func (p Params) withDefaults() Params {
	if p.Variant == nil {
		p.Variant = BB84{}
	}
	if p.Dimension == 0 {
		p.Dimension = 2
	}
	if p.Pulses == 0 {
		p.Pulses = 32 * p.KeyLength
		if p.Pulses < DefaultMinPulses {
			p.Pulses = DefaultMinPulses
		}
		// The base sizing assumes BB84's one-half sift rate; variants
		// that keep fewer positions need proportionally more pulses.
		if rate := p.Variant.SiftRate(); rate < 0.5 {
			p.Pulses = int(float64(p.Pulses) * 0.5 / rate)
		}
	}
	if p.SampleProportion == 0 {
		p.SampleProportion = DefaultSampleProportion
	}
	if p.QBERThreshold == 0 {
		p.QBERThreshold = DefaultQBERThreshold
	}
	if p.CHSHThreshold == 0 {
		p.CHSHThreshold = DefaultCHSHThreshold
	}
	if p.Epsilon == 0 {
		p.Epsilon = DefaultEpsilon
	}
	if p.WinnowIters == nil {
		p.WinnowIters = DefaultWinnowIters
	}
	return p
}

func (p Params) validate() error {
	if p.KeyLength <= 0 {
		return fmt.Errorf("%w: key length %d", qkderr.ErrInvalidParam, p.KeyLength)
	}
	if p.Dimension < 2 {
		return fmt.Errorf("%w: dimension %d", qkderr.ErrInvalidParam, p.Dimension)
	}
	if p.Dimension > 2 && !isPrime(p.Dimension) {
		return fmt.Errorf("%w: qudit dimension %d must be prime", qkderr.ErrInvalidParam, p.Dimension)
	}
	if p.SampleProportion <= 0 || p.SampleProportion >= 1 {
		return fmt.Errorf("%w: sample proportion %v", qkderr.ErrInvalidParam, p.SampleProportion)
	}
	if p.Epsilon <= 0 || p.Epsilon >= 1 {
		return fmt.Errorf("%w: epsilon %v", qkderr.ErrInvalidParam, p.Epsilon)
	}
	return nil
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// Stats packages together metrics of interest from one session.
type Stats struct {
	QBER             float64
	SValue           float64
	Pulses           int
	Delivered        int
	SiftedBits       int
	SampledBits      int
	ReconciledBits   int
	DisclosedBits    int
	MessagesSent     int
	MessagesReceived int
	BytesRead        int
	BytesSent        int
}
