// Package qkd simulates quantum key distribution: two or more parties
// establish a shared secret over a simulated quantum channel subject to loss
// and noise, then reconcile and amplify that secret into a final key.
//
// # Quick Start
//
// Running a BB84 session over a mildly noisy channel:
//
//	import (
//		"github.com/rs/zerolog"
//
//		"github.com/qtessera/qkd/channel"
//		"github.com/qtessera/qkd/protocol"
//		"github.com/qtessera/qkd/qrand"
//	)
//
//	cfg := channel.Config{Loss: 0.1, Noise: channel.Depolarizing, NoiseLevel: 0.05}
//	res, err := protocol.Evaluate(protocol.Params{KeyLength: 128}, cfg, qrand.System(), zerolog.Nop())
//	// res.FinalKey, res.QBER, res.IsSecure
//
// For amplitude-level work, the quantum package exposes states, unitary
// gates, and the two-phase sample/collapse measurement primitives:
//
//	q := quantum.Plus()
//	out, _ := quantum.Sample(q, quantum.HadamardBasis(), src) // no mutation
//	q2, _ := quantum.Collapse(q, out)                         // explicit commit
//
// # Package Structure
//
//   - quantum: state vectors (including Bell and GHZ constructors), the
//     named gate set (Pauli, phase, rotation, CNOT, and the qudit shift,
//     clock, and Fourier generalizations), projective measurement, and the
//     computational, Hadamard, circular, and analyzer-angle bases
//   - quantum/bitarray: densely packed classical bit strings
//   - channel: photon loss and noise models (depolarizing, dephasing,
//     amplitude damping) over a secure random source
//   - protocol: the BB84/B92/E91/SARG04 session state machine with sifting,
//     QBER estimation, syndrome reconciliation, and Toeplitz privacy
//     amplification
//   - network: entanglement swapping for multi-hop key relay
//
// All security-relevant randomness is drawn from an injected source backed by
// crypto/rand; sessions are independently testable by seeding a
// deterministic source instead.
package qkd
