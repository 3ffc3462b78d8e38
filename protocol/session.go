// Package protocol implements the key-agreement pipeline shared by the
// BB84, B92, E91 and SARG04 variants: quantum exchange, sifting, error
// estimation,
// syndrome reconciliation, and privacy amplification, with every classical
// announcement framed and authenticated on a simulated public channel.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qtessera/qkd/channel"
	qkderr "github.com/qtessera/qkd/internal/errors"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/quantum/bitarray"
)

// Phase identifies the session state machine position. Phases advance
// strictly in order; skipping one fails with ErrPhaseOrder, since the
// leakage accounting of each phase builds on the previous.
type Phase int

const (
	// Prepared: parameters validated, nothing transmitted.
	Prepared Phase = iota
	// Transmitted: the quantum exchange is complete.
	Transmitted
	// Sifted: non-matching positions discarded, keys binarized.
	Sifted
	// ErrorEstimated: QBER measured and the security check passed.
	ErrorEstimated
	// Reconciled: both keys agree except with negligible probability.
	Reconciled
	// Amplified: the final key is extracted. Terminal.
	Amplified
	// Aborted: a security check failed. Terminal, and not an error.
	Aborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Prepared:
		return "prepared"
	case Transmitted:
		return "transmitted"
	case Sifted:
		return "sifted"
	case ErrorEstimated:
		return "error-estimated"
	case Reconciled:
		return "reconciled"
	case Amplified:
		return "amplified"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// A Result is the outcome of a completed session. A security abort is a
// Result with IsSecure false, never an error: failing safe is the protocol
// working as designed.
type Result struct {
	// FinalKey is the agreed key, exactly Params.KeyLength bits. Empty on
	// abort.
	FinalKey bitarray.Dense

	// QBER is the error rate estimated on the sampled subset.
	QBER float64

	// SValue is the CHSH statistic, for entanglement-based variants.
	SValue float64

	// IsSecure reports whether every security check passed.
	IsSecure bool

	// LeakedBits counts the raw key-correlated bits disclosed publicly:
	// sampled bits plus reconciliation parities. The positions carrying
	// them are discarded, but the count still drives amplification audit.
	LeakedBits int

	// CompressionRatio is final key length over reconciled length.
	CompressionRatio float64

	// Stats aggregates the session's metrics.
	Stats Stats
}

// A Session drives one key agreement between the two simulated parties. It
// may be run stepwise, one phase method at a time, or end to end with Run.
// Sessions are single-use and not safe for concurrent use.
type Session struct {
	// ID tags log lines and audit records from this session.
	ID uuid.UUID

	params Params
	ch     *channel.Channel
	src    qrand.Source
	an     *announcer
	log    zerolog.Logger

	phase   Phase
	rec     *Record
	alice   bitarray.Dense
	bob     bitarray.Dense
	sampled int
	qber    float64
	verdict Verdict
	stats   Stats
	trail   []KeyMaterial
	result  *Result
}

// NewSession builds a session over a channel with the given configuration.
// All quantum, protocol, and authentication randomness is drawn from src.
func NewSession(p Params, cfg channel.Config, src qrand.Source, log zerolog.Logger) (*Session, error) {
	p = p.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	slog := log.With().
		Str("component", "session").
		Str("session", id.String()).
		Str("variant", p.Variant.Name()).
		Logger()
	ch, err := channel.New(cfg, src, log)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:     id,
		params: p,
		ch:     ch,
		src:    src,
		log:    slog,
		phase:  Prepared,
	}
	// The bootstrap secret stands in for the pre-shared authentication key
	// of a real deployment. Sizing: MAC diagonals for the largest frame,
	// plus one-time pad material for every announcement the pipeline makes.
	maxBytes := 2*bitarray.BytesFor(p.Pulses) + 2*p.Pulses + 1024
	secret := qrand.Bytes(src, 2*maxBytes+64*1024)
	s.an, err = newAnnouncer(secret, p.Epsilon, maxBytes, &s.stats)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Phase returns the session's current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// Trail returns the audit trail of key material snapshots produced so far.
func (s *Session) Trail() []KeyMaterial {
	return s.trail
}

// Result returns the session outcome, or nil before a terminal phase.
func (s *Session) Result() *Result {
	return s.result
}

// Run drives the session end to end and returns its result. Security aborts
// surface in the result; errors indicate genuine failures such as parameter
// problems or insufficient key material.
func (s *Session) Run() (*Result, error) {
	type step struct {
		name string
		f    func() error
	}
	steps := []step{
		{"exchange", s.Exchange},
		{"sift", s.Sift},
		{"estimate", s.EstimateError},
		{"reconcile", s.Reconcile},
		{"amplify", s.Amplify},
	}
	for _, st := range steps {
		if err := st.f(); err != nil {
			return nil, qkderr.NewStageError(st.name, err)
		}
		if s.phase == Aborted {
			return s.result, nil
		}
	}
	return s.result, nil
}

// Exchange runs the quantum portion: preparation, transmission through the
// channel, and measurement, for Params.Pulses units.
func (s *Session) Exchange() error {
	if err := s.requirePhase(Prepared); err != nil {
		return err
	}
	rec, err := s.params.Variant.Exchange(s.params, s.ch, s.src)
	if err != nil {
		return err
	}
	s.rec = rec
	s.stats.Pulses = s.params.Pulses
	for _, d := range rec.Dropped {
		if !d {
			s.stats.Delivered++
		}
	}
	s.snapshot(StageRaw, s.rawBits(), 0)
	s.phase = Transmitted
	s.log.Debug().
		Int("pulses", s.stats.Pulses).
		Int("delivered", s.stats.Delivered).
		Msg("quantum exchange complete")
	return nil
}

// Sift announces the variant's public sifting metadata and Bob's drop
// record, keeps the positions the variant's mask selects, and binarizes
// qudit symbols.
func (s *Session) Sift() error {
	if err := s.requirePhase(Transmitted); err != nil {
		return err
	}
	if err := s.announceSettings(); err != nil {
		return err
	}
	mask := s.params.Variant.SiftMask(s.rec)
	var aliceSyms, bobSyms []int
	for i, keep := range mask {
		if keep {
			aliceSyms = append(aliceSyms, s.rec.AliceSymbols[i])
			bobSyms = append(bobSyms, s.rec.BobSymbols[i])
		}
	}
	alice, bob, err := s.binarize(aliceSyms, bobSyms)
	if err != nil {
		return err
	}
	s.alice, s.bob = alice, bob
	s.stats.SiftedBits = alice.Size()
	s.phase = Sifted
	s.log.Debug().Int("sifted_bits", s.stats.SiftedBits).Msg("sifting complete")
	return nil
}

// EstimateError sacrifices a random subset of the sifted key to measure the
// error rate, then runs the variant's security check. A failed check moves
// the session to Aborted with a result, not an error.
func (s *Session) EstimateError() error {
	if err := s.requirePhase(Sifted); err != nil {
		return err
	}
	n := s.alice.Size()
	k := int(float64(n) * s.params.SampleProportion)
	if n == 0 || k == 0 {
		return fmt.Errorf("%w: %d sifted bits leave no error sample", qkderr.ErrInsufficientSiftedBits, n)
	}

	// Alice announces a seed and her bits at the seeded-shuffle sample
	// positions; Bob derives the same positions and compares.
	seed := qrand.Bytes(s.src, 32)
	mask := sampleMask(n, k, seed)
	var got bitAnnouncement
	err := s.an.aliceAnnounce(&bitAnnouncement{Bits: s.alice.Select(mask), Seed: seed}, &got)
	if err != nil {
		return err
	}
	bobSample := s.bob.Select(sampleMask(n, k, got.Seed))
	diff := got.Bits.XOr(bobSample)
	qber := float64(diff.CountOnes()) / float64(diff.Size())
	var qmsg qberAnnouncement
	if err := s.an.bobAnnounce(&qberAnnouncement{QBER: qber}, &qmsg); err != nil {
		return err
	}
	s.qber = qmsg.QBER
	s.sampled = k
	s.stats.SampledBits = k
	s.stats.QBER = s.qber
	s.stats.DisclosedBits += k

	// Sampled positions are public now; drop them from both keys.
	unsampled := invert(mask)
	s.alice = s.alice.Select(unsampled)
	s.bob = s.bob.Select(unsampled)
	s.snapshot(StageSifted, s.alice, s.qber)

	s.verdict = s.params.Variant.Check(s.rec, s.qber, s.params)
	s.stats.SValue = s.verdict.SValue
	if !s.verdict.Secure {
		s.abort()
		return nil
	}
	s.phase = ErrorEstimated
	s.log.Debug().Float64("qber", s.qber).Float64("s_value", s.verdict.SValue).Msg("error estimation passed")
	return nil
}

// Reconcile corrects the residual errors between the two keys with winnow
// syndrome exchange.
func (s *Session) Reconcile() error {
	if err := s.requirePhase(ErrorEstimated); err != nil {
		return err
	}
	w := winnower{an: s.an, src: s.src, iters: s.params.WinnowIters}
	alice, bob, err := w.reconcile(s.alice, s.bob, &s.stats)
	if err != nil {
		return err
	}
	s.alice, s.bob = alice, bob
	s.stats.ReconciledBits = alice.Size()
	s.snapshot(StageReconciled, s.alice, s.qber)
	s.phase = Reconciled
	s.log.Debug().Int("reconciled_bits", s.stats.ReconciledBits).Msg("reconciliation complete")
	return nil
}

// Amplify extracts the final key. The output is exactly Params.KeyLength
// bits or the session fails with ErrInsufficientSiftedBits.
func (s *Session) Amplify() error {
	if err := s.requirePhase(Reconciled); err != nil {
		return err
	}
	a := amplifier{an: s.an, src: s.src}
	aKey, bKey, err := a.amplify(s.alice, s.bob, s.params.KeyLength, s.qber, s.sampled, s.params.Epsilon)
	if err != nil {
		return err
	}
	if !aKey.Equal(bKey) {
		return fmt.Errorf("final keys disagree after reconciliation; error rate exceeded the correction schedule")
	}
	ratio := 0.0
	if s.stats.ReconciledBits > 0 {
		ratio = float64(aKey.Size()) / float64(s.stats.ReconciledBits)
	}
	s.result = &Result{
		FinalKey:         aKey,
		QBER:             s.qber,
		SValue:           s.verdict.SValue,
		IsSecure:         true,
		LeakedBits:       s.stats.DisclosedBits,
		CompressionRatio: ratio,
		Stats:            s.stats,
	}
	s.alice, s.bob = aKey, bKey
	s.snapshot(StageFinal, aKey, s.qber)
	s.phase = Amplified
	s.log.Info().
		Int("key_bits", aKey.Size()).
		Float64("qber", s.qber).
		Float64("compression", ratio).
		Msg("session complete")
	return nil
}

func (s *Session) abort() {
	s.result = &Result{
		QBER:       s.qber,
		SValue:     s.verdict.SValue,
		IsSecure:   false,
		LeakedBits: s.stats.DisclosedBits,
		Stats:      s.stats,
	}
	s.phase = Aborted
	s.log.Warn().
		Float64("qber", s.qber).
		Float64("s_value", s.verdict.SValue).
		Msg("security check failed, session aborted")
}

func (s *Session) requirePhase(want Phase) error {
	if s.phase == Amplified || s.phase == Aborted {
		return fmt.Errorf("%w: session is %s", qkderr.ErrSessionTerminal, s.phase)
	}
	if s.phase != want {
		return fmt.Errorf("%w: session is %s, not %s", qkderr.ErrPhaseOrder, s.phase, want)
	}
	return nil
}

func (s *Session) snapshot(st Stage, bits bitarray.Dense, qber float64) {
	// The trail owns its bits: later phases shuffle the live key in place.
	km := KeyMaterial{
		Stage:      st,
		Bits:       bitarray.NewDense(bits.Data(), bits.Size()),
		QBER:       qber,
		LeakedBits: float64(s.stats.DisclosedBits),
	}
	if st == StageRaw && s.rec != nil {
		match := bitarray.Empty()
		for _, keep := range s.params.Variant.SiftMask(s.rec) {
			match.AppendBit(keep)
		}
		km.BasisMatch = match
	}
	s.trail = append(s.trail, km)
}

// rawBits renders Alice's raw symbols as a bit string for the audit trail.
// Qudit symbols exceed one bit, so qudit sessions record no raw bit string.
func (s *Session) rawBits() bitarray.Dense {
	if s.params.Dimension != 2 {
		return bitarray.Empty()
	}
	raw := bitarray.Empty()
	for _, sym := range s.rec.AliceSymbols {
		raw.AppendBit(sym == 1)
	}
	return raw
}

// announceSettings publishes the variant's public sifting metadata over the
// classical channel: whatever settings each party may disclose, Bob's drop
// record, and his conclusiveness mask where detection is probabilistic.
// Binary settings travel as a packed bit string; wider setting alphabets as
// varints.
func (s *Session) announceSettings() error {
	pub := s.params.Variant.Disclose(s.rec)
	toMsg := func(settings []int, dropped, conclusive []bool) *basisAnnouncement {
		msg := &basisAnnouncement{}
		binary := true
		for _, v := range settings {
			if v > 1 {
				binary = false
				break
			}
		}
		if binary {
			for _, v := range settings {
				msg.Bases.AppendBit(v == 1)
			}
		} else {
			msg.Settings = settings
		}
		for _, d := range dropped {
			msg.Dropped.AppendBit(d)
		}
		for _, c := range conclusive {
			msg.Conclusive.AppendBit(c)
		}
		return msg
	}
	var got basisAnnouncement
	if err := s.an.bobAnnounce(toMsg(pub.Bob, s.rec.Dropped, pub.Conclusive), &got); err != nil {
		return err
	}
	return s.an.aliceAnnounce(toMsg(pub.Alice, nil, nil), &got)
}

// binarize turns sifted symbols into key bits. Qubit symbols are already
// bits. For dimension d, each party keeps k = floor(log2 d) bits per symbol:
// Alice announces the positions where her symbol overflows 2^k, both parties
// discard them, and residual mismatches are left for reconciliation.
func (s *Session) binarize(aliceSyms, bobSyms []int) (bitarray.Dense, bitarray.Dense, error) {
	alice, bob := bitarray.Empty(), bitarray.Empty()
	if s.params.Dimension == 2 {
		for i := range aliceSyms {
			alice.AppendBit(aliceSyms[i] == 1)
			bob.AppendBit(bobSyms[i] == 1)
		}
		return alice, bob, nil
	}

	k := 0
	for 1<<(k+1) <= s.params.Dimension {
		k++
	}
	limit := 1 << k
	keep := bitarray.Empty()
	for _, sym := range aliceSyms {
		keep.AppendBit(sym < limit)
	}
	var got bitAnnouncement
	if err := s.an.aliceAnnounce(&bitAnnouncement{Bits: keep}, &got); err != nil {
		return bitarray.Empty(), bitarray.Empty(), err
	}
	for i := range aliceSyms {
		if !got.Bits.Get(i) {
			continue
		}
		for j := k - 1; j >= 0; j-- {
			alice.AppendBit((aliceSyms[i]>>j)&1 == 1)
			bob.AppendBit(((bobSyms[i]%limit)>>j)&1 == 1)
		}
	}
	return alice, bob, nil
}

// sampleMask builds a deterministic n-bit mask with k set bits, permuted by
// the seeded shuffle both parties share.
func sampleMask(n, k int, seed []byte) bitarray.Dense {
	mask := bitarray.Empty()
	for i := 0; i < n; i++ {
		mask.AppendBit(i < k)
	}
	var key [32]byte
	copy(key[:], seed)
	mask.Shuffle(qrand.Seeded(key))
	return mask
}

func invert(mask bitarray.Dense) bitarray.Dense {
	r := bitarray.Empty()
	for i := 0; i < mask.Size(); i++ {
		r.AppendBit(!mask.Get(i))
	}
	return r
}
