// qkdbench runs one key-agreement session for each entry in the cartesian
// product of a collection of tuning parameters, e.g. channel noise level and
// pulse count, and outputs a CSV of relevant statistics for each different
// combination, e.g. empirical QBER and final key length.
package main

import (
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/qtessera/qkd/channel"
	"github.com/qtessera/qkd/qrand"
	"github.com/qtessera/qkd/protocol"
)

var (
	variants = flag.StringSlice("variant", []string{"bb84"},
		"The protocol variants to run: bb84, b92, e91, sarg04.")
	keyLengths = flag.IntSlice("keyLength", []int{64},
		"The exact final key lengths to request, in bits.")
	dimensions = flag.IntSlice("dimension", []int{2},
		"The per-unit dimensions: 2 for qubits, an odd prime for qudits.")
	pulses = flag.IntSlice("pulses", []int{0},
		"The raw pulse counts per session. 0 derives a count from the key length.")
	losses = flag.Float64Slice("loss", []float64{0},
		"The per-unit channel erasure probabilities.")
	noises = flag.StringSlice("noise", []string{"none"},
		"The channel noise models: none, depolarizing, dephasing, amplitude-damping.")
	noiseLevels = flag.Float64Slice("noiseLevel", []float64{0},
		"The channel noise levels, in [0, 1].")
	meanPhotons = flag.Float64Slice("meanPhotons", []float64{0},
		"The mean photons per pulse. 0 disables photon-number statistics.")
	seed = flag.Int("seed", 0,
		"Seed for deterministic sessions. 0 uses the system CSPRNG.")
)

var (
	inputs  = []string{"variant", "keyLength", "dimension", "pulses", "loss", "noise", "noiseLevel", "meanPhotons"}
	columns = []string{"Variant", "KeyLength", "Dimension", "Pulses", "Loss", "Noise",
		"NoiseLevel", "MeanPhotons", "RawPulses", "SiftedBits", "QBER", "SValue",
		"ReconciledBits", "DisclosedBits", "KeyBits", "Messages", "ClassicalBytes",
		"Secure", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Variant     string
	KeyLength   int
	Dimension   int
	Pulses      int
	Loss        float64
	Noise       string
	NoiseLevel  float64
	MeanPhotons float64

	// Fields corresponding to experiment results
	RawPulses      int
	SiftedBits     int
	QBER           float64
	SValue         float64
	ReconciledBits int
	DisclosedBits  int
	KeyBits        int
	Messages       int
	ClassicalBytes int
	Secure         bool
	Succeeded      bool
}

func main() {
	flag.Parse()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	os.Stdout.WriteString(header() + "\n")
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp, log))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Variant:     args[inpIndex("variant")].(string),
			KeyLength:   args[inpIndex("keyLength")].(int),
			Dimension:   args[inpIndex("dimension")].(int),
			Pulses:      args[inpIndex("pulses")].(int),
			Loss:        args[inpIndex("loss")].(float64),
			Noise:       args[inpIndex("noise")].(string),
			NoiseLevel:  args[inpIndex("noiseLevel")].(float64),
			MeanPhotons: args[inpIndex("meanPhotons")].(float64),
		}
		if err := bench(exp, log); err != nil {
			log.Warn().Err(err).Interface("experiment", exp).Msg("session failed")
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatal().Err(err).Msg("BUG: could not fill in line template")
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment, log zerolog.Logger) error {
	variant, err := parseVariant(exp.Variant)
	if err != nil {
		return err
	}
	noise, err := channel.ParseNoiseModel(exp.Noise)
	if err != nil {
		return err
	}
	src := qrand.System()
	if *seed != 0 {
		var key [32]byte
		key[0] = byte(*seed)
		key[1] = byte(*seed >> 8)
		key[2] = byte(*seed >> 16)
		key[3] = byte(*seed >> 24)
		src = qrand.Seeded(key)
	}
	res, err := protocol.Evaluate(protocol.Params{
		Variant:   variant,
		KeyLength: exp.KeyLength,
		Dimension: exp.Dimension,
		Pulses:    exp.Pulses,
	}, channel.Config{
		Loss:        exp.Loss,
		Noise:       noise,
		NoiseLevel:  exp.NoiseLevel,
		MeanPhotons: exp.MeanPhotons,
	}, src, log)
	if err != nil {
		return err
	}
	exp.RawPulses = res.Stats.Pulses
	exp.SiftedBits = res.Stats.SiftedBits
	exp.QBER = res.QBER
	exp.SValue = res.SValue
	exp.ReconciledBits = res.Stats.ReconciledBits
	exp.DisclosedBits = res.Stats.DisclosedBits
	exp.KeyBits = res.FinalKey.Size()
	exp.Messages = res.Stats.MessagesSent
	exp.ClassicalBytes = res.Stats.BytesSent
	exp.Secure = res.IsSecure
	exp.Succeeded = true
	return nil
}

func parseVariant(name string) (protocol.Variant, error) {
	switch name {
	case "bb84":
		return protocol.BB84{}, nil
	case "b92":
		return protocol.B92{}, nil
	case "e91":
		return protocol.E91{}, nil
	case "sarg04":
		return protocol.SARG04{}, nil
	}
	return nil, fmt.Errorf("unknown variant %q", name)
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string, log zerolog.Logger) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetStringSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatal().Str("input", name).Msg("unknown type for input")
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
