// Command sonify-render renders a time-stretched WAV file offline using
// one of the stretch processors.
//
// Usage:
//
//	sonify-render [flags] -out stretched.wav
//
// Without -in it renders a generated sine, which is handy for checking
// an algorithm's sound quickly.
//
// Examples:
//
//	sonify-render -in take.wav -algo paul -factor 8 -out take8x.wav
//	sonify-render -algo spectral -factor 20 -out drone.wav
//	sonify-render -in take.wav -algo granular -grain 1024 -scatter 0.2 -out out.wav
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-sonify/dsp/signal"
	"github.com/cwbudde/algo-sonify/stretch"
)

const renderBlock = 4096

type processor interface {
	Load(samples []float64) error
	Play() error
	Render(dst []float32)
	Events() <-chan stretch.Event
}

func main() {
	in := flag.String("in", "", "input WAV file (a sine is generated when empty)")
	out := flag.String("out", "", "output WAV file (required)")
	algo := flag.String("algo", "paul", "stretch algorithm: resample, granular, spectral or paul")
	factor := flag.Float64("factor", 8, "stretch factor")
	rate := flag.Int("rate", 44100, "sample rate for generated input")
	windowSize := flag.Int("window", 4096, "analysis window size (spectral, paul)")
	overlap := flag.Float64("overlap", -1, "analysis overlap in [0,1) (granular, spectral)")
	grain := flag.Int("grain", 2048, "grain size in samples (granular)")
	scatter := flag.Float64("scatter", 0.1, "grain start jitter fraction (granular)")
	seed := flag.Int64("seed", 1, "random seed for jitter and phase randomization")
	demoFreq := flag.Float64("demo-freq", 440, "generated sine frequency in Hz")
	demoSeconds := flag.Float64("demo-seconds", 10, "generated sine duration in seconds")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sonify-render [flags] -out file.wav\n\n")
		fmt.Fprintf(os.Stderr, "Renders a time-stretched WAV offline.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *out == "" {
		fmt.Fprintf(os.Stderr, "error: -out is required\n")
		flag.Usage()
		os.Exit(1)
	}

	var (
		src        []float64
		sampleRate float64
		err        error
	)

	if *in != "" {
		src, sampleRate, err = readWAV(*in)
	} else {
		sampleRate = float64(*rate)
		src, err = generateDemo(sampleRate, *demoFreq, *demoSeconds)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	opts := []stretch.Option{
		stretch.WithStretchFactor(*factor),
		stretch.WithWindowSize(*windowSize),
		stretch.WithGrainSize(*grain),
		stretch.WithScatter(*scatter),
		stretch.WithSeed(*seed),
	}
	if *overlap >= 0 {
		opts = append(opts, stretch.WithOverlap(*overlap))
	}

	proc, err := newProcessor(strings.ToLower(*algo), sampleRate, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rendered, err := renderAll(proc, src, *factor)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := writeWAV(*out, rendered, int(sampleRate)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s: %.2f s in, %.2f s out (%s, factor %g)\n",
		*out,
		float64(len(src))/sampleRate,
		float64(len(rendered))/sampleRate,
		*algo,
		*factor,
	)
}

func newProcessor(algo string, sampleRate float64, opts []stretch.Option) (processor, error) {
	switch algo {
	case "resample":
		return stretch.NewResample(sampleRate, opts...)
	case "granular":
		return stretch.NewGranular(sampleRate, opts...)
	case "spectral":
		return stretch.NewSpectral(sampleRate, opts...)
	case "paul":
		return stretch.NewPaul(sampleRate, opts...)
	default:
		return nil, fmt.Errorf("unknown algorithm %q (want resample, granular, spectral or paul)", algo)
	}
}

func generateDemo(sampleRate, freqHz, seconds float64) ([]float64, error) {
	gen, err := signal.NewGenerator(sampleRate)
	if err != nil {
		return nil, err
	}

	samples := int(seconds * sampleRate)

	return gen.Sine(freqHz, 0.8, samples)
}

// renderAll drives the processor's callback until the ended event,
// trimming the trailing silence of the final block.
func renderAll(proc processor, src []float64, factor float64) ([]float64, error) {
	if err := proc.Load(src); err != nil {
		return nil, err
	}

	if err := proc.Play(); err != nil {
		return nil, err
	}

	// Generous bound: stretched duration plus slack for windowing tails.
	maxOut := int(float64(len(src))*factor) + 1<<20

	out := make([]float64, 0, int(float64(len(src))*factor))
	buf := make([]float32, renderBlock)

	for len(out) < maxOut {
		proc.Render(buf)

		for _, v := range buf {
			out = append(out, float64(v))
		}

		if ended(proc) {
			return trimTrailingSilence(out), nil
		}
	}

	return nil, fmt.Errorf("no ended event within %d samples", maxOut)
}

func ended(proc processor) bool {
	for {
		select {
		case e := <-proc.Events():
			if e.Type == stretch.EventEnded {
				return true
			}
		default:
			return false
		}
	}
}

func trimTrailingSilence(out []float64) []float64 {
	end := len(out)
	for end > 0 && out[end-1] == 0 {
		end--
	}

	return out[:end]
}

func readWAV(path string) ([]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("decode %s: missing format", path)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}

	if bitDepth <= 0 {
		bitDepth = 16
	}

	scale := 1 / float64(int(1)<<(bitDepth-1))
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels

	// Mix down to mono.
	src := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}

		src[i] = sum / float64(channels) * scale
	}

	return src, float64(buf.Format.SampleRate), nil
}

func writeWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	const bitDepth = 16

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)

	data := make([]int, len(samples))
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}

		data[i] = int(math.Round(v * 32767))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	return enc.Close()
}
