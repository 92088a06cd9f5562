package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	minDecibels         = -100.0
	maxDecibels         = -30.0
	smoothingTimeConst  = 0.8
	pcmReadBufferFrames = 1024
)

// Analyser turns a live s16le PCM stream into byte frequency data using the
// same scaling as a Web Audio AnalyserNode: Blackman window, temporal
// smoothing and a -100..-30 dB range mapped onto 0..255.
type Analyser struct {
	fftSize  int
	channels int
	window   []float64
	fft      *fourier.FFT
	samples  []float64
	coeffs   []complex128

	mu       sync.Mutex
	ring     []float64
	pos      int
	smoothed []float64
	closed   bool
}

// NewAnalyser starts reading PCM from r. The reader goroutine exits when r
// returns an error, which happens once the capture track is stopped.
func NewAnalyser(r io.Reader, channels int, fftSize int) (*Analyser, error) {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("fft size %d must be a power of two >= 32", fftSize)
	}
	if channels <= 0 {
		channels = 1
	}

	a := &Analyser{
		fftSize:  fftSize,
		channels: channels,
		window:   make([]float64, fftSize),
		fft:      fourier.NewFFT(fftSize),
		samples:  make([]float64, fftSize),
		coeffs:   make([]complex128, fftSize/2+1),
		ring:     make([]float64, fftSize),
		smoothed: make([]float64, fftSize/2),
	}
	for n := 0; n < fftSize; n++ {
		phase := 2 * math.Pi * float64(n) / float64(fftSize)
		a.window[n] = 0.42 - 0.5*math.Cos(phase) + 0.08*math.Cos(2*phase)
	}

	go a.read(r)
	return a, nil
}

func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		clear(dst)
		return
	}

	for n := 0; n < a.fftSize; n++ {
		a.samples[n] = a.ring[(a.pos+n)%a.fftSize] * a.window[n]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.samples)

	bins := min(len(dst), len(a.smoothed))
	for k := 0; k < bins; k++ {
		magnitude := cmplx.Abs(a.coeffs[k]) / float64(a.fftSize)
		a.smoothed[k] = smoothingTimeConst*a.smoothed[k] + (1-smoothingTimeConst)*magnitude
		dst[k] = scaleDecibels(a.smoothed[k])
	}
}

func (a *Analyser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *Analyser) read(r io.Reader) {
	frameBytes := 2 * a.channels
	buf := make([]byte, pcmReadBufferFrames*frameBytes)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%frameBytes
			a.push(data[:whole])
			carry = append(carry[:0], data[whole:]...)
		}
		if err != nil {
			return
		}
	}
}

func (a *Analyser) push(pcm []byte) {
	frameBytes := 2 * a.channels

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for offset := 0; offset+frameBytes <= len(pcm); offset += frameBytes {
		var sum float64
		for ch := 0; ch < a.channels; ch++ {
			sample := int16(binary.LittleEndian.Uint16(pcm[offset+2*ch:]))
			sum += float64(sample) / 32768
		}
		a.ring[a.pos] = sum / float64(a.channels)
		a.pos = (a.pos + 1) % a.fftSize
	}
}

func scaleDecibels(magnitude float64) byte {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return byte(scaled)
	}
}
