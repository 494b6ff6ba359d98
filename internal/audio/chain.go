package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Chain transforms one s16le mono PCM chunk.
type Chain interface {
	Process(chunk []byte) []byte
}

// PassThrough leaves audio untouched.
type PassThrough struct{}

// Process implements Chain.
func (PassThrough) Process(chunk []byte) []byte { return chunk }

// Enhancer applies a second-order highpass followed by a fixed gain.
type Enhancer struct {
	gain float64

	// biquad coefficients, normalized by a0
	b0, b1, b2, a1, a2 float64
	// direct form I history
	x1, x2, y1, y2 float64
}

const (
	DefaultHighpassHz = 80
	DefaultGain       = 1.5
)

// NewEnhancer builds an Enhancer for 16kHz audio. Non-positive values select defaults.
func NewEnhancer(highpassHz float64, gain float64) *Enhancer {
	if highpassHz <= 0 {
		highpassHz = DefaultHighpassHz
	}
	if gain <= 0 {
		gain = DefaultGain
	}

	// RBJ cookbook highpass, Q = 1/sqrt(2)
	w0 := 2 * math.Pi * highpassHz / SampleRate
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2
	a0 := 1 + alpha

	return &Enhancer{
		gain: gain,
		b0:   (1 + cosw) / 2 / a0,
		b1:   -(1 + cosw) / a0,
		b2:   (1 + cosw) / 2 / a0,
		a1:   -2 * cosw / a0,
		a2:   (1 - alpha) / a0,
	}
}

// Process implements Chain. The returned slice is newly allocated.
func (e *Enhancer) Process(chunk []byte) []byte {
	out := make([]byte, len(chunk)&^1)
	for i := 0; i+1 < len(chunk); i += 2 {
		x := float64(int16(binary.LittleEndian.Uint16(chunk[i:])))
		y := e.b0*x + e.b1*e.x1 + e.b2*e.x2 - e.a1*e.y1 - e.a2*e.y2
		e.x2, e.x1 = e.x1, x
		e.y2, e.y1 = e.y1, y

		binary.LittleEndian.PutUint16(out[i:], uint16(clamp16(y*e.gain)))
	}
	return out
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

// NewChain returns the enhancement chain when enhance is set, otherwise PassThrough.
func NewChain(enhance bool, highpassHz, gain float64) Chain {
	if !enhance {
		return PassThrough{}
	}
	return NewEnhancer(highpassHz, gain)
}

// Processed wraps a Handle and runs every chunk through a Chain that can be
// swapped while audio flows.
type Processed struct {
	inner Handle
	out   chan []byte
	once  sync.Once
	done  chan struct{}

	mu    sync.Mutex
	chain Chain
}

// Process returns a Handle whose chunks pass through chain. Stopping it stops
// the wrapped handle.
func Process(inner Handle, chain Chain) *Processed {
	p := &Processed{
		inner: inner,
		out:   make(chan []byte, cap(inner.Chunks())),
		done:  make(chan struct{}),
	}
	p.SetChain(chain)
	go p.run()
	return p
}

// SetChain replaces the chain for every chunk read after the call. A nil
// chain selects PassThrough.
func (p *Processed) SetChain(chain Chain) {
	if chain == nil {
		chain = PassThrough{}
	}
	p.mu.Lock()
	p.chain = chain
	p.mu.Unlock()
}

// Chain returns the chain currently applied.
func (p *Processed) Chain() Chain {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chain
}

func (p *Processed) run() {
	defer close(p.out)
	for chunk := range p.inner.Chunks() {
		select {
		case p.out <- p.Chain().Process(chunk):
		case <-p.done:
			return
		}
	}
}

func (p *Processed) Device() Device        { return p.inner.Device() }
func (p *Processed) Chunks() <-chan []byte { return p.out }

func (p *Processed) Stop() error {
	p.once.Do(func() { close(p.done) })
	return p.inner.Stop()
}
