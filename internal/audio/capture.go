package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// SampleRate is the capture rate every recognizer receives.
	SampleRate = 16000

	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16
)

// Handle is an exclusively owned PCM stream for one source.
type Handle interface {
	Device() Device
	Chunks() <-chan []byte
	Stop() error
}

// Capture streams fixed-size PCM chunks from one Pulse source.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// StartCapture creates and starts a 16kHz mono s16 record stream that lives until
// Stop is called or ctx ends.
func StartCapture(ctx context.Context, selected Device) (*Capture, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := &Capture{
		device: selected,
		client: client,
		chunks: make(chan []byte, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("livesub capture"),
	)
	if err != nil {
		_ = capture.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (c *Capture) Chunks() <-chan []byte {
	return c.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		select {
		case c.chunks <- pending:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// onPCM receives raw Pulse frames and emits chunkSizeBytes slices to c.chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped so Stop's Wait cannot race it.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)
	chunks := make([][]byte, 0, len(c.pending)/chunkSizeBytes)
	for len(c.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, c.pending[:chunkSizeBytes])
		c.pending = c.pending[chunkSizeBytes:]
		chunks = append(chunks, chunk)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
