package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rbright/livesub/internal/audio"
	"github.com/rbright/livesub/internal/domain"
)

// DeepgramConfig controls the Deepgram live-streaming connection.
type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

// DefaultDeepgramBaseURL is the hosted Deepgram API.
const DefaultDeepgramBaseURL = "https://api.deepgram.com/v1"

// ErrAlreadyStarted is returned by Start while a stream is running.
var ErrAlreadyStarted = errors.New("recognizer already started")

// Deepgram streams audio to Deepgram's /listen websocket.
type Deepgram struct {
	cfg    DeepgramConfig
	handle audio.Handle
	logger *slog.Logger
	dialer *websocket.Dialer

	events chan Event

	mu         sync.Mutex
	current    *stream
	delivering *stream
	nextSeq    int
	audioLost  bool
}

// NewDeepgramFactory returns a Factory producing Deepgram adapters.
func NewDeepgramFactory(cfg DeepgramConfig) Factory {
	return func(handle audio.Handle, logger *slog.Logger) Recognizer {
		return NewDeepgram(cfg, handle, logger)
	}
}

// NewDeepgram attaches a Deepgram adapter to handle.
func NewDeepgram(cfg DeepgramConfig, handle audio.Handle, logger *slog.Logger) *Deepgram {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = DefaultDeepgramBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deepgram{
		cfg:    cfg,
		handle: handle,
		logger: logger,
		dialer: websocket.DefaultDialer,
		events: make(chan Event, 64),
	}
}

// Events implements Recognizer.
func (d *Deepgram) Events() <-chan Event {
	return d.events
}

// Start implements Recognizer.
func (d *Deepgram) Start(ctx context.Context, cfg Config) error {
	d.mu.Lock()
	if d.current != nil {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	if d.audioLost {
		d.mu.Unlock()
		return &Error{Code: CodeAudioCapture, Err: errors.New("audio handle closed")}
	}
	d.mu.Unlock()

	if strings.TrimSpace(d.cfg.APIKey) == "" {
		return &Error{Code: CodeServiceNotAllowed, Err: errors.New("deepgram api key is not configured")}
	}

	wsURL, err := buildListenURL(d.cfg, cfg)
	if err != nil {
		return &Error{Code: CodeNetwork, Err: err}
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.cfg.APIKey)

	conn, resp, err := d.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &Error{Code: CodeNotAllowed, Err: fmt.Errorf("deepgram handshake: http %d", resp.StatusCode)}
		}
		if resp != nil && resp.StatusCode == http.StatusBadRequest {
			return &Error{Code: CodeLanguage, Err: fmt.Errorf("deepgram rejected stream options for %q", cfg.Language)}
		}
		return &Error{Code: CodeNetwork, Err: fmt.Errorf("connect deepgram websocket: %w", err)}
	}

	s := &stream{
		owner:  d,
		conn:   conn,
		cfg:    cfg,
		stopCh:    make(chan struct{}),
		abandoned: make(chan struct{}),
		done:      make(chan struct{}),
	}

	d.mu.Lock()
	d.current = s
	d.mu.Unlock()

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go s.finish()
	return nil
}

// Stop implements Recognizer. No End event is delivered for a requested stop,
// and terminal events still waiting for a reader are discarded.
func (d *Deepgram) Stop() error {
	d.mu.Lock()
	s, pending := d.current, d.delivering
	d.mu.Unlock()
	if pending != nil {
		pending.abandon()
	}
	if s == nil {
		return nil
	}
	s.requestStop(true)
	<-s.done
	return nil
}

func (d *Deepgram) emit(s *stream, ev Event) {
	select {
	case d.events <- ev:
	case <-s.stopCh:
	}
}

// segment returns the sequence index of the utterance currently being recognized.
func (d *Deepgram) segment() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextSeq
}

func (d *Deepgram) finalizeSegment() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.nextSeq
	d.nextSeq++
	return seq
}

type stream struct {
	owner *Deepgram
	conn  *websocket.Conn
	cfg   Config

	writeMu sync.Mutex

	stopCh      chan struct{}
	stopOnce    sync.Once
	abandoned   chan struct{}
	abandonOnce sync.Once
	done        chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	requested bool
	endCode   ErrorCode
	endMsg    string
	silent    bool
}

func (s *stream) requestStop(requested bool) {
	s.mu.Lock()
	if requested {
		s.requested = true
	}
	s.mu.Unlock()
	if requested {
		s.abandon()
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.conn.Close()
	})
}

func (s *stream) abandon() {
	s.abandonOnce.Do(func() { close(s.abandoned) })
}

// fail records why the stream ended. The first reason wins.
func (s *stream) fail(code ErrorCode, message string, silent bool) {
	s.mu.Lock()
	if s.endCode == "" {
		s.endCode = code
		s.endMsg = message
		s.silent = silent
	}
	s.mu.Unlock()
}

func (s *stream) finish() {
	s.wg.Wait()
	s.requestStop(false)

	d := s.owner
	s.mu.Lock()
	requested, code, msg, silent := s.requested, s.endCode, s.endMsg, s.silent
	s.mu.Unlock()

	var terminal []Event
	if !requested {
		if code != "" {
			terminal = append(terminal, Event{Kind: EventError, Code: code, Message: msg})
		}
		if !silent {
			terminal = append(terminal, Event{Kind: EventEnd})
		}
	}

	// current is cleared first so Start is accepted as soon as End is read.
	d.mu.Lock()
	if d.current == s {
		d.current = nil
	}
	if len(terminal) > 0 {
		d.delivering = s
	}
	d.mu.Unlock()

	for _, ev := range terminal {
		if !s.deliver(ev) {
			d.logger.Debug("terminal recognizer event discarded after stop", "kind", ev.Kind, "code", ev.Code)
			break
		}
	}

	d.mu.Lock()
	if d.delivering == s {
		d.delivering = nil
	}
	d.mu.Unlock()
	close(s.done)
}

// deliver blocks until the session reads ev or the recognizer is stopped.
func (s *stream) deliver(ev Event) bool {
	select {
	case s.owner.events <- ev:
		return true
	case <-s.abandoned:
		return false
	}
}

func (s *stream) writeLoop() {
	defer s.wg.Done()
	chunks := s.owner.handle.Chunks()
	for {
		select {
		case <-s.stopCh:
			return
		case chunk, ok := <-chunks:
			if !ok {
				s.owner.mu.Lock()
				s.owner.audioLost = true
				s.owner.mu.Unlock()
				s.fail(CodeAudioCapture, "audio handle closed", true)
				s.requestStop(false)
				return
			}
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
	}
}

// write serializes writers; gorilla connections allow one at a time.
func (s *stream) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *stream) closeStream() {
	_ = s.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

func (s *stream) readLoop() {
	defer s.wg.Done()
	defer s.requestStop(false)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.classifyReadError(err)
			return
		}

		var response deepgramResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(firstNonEmpty(response.Description, response.Message))
			s.fail(codeForMessage(message), message, false)
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		d := s.owner
		if response.IsFinal {
			seq := d.finalizeSegment()
			d.emit(s, Event{Kind: EventResult, Fragments: []domain.Fragment{{Text: transcript, IsFinal: true, Sequence: seq}}})
			if !s.cfg.Continuous && response.SpeechFinal {
				s.closeStream()
			}
			continue
		}
		if s.cfg.InterimResults {
			d.emit(s, Event{Kind: EventResult, Fragments: []domain.Fragment{{Text: transcript, Sequence: d.segment()}}})
		}
	}
}

func (s *stream) classifyReadError(err error) {
	select {
	case <-s.stopCh:
		return
	default:
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
		s.fail(codeForMessage(closeErr.Text), closeErr.Text, false)
		return
	}
	s.fail(CodeNetwork, err.Error(), false)
}

// codeForMessage maps Deepgram error text to a recognizer code.
func codeForMessage(message string) ErrorCode {
	upper := strings.ToUpper(message)
	switch {
	case strings.Contains(upper, "NET-0001"), strings.Contains(upper, "NET0001"):
		return CodeNoSpeech
	case strings.Contains(upper, "INSUFFICIENT_PERMISSIONS"), strings.Contains(upper, "INVALID_AUTH"):
		return CodeNotAllowed
	default:
		return CodeNetwork
	}
}

type deepgramResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response deepgramResponse) string {
	if len(response.Channel.Alternatives) > 0 {
		return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// endpointingMillis maps sensitivity in [0,1] to Deepgram's silence window:
// higher sensitivity finalizes sooner.
func endpointingMillis(sensitivity float64) int {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 1 {
		sensitivity = 1
	}
	return 100 + int((1-sensitivity)*900)
}

func buildListenURL(providerCfg DeepgramConfig, cfg Config) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = DefaultDeepgramBaseURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", strconv.Itoa(audio.SampleRate))
	query.Set("channels", "1")
	query.Set("interim_results", strconv.FormatBool(cfg.InterimResults))
	query.Set("smart_format", strconv.FormatBool(providerCfg.SmartFormat))
	query.Set("endpointing", strconv.Itoa(endpointingMillis(cfg.Sensitivity)))
	if cfg.Language != "" {
		query.Set("language", cfg.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
