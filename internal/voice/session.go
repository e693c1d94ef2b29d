// Package voice implements the client-side conversation loop: listening with
// silence detection, turn submission, spoken replies, continuous re-arming and
// proactive interruptions.
package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/internal/speech"
	"github.com/lewisedginton/organizer/pkg/logger"
)

const (
	DefaultSilenceWindow = 2500 * time.Millisecond
	DefaultRearmDelay    = 400 * time.Millisecond
	DefaultPollDelay     = 30 * time.Second
	DefaultPollInterval  = 120 * time.Second

	minAutoSubmitLen = 3
)

// Recognizer controls speech capture. Transcripts are delivered through
// Session.OnPartial. Methods must not call back into the Session.
type Recognizer interface {
	Start() error
	Abort()
}

// Assistant submits turns and runs proactive polls.
type Assistant interface {
	Submit(ctx context.Context, message string, history []conversation.Turn) (conversation.Reply, error)
	Poll(ctx context.Context) (proactive.Result, error)
}

// Speaker plays text. Speak may block while audio is prepared and calls done
// when playback has finished; done may be called from any goroutine but not
// from Stop.
type Speaker interface {
	Speak(ctx context.Context, text string, done func()) error
	Stop()
}

// Config holds the Session's collaborators and timings.
type Config struct {
	Recognizer Recognizer
	Assistant  Assistant
	Speaker    Speaker
	Fallback   Speaker
	Clock      Clock
	Logger     logger.Logger

	Continuous    bool
	SilenceWindow time.Duration
	RearmDelay    time.Duration
	PollDelay     time.Duration
	PollInterval  time.Duration
	EventBuffer   int
}

// Session is one voice conversation. All methods are safe for concurrent use.
type Session struct {
	recognizer Recognizer
	assistant  Assistant
	speaker    Speaker
	fallback   Speaker
	clock      Clock
	log        logger.Logger

	silenceWindow time.Duration
	rearmDelay    time.Duration
	pollInterval  time.Duration

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	transcript string
	history    []conversation.Turn
	continuous bool
	closed     bool

	silence      Timer
	silenceGen   uint64
	rearm        Timer
	rearmGen     uint64
	poll         Timer
	turnGen      uint64
	cancelTurn   context.CancelFunc
	playGen      uint64
	cancelPlay   context.CancelFunc
	pollInFlight bool
}

// New creates a Session in Idle and schedules the first proactive poll.
func New(cfg Config) (*Session, error) {
	if cfg.Recognizer == nil {
		return nil, errors.New("recognizer is required")
	}
	if cfg.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if cfg.Speaker == nil {
		return nil, errors.New("speaker is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.RearmDelay <= 0 {
		cfg.RearmDelay = DefaultRearmDelay
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		recognizer:    cfg.Recognizer,
		assistant:     cfg.Assistant,
		speaker:       cfg.Speaker,
		fallback:      cfg.Fallback,
		clock:         cfg.Clock,
		log:           cfg.Logger,
		silenceWindow: cfg.SilenceWindow,
		rearmDelay:    cfg.RearmDelay,
		pollInterval:  cfg.PollInterval,
		events:        make(chan Event, cfg.EventBuffer),
		ctx:           ctx,
		cancel:        cancel,
		continuous:    cfg.Continuous,
	}

	s.mu.Lock()
	s.poll = s.clock.AfterFunc(cfg.PollDelay, s.onPoll)
	s.mu.Unlock()
	return s, nil
}

// Events returns the channel events are published on. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the turns exchanged so far.
func (s *Session) History() []conversation.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Turn(nil), s.history...)
}

// SetContinuous toggles automatic re-arming after a reply has been spoken.
func (s *Session) SetContinuous(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuous = enabled
	if !enabled {
		s.stopRearmLocked()
	}
}

// Start begins listening. It interrupts playback; it is ignored while a turn
// is processing or capture is already running.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.startListeningLocked()
}

// OnPartial records an interim transcript and restarts the silence window.
func (s *Session) OnPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Listening {
		return
	}
	s.transcript = text
	s.publishLocked(Event{Kind: Transcript, Text: text})

	s.stopSilenceLocked()
	s.silenceGen++
	gen := s.silenceGen
	s.silence = s.clock.AfterFunc(s.silenceWindow, func() { s.onSilence(gen) })
}

// Stop ends capture, submitting the transcript if there is one.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != Listening {
		return
	}
	text := strings.TrimSpace(s.transcript)
	if text != "" {
		s.submitLocked(text)
		return
	}
	s.stopSilenceLocked()
	s.recognizer.Abort()
	s.transcript = ""
	s.setStateLocked(Idle)
}

// SubmitText submits typed input from any state, superseding whatever the
// session was doing.
func (s *Session) SubmitText(text string) {
	text = strings.TrimSpace(text)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || text == "" {
		return
	}
	s.submitLocked(text)
}

// Close tears the session down: timers, capture, playback and any in-flight
// turn. The events channel is closed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopSilenceLocked()
	s.stopRearmLocked()
	if s.poll != nil {
		s.poll.Stop()
	}
	if s.state == Listening {
		s.recognizer.Abort()
	}
	s.stopPlaybackLocked()
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
	s.cancel()
	s.setStateLocked(Idle)
	s.closed = true
	close(s.events)
}

func (s *Session) startListeningLocked() {
	switch s.state {
	case Listening, Processing:
		return
	case Speaking:
		s.stopPlaybackLocked()
	}
	s.stopRearmLocked()
	s.transcript = ""
	if err := s.recognizer.Start(); err != nil {
		s.log.Warn("Failed to start speech capture", logger.ErrorField(err))
		s.publishLocked(Event{Kind: Error, Text: err.Error()})
		s.setStateLocked(Idle)
		return
	}
	s.setStateLocked(Listening)
}

func (s *Session) onSilence(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.silenceGen || s.state != Listening {
		return
	}
	text := strings.TrimSpace(s.transcript)
	if len([]rune(text)) < minAutoSubmitLen {
		return
	}
	s.submitLocked(text)
}

// submitLocked moves to Processing, cancelling capture, timers, playback and
// any older turn first.
func (s *Session) submitLocked(text string) {
	s.stopSilenceLocked()
	s.stopRearmLocked()
	if s.state == Listening {
		s.recognizer.Abort()
	}
	s.stopPlaybackLocked()
	if s.cancelTurn != nil {
		s.cancelTurn()
	}

	s.transcript = ""
	s.history = append(s.history, conversation.UserTurn(text))
	history := append([]conversation.Turn(nil), s.history...)
	s.setStateLocked(Processing)

	s.turnGen++
	gen := s.turnGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelTurn = cancel

	go func() {
		reply, err := s.assistant.Submit(ctx, text, history)
		s.onReply(gen, reply, err)
	}()
}

func (s *Session) onReply(gen uint64, reply conversation.Reply, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.turnGen || s.state != Processing {
		return
	}
	s.cancelTurn = nil

	if err != nil || strings.TrimSpace(reply.Text) == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		s.log.Warn("Turn failed", logger.ErrorField(err))
		s.publishLocked(Event{Kind: Error, Text: err.Error()})
		s.transcript = ""
		s.setStateLocked(Idle)
		return
	}

	s.history = append(s.history, conversation.AssistantTurn(reply.Text))
	s.publishLocked(Event{Kind: ReplyReceived, Reply: reply, Text: reply.Text})
	s.speakLocked(reply.Text)
}

// speakLocked cancels any previous playback and starts text.
func (s *Session) speakLocked(text string) {
	text = speech.StripMarkdown(text)
	s.stopPlaybackLocked()
	if text == "" {
		s.setStateLocked(Idle)
		return
	}
	s.setStateLocked(Speaking)

	s.playGen++
	gen := s.playGen
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelPlay = cancel
	go s.play(ctx, gen, text)
}

func (s *Session) play(ctx context.Context, gen uint64, text string) {
	var once sync.Once
	done := func() { once.Do(func() { s.onPlaybackEnded(gen) }) }

	err := s.speaker.Speak(ctx, text, done)
	if err == nil || ctx.Err() != nil {
		return
	}

	s.log.Warn("Primary speech failed, using fallback", logger.ErrorField(err))
	s.publish(gen, Event{Kind: Warning, Text: "Voz sintetizada indisponível, usando voz local."})
	if s.fallback == nil {
		done()
		return
	}
	if err := s.fallback.Speak(ctx, text, done); err != nil && ctx.Err() == nil {
		s.log.Warn("Fallback speech failed", logger.ErrorField(err))
		done()
	}
}

func (s *Session) onPlaybackEnded(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.playGen || s.state != Speaking {
		return
	}
	if s.cancelPlay != nil {
		s.cancelPlay()
		s.cancelPlay = nil
	}
	s.setStateLocked(Idle)

	if s.continuous {
		s.rearmGen++
		rgen := s.rearmGen
		s.rearm = s.clock.AfterFunc(s.rearmDelay, func() { s.onRearm(rgen) })
	}
}

func (s *Session) onRearm(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.rearmGen || s.state != Idle {
		return
	}
	s.startListeningLocked()
}

func (s *Session) onPoll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.poll = s.clock.AfterFunc(s.pollInterval, s.onPoll)
	if s.state != Idle || s.pollInFlight {
		s.mu.Unlock()
		return
	}
	s.pollInFlight = true
	ctx := s.ctx
	s.mu.Unlock()

	res, err := s.assistant.Poll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollInFlight = false
	if s.closed {
		return
	}
	if err != nil {
		s.log.Warn("Proactive poll failed", logger.ErrorField(err))
		return
	}
	if !res.HasAlert {
		return
	}

	s.history = append(s.history, conversation.AssistantTurn(AlertTurn(res)))
	s.publishLocked(Event{Kind: ProactiveAlert, Alert: res, Text: res.OpeningLine})
	if s.state == Idle {
		s.speakLocked(res.OpeningLine)
	}
}

// AlertTurn is how a proactive alert is recorded in the conversation.
func AlertTurn(res proactive.Result) string {
	return "[PROACTIVE ALERT: " + res.EventSummary + "] " + res.OpeningLine
}

func (s *Session) stopSilenceLocked() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	s.silenceGen++
}

func (s *Session) stopRearmLocked() {
	if s.rearm != nil {
		s.rearm.Stop()
		s.rearm = nil
	}
	s.rearmGen++
}

func (s *Session) stopPlaybackLocked() {
	if s.cancelPlay == nil && s.state != Speaking {
		return
	}
	if s.cancelPlay != nil {
		s.cancelPlay()
		s.cancelPlay = nil
	}
	s.playGen++
	s.speaker.Stop()
	if s.fallback != nil {
		s.fallback.Stop()
	}
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.log.Debug("Voice state changed", logger.StateField("from", from), logger.StateField("to", to))
	s.publishLocked(Event{Kind: StateChanged, From: from, To: to})
}

// publish sends ev if playback gen is still current.
func (s *Session) publish(gen uint64, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.playGen {
		return
	}
	s.publishLocked(ev)
}

func (s *Session) publishLocked(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("Voice event dropped", logger.IntField("kind", int(ev.Kind)))
	}
}
