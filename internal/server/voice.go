package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/orchestrator"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/internal/voice"
	"github.com/lewisedginton/organizer/pkg/logger"
	"github.com/lewisedginton/organizer/pkg/prefixed_uuid"
)

// Client message types.
const (
	msgStart         = "start"
	msgPartial       = "partial"
	msgStop          = "stop"
	msgText          = "text"
	msgPlaybackEnded = "playback_ended"
	msgContinuous    = "continuous"
)

// Server message types.
const (
	msgState        = "state"
	msgListen       = "listen"
	msgAbortListen  = "abort_listen"
	msgAudio        = "audio"
	msgSpeakText    = "speak_text"
	msgStopPlayback = "stop_playback"
	msgReply        = "reply"
	msgWarning      = "warning"
	msgError        = "error"
	msgProactive    = "proactive"
)

// VoiceConfig tunes websocket voice sessions. Zero values use the session
// defaults.
type VoiceConfig struct {
	Continuous     bool
	WriteTimeout   time.Duration
	MaxMessageSize int64
	CheckOrigin    func(r *http.Request) bool
	Clock          voice.Clock
	PollDelay      time.Duration
	PollInterval   time.Duration
}

type clientMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Enabled bool   `json:"enabled,omitempty"`
}

type serverMessage struct {
	Type         string `json:"type"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Text         string `json:"text,omitempty"`
	Mode         string `json:"mode,omitempty"`
	Language     string `json:"language,omitempty"`
	Audio        string `json:"audio,omitempty"`
	EventSummary string `json:"eventSummary,omitempty"`
	OpeningLine  string `json:"openingLine,omitempty"`
}

// peer serializes writes to one websocket and tracks the pending playback.
type peer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	log          logger.Logger

	mu sync.Mutex

	playMu  sync.Mutex
	playing func()
}

func (p *peer) send(msg serverMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := p.conn.WriteJSON(msg); err != nil {
		p.log.Debug("Voice write failed", logger.StringField("type", msg.Type), logger.ErrorField(err))
	}
}

// startPlayback installs done and sends msg unless ctx was cancelled first.
// The session cancels ctx before stopping playback, so a superseded
// utterance never replaces the callback of a newer one.
func (p *peer) startPlayback(ctx context.Context, done func(), msg serverMessage) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	p.playing = done
	p.send(msg)
	return nil
}

// finishPlayback handles the client's playback_ended.
func (p *peer) finishPlayback() {
	p.playMu.Lock()
	done := p.playing
	p.playing = nil
	p.playMu.Unlock()
	if done != nil {
		done()
	}
}

func (p *peer) stopPlayback() {
	p.playMu.Lock()
	pending := p.playing != nil
	p.playing = nil
	p.playMu.Unlock()
	if pending {
		p.send(serverMessage{Type: msgStopPlayback})
	}
}

// remoteRecognizer asks the client to capture speech; partials come back as
// partial messages.
type remoteRecognizer struct{ peer *peer }

func (r remoteRecognizer) Start() error { r.peer.send(serverMessage{Type: msgListen}); return nil }
func (r remoteRecognizer) Abort()       { r.peer.send(serverMessage{Type: msgAbortListen}) }

// audioSpeaker synthesizes MP3 on the server and ships it to the client.
type audioSpeaker struct {
	peer   *peer
	speech Synthesizer
}

func (a audioSpeaker) Speak(ctx context.Context, text string, done func()) error {
	audio, err := a.speech.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return a.peer.startPlayback(ctx, done, serverMessage{Type: msgAudio, Audio: base64.StdEncoding.EncodeToString(audio)})
}

func (a audioSpeaker) Stop() { a.peer.stopPlayback() }

// localSpeaker asks the client to speak the text with its own synthesizer.
type localSpeaker struct{ peer *peer }

func (l localSpeaker) Speak(ctx context.Context, text string, done func()) error {
	return l.peer.startPlayback(ctx, done, serverMessage{Type: msgSpeakText, Text: text})
}

func (l localSpeaker) Stop() { l.peer.stopPlayback() }

// boundAssistant runs turns and polls for one authenticated caller.
type boundAssistant struct {
	turns  TurnHandler
	poller Poller
	owner  string
	creds  conversation.Credentials
}

func (b boundAssistant) Submit(ctx context.Context, message string, history []conversation.Turn) (conversation.Reply, error) {
	return b.turns.HandleTurn(ctx, orchestrator.TurnRequest{
		Owner:       b.owner,
		Credentials: b.creds,
		Message:     message,
		History:     history,
	})
}

func (b boundAssistant) Poll(ctx context.Context) (proactive.Result, error) {
	if b.owner == "" || !b.creds.Valid() {
		return proactive.Result{}, nil
	}
	return b.poller.Scan(ctx, b.owner, b.creds), nil
}

// voiceIdentity reads identity from headers, falling back to query
// parameters for browser clients that cannot set websocket headers.
func voiceIdentity(r *http.Request) (string, conversation.Credentials) {
	owner, creds := identity(r)
	q := r.URL.Query()
	if owner == "" {
		owner = strings.TrimSpace(q.Get("email"))
	}
	if creds.AccessToken == "" {
		creds.AccessToken = q.Get("access_token")
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = q.Get("refresh_token")
	}
	return owner, creds
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	owner, creds := voiceIdentity(r)

	checkOrigin := s.voice.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Voice upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	if s.voice.MaxMessageSize > 0 {
		conn.SetReadLimit(s.voice.MaxMessageSize)
	}
	writeTimeout := s.voice.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	id := prefixed_uuid.New("voice")
	log := s.log.WithFields(logger.StringField("voice_session", id.String()), logger.OwnerField(owner))
	p := &peer{conn: conn, writeTimeout: writeTimeout, log: log}

	session, err := voice.New(voice.Config{
		Recognizer:   remoteRecognizer{peer: p},
		Assistant:    boundAssistant{turns: s.turns, poller: s.poller, owner: owner, creds: creds},
		Speaker:      audioSpeaker{peer: p, speech: s.speech},
		Fallback:     localSpeaker{peer: p},
		Clock:        s.voice.Clock,
		Logger:       log,
		Continuous:   s.voice.Continuous,
		PollDelay:    s.voice.PollDelay,
		PollInterval: s.voice.PollInterval,
	})
	if err != nil {
		log.Error("Failed to create voice session", logger.ErrorField(err))
		p.send(serverMessage{Type: msgError, Text: err.Error()})
		return
	}
	log.Info("Voice session opened")

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for ev := range session.Events() {
			if msg, ok := eventMessage(ev); ok {
				p.send(msg)
			}
		}
	}()

	s.readVoice(conn, session, p, log)

	session.Close()
	<-pumped
	log.Info("Voice session closed")
}

func (s *Server) readVoice(conn *websocket.Conn, session *voice.Session, p *peer, log logger.Logger) {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Voice read ended", logger.ErrorField(err))
			}
			return
		}

		switch msg.Type {
		case msgStart:
			session.Start()
		case msgPartial:
			session.OnPartial(msg.Text)
		case msgStop:
			session.Stop()
		case msgText:
			session.SubmitText(msg.Text)
		case msgPlaybackEnded:
			p.finishPlayback()
		case msgContinuous:
			session.SetContinuous(msg.Enabled)
		default:
			p.send(serverMessage{Type: msgError, Text: "unknown message type: " + msg.Type})
		}
	}
}

// eventMessage maps a session event to its wire message. Transcript events
// originate from the client and are not echoed.
func eventMessage(ev voice.Event) (serverMessage, bool) {
	switch ev.Kind {
	case voice.StateChanged:
		return serverMessage{Type: msgState, From: ev.From.String(), To: ev.To.String()}, true
	case voice.ReplyReceived:
		return serverMessage{
			Type:     msgReply,
			Mode:     string(ev.Reply.Mode),
			Text:     ev.Reply.Text,
			Language: ev.Reply.Language,
		}, true
	case voice.Warning:
		return serverMessage{Type: msgWarning, Text: ev.Text}, true
	case voice.Error:
		return serverMessage{Type: msgError, Text: ev.Text}, true
	case voice.ProactiveAlert:
		return serverMessage{
			Type:         msgProactive,
			EventSummary: ev.Alert.EventSummary,
			OpeningLine:  ev.Alert.OpeningLine,
		}, true
	default:
		return serverMessage{}, false
	}
}
