// Package relay bridges one Twilio media stream to one ElevenLabs
// conversation.
//
// Each Session is an actor: a single goroutine owns all call state and
// performs every socket write. Reader goroutines and the connection setup
// only post events to it.
package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/adapters/elevenlabs"
	"github.com/dkeye/voicebridge/internal/adapters/twilio"
	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

type State int

const (
	StateAwaitingStart State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const defaultWriteTimeout = 5 * time.Second

type Deps struct {
	Dialer       core.ConversationDialer
	Notifier     core.Notifier
	Registry     *Registry
	WriteTimeout time.Duration
}

type (
	phoneMessage struct{ data []byte }
	phoneClosed  struct{ err error }
	convDialed   struct {
		conn core.MessageConn
		err  error
	}
	convMessage struct{ data []byte }
	convClosed  struct{ err error }
)

type Session struct {
	id     string
	phone  core.MessageConn
	deps   Deps
	logger zerolog.Logger
	events chan any

	state          State
	streamSID      domain.StreamSID
	callSID        domain.CallSID
	conversationID domain.ConversationID
	params         domain.SessionParams
	transcript     domain.Transcript

	conv        core.MessageConn
	convClosing bool
	phoneOpen   bool
	convReading bool
	dialing     bool

	toAgent  int
	toCaller int
	dropped  int
}

func NewSession(phone core.MessageConn, deps Deps) *Session {
	if deps.WriteTimeout <= 0 {
		deps.WriteTimeout = defaultWriteTimeout
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		phone:  phone,
		deps:   deps,
		logger: log.With().Str("module", "relay").Str("session", id).Logger(),
		events: make(chan any, 64),
		state:  StateAwaitingStart,
	}
}

func (s *Session) ID() string { return s.id }

// State is only meaningful from the session goroutine or after Run returns.
func (s *Session) State() State { return s.state }

// Run services the session until the media socket is gone and the
// conversation socket and connection setup have both finished. Canceling
// ctx closes both sockets.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.deps.Registry != nil {
		unregister, err := s.deps.Registry.Register(s.id, cancel)
		if err != nil {
			s.logger.Warn().Err(err).Msg("media stream refused")
			_ = s.phone.Close()
			s.state = StateClosed
			return
		}
		defer unregister()
	}

	s.logger.Info().Msg("media stream connected")
	s.phoneOpen = true
	go s.readPhone()

	done := ctx.Done()
	for s.phoneOpen || s.convReading || s.dialing {
		select {
		case <-done:
			done = nil
			s.logger.Info().Msg("session canceled")
			_ = s.phone.Close()
			s.closeConversation()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
	s.state = StateClosed

	s.logger.Info().
		Int("frames_to_agent", s.toAgent).
		Int("frames_to_caller", s.toCaller).
		Int("frames_dropped", s.dropped).
		Int("turns", s.transcript.Len()).
		Msg("session closed")
}

func (s *Session) handle(ctx context.Context, ev any) {
	switch e := ev.(type) {
	case phoneMessage:
		s.handlePhoneMessage(ctx, e.data)
	case phoneClosed:
		s.onPhoneClosed(e.err)
	case convDialed:
		s.onConversationDialed(e.conn, e.err)
	case convMessage:
		s.handleConversationMessage(e.data)
	case convClosed:
		s.onConversationClosed(e.err)
	}
}

func (s *Session) readPhone() {
	for {
		_, data, err := s.phone.ReadMessage()
		if err != nil {
			s.events <- phoneClosed{err: err}
			return
		}
		s.events <- phoneMessage{data: data}
	}
}

func (s *Session) readConversation(conn core.MessageConn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.events <- convClosed{err: err}
			return
		}
		s.events <- convMessage{data: data}
	}
}

func (s *Session) handlePhoneMessage(ctx context.Context, data []byte) {
	ev, err := twilio.ParseStreamEvent(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("bad twilio message")
		return
	}

	switch e := ev.(type) {
	case twilio.ConnectedEvent:
		s.logger.Debug().Msg("twilio connected")
	case twilio.StartEvent:
		s.onStart(ctx, e)
	case twilio.MediaEvent:
		if s.state != StateActive {
			return
		}
		if s.conv == nil || s.convClosing {
			s.dropped++
			return
		}
		msg, err := elevenlabs.UserAudioChunk(e.Audio)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode user audio")
			return
		}
		if s.writeConversation(msg) {
			s.toAgent++
		}
	case twilio.StopEvent:
		s.logger.Info().Msg("stream stopped")
		if s.state == StateActive {
			s.state = StateClosing
		}
		s.closeConversation()
	case twilio.UnknownEvent:
		s.logger.Debug().Str("event", e.Event).Msg("unhandled twilio event")
	}
}

func (s *Session) onStart(ctx context.Context, e twilio.StartEvent) {
	if s.state != StateAwaitingStart {
		s.logger.Warn().Str("state", s.state.String()).Str("stream_sid", string(e.StreamSID)).Msg("duplicate start ignored")
		return
	}
	if s.deps.Registry != nil && !s.deps.Registry.BindStream(s.id, e.StreamSID) {
		s.logger.Warn().Str("stream_sid", string(e.StreamSID)).Msg("stream already bound to another session")
		return
	}

	s.streamSID = e.StreamSID
	s.callSID = e.CallSID
	s.params = e.Params
	s.state = StateActive
	s.logger = s.logger.With().
		Str("stream_sid", string(s.streamSID)).
		Str("call_sid", string(s.callSID)).
		Str("external_id", s.params.ExternalID).
		Logger()
	s.logger.Info().Bool("webhook", s.params.Webhook != "").Msg("stream started")

	s.dialing = true
	go func() {
		conn, err := s.deps.Dialer.Dial(ctx)
		s.events <- convDialed{conn: conn, err: err}
	}()
}

func (s *Session) onConversationDialed(conn core.MessageConn, err error) {
	s.dialing = false
	if err != nil {
		s.logger.Error().Err(err).Msg("conversation setup failed")
		s.notifyError(err)
		return
	}

	s.conv = conn
	s.convReading = true
	go s.readConversation(conn)

	if s.state != StateActive {
		s.logger.Info().Str("state", s.state.String()).Msg("conversation opened after stream ended")
		s.closeConversation()
		return
	}

	s.logger.Info().Msg("conversation connected")
	msg, err := elevenlabs.InitiationMessage(s.params.Prompt, s.params.FirstMessage)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode initiation")
		return
	}
	s.writeConversation(msg)
}

func (s *Session) handleConversationMessage(data []byte) {
	ev, err := elevenlabs.ParseServerEvent(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("bad elevenlabs message")
		return
	}

	switch e := ev.(type) {
	case elevenlabs.InitiationMetadata:
		if e.ConversationID != "" {
			s.conversationID = e.ConversationID
		}
		s.logger.Info().Str("conversation_id", string(s.conversationID)).Msg("initiation metadata")
	case elevenlabs.Audio:
		if s.streamSID == "" {
			s.dropped++
			s.logger.Warn().Msg("agent audio before stream start dropped")
			return
		}
		frame, err := twilio.MediaFrame(s.streamSID, e.Payload)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode media frame")
			return
		}
		if s.writePhone(frame) {
			s.toCaller++
		}
	case elevenlabs.Interruption:
		if s.streamSID == "" {
			return
		}
		frame, err := twilio.ClearFrame(s.streamSID)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode clear frame")
			return
		}
		s.writePhone(frame)
	case elevenlabs.Ping:
		pong, err := elevenlabs.Pong(e.EventID)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode pong")
			return
		}
		s.writeConversation(pong)
	case elevenlabs.UserTranscript:
		s.transcript.Append(domain.RoleCaller, e.Text)
		s.logger.Info().Str("text", e.Text).Msg("user transcript")
	case elevenlabs.AgentResponse:
		s.transcript.Append(domain.RoleAgent, e.Text)
		s.logger.Info().Str("text", e.Text).Msg("agent response")
	case elevenlabs.Unhandled:
		s.logger.Debug().Str("type", e.Type).Msg("unhandled elevenlabs message")
	}
}

func (s *Session) onPhoneClosed(err error) {
	s.phoneOpen = false
	if err != nil && !isExpectedClose(err) {
		s.logger.Warn().Err(err).Msg("media stream read error")
	}
	s.logger.Info().Msg("media stream disconnected")
	s.state = StateClosed
	_ = s.phone.Close()
	s.closeConversation()
}

func (s *Session) onConversationClosed(err error) {
	s.convReading = false
	expected := s.convClosing || isExpectedClose(err)
	if s.conv != nil {
		_ = s.conv.Close()
	}
	s.conv = nil

	if !expected {
		s.logger.Error().Err(err).Msg("conversation stream error")
		s.notifyError(err)
	}
	s.logger.Info().Msg("conversation disconnected")
	s.deps.Notifier.Notify(s.params.Webhook, core.WebhookEvent{
		Event:               core.EventCallEnded,
		ExternalID:          s.params.ExternalID,
		CallSID:             s.callSID,
		ConversationID:      s.conversationID,
		ConversationHistory: s.transcript.Snapshot(),
	})
}

// closeConversation is idempotent; the reader goroutine reports the
// closure back through onConversationClosed.
func (s *Session) closeConversation() {
	if s.conv == nil || s.convClosing {
		return
	}
	s.convClosing = true
	_ = s.conv.SetWriteDeadline(time.Now().Add(s.deps.WriteTimeout))
	_ = s.conv.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conv.Close()
}

func (s *Session) notifyError(err error) {
	s.deps.Notifier.Notify(s.params.Webhook, core.WebhookEvent{
		Event:               core.EventError,
		ExternalID:          s.params.ExternalID,
		Error:               err.Error(),
		ConversationHistory: s.transcript.Snapshot(),
	})
}

func (s *Session) writePhone(data []byte) bool {
	if !s.phoneOpen {
		return false
	}
	return s.write(s.phone, data, "twilio")
}

func (s *Session) writeConversation(data []byte) bool {
	if s.conv == nil || s.convClosing {
		return false
	}
	return s.write(s.conv, data, "elevenlabs")
}

func (s *Session) write(c core.MessageConn, data []byte, peer string) bool {
	if err := c.SetWriteDeadline(time.Now().Add(s.deps.WriteTimeout)); err != nil {
		s.logger.Error().Err(err).Str("peer", peer).Msg("set write deadline")
		return false
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error().Err(err).Str("peer", peer).Msg("write error")
		return false
	}
	return true
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}
