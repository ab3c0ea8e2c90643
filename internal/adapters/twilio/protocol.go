package twilio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicebridge/internal/domain"
)

// StreamEvent is one inbound Media Streams message.
type StreamEvent interface {
	streamEvent()
}

type ConnectedEvent struct{}

type StartEvent struct {
	StreamSID domain.StreamSID
	CallSID   domain.CallSID
	Params    domain.SessionParams
}

type MediaEvent struct {
	// Audio is the decoded payload.
	Audio []byte
}

type StopEvent struct{}

// UnknownEvent covers mark, dtmf and anything Twilio adds later.
type UnknownEvent struct {
	Event string
}

func (ConnectedEvent) streamEvent() {}
func (StartEvent) streamEvent()     {}
func (MediaEvent) streamEvent()     {}
func (StopEvent) streamEvent()      {}
func (UnknownEvent) streamEvent()   {}

type inboundMessage struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid,omitempty"`
	Start     *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		AccountSID       string            `json:"accountSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media,omitempty"`
}

// ParseStreamEvent decodes a Media Streams message. Errors wrap
// domain.ErrProtocolParse.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: twilio message: %v", domain.ErrProtocolParse, err)
	}

	switch msg.Event {
	case "connected":
		return ConnectedEvent{}, nil
	case "start":
		if msg.Start == nil {
			return nil, fmt.Errorf("%w: start event without start body", domain.ErrProtocolParse)
		}
		return StartEvent{
			StreamSID: domain.StreamSID(msg.Start.StreamSID),
			CallSID:   domain.CallSID(msg.Start.CallSID),
			Params:    domain.ParamsFromCustom(msg.Start.CustomParameters),
		}, nil
	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("%w: media event without media body", domain.ErrProtocolParse)
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: media payload: %v", domain.ErrProtocolParse, err)
		}
		return MediaEvent{Audio: audio}, nil
	case "stop":
		return StopEvent{}, nil
	default:
		return UnknownEvent{Event: msg.Event}, nil
	}
}

type outboundMedia struct {
	Payload string `json:"payload"`
}

type outboundMessage struct {
	Event     string         `json:"event"`
	StreamSID string         `json:"streamSid"`
	Media     *outboundMedia `json:"media,omitempty"`
}

// MediaFrame builds a media message carrying an already base64 encoded
// payload for playback on the call.
func MediaFrame(streamSID domain.StreamSID, payload string) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Event:     "media",
		StreamSID: string(streamSID),
		Media:     &outboundMedia{Payload: payload},
	})
}

// ClearFrame builds a clear message that flushes buffered playback.
func ClearFrame(streamSID domain.StreamSID) ([]byte, error) {
	return json.Marshal(outboundMessage{
		Event:     "clear",
		StreamSID: string(streamSID),
	})
}
