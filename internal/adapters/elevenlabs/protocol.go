package elevenlabs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicebridge/internal/domain"
)

// ServerEvent is one message received on the conversation socket.
type ServerEvent interface {
	serverEvent()
}

type InitiationMetadata struct {
	ConversationID domain.ConversationID
}

// Audio carries agent speech. Payload is base64 and is passed through as is.
type Audio struct {
	Payload string
}

type Interruption struct{}

// Ping must be answered with a pong carrying the same event id.
type Ping struct {
	EventID json.RawMessage
}

type UserTranscript struct {
	Text string
}

type AgentResponse struct {
	Text string
}

type Unhandled struct {
	Type string
}

func (InitiationMetadata) serverEvent() {}
func (Audio) serverEvent()              {}
func (Interruption) serverEvent()       {}
func (Ping) serverEvent()               {}
func (UserTranscript) serverEvent()     {}
func (AgentResponse) serverEvent()      {}
func (Unhandled) serverEvent()          {}

type serverMessage struct {
	Type string `json:"type"`

	InitiationMetadata *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event"`

	Audio *struct {
		Chunk string `json:"chunk"`
	} `json:"audio"`
	AudioEvent *struct {
		AudioBase64 string `json:"audio_base_64"`
	} `json:"audio_event"`

	PingEvent *struct {
		EventID json.RawMessage `json:"event_id"`
	} `json:"ping_event"`

	UserTranscription *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`

	AgentResponse *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

// ParseServerEvent decodes a conversation message. An audio or ping
// message without its payload comes back as Unhandled so the caller
// only logs it.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: elevenlabs message: %v", domain.ErrProtocolParse, err)
	}

	switch msg.Type {
	case "conversation_initiation_metadata":
		ev := InitiationMetadata{}
		if msg.InitiationMetadata != nil {
			ev.ConversationID = domain.ConversationID(msg.InitiationMetadata.ConversationID)
		}
		return ev, nil
	case "audio":
		switch {
		case msg.Audio != nil && msg.Audio.Chunk != "":
			return Audio{Payload: msg.Audio.Chunk}, nil
		case msg.AudioEvent != nil && msg.AudioEvent.AudioBase64 != "":
			return Audio{Payload: msg.AudioEvent.AudioBase64}, nil
		}
	case "interruption":
		return Interruption{}, nil
	case "ping":
		if msg.PingEvent != nil && len(msg.PingEvent.EventID) > 0 && string(msg.PingEvent.EventID) != "null" {
			return Ping{EventID: msg.PingEvent.EventID}, nil
		}
	case "user_transcript":
		ev := UserTranscript{}
		if msg.UserTranscription != nil {
			ev.Text = msg.UserTranscription.UserTranscript
		}
		return ev, nil
	case "agent_response":
		ev := AgentResponse{}
		if msg.AgentResponse != nil {
			ev.Text = msg.AgentResponse.AgentResponse
		}
		return ev, nil
	}
	return Unhandled{Type: msg.Type}, nil
}

type agentPrompt struct {
	Prompt string `json:"prompt"`
}

type agentOverride struct {
	Prompt       agentPrompt `json:"prompt"`
	FirstMessage string      `json:"first_message"`
}

type initiationMessage struct {
	Type     string `json:"type"`
	Override struct {
		Agent agentOverride `json:"agent"`
	} `json:"conversation_config_override"`
}

// InitiationMessage overrides the agent prompt and first message for one
// conversation.
func InitiationMessage(prompt, firstMessage string) ([]byte, error) {
	msg := initiationMessage{Type: "conversation_initiation_client_data"}
	msg.Override.Agent = agentOverride{
		Prompt:       agentPrompt{Prompt: prompt},
		FirstMessage: firstMessage,
	}
	return json.Marshal(msg)
}

// UserAudioChunk wraps caller audio for the agent.
func UserAudioChunk(audio []byte) ([]byte, error) {
	return json.Marshal(struct {
		UserAudioChunk string `json:"user_audio_chunk"`
	}{base64.StdEncoding.EncodeToString(audio)})
}

// Pong answers a ping; the event id is echoed byte for byte.
func Pong(eventID json.RawMessage) ([]byte, error) {
	return json.Marshal(struct {
		Type    string          `json:"type"`
		EventID json.RawMessage `json:"event_id"`
	}{"pong", eventID})
}
