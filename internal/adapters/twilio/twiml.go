package twilio

import (
	"github.com/twilio/twilio-go/twiml"

	"github.com/dkeye/voicebridge/internal/domain"
)

// MediaStreamPath is the relay WebSocket endpoint Twilio connects to.
const MediaStreamPath = "/outbound-media-stream"

// RenderStreamTwiML returns the call-control document that attaches the
// call to the relay and hands the session parameters to the stream start
// event.
func RenderStreamTwiML(host string, p domain.SessionParams) (string, error) {
	stream := &twiml.VoiceStream{
		Url: "wss://" + host + MediaStreamPath,
		InnerElements: []twiml.Element{
			&twiml.VoiceParameter{Name: domain.ParamPrompt, Value: p.Prompt},
			&twiml.VoiceParameter{Name: domain.ParamFirstMessage, Value: p.FirstMessage},
			&twiml.VoiceParameter{Name: domain.ParamWebhook, Value: p.Webhook},
			&twiml.VoiceParameter{Name: domain.ParamExternalID, Value: p.ExternalID},
		},
	}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{stream}}
	return twiml.Voice([]twiml.Element{connect})
}
