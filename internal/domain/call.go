// Package domain contains call entities without transport logic.
package domain

type (
	StreamSID      string
	CallSID        string
	ConversationID string
)

// SessionParams travel from call initiation through the TwiML callback
// into the media stream start event.
type SessionParams struct {
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"firstMessage"`
	Webhook      string `json:"webhook"`
	ExternalID   string `json:"id"`
}

// Stream parameter names used in the TwiML <Parameter> elements and in
// the start event's customParameters.
const (
	ParamPrompt       = "prompt"
	ParamFirstMessage = "firstMessage"
	ParamWebhook      = "webhook"
	ParamExternalID   = "id"
)

// ParamsFromCustom reads SessionParams out of a start event's custom
// parameters. Missing keys become empty strings.
func ParamsFromCustom(custom map[string]string) SessionParams {
	return SessionParams{
		Prompt:       custom[ParamPrompt],
		FirstMessage: custom[ParamFirstMessage],
		Webhook:      custom[ParamWebhook],
		ExternalID:   custom[ParamExternalID],
	}
}
