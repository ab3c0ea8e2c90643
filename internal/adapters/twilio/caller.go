package twilio

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	twiliogo "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/dkeye/voicebridge/internal/domain"
)

// TwiMLPath serves the call-control document for outbound calls.
const TwiMLPath = "/outbound-call-twiml"

// CallAPI is the subset of the Twilio REST API the caller needs.
type CallAPI interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Caller originates outbound calls whose media is streamed to the relay.
type Caller struct {
	API  CallAPI
	From string
}

// NewCaller builds a Caller backed by the Twilio REST client.
func NewCaller(accountSID, authToken, from string) *Caller {
	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Caller{API: client.Api, From: from}
}

type CallRequest struct {
	To     string
	Host   string
	Params domain.SessionParams
}

// CallbackURL is the TwiML URL Twilio fetches once the call is answered.
func CallbackURL(host string, p domain.SessionParams) string {
	q := url.Values{}
	q.Set(domain.ParamPrompt, p.Prompt)
	q.Set(domain.ParamFirstMessage, p.FirstMessage)
	q.Set(domain.ParamWebhook, p.Webhook)
	q.Set(domain.ParamExternalID, p.ExternalID)
	u := url.URL{Scheme: "https", Host: host, Path: TwiMLPath, RawQuery: q.Encode()}
	return u.String()
}

// Call places one outbound call and returns its call sid.
// The Twilio SDK call is synchronous and has no context parameter; ctx is
// only checked before the request goes out.
func (c *Caller) Call(ctx context.Context, req CallRequest) (domain.CallSID, error) {
	if req.To == "" {
		return "", fmt.Errorf("%w: missing number", domain.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(c.From)
	params.SetUrl(CallbackURL(req.Host, req.Params))

	call, err := c.API.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("%w: create call: %v", domain.ErrUpstreamCall, err)
	}
	if call == nil || call.Sid == nil {
		return "", fmt.Errorf("%w: create call: response without sid", domain.ErrUpstreamCall)
	}

	log.Info().
		Str("module", "twilio").
		Str("call_sid", *call.Sid).
		Str("external_id", req.Params.ExternalID).
		Msg("outbound call created")
	return domain.CallSID(*call.Sid), nil
}
