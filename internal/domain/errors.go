package domain

import "errors"

var (
	// ErrValidation marks a missing or malformed request parameter.
	ErrValidation = errors.New("validation error")
	// ErrUpstreamAuth marks a rejected request to the conversation provider.
	ErrUpstreamAuth = errors.New("upstream auth error")
	// ErrUpstreamCall marks a rejected request to the telephony provider.
	ErrUpstreamCall = errors.New("upstream call error")
	// ErrProtocolParse marks a malformed message on a live stream.
	ErrProtocolParse = errors.New("protocol parse error")
	// ErrWebhookDelivery marks a failed webhook post.
	ErrWebhookDelivery = errors.New("webhook delivery error")
)
