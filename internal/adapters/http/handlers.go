package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/adapters/twilio"
	"github.com/dkeye/voicebridge/internal/app/relay"
	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/domain"
)

type handlers struct {
	ctx  context.Context
	cfg  *config.Config
	deps Deps
}

type OutboundCallRequest struct {
	Number       string `json:"number"`
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"firstMessage"`
	Webhook      string `json:"webhook"`
	ExternalID   string `json:"externalId"`
}

type OutboundCallResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ExternalID string `json:"externalId"`
	CallSID    string `json:"callSid"`
}

func (h *handlers) logger(c *gin.Context) zerolog.Logger {
	return log.With().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Logger()
}

// host is the public host Twilio should call back on.
func (h *handlers) host(c *gin.Context) string {
	if h.cfg.PublicHost != "" {
		return h.cfg.PublicHost
	}
	return c.Request.Host
}

func (h *handlers) outboundCall(c *gin.Context) {
	logger := h.logger(c)

	var req OutboundCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn().Err(err).Msg("bad outbound call body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Number == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
		return
	}
	if !h.deps.Limiter.Allow(req.Number) {
		logger.Warn().Str("external_id", req.ExternalID).Msg("outbound call rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "Too many calls to this number"})
		return
	}

	callSID, err := h.deps.Caller.Call(c.Request.Context(), twilio.CallRequest{
		To:   req.Number,
		Host: h.host(c),
		Params: domain.SessionParams{
			Prompt:       req.Prompt,
			FirstMessage: req.FirstMessage,
			Webhook:      req.Webhook,
			ExternalID:   req.ExternalID,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
			return
		}
		logger.Error().Err(err).Str("external_id", req.ExternalID).Msg("outbound call failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to initiate call"})
		return
	}

	c.JSON(http.StatusOK, OutboundCallResponse{
		Success:    true,
		Message:    "Call initiated",
		ExternalID: req.ExternalID,
		CallSID:    string(callSID),
	})
}

func (h *handlers) twiml(c *gin.Context) {
	params := domain.SessionParams{
		Prompt:       c.Query(domain.ParamPrompt),
		FirstMessage: c.Query(domain.ParamFirstMessage),
		Webhook:      c.Query(domain.ParamWebhook),
		ExternalID:   c.Query(domain.ParamExternalID),
	}
	doc, err := twilio.RenderStreamTwiML(h.host(c), params)
	if err != nil {
		logger := h.logger(c)
		logger.Error().Err(err).Msg("render twiml")
		c.String(http.StatusInternalServerError, "failed to render twiml")
		return
	}
	c.Data(http.StatusOK, "text/xml", []byte(doc))
}

func (h *handlers) webhook(c *gin.Context) {
	logger := h.logger(c)

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Error().Err(err).Msg("bad inbound webhook")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	logger.Info().Interface("body", body).Msg("inbound webhook")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) mediaStream(c *gin.Context) {
	logger := h.logger(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}

	sess := relay.NewSession(ws, relay.Deps{
		Dialer:       h.deps.Dialer,
		Notifier:     h.deps.Notifier,
		Registry:     h.deps.Registry,
		WriteTimeout: h.cfg.WriteTimeout,
	})
	logger.Info().Str("session", sess.ID()).Msg("media stream accepted")
	sess.Run(h.ctx)
}

func (h *handlers) health(c *gin.Context) {
	active := 0
	if h.deps.Registry != nil {
		active = h.deps.Registry.Count()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "activeSessions": active})
}
