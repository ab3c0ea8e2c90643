package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicebridge/internal/adapters/twilio"
	"github.com/dkeye/voicebridge/internal/app/relay"
	"github.com/dkeye/voicebridge/internal/config"
	"github.com/dkeye/voicebridge/internal/core"
	"github.com/dkeye/voicebridge/internal/domain"
)

const requestIDHeader = "X-Request-Id"

// CallInitiator places outbound calls. *twilio.Caller implements it.
type CallInitiator interface {
	Call(ctx context.Context, req twilio.CallRequest) (domain.CallSID, error)
}

type Deps struct {
	Caller   CallInitiator
	Dialer   core.ConversationDialer
	Notifier core.Notifier
	Registry *relay.Registry
	Limiter  *CallRateLimiter
}

// RequestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-Id when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetupRouter wires the HTTP surface. ctx bounds every media stream
// session started through it.
func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())

	h := &handlers{ctx: ctx, cfg: cfg, deps: deps}

	r.POST("/outbound-call", h.outboundCall)
	r.Any(twilio.TwiMLPath, h.twiml)
	r.POST("/webhook", h.webhook)
	r.GET(twilio.MediaStreamPath, h.mediaStream)
	r.GET("/healthz", h.health)

	log.Info().Str("module", "adapters.http").Str("public_host", cfg.PublicHost).Msg("router setup")
	return r
}
