// Package webhook exposes the HTTP endpoint Telegram delivers updates to.
//
// The endpoint always answers with a success status, whatever happens
// inside: any other status would put Telegram's delivery retry loop into a
// storm against a pipeline that already handled (or rejected) the event.
package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// secretHeader is the header Telegram echoes the configured secret token in.
const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Handler processes one admitted update.
type Handler interface {
	Handle(ctx context.Context, update *tgbotapi.Update)
}

// Server routes webhook deliveries through the gatekeeper into the handler.
type Server struct {
	engine  *gin.Engine
	secret  string
	timeout time.Duration
	handler Handler
	log     zerolog.Logger
}

// NewServer creates the HTTP surface: POST /webhook (gatekept) and
// GET /health.
func NewServer(secret string, timeout time.Duration, handler Handler, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  gin.New(),
		secret:  secret,
		timeout: timeout,
		handler: handler,
		log:     log,
	}

	// A panic anywhere below must still produce a success status.
	s.engine.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		s.log.Error().Interface("panic", err).Msg("recovered from handler panic")
		c.AbortWithStatus(http.StatusOK)
	}))

	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/webhook", s.gatekeeper, s.handleUpdate)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// gatekeeper admits a delivery only when the secret token header matches
// the configured secret exactly. Rejection is silent: success status, no
// processing, no outbound message. Both values are hashed before comparison
// so the check runs in constant effort regardless of input length.
func (s *Server) gatekeeper(c *gin.Context) {
	got := sha256.Sum256([]byte(c.GetHeader(secretHeader)))
	want := sha256.Sum256([]byte(s.secret))
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		s.log.Warn().Str("remote", c.ClientIP()).Msg("webhook secret mismatch, rejecting")
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

func (s *Server) handleUpdate(c *gin.Context) {
	logger := s.log.With().Str("request_id", uuid.NewString()).Logger()

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		logger.Error().Err(err).Msg("malformed update payload")
		c.Status(http.StatusOK)
		return
	}

	s.handler.Handle(ctx, &update)
	c.Status(http.StatusOK)
}
