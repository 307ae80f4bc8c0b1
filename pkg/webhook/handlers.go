package webhook

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oslianyabel/basic-wa-bot/internal/tracing"
	"github.com/oslianyabel/basic-wa-bot/pkg/whatsapp"
)

// ServiceName is reported by the health endpoint
const ServiceName = "WhatsApp Webhook API"

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// handleVerify answers the Meta subscription handshake
func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token != s.options.VerifyToken {
		s.logger.Warn().Str("mode", mode).Msg("Webhook verification rejected")
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	value, err := strconv.Atoi(challenge)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hub.challenge"})
		return
	}

	s.logger.Info().Msg("Webhook verified")
	c.JSON(http.StatusOK, value)
}

// handleMessage acknowledges the delivery at once and answers in the background
func (s *Server) handleMessage(c *gin.Context) {
	logger := tracing.LoggerFromContext(c.Request.Context(), s.logger)

	body, err := c.GetRawData()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read request body")
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	payload, err := whatsapp.ParsePayload(body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to parse webhook payload")
		c.JSON(http.StatusOK, gin.H{"status": "error"})
		return
	}

	incoming, ok := payload.FirstMessage()
	if !ok {
		logger.Debug().Msg("No supported message in payload")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx := tracing.WithMessageID(tracing.Detach(c.Request.Context()), incoming.ID)
	ctx = tracing.WithUserID(ctx, incoming.From)

	if !s.dispatch(ctx, incoming) {
		logger.Warn().Str("user_id", incoming.From).Msg("Dropping message during shutdown")
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// dispatch marks the message read and runs the agent, both in the background
func (s *Server) dispatch(ctx context.Context, in whatsapp.Incoming) bool {
	logger := tracing.LoggerFromContext(ctx, s.logger)

	if in.ID != "" {
		s.goTracked(func() {
			if err := s.messenger.MarkAsRead(ctx, in.ID); err != nil {
				logger.Warn().Err(err).Msg("Failed to mark message as read")
			}
		})
	}

	return s.goTracked(func() {
		logger.Info().Str("text", in.Text).Msg("Message received")

		reply := <-s.processor.ProcessAsync(ctx, in.From, in.Text)
		if !reply.OK || reply.Text == "" {
			return
		}

		if err := s.messenger.Notify(ctx, in.From, reply.Text); err != nil {
			logger.Error().Err(err).Bool("busy", reply.Busy).Msg("Failed to send reply")
		}
	})
}
