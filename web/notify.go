package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"megapack-bot/metrics"
	"megapack-bot/sentryutil"
)

// clickEvent is the payload posted by the landing page when a prank link is
// opened. userId arrives as a string, taken straight from the query param.
type clickEvent struct {
	UserID string `json:"userId"`
	Source string `json:"source,omitempty"`
}

// notifyClick forwards a click event to the external notification
// collaborator. The collaborator is a black box; we only relay the payload.
func (s *Server) notifyClick(c *gin.Context) {
	var event clickEvent
	if err := c.ShouldBindJSON(&event); err != nil || event.UserID == "" {
		metrics.ClickNotifications.WithLabelValues("bad_payload").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid click payload"})
		return
	}

	log.Info().Str("user_id", event.UserID).Str("source", event.Source).Msg("click received")

	if s.cfg.NotifyURL == "" {
		metrics.ClickNotifications.WithLabelValues("logged").Inc()
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
		return
	}

	if err := s.forwardClick(event); err != nil {
		log.Error().Err(err).Msg("click notification forward failed")
		sentryutil.CaptureError(err, map[string]string{"component": "web"})
		metrics.ClickNotifications.WithLabelValues("forward_error").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "notification upstream failed"})
		return
	}

	metrics.ClickNotifications.WithLabelValues("forwarded").Inc()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) forwardClick(event clickEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}

	resp, err := s.client.Post(s.cfg.NotifyURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post click event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post click event: unexpected status %d", resp.StatusCode)
	}

	return nil
}
