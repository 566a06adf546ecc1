package server

import (
	"net/http"

	"github.com/formgate/formgate/internal/config"
	feeddomain "github.com/formgate/formgate/internal/feed/domain"
	"github.com/gin-gonic/gin"
)

type saveFeedRequest struct {
	FormID      int64  `json:"form_id"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
	UseOverride bool   `json:"use_override"`
	Credentials struct {
		SecretKey           string `json:"secret_key"`
		PublicKey           string `json:"public_key"`
		ProcessingChannelID string `json:"processing_channel_id"`
		WebhookSecret       string `json:"webhook_secret"`
		Mode                string `json:"mode"`
	} `json:"credentials"`
}

// HandleSaveFeed stores a form's feed. Credentials are persisted encrypted and
// never echoed back.
func (s *Server) HandleSaveFeed(c *gin.Context) {
	var req saveFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.FormID <= 0 {
		AbortWithError(c, newValidationError("form_id", "invalid_form_id", "invalid form id"))
		return
	}

	feed, err := s.feedSvc.SaveOverride(c.Request.Context(), feeddomain.SaveOverrideRequest{
		FormID:      req.FormID,
		Name:        req.Name,
		IsActive:    req.IsActive,
		UseOverride: req.UseOverride,
		Credentials: config.CheckoutConfig{
			SecretKey:           req.Credentials.SecretKey,
			PublicKey:           req.Credentials.PublicKey,
			ProcessingChannelID: req.Credentials.ProcessingChannelID,
			WebhookSecret:       req.Credentials.WebhookSecret,
			Mode:                req.Credentials.Mode,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, feed)
}
