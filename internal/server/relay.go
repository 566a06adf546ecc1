package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/formgate/formgate/internal/payment/domain"
	"github.com/formgate/formgate/internal/relay"
	"github.com/gin-gonic/gin"
)

// Relay handlers sit behind requireRelaySignature; the body they read is the
// exact signed bytes.

type relayDetailsRequest struct {
	OrderID json.Number `json:"entry_id"`
}

// HandleRelayGetPaymentDetails serves the relay origin's pre-payment order
// lookup. The response body is signed so the relay can authenticate it in
// turn.
func (s *Server) HandleRelayGetPaymentDetails(c *gin.Context) {
	body, err := rawBody(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req relayDetailsRequest
	if err := json.Unmarshal(body, &req); err != nil {
		AbortWithError(c, paymentdomain.ErrMalformedPayload)
		return
	}
	orderID, err := snowflake.ParseString(req.OrderID.String())
	if err != nil {
		AbortWithError(c, paymentdomain.ErrMalformedPayload)
		return
	}

	details, err := s.paymentSvc.OrderDetails(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respBody, err := json.Marshal(details)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header(relay.Header, relay.Sign(s.cfg.RelaySharedSecret, respBody))
	c.Data(http.StatusOK, "application/json; charset=utf-8", respBody)
}

// HandleRelayCallback applies a signed payment confirmation pushed by the
// relay origin after the card flow completes there.
func (s *Server) HandleRelayCallback(c *gin.Context) {
	body, err := rawBody(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.RelayCallback(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrDuplicateEvent) || errors.Is(err, paymentdomain.ErrUnhandledEventKind) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
