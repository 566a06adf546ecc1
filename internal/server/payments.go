package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/formgate/formgate/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

// HandlePaymentWebhook ingests one processor webhook delivery. Replays and
// deliberately unhandled kinds are acknowledged 200 so the processor stops
// redelivering them.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := rawBody(c)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.IngestWebhook(c.Request.Context(), payload, c.GetHeader("Authorization"))
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

// HandlePaymentReturn reconciles the browser redirect after a hosted payment.
// The session identifier is only a pointer; the processor's answer is the sole
// source of truth for amount and status.
func (s *Server) HandlePaymentReturn(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		ref = c.PostForm("ref")
	}
	if ref == "" {
		AbortWithError(c, newValidationError("ref", "missing_ref", "missing return reference"))
		return
	}

	formID, orderID, err := decodeReturnRef(s.cfg.ReturnSecret, ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sessionID := strings.TrimSpace(c.Query("cko-session-id"))
	if sessionID == "" {
		sessionID = strings.TrimSpace(c.PostForm("cko_session_id"))
	}
	if sessionID == "" {
		AbortWithError(c, newValidationError("cko_session_id", "missing_session_id", "missing payment session id"))
		return
	}

	order, err := s.paymentSvc.ResolveReturn(c.Request.Context(), orderID, paymentdomain.UnverifiedHint(sessionID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":       order.ID.String(),
		"form_id":        formID,
		"payment_status": order.PaymentStatus,
		"transaction_id": order.TransactionID,
		"note":           order.Note,
	})
}

type createSessionRequest struct {
	OrderID    string `json:"order_id"`
	SuccessURL string `json:"success_url"`
	FailureURL string `json:"failure_url"`
	Country    string `json:"country"`
}

// HandleCreateSession opens a hosted payment session for an order. The success
// URL gets the signed return reference appended; the processor appends the
// session id when it redirects back.
func (s *Server) HandleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "invalid order id"))
		return
	}
	if strings.TrimSpace(req.SuccessURL) == "" || strings.TrimSpace(req.FailureURL) == "" {
		AbortWithError(c, newValidationError("success_url", "missing_return_urls", "success and failure urls are required"))
		return
	}

	ctx := c.Request.Context()
	details, err := s.paymentSvc.OrderDetails(ctx, orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	successURL, err := appendQueryParam(req.SuccessURL, "ref", EncodeReturnRef(s.cfg.ReturnSecret, details.FormID, orderID))
	if err != nil {
		AbortWithError(c, newValidationError("success_url", "invalid_url", "invalid success url"))
		return
	}

	result, err := s.paymentSvc.CreateSession(ctx, paymentdomain.CreateSessionRequest{
		OrderID:    orderID,
		SuccessURL: successURL,
		FailureURL: req.FailureURL,
		Country:    req.Country,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func appendQueryParam(rawURL, key, value string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
