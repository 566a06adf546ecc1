package server

import (
	"bytes"
	"io"
	"net/http"

	"github.com/formgate/formgate/internal/relay"
	"github.com/gin-gonic/gin"
)

const ctxRawBody = "raw_body"

// rawBody returns the request body, reading it once and caching it on the
// context so signature middleware and handlers see the same bytes.
func rawBody(c *gin.Context) ([]byte, error) {
	if cached, ok := c.Get(ctxRawBody); ok {
		if body, ok := cached.([]byte); ok {
			return body, nil
		}
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Set(ctxRawBody, body)
	return body, nil
}

// requireRelaySignature verifies the HMAC the relay origin puts over the raw
// request body. The body is cached for the handler; signing covers the exact
// bytes on the wire, so nothing may re-read or rewrite them first.
func (s *Server) requireRelaySignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := rawBody(c)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		if err := relay.Verify(s.cfg.RelaySharedSecret, body, c.GetHeader(relay.Header)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// callbackRateLimit throttles a callback endpoint per client address. Without
// redis the limiter admits everything.
func (s *Server) callbackRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		allowed, err := s.limiter.Allow(ctx, endpoint, c.ClientIP())
		if err != nil {
			// Allow already admitted the request; just count the failure.
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "limiter_error")
		}
		if !allowed {
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "throttled")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many requests",
			}})
			return
		}
		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}
