package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	baseURLLive = "https://api.checkout.com"
	baseURLTest = "https://api.sandbox.checkout.com"

	// The processor call is the only blocking operation on the redirect path;
	// its failure is reported to the caller, never retried here.
	requestTimeout = 30 * time.Second
)

// Client talks to the payment processor's API. It is the only trusted source
// of amount/currency/status on the browser-redirect path.
type Client struct {
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(log *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.Named("payment.checkout"),
	}
}

// PaymentDetails is the processor's authoritative view of one payment.
type PaymentDetails struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Amount    int64          `json:"amount"`
	Currency  string         `json:"currency"`
	Reference string         `json:"reference"`
	Source    PaymentSource  `json:"source"`
	Actions   []Action       `json:"actions"`
	Metadata  map[string]any `json:"metadata"`
}

type PaymentSource struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme"`
	Last4  string `json:"last4"`
}

type Action struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ResponseCode    string `json:"response_code"`
	ResponseSummary string `json:"response_summary"`
}

// VerifiedAmount returns the payment's amount as trusted data. Only this
// client and the signature-checked relay path may mint VerifiedAmount values.
func (d *PaymentDetails) VerifiedAmount() domain.VerifiedAmount {
	return domain.VerifiedAmount{
		MinorUnits: d.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(d.Currency)),
	}
}

// Verify fetches the payment behind a client-supplied session id. The hint is
// a pointer to fetch, never a payment result.
func (c *Client) Verify(ctx context.Context, creds config.CheckoutConfig, hint domain.UnverifiedHint) (*PaymentDetails, error) {
	sessionID := strings.TrimSpace(hint.String())
	if sessionID == "" {
		return nil, domain.ErrMalformedPayload
	}

	url := fmt.Sprintf("%s/payments/%s", baseURL(creds.Mode), sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("payment verification request failed", zap.Error(err))
		return nil, domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("payment verification returned non-2xx",
			zap.Int("status", resp.StatusCode),
		)
		return nil, domain.ErrGatewayUnavailable
	}

	var details PaymentDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, domain.ErrGatewayUnavailable
	}
	if strings.TrimSpace(details.ID) == "" || strings.TrimSpace(details.Status) == "" {
		return nil, domain.ErrGatewayUnavailable
	}
	return &details, nil
}

// SessionRequest describes the hosted payment session to create.
type SessionRequest struct {
	Amount     int64
	Currency   string
	Reference  string
	FormID     int64
	EntryID    string
	Email      string
	Name       string
	Country    string
	SuccessURL string
	FailureURL string
}

// Session is the processor's created payment session.
type Session struct {
	ID                  string `json:"id"`
	PaymentSessionToken string `json:"payment_session_token"`
	Links               map[string]struct {
		Href string `json:"href"`
	} `json:"_links"`
}

// CreateSession opens a hosted payment session for an order. The metadata
// carries form and entry ids so every callback path can find its order.
func (c *Client) CreateSession(ctx context.Context, creds config.CheckoutConfig, reqBody SessionRequest) (*Session, error) {
	if reqBody.Amount <= 0 || strings.TrimSpace(reqBody.Currency) == "" {
		return nil, domain.ErrMalformedPayload
	}

	payload := map[string]any{
		"amount":    reqBody.Amount,
		"currency":  strings.ToUpper(strings.TrimSpace(reqBody.Currency)),
		"reference": reqBody.Reference,
		"billing": map[string]any{
			"address": map[string]any{
				"country": defaultString(reqBody.Country, "GB"),
			},
		},
		"customer": map[string]any{
			"email": reqBody.Email,
			"name":  reqBody.Name,
		},
		"success_url": reqBody.SuccessURL,
		"failure_url": reqBody.FailureURL,
		"metadata": map[string]any{
			"form_id":  reqBody.FormID,
			"entry_id": reqBody.EntryID,
		},
		"3ds": map[string]any{
			"enabled": true,
		},
	}
	if channel := strings.TrimSpace(creds.ProcessingChannelID); channel != "" {
		payload["processing_channel_id"] = channel
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := baseURL(creds.Mode) + "/payment-sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("payment session request failed", zap.Error(err))
		return nil, domain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			ErrorCodes []string `json:"error_codes"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		c.log.Warn("payment session returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.Strings("error_codes", apiErr.ErrorCodes),
		)
		return nil, domain.ErrGatewayUnavailable
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, domain.ErrGatewayUnavailable
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, errors.New("payment session missing id")
	}
	return &session, nil
}

func baseURL(mode string) string {
	if config.NormalizeMode(mode) == config.ModeLive {
		return baseURLLive
	}
	return baseURLTest
}

func defaultString(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
