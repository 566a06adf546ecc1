package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/payment/domain"
)

// Processor webhook event kinds this system acts on.
const (
	WebhookPaymentApproved        = "payment_approved"
	WebhookPaymentCaptured        = "payment_captured"
	WebhookPaymentDeclined        = "payment_declined"
	WebhookPaymentCanceled        = "payment_canceled"
	WebhookPaymentFailed          = "payment_failed"
	WebhookPaymentCaptureDeclined = "payment_capture_declined"
	WebhookPaymentPending         = "payment_pending"
)

// WebhookEvent is the processor's webhook envelope.
type WebhookEvent struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data WebhookData `json:"data"`
}

type WebhookData struct {
	ID              string         `json:"id"`
	Amount          int64          `json:"amount"`
	Currency        string         `json:"currency"`
	ResponseCode    string         `json:"response_code"`
	ResponseSummary string         `json:"response_summary"`
	Metadata        map[string]any `json:"metadata"`
}

// ParseWebhook decodes and validates a webhook payload envelope.
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	if !json.Valid(payload) {
		return nil, domain.ErrMalformedPayload
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	event.Type = strings.ToLower(strings.TrimSpace(event.Type))
	if event.Type == "" {
		return nil, domain.ErrMalformedPayload
	}
	if strings.TrimSpace(event.Data.ID) == "" {
		return nil, domain.ErrMalformedPayload
	}
	return &event, nil
}

// OrderID resolves the target order from the event metadata.
func (e *WebhookEvent) OrderID() (snowflake.ID, error) {
	return OrderIDFromMetadata(e.Data.Metadata)
}

// OrderIDFromMetadata resolves the target order from processor metadata.
func OrderIDFromMetadata(metadata map[string]any) (snowflake.ID, error) {
	raw := readMetadataValue(metadata, "entry_id")
	if raw == "" {
		return 0, domain.ErrMalformedPayload
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, domain.ErrMalformedPayload
	}
	return id, nil
}

// FormID resolves the originating form from the event metadata. Zero when
// the processor did not echo it back.
func (e *WebhookEvent) FormID() int64 {
	raw := readMetadataValue(e.Data.Metadata, "form_id")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// EventID returns the stable deduplication key for this event: the
// processor-issued webhook id when present, otherwise the payment id plus the
// event kind. Never derived from wall-clock time, so redelivery dedupes.
func (e *WebhookEvent) EventID() string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return id
	}
	return strings.TrimSpace(e.Data.ID) + ":" + e.Type
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
