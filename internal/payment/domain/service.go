package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
)

// OrderDetails is the trusted order summary handed to the relay origin so it
// can build the processor request itself. Amounts are minor units.
type OrderDetails struct {
	OrderID       snowflake.ID `json:"order_id"`
	FormID        int64        `json:"form_id"`
	AmountMinor   int64        `json:"amount"`
	Currency      string       `json:"currency"`
	Reference     string       `json:"reference"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	PublicKey     string       `json:"public_key"`
	Mode          string       `json:"mode"`
}

// CreateSessionRequest opens a hosted payment session for an existing order.
type CreateSessionRequest struct {
	OrderID    snowflake.ID
	SuccessURL string
	FailureURL string
	Country    string
}

// SessionResult is the created hosted session, enough for the caller to
// redirect the customer.
type SessionResult struct {
	SessionID   string `json:"session_id"`
	Token       string `json:"payment_session_token"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Service reconciles payment events from every delivery path into order
// updates.
type Service interface {
	// ApplyAction runs the full reconciliation step for one action: order
	// lookup, idempotency registration, status-guarded transition and
	// exactly-once fulfillment. ErrDuplicateEvent means the event was already
	// applied and the caller should report success.
	ApplyAction(ctx context.Context, action *PaymentAction) error

	// IngestWebhook authenticates, parses and applies one webhook delivery.
	IngestWebhook(ctx context.Context, payload []byte, authorization string) error

	// ResolveReturn handles the browser redirect: the hint is fetched from the
	// processor and only the processor's answer is applied. Returns the order
	// as it stands after reconciliation.
	ResolveReturn(ctx context.Context, orderID snowflake.ID, hint UnverifiedHint) (*orderdomain.Order, error)

	// RelayCallback applies a signature-verified confirmation pushed by the
	// relay origin. The payload may be a webhook envelope or a payment-details
	// object.
	RelayCallback(ctx context.Context, payload []byte) error

	// OrderDetails serves the relay's pre-payment order lookup.
	// ErrOrderAlreadyPaid when the order no longer needs payment.
	OrderDetails(ctx context.Context, orderID snowflake.ID) (*OrderDetails, error)

	// CreateSession opens a hosted payment session and moves the order to
	// processing.
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionResult, error)
}
