package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
)

// ActionKind is the closed set of canonical payment actions. Custom webhook
// event kinds extend behavior through the normalizer's registry, never by
// adding variants here.
type ActionKind string

const (
	ActionCompletePayment   ActionKind = "complete_payment"
	ActionFailPayment       ActionKind = "fail_payment"
	ActionAddPendingPayment ActionKind = "add_pending_payment"
)

// ActionSource names the delivery path an action was normalized from.
type ActionSource string

const (
	SourceWebhook      ActionSource = "webhook"
	SourceVerification ActionSource = "verification"
	SourceRelay        ActionSource = "relay"
)

// PaymentAction is the canonical, ephemeral event applied to an order.
// EventID is derived from processor-issued identifiers only, so redelivery of
// the same real-world event always produces the same key.
type PaymentAction struct {
	EventID        string
	Kind           ActionKind
	OrderID        snowflake.ID
	TransactionID  string
	Amount         VerifiedAmount
	Note           string
	ErrorMessage   string
	PaymentMethod  string
	ReadyToFulfill bool
	Source         ActionSource
	OccurredAt     time.Time
}

// VerifiedAmount is an amount/currency pair whose values came from a trusted
// source: the processor's verification API or a signature-checked relay
// payload. Client-controlled input only ever appears as UnverifiedHint.
type VerifiedAmount struct {
	MinorUnits int64
	Currency   string
}

// UnverifiedHint is a client-supplied pointer (a session or payment id from a
// redirect). It is only ever used to fetch ground truth, never trusted as a
// payment result.
type UnverifiedHint string

func (h UnverifiedHint) String() string { return string(h) }

// allowedFrom enumerates the full transition table: the order statuses each
// action kind may transition from. Anything else is an idempotent no-op.
var allowedFrom = map[ActionKind]map[orderdomain.PaymentStatus]struct{}{
	ActionCompletePayment: {
		orderdomain.StatusUnpaid:     {},
		orderdomain.StatusProcessing: {},
		orderdomain.StatusPending:    {},
		orderdomain.StatusFailed:     {}, // fresh checkout attempt after decline
	},
	ActionFailPayment: {
		orderdomain.StatusUnpaid:     {},
		orderdomain.StatusProcessing: {},
		orderdomain.StatusPending:    {},
	},
	ActionAddPendingPayment: {
		// A pending notice only moves a fresh order. Orders already
		// Processing or Pending keep their status.
		orderdomain.StatusUnpaid: {},
	},
}

// Transitions reports whether kind applies to an order currently in status,
// and the status it would move to.
func (k ActionKind) Transitions(status orderdomain.PaymentStatus) (orderdomain.PaymentStatus, bool) {
	from, ok := allowedFrom[k]
	if !ok {
		return status, false
	}
	if _, ok := from[status]; !ok {
		return status, false
	}
	switch k {
	case ActionCompletePayment:
		return orderdomain.StatusPaid, true
	case ActionFailPayment:
		return orderdomain.StatusFailed, true
	case ActionAddPendingPayment:
		return orderdomain.StatusPending, true
	default:
		return status, false
	}
}
