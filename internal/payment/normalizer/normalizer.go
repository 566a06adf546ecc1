package normalizer

import (
	"fmt"
	"strings"

	"github.com/formgate/formgate/internal/currency"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"github.com/formgate/formgate/internal/payment/checkout"
	"github.com/formgate/formgate/internal/payment/domain"
)

// Normalizer maps each delivery path's heterogeneous payload into one
// canonical PaymentAction.
type Normalizer struct {
	conv     *currency.Converter
	registry *Registry
}

func New(conv *currency.Converter, registry *Registry) *Normalizer {
	return &Normalizer{conv: conv, registry: registry}
}

var webhookKinds = map[string]domain.ActionKind{
	WebhookPaymentApproved:        domain.ActionCompletePayment,
	WebhookPaymentCaptured:        domain.ActionCompletePayment,
	WebhookPaymentDeclined:        domain.ActionFailPayment,
	WebhookPaymentCanceled:        domain.ActionFailPayment,
	WebhookPaymentFailed:          domain.ActionFailPayment,
	WebhookPaymentCaptureDeclined: domain.ActionFailPayment,
	WebhookPaymentPending:         domain.ActionAddPendingPayment,
}

// Processor statuses that settle a payment on the verification path.
var completedStatuses = map[string]struct{}{
	"authorized":    {},
	"captured":      {},
	"paid":          {},
	"card verified": {},
}

// The redirect-driven relay path additionally accepts capture-in-flight
// statuses; the capture webhook reconciles the remainder.
var completedStatusesLenient = map[string]struct{}{
	"partially captured": {},
	"deferred capture":   {},
}

var failedStatuses = map[string]struct{}{
	"declined": {},
	"canceled": {},
}

// FromWebhook maps a webhook event to a canonical action. Unknown kinds
// consult the custom-kind registry before being reported as unhandled.
func (n *Normalizer) FromWebhook(event *WebhookEvent, order *orderdomain.Order) (*domain.PaymentAction, error) {
	if event == nil || order == nil {
		return nil, domain.ErrMalformedPayload
	}

	kind, ok := webhookKinds[event.Type]
	if !ok {
		if handler, found := n.registry.Lookup(event.Type); found {
			return handler(event, order)
		}
		return nil, domain.ErrUnhandledEventKind
	}

	action := &domain.PaymentAction{
		EventID:       event.EventID(),
		Kind:          kind,
		OrderID:       order.ID,
		TransactionID: strings.TrimSpace(event.Data.ID),
		Amount: domain.VerifiedAmount{
			MinorUnits: event.Data.Amount,
			Currency:   strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
		},
		Source:         domain.SourceWebhook,
		ReadyToFulfill: kind == domain.ActionCompletePayment && !order.IsFulfilled,
	}

	switch kind {
	case domain.ActionFailPayment:
		action.ErrorMessage = checkout.DeclineMessage(event.Data.ResponseCode, event.Data.ResponseSummary)
		action.Note = fmt.Sprintf("Payment failed for transaction %s.", action.TransactionID)
	case domain.ActionAddPendingPayment:
		action.Note = fmt.Sprintf("Payment pending for transaction %s.", action.TransactionID)
	}

	return action, nil
}

// FromVerification maps a session-verification response to a canonical
// action. The response amount must match the order before it is trusted.
func (n *Normalizer) FromVerification(details *checkout.PaymentDetails, order *orderdomain.Order) (*domain.PaymentAction, error) {
	if details == nil || order == nil {
		return nil, domain.ErrMalformedPayload
	}

	verified := details.VerifiedAmount()
	expected := n.conv.ToMinorUnits(order.PaymentAmount, order.Currency)
	if !n.conv.Validate(expected, verified.MinorUnits, order.Currency, verified.Currency) {
		return nil, domain.ErrValidationFailed
	}

	return n.fromStatus(details, order, domain.SourceVerification, false)
}

// FromRelay maps a signature-verified relay confirmation to a canonical
// action, with the redirect path's lenient completion statuses.
func (n *Normalizer) FromRelay(details *checkout.PaymentDetails, order *orderdomain.Order) (*domain.PaymentAction, error) {
	if details == nil || order == nil {
		return nil, domain.ErrMalformedPayload
	}
	return n.fromStatus(details, order, domain.SourceRelay, true)
}

func (n *Normalizer) fromStatus(details *checkout.PaymentDetails, order *orderdomain.Order, source domain.ActionSource, lenient bool) (*domain.PaymentAction, error) {
	status := strings.ToLower(strings.TrimSpace(details.Status))
	if status == "" {
		return nil, domain.ErrMalformedPayload
	}

	action := &domain.PaymentAction{
		OrderID:       order.ID,
		TransactionID: strings.TrimSpace(details.ID),
		Amount:        details.VerifiedAmount(),
		PaymentMethod: paymentMethod(details.Source),
		Source:        source,
	}

	_, completed := completedStatuses[status]
	if !completed && lenient {
		_, completed = completedStatusesLenient[status]
	}

	switch {
	case completed:
		action.Kind = domain.ActionCompletePayment
		action.ReadyToFulfill = !order.IsFulfilled
	case status == "pending":
		action.Kind = domain.ActionAddPendingPayment
		action.Note = fmt.Sprintf("Payment pending for transaction %s.", action.TransactionID)
	default:
		if _, failed := failedStatuses[status]; !failed {
			action.Note = fmt.Sprintf("Unexpected payment status %q.", status)
		}
		action.Kind = domain.ActionFailPayment
		if reason := checkout.FirstDeclineReason(details.Actions); reason != "" {
			action.ErrorMessage = reason
		} else {
			action.ErrorMessage = fmt.Sprintf("Payment %s.", status)
		}
	}

	action.EventID = action.TransactionID + ":" + string(action.Kind)
	return action, nil
}

func paymentMethod(source checkout.PaymentSource) string {
	scheme := strings.TrimSpace(source.Scheme)
	if scheme != "" {
		return scheme
	}
	if sourceType := strings.TrimSpace(source.Type); sourceType != "" {
		return sourceType
	}
	return "card"
}
