package domain

import "errors"

var (
	// ErrMalformedPayload means required fields were missing or unparsable;
	// nothing was applied.
	ErrMalformedPayload = errors.New("malformed_payload")
	// ErrUnauthenticated means a signature or shared secret did not check out.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrValidationFailed means a trusted response's amount/currency did not
	// match the order. The order keeps its prior status for manual review.
	ErrValidationFailed = errors.New("validation_failed")
	// ErrDuplicateEvent is the idempotent-replay outcome. Callers treat it as
	// success.
	ErrDuplicateEvent = errors.New("duplicate_event")
	// ErrGatewayUnavailable covers network errors, timeouts and non-2xx
	// responses from the processor. Retry belongs to the caller.
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	// ErrUnhandledEventKind marks webhook kinds this system deliberately does
	// not act on. Acknowledged upstream so the processor stops redelivering.
	ErrUnhandledEventKind = errors.New("unhandled_event_kind")
	// ErrOrderAlreadyPaid guards the relay's get-payment-details exchange.
	ErrOrderAlreadyPaid = errors.New("order_already_paid")
)
