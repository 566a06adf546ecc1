package normalizer

import (
	"strings"

	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"github.com/formgate/formgate/internal/payment/domain"
)

// Handler normalizes a custom webhook event kind into a canonical action.
type Handler func(event *WebhookEvent, order *orderdomain.Order) (*domain.PaymentAction, error)

// Registry is the explicit extension point for webhook kinds outside the
// built-in mapping. The ActionKind union stays closed; extensions produce one
// of its variants.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers map[string]Handler) *Registry {
	registry := &Registry{handlers: map[string]Handler{}}
	for eventType, handler := range handlers {
		if handler == nil {
			continue
		}
		eventType = strings.ToLower(strings.TrimSpace(eventType))
		if eventType == "" {
			continue
		}
		registry.handlers[eventType] = handler
	}
	return registry
}

func (r *Registry) Lookup(eventType string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	handler, ok := r.handlers[strings.ToLower(strings.TrimSpace(eventType))]
	return handler, ok
}
