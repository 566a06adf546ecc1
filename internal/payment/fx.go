package payment

import (
	"github.com/formgate/formgate/internal/payment/checkout"
	"github.com/formgate/formgate/internal/payment/normalizer"
	"github.com/formgate/formgate/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		provideRegistry,
		normalizer.New,
		checkout.NewClient,
		service.New,
	),
)

// provideRegistry is the default, empty custom-kind registry. Deployments
// extend webhook handling by decorating this provider.
func provideRegistry() *normalizer.Registry {
	return normalizer.NewRegistry(nil)
}
