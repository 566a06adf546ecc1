package fulfillment

import (
	"github.com/formgate/formgate/internal/fulfillment/repository"
	"github.com/formgate/formgate/internal/fulfillment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
