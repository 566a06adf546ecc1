package feed

import (
	"github.com/formgate/formgate/internal/feed/repository"
	"github.com/formgate/formgate/internal/feed/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feed",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
