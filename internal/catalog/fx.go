package catalog

import (
	"github.com/gebeyahq/gebeya/internal/catalog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(repository.Provide),
)
