package taxprofile

import (
	"github.com/notahub/notahub/internal/taxprofile/repository"
	"github.com/notahub/notahub/internal/taxprofile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("taxprofile.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
