package fiscalinvoice

import (
	"github.com/notahub/notahub/internal/fiscalinvoice/repository"
	"github.com/notahub/notahub/internal/fiscalinvoice/service"
	"github.com/notahub/notahub/internal/fiscalinvoice/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("fiscalinvoice.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
