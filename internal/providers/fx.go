package providers

import (
	"github.com/jean-edouard-boulanger/finbot-sub000/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(func() *Registry {
		registry := NewRegistry()
		registry.Register(StaticProviderID, func() Adapter { return NewStaticAdapter() })
		return registry
	}),
	fx.Provide(func(cfg config.Config) (CredentialStore, error) {
		return NewAESCredentialStore(cfg.Secrets.CredentialsKey)
	}),
)
