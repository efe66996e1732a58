// Package clouds wires provider pricing sources into the resolver registry.
// Providers are modular: adding a cloud means adding a subpackage that
// implements pricing.LiveSource and registering it here.
package clouds

import (
	"context"

	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/clouds/aws"
	"github.com/honeybadger-technologies/finopsguard/clouds/gcp"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
	"github.com/honeybadger-technologies/finopsguard/internal/config"
)

// BuildRegistry constructs the live source registry from configuration.
// A source that fails to initialize is skipped with a warning; resolution
// for that provider then relies on the static catalog.
func BuildRegistry(ctx context.Context, cfg config.PricingConfig, log *zap.Logger) *pricing.SourceRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	reg := pricing.NewSourceRegistry()
	if !cfg.LiveEnabled {
		return reg
	}

	if cfg.AWSEnabled {
		src, err := aws.New(ctx, log.Named("aws-pricing"))
		if err != nil {
			log.Warn("aws live pricing unavailable", zap.Error(err))
		} else {
			reg.Register(src)
		}
	}

	if cfg.GCPEnabled {
		if cfg.GCPBillingAPIKey == "" {
			log.Warn("gcp live pricing enabled without GCP_BILLING_API_KEY, skipping")
		} else {
			reg.Register(gcp.New(cfg.GCPBillingAPIKey, log.Named("gcp-pricing")))
		}
	}

	return reg
}
