package cfddns

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Setup performs the startup work described by cfg and returns a Reconciler ready to Run.
//
// When cfg has no record IDs, the zone is listed once to resolve them.
// Every error returned is fatal: nothing here is retried.
func Setup(ctx context.Context, cfg *Config, logger logrus.FieldLogger) (*Reconciler, error) {
	if logger == nil {
		logger = discard
	}

	provider, err := NewCloudflare(cfg.Token, cfg.Zone, CloudflareOptions{
		BaseURL:    cfg.APIURL,
		HTTPClient: NewHTTPClient(cfg.Retries, logger),
		Logger:     logger,
		Timeout:    cfg.RequestTimeout(),
		RateLimit:  cfg.RateLimit,
		TTL:        cfg.TTL,
		Proxied:    cfg.Proxied,
	})
	if err != nil {
		return nil, err
	}

	if cfg.VerifyToken {
		if err := provider.VerifyToken(ctx); err != nil {
			return nil, err
		}
		logger.Info("api token verified")
	}

	var bindings []Binding
	if len(cfg.RecordIDs) > 0 {
		bindings, err = BindRecords(cfg.Domains, cfg.RecordIDs)
	} else {
		logger.WithField("zone", cfg.Zone).Info("looking up record ids")
		bindings, err = ResolveBindings(ctx, provider, cfg.Zone, cfg.Domains)
	}
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		logger.WithFields(logrus.Fields{"domain": b.Domain, "record": b.RecordID}).Debug("bound record")
	}

	resolver, err := cfg.resolver(logger)
	if err != nil {
		return nil, err
	}

	return New(bindings,
		UsingProvider(provider),
		UsingResolver(resolver),
		WithLogger(logger),
		WithInterval(cfg.Interval),
		OnlyOnChange(cfg.UpdateOnChange),
		SingleFlight(cfg.SingleFlight),
	)
}

func (c *Config) resolver(logger logrus.FieldLogger) (Resolver, error) {
	switch c.Discovery {
	case DiscoveryDNS:
		return DNSResolver("", "", c.RequestTimeout()), nil
	case DiscoveryInterface:
		return InterfaceResolver(c.Interface), nil
	case DiscoveryTrace, "":
		return TraceResolver(c.TraceURL, NewIPv4HTTPClient(c.Retries, logger), c.RequestTimeout())
	}
	return nil, fmt.Errorf("%w: DISCOVERY=%q", ErrInvalidValue, c.Discovery)
}
