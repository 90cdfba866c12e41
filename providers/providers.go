// Package providers assembles concrete adapters into a registry from
// configuration. It sits outside the root package so the adapters can
// import it without a cycle.
package providers

import (
	goerrors "github.com/goliatone/go-errors"
	social "github.com/goliatone/go-social"
	"github.com/goliatone/go-social/providers/facebook"
	"github.com/goliatone/go-social/providers/google"
	"github.com/goliatone/go-social/providers/instagram"
	"github.com/goliatone/go-social/providers/linkedin"
	"github.com/goliatone/go-social/providers/twitter"
)

// Registry builds a provider registry with one adapter per provider that
// has credentials configured. Threads registers the instagram adapter under
// its alias; both ride the same Meta app.
func Registry(cfg *social.Config) *social.Registry {
	registry := social.NewRegistry()

	if creds, ok := cfg.Provider(social.ProviderGoogle); ok {
		registry.Register(google.New(google.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderGoogle),
			Scopes:       creds.Scopes,
		}))
	}

	if creds, ok := cfg.Provider(social.ProviderInstagram); ok {
		registry.Register(instagram.New(instagram.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderInstagram),
			Scopes:       creds.Scopes,
		}))
	}

	if creds, ok := cfg.Provider(social.ProviderTwitter); ok {
		registry.Register(twitter.New(twitter.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderTwitter),
			Scopes:       creds.Scopes,
		}))
	}

	if creds, ok := cfg.Provider(social.ProviderLinkedIn); ok {
		registry.Register(linkedin.New(linkedin.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderLinkedIn),
			Scopes:       creds.Scopes,
		}))
	}

	if creds, ok := cfg.Provider(social.ProviderFacebook); ok {
		registry.Register(facebook.New(facebook.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderFacebook),
			Scopes:       creds.Scopes,
		}))
	}

	if creds, ok := cfg.Provider(social.ProviderThreads); ok {
		registry.Register(instagram.New(instagram.Config{
			Name:         social.ProviderThreads,
			DisplayName:  "Threads",
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			CallbackURL:  cfg.CallbackURL(social.ProviderThreads),
			Scopes:       creds.Scopes,
		}))
	}

	return registry
}

// FromConfig builds a fully wired Connector: registry from the configured
// credentials, encrypted token store over repo, state issuer, exchange
// client, and refresher using the configured intervals. Options run after
// the built-in wiring, so callers can still swap any piece.
func FromConfig(cfg *social.Config, repo social.ConnectionRepository, opts ...social.ConnectorOption) (*social.Connector, error) {
	registry := Registry(cfg)
	if len(registry.Names()) == 0 {
		return nil, goerrors.New("no social providers configured", goerrors.CategoryValidation).
			WithMetadata(map[string]any{
				"hint": "set SOCIAL_<PROVIDER>_CLIENT_ID and _CLIENT_SECRET",
			})
	}

	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}

	cipher, err := social.NewTokenCipher(key)
	if err != nil {
		return nil, err
	}

	store := social.NewTokenStore(repo, cipher)
	exchange := social.NewExchangeClient(registry)
	refresher := social.NewRefresher(store, exchange, registry).
		WithMargin(cfg.RefreshMargin).
		WithSweepInterval(cfg.SweepInterval)

	wired := []social.ConnectorOption{
		social.WithStateIssuer(social.NewStateIssuer(cfg.StateTTL)),
		social.WithExchangeClient(exchange),
		social.WithRefresher(refresher),
	}

	return social.NewConnector(registry, store, append(wired, opts...)...), nil
}
