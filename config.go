package social

import (
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Canonical provider names.
const (
	ProviderGoogle    = "google"
	ProviderInstagram = "instagram"
	ProviderTwitter   = "twitter"
	ProviderLinkedIn  = "linkedin"
	ProviderFacebook  = "facebook"
	ProviderThreads   = "threads"
)

// Credentials holds one provider's OAuth client pair.
type Credentials struct {
	ClientID     string   `env:"CLIENT_ID" json:"client_id"`
	ClientSecret string   `env:"CLIENT_SECRET" json:"-"`
	Scopes       []string `env:"SCOPES" envSeparator:"," json:"scopes,omitempty"`
}

// Empty reports whether no credentials were provided, meaning the provider
// is disabled.
func (c Credentials) Empty() bool {
	return c.ClientID == "" && c.ClientSecret == ""
}

// Validate checks that both halves of the pair are present.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
	)
}

// AppCredentials is Credentials under Meta's app naming. Facebook dashboards
// hand out an App ID and App Secret; the values fill the same OAuth roles.
type AppCredentials struct {
	AppID     string   `env:"APP_ID" json:"app_id"`
	AppSecret string   `env:"APP_SECRET" json:"-"`
	Scopes    []string `env:"SCOPES" envSeparator:"," json:"scopes,omitempty"`
}

// Credentials converts to the canonical pair.
func (a AppCredentials) Credentials() Credentials {
	return Credentials{ClientID: a.AppID, ClientSecret: a.AppSecret, Scopes: a.Scopes}
}

// Config holds environment-based configuration for the social subsystem.
// A provider with no credentials is simply disabled; one with a partial
// pair fails validation.
type Config struct {
	// RedirectBaseURL is the public origin providers redirect back to.
	RedirectBaseURL string `env:"SOCIAL_REDIRECT_BASE_URL" envDefault:"http://localhost:8501"`
	// CallbackPathPrefix is where the HTTP controller mounts, used to build
	// per-provider redirect URIs.
	CallbackPathPrefix string `env:"SOCIAL_CALLBACK_PATH_PREFIX" envDefault:"/auth"`
	// EncryptionKeyValue protects tokens at rest. Base64 or raw; 16, 24, or
	// 32 bytes once decoded.
	EncryptionKeyValue string `env:"SOCIAL_ENCRYPTION_KEY"`

	StateTTL      time.Duration `env:"SOCIAL_STATE_TTL" envDefault:"10m"`
	RefreshMargin time.Duration `env:"SOCIAL_REFRESH_MARGIN" envDefault:"5m"`
	SweepInterval time.Duration `env:"SOCIAL_SWEEP_INTERVAL" envDefault:"1m"`

	Google    Credentials    `envPrefix:"SOCIAL_GOOGLE_"`
	Instagram Credentials    `envPrefix:"SOCIAL_INSTAGRAM_"`
	Twitter   Credentials    `envPrefix:"SOCIAL_TWITTER_"`
	LinkedIn  Credentials    `envPrefix:"SOCIAL_LINKEDIN_"`
	Facebook  AppCredentials `envPrefix:"SOCIAL_FACEBOOK_"`
	// Threads falls back to the Instagram pair when left empty; both ride
	// the same Meta app.
	Threads Credentials `envPrefix:"SOCIAL_THREADS_"`
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one is present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the base settings and every configured provider pair.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.RedirectBaseURL, validation.Required, is.URL),
		validation.Field(&c.CallbackPathPrefix, validation.Required),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid social config")
	}

	for _, name := range []string{
		ProviderGoogle, ProviderInstagram, ProviderTwitter,
		ProviderLinkedIn, ProviderFacebook, ProviderThreads,
	} {
		creds := c.rawCredentials(name)
		if creds.Empty() {
			continue
		}
		if err := creds.Validate(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid provider credentials").
				WithMetadata(map[string]any{"provider": name})
		}
	}

	return nil
}

// EncryptionKey decodes the configured key for the token cipher.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.EncryptionKeyValue == "" {
		return nil, goerrors.New("SOCIAL_ENCRYPTION_KEY is required", goerrors.CategoryValidation)
	}
	return ParseEncryptionKey(c.EncryptionKeyValue)
}

// CallbackURL builds the redirect URI registered with a provider:
// {RedirectBaseURL}{CallbackPathPrefix}/{provider}/callback.
func (c *Config) CallbackURL(provider string) string {
	base := strings.TrimSuffix(c.RedirectBaseURL, "/")
	prefix := "/" + strings.Trim(c.CallbackPathPrefix, "/")
	return base + prefix + "/" + provider + "/callback"
}

// Provider returns the effective credentials for a provider name, applying
// the Threads fallback. ok is false when the provider is disabled.
func (c *Config) Provider(name string) (Credentials, bool) {
	creds := c.rawCredentials(name)
	if name == ProviderThreads && creds.Empty() {
		creds = c.Instagram
	}
	if creds.Empty() {
		return Credentials{}, false
	}
	return creds, true
}

// EnabledProviders returns the names with usable credentials, sorted.
func (c *Config) EnabledProviders() []string {
	var names []string
	for _, name := range []string{
		ProviderGoogle, ProviderInstagram, ProviderTwitter,
		ProviderLinkedIn, ProviderFacebook, ProviderThreads,
	} {
		if _, ok := c.Provider(name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Config) rawCredentials(name string) Credentials {
	switch name {
	case ProviderGoogle:
		return c.Google
	case ProviderInstagram:
		return c.Instagram
	case ProviderTwitter:
		return c.Twitter
	case ProviderLinkedIn:
		return c.LinkedIn
	case ProviderFacebook:
		return c.Facebook.Credentials()
	case ProviderThreads:
		return c.Threads
	default:
		return Credentials{}
	}
}
