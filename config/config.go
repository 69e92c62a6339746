// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

type Config struct {
	Auth      Auth
	Database  Database
	HTTP      HTTP
	Redis     Redis
	RateLimit RateLimit
	AMQP      AMQP
	Log       Log
}

// Auth satisfies auth.Config
type Auth struct {
	Secret           string        `env:"AUTH_SECRET,required"`
	PreviousSecret   string        `env:"AUTH_PREVIOUS_SECRET"`
	Expiration       time.Duration `env:"AUTH_EXPIRATION" envDefault:"24h"`
	Issuer           string        `env:"AUTH_ISSUER"`
	DefaultRole      string        `env:"AUTH_DEFAULT_ROLE" envDefault:"OWNER"`
	DeterministicIDs bool          `env:"AUTH_DETERMINISTIC_IDS"`
	PhoneRegion      string        `env:"AUTH_PHONE_REGION" envDefault:"ES"`
	PublicPaths      []string      `env:"AUTH_PUBLIC_PATHS" envSeparator:","`
	PageSize         int           `env:"PAGE_SIZE" envDefault:"20"`
}

type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN" envDefault:"file::memory:?cache=shared"`
	Debug  bool   `env:"DB_DEBUG"`
}

type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"`
}

type RateLimit struct {
	Enabled        bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"10"`
	RefillTokens   int           `env:"RATE_LIMIT_REFILL_TOKENS" envDefault:"1"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"6s"`
	TTL            time.Duration `env:"RATE_LIMIT_TTL" envDefault:"10m"`
	KeyStrategy    string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip"`
	Prefix         string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl:login"`
}

type AMQP struct {
	URL   string `env:"AMQP_URL"`
	Queue string `env:"AMQP_QUEUE" envDefault:"auth.activity"`
}

type Log struct {
	Trace  bool   `env:"LOG_TRACE"`
	Format string `env:"LOG_FORMAT" envDefault:"pretty"`
}

// Load reads the optional dotenv files and parses the environment
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to load env file").
				WithMetadata(map[string]any{"file": f})
		}
	}
	return parse(env.Options{})
}

// FromMap parses configuration from explicit key/value pairs
func FromMap(values map[string]string) (*Config, error) {
	return parse(env.Options{Environment: values})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	err := validation.Errors{
		"auth":     c.Auth.Validate(),
		"database": c.Database.Validate(),
		"log":      c.Log.Validate(),
	}.Filter()
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for k, v := range verrs {
			fields[k] = v.Error()
		}
	}
	return errors.New("invalid configuration", errors.CategoryValidation).
		WithMetadata(map[string]any{"fields": fields})
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.Expiration, validation.Required, validation.Min(time.Second)),
		validation.Field(&a.DefaultRole, validation.Required),
		validation.Field(&a.PhoneRegion, validation.Required, validation.Length(2, 2)),
		validation.Field(&a.PageSize, validation.Min(1)),
	)
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Format, validation.In("pretty", "json")),
	)
}

func (a Auth) GetSigningKey() string {
	return a.Secret
}

func (a Auth) GetTokenExpiration() time.Duration {
	return a.Expiration
}

func (a Auth) GetIssuer() string {
	return a.Issuer
}

func (a Auth) GetDefaultRole() string {
	return a.DefaultRole
}

func (a Auth) GetPhoneRegion() string {
	return a.PhoneRegion
}

func (a Auth) GetDeterministicIDs() bool {
	return a.DeterministicIDs
}
