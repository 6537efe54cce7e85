package auth

import (
	"os"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Options is the file backed configuration of the module
type Options struct {
	Session     SessionConfig    `yaml:"session"`
	RememberMe  RememberMeConfig `yaml:"remember_me"`
	Login       LoginConfig      `yaml:"login"`
	Credentials CredentialConfig `yaml:"credentials"`
	Codes       CodeConfig       `yaml:"codes"`
	Storage     StorageConfig    `yaml:"storage"`
	Logging     LoggingConfig    `yaml:"logging"`
}

type SessionConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	// MaxLifetime caps how far activity can push a session, 0 is unbounded
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RememberMeConfig struct {
	DefaultDays int `yaml:"default_days"`
	MaxDays     int `yaml:"max_days"`
}

type LoginConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	CoolDown    time.Duration `yaml:"cooldown"`
	// RateLimit is login calls per second across the process, 0 disables it
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// CredentialConfig are the digest parameters shared by the whole
// installation. Changing any of them needs a new Version.
type CredentialConfig struct {
	Version    string `yaml:"version"`
	Salt       string `yaml:"salt"`
	Iterations int    `yaml:"iterations"`
	KeyLength  int    `yaml:"key_length"`
}

type CodeConfig struct {
	// DefaultTTL applies to issued codes without an explicit TTL, 0 never expires
	DefaultTTL       time.Duration `yaml:"default_ttl"`
	GenerateAttempts int           `yaml:"generate_attempts"`
}

type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultOptions returns the configuration used when no file is given
func DefaultOptions() Options {
	return Options{
		Session: SessionConfig{
			InactivityTimeout: 30 * time.Minute,
			PollInterval:      60 * time.Second,
		},
		RememberMe: RememberMeConfig{
			DefaultDays: 30,
			MaxDays:     90,
		},
		Login: LoginConfig{
			MaxAttempts: 5,
			CoolDown:    24 * time.Hour,
			RateLimit:   5,
			RateBurst:   10,
		},
		Credentials: CredentialConfig{
			Version:    "v1",
			Salt:       "qcdash.credentials.v1",
			Iterations: 120000,
			KeyLength:  64,
		},
		Codes: CodeConfig{
			GenerateAttempts: 10,
		},
		Storage: StorageConfig{
			DSN: "file:qcdash.db?cache=shared",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

var versionRx = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// LoadConfig reads a yaml file on top of DefaultOptions and validates the result
func LoadConfig(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read configuration file").
			WithMetadata(map[string]any{"path": path})
	}
	return ParseConfig(data)
}

// ParseConfig decodes yaml on top of DefaultOptions and validates the result
func ParseConfig(data []byte) (*Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, newInputError("failed to parse configuration", err)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks every section of the configuration
func (o Options) Validate() error {
	if err := validation.ValidateStruct(&o.Session,
		validation.Field(&o.Session.InactivityTimeout, validation.Required),
		validation.Field(&o.Session.MaxLifetime, validation.Min(time.Duration(0))),
		validation.Field(&o.Session.PollInterval, validation.Min(time.Duration(0))),
	); err != nil {
		return newInputError("invalid session configuration", err)
	}

	if err := validation.ValidateStruct(&o.RememberMe,
		validation.Field(&o.RememberMe.DefaultDays, validation.Required, validation.Min(1)),
		validation.Field(&o.RememberMe.MaxDays, validation.Required, validation.Min(o.RememberMe.DefaultDays)),
	); err != nil {
		return newInputError("invalid remember me configuration", err)
	}

	if err := validation.ValidateStruct(&o.Login,
		validation.Field(&o.Login.MaxAttempts, validation.Min(0)),
		validation.Field(&o.Login.CoolDown, validation.Min(time.Duration(0))),
		validation.Field(&o.Login.RateLimit, validation.Min(0.0)),
		validation.Field(&o.Login.RateBurst, validation.Min(0)),
	); err != nil {
		return newInputError("invalid login configuration", err)
	}

	if err := validation.ValidateStruct(&o.Credentials,
		validation.Field(&o.Credentials.Version, validation.Required, validation.Match(versionRx)),
		validation.Field(&o.Credentials.Salt, validation.Required),
		validation.Field(&o.Credentials.Iterations, validation.Required, validation.Min(1)),
		validation.Field(&o.Credentials.KeyLength, validation.Required, validation.Min(16)),
	); err != nil {
		return newInputError("invalid credentials configuration", err)
	}

	if err := validation.ValidateStruct(&o.Codes,
		validation.Field(&o.Codes.DefaultTTL, validation.Min(time.Duration(0))),
		validation.Field(&o.Codes.GenerateAttempts, validation.Required, validation.Min(1)),
	); err != nil {
		return newInputError("invalid codes configuration", err)
	}

	if err := validation.ValidateStruct(&o.Logging,
		validation.Field(&o.Logging.Level, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return newInputError("invalid logging configuration", err)
	}

	return nil
}

func (o Options) GetInactivityTimeout() time.Duration {
	return o.Session.InactivityTimeout
}

func (o Options) GetMaxSessionLifetime() time.Duration {
	return o.Session.MaxLifetime
}

func (o Options) GetPollInterval() time.Duration {
	return o.Session.PollInterval
}

func (o Options) GetRememberMeDefaultDays() int {
	return o.RememberMe.DefaultDays
}

func (o Options) GetRememberMeMaxDays() int {
	return o.RememberMe.MaxDays
}

func (o Options) GetMaxLoginAttempts() int {
	return o.Login.MaxAttempts
}

func (o Options) GetLoginCoolDown() time.Duration {
	return o.Login.CoolDown
}

func (o Options) GetLoginRateLimit() float64 {
	return o.Login.RateLimit
}

func (o Options) GetLoginRateBurst() int {
	return o.Login.RateBurst
}

func (o Options) GetCodeDefaultTTL() time.Duration {
	return o.Codes.DefaultTTL
}

var _ Config = Options{}
