// Package config loads the CleanCity TOML configuration.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/sdrshn-nmbr/cleancity/internal/billing"
	"github.com/sdrshn-nmbr/cleancity/internal/db"
	"github.com/sdrshn-nmbr/cleancity/internal/storage"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid config")

// customerIDPattern keeps ids usable as a single URL path segment and in
// storage keys without escaping.
var customerIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Config struct {
	Billing   BillingConfig    `toml:"billing"`
	Storage   StorageConfig    `toml:"storage"`
	Server    ServerConfig     `toml:"server"`
	Log       LogConfig        `toml:"log"`
	Customers []CustomerConfig `toml:"customers"`
}

type BillingConfig struct {
	Deployment string `toml:"deployment"`
	MonthlyFee string `toml:"monthly_fee"`
	Currency   string `toml:"currency"`
	Timezone   string `toml:"timezone"`
	// DemoSeed marks about seven in ten generated records paid. Demo
	// rosters only.
	DemoSeed bool   `toml:"demo_seed"`
	DemoSalt string `toml:"demo_salt"`
}

type StorageConfig struct {
	Backend            string      `toml:"backend"`
	Path               string      `toml:"path"`
	CompactionInterval string      `toml:"compaction_interval"`
	CompactAfterWrites uint32      `toml:"compact_after_writes"`
	Retry              RetryConfig `toml:"retry"`
}

type RetryConfig struct {
	MaxAttempts uint32 `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
	MaxDelay    string `toml:"max_delay"`
}

type ServerConfig struct {
	Addr              string `toml:"addr"`
	ReadTimeout       string `toml:"read_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
	CountdownInterval string `toml:"countdown_interval"`
	FeedSize          int    `toml:"feed_size"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type CustomerConfig struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	Unit     string `toml:"unit"`
	Location string `toml:"location"`
}

// DefaultConfig returns a config that runs a small demo roster against an
// in-memory store.
func DefaultConfig() Config {
	return Config{
		Billing: BillingConfig{
			Deployment: billing.DefaultDeployment,
			MonthlyFee: "250",
			Currency:   billing.DefaultCurrency,
			Timezone:   "Africa/Nairobi",
		},
		Storage: StorageConfig{
			Backend:            storage.BackendMemory,
			Path:               "cleancity.db",
			CompactionInterval: "0s",
			CompactAfterWrites: 64,
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseDelay:   "50ms",
				MaxDelay:    "2s",
			},
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			ReadTimeout:       "10s",
			WriteTimeout:      "10s",
			ShutdownTimeout:   "5s",
			CountdownInterval: "1s",
			FeedSize:          billing.DefaultFeedSize,
		},
		Log: LogConfig{
			Level: "info",
		},
		Customers: []CustomerConfig{
			{ID: "greenview-apartments", Name: "Greenview Apartments", Unit: "Block A", Location: "Kilimani"},
			{ID: "mama-njeri-kiosk", Name: "Mama Njeri Kiosk", Unit: "Stall 14", Location: "Gikomba"},
			{ID: "riverside-court", Name: "Riverside Court", Unit: "House 7", Location: "Westlands"},
		},
	}
}

// Load reads path over the defaults. Keys not known to Config are an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	// A file that lists customers replaces the sample roster.
	cfg.Customers = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	if !md.IsDefined("customers") {
		cfg.Customers = DefaultConfig().Customers
	}
	return cfg, cfg.Validate()
}

// Validate checks every field that is parsed at use.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.Fee(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendDisk, storage.BackendSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, disk, sqlite", c.Storage.Backend))
	}
	if _, err := c.CompactionInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RetryPolicy(); err != nil {
		errs = append(errs, err)
	}
	for _, field := range []struct{ name, value string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"server.countdown_interval", c.Server.CountdownInterval},
	} {
		if _, err := parseDuration(field.name, field.value); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Server.FeedSize < 0 {
		errs = append(errs, errors.New("server.feed_size must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	seen := make(map[string]bool, len(c.Customers))
	for i, cust := range c.Customers {
		switch {
		case cust.ID == "":
			errs = append(errs, fmt.Errorf("customers[%d].id is required", i))
		case !customerIDPattern.MatchString(cust.ID):
			errs = append(errs, fmt.Errorf("customers[%d].id %q may only contain letters, digits, '.', '_' and '-'", i, cust.ID))
		case seen[cust.ID]:
			errs = append(errs, fmt.Errorf("customers[%d].id %q is duplicated", i, cust.ID))
		}
		seen[cust.ID] = true
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c Config) Fee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Billing.MonthlyFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("billing.monthly_fee: %w", err)
	}
	if !fee.IsPositive() {
		return decimal.Zero, fmt.Errorf("billing.monthly_fee: %w", billing.ErrInvalidFee)
	}
	return fee, nil
}

// Location resolves billing.timezone. Empty means the host's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Billing.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("billing.timezone: %w", err)
	}
	return loc, nil
}

func (c Config) Seeder() billing.Seeder {
	if c.Billing.DemoSeed {
		return billing.DemoSeeder(c.Billing.DemoSalt)
	}
	return billing.UnpaidSeeder
}

func (c Config) Profiles() []billing.CustomerProfile {
	profiles := make([]billing.CustomerProfile, 0, len(c.Customers))
	for _, cust := range c.Customers {
		profiles = append(profiles, billing.CustomerProfile{
			ID:       cust.ID,
			Name:     cust.Name,
			Unit:     cust.Unit,
			Location: cust.Location,
		})
	}
	return profiles
}

func (c Config) CompactionInterval() (time.Duration, error) {
	return parseDuration("storage.compaction_interval", c.Storage.CompactionInterval)
}

func (c Config) RetryPolicy() (db.RetryPolicy, error) {
	base, err := parseDuration("storage.retry.base_delay", c.Storage.Retry.BaseDelay)
	if err != nil {
		return db.RetryPolicy{}, err
	}
	maxDelay, err := parseDuration("storage.retry.max_delay", c.Storage.Retry.MaxDelay)
	if err != nil {
		return db.RetryPolicy{}, err
	}
	policy := db.RetryPolicy{
		MaxAttempts: c.Storage.Retry.MaxAttempts,
		BaseDelay:   base,
		MaxDelay:    maxDelay,
	}
	if err := policy.Validate(); err != nil {
		return db.RetryPolicy{}, fmt.Errorf("storage.retry: %w", err)
	}
	return policy, nil
}

// Duration returns a parsed server duration, or fallback when the field
// is empty.
func (s ServerConfig) Duration(name string, fallback time.Duration) time.Duration {
	var raw string
	switch name {
	case "read_timeout":
		raw = s.ReadTimeout
	case "write_timeout":
		raw = s.WriteTimeout
	case "shutdown_timeout":
		raw = s.ShutdownTimeout
	case "countdown_interval":
		raw = s.CountdownInterval
	}
	d, err := parseDuration(name, raw)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return d, nil
}
