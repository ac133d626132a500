// Package config loads the run configuration with viper and resolves it into
// the exit policy, criteria and locations the poller works with.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/notify"
	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
	"github.com/example/recsched/internal/secrets"
)

const EnvPrefix = "RECSCHED"

type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Camping     GroupConfig       `mapstructure:"camping"`
	Permits     GroupConfig       `mapstructure:"permits"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Status      StatusConfig      `mapstructure:"status"`
}

type LoggerConfig struct {
	Level       string      `mapstructure:"level"`
	Format      string      `mapstructure:"format"`
	ServiceName string      `mapstructure:"service_name"`
	LogFile     string      `mapstructure:"log_file"`
	MaxSize     int         `mapstructure:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups"`
	MaxAge      int         `mapstructure:"max_age"`
	Compress    bool        `mapstructure:"compress"`
	AddSource   bool        `mapstructure:"add_source"`
	Colors      ColorConfig `mapstructure:"colors"`
}

type ColorConfig struct {
	Debug string `mapstructure:"debug"`
	Info  string `mapstructure:"info"`
	Warn  string `mapstructure:"warn"`
	Error string `mapstructure:"error"`
}

type BrowserConfig struct {
	Headless bool   `mapstructure:"headless"`
	ExecPath string `mapstructure:"exec_path"`
	// ProfileRoot holds one user data directory per location. Empty means
	// throwaway profiles.
	ProfileRoot string        `mapstructure:"profile_root"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Args        []string      `mapstructure:"args"`
}

type PreferencesConfig struct {
	URL       string        `mapstructure:"url"`
	Wait      time.Duration `mapstructure:"wait"`
	LongDelay time.Duration `mapstructure:"long_delay"`
	Guests    int           `mapstructure:"guests"`

	Login             bool   `mapstructure:"login"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	SealedCredentials string `mapstructure:"sealed_credentials"`

	// Exactly one of MaxIterations and Window.
	MaxIterations int    `mapstructure:"max_iterations"`
	Window        string `mapstructure:"window"`

	MinInterval time.Duration `mapstructure:"min_interval"`
	Concurrency int           `mapstructure:"concurrency"`
	// Handoff keeps an authenticated checkout open for the operator.
	// Defaults to on unless the browser is headless.
	Handoff *bool `mapstructure:"handoff"`
}

// GroupConfig is the set of locations of one kind and the details they share.
type GroupConfig struct {
	Locations []string      `mapstructure:"locations"`
	Details   DetailsConfig `mapstructure:"details"`
}

type DetailsConfig struct {
	// Start and End are mm/dd/yyyy. Permits use Start only. Missing or
	// unreadable dates mean the next available date.
	Start      string   `mapstructure:"start"`
	End        string   `mapstructure:"end"`
	Guests     int      `mapstructure:"guests"`
	TripType   []string `mapstructure:"trip_type"`
	SiteTypes  []string `mapstructure:"site_types"`
	Equipment  []string `mapstructure:"equipment"`
	Commercial bool     `mapstructure:"commercial"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type NotifyConfig struct {
	Email EmailConfig `mapstructure:"email"`
}

type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Server   string        `mapstructure:"server"`
	Port     int           `mapstructure:"port"`
	From     string        `mapstructure:"from"`
	Password string        `mapstructure:"password"`
	To       []string      `mapstructure:"to"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "recsched")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.timeout", "30s")

	// -- Preferences --
	v.SetDefault("preferences.url", "https://www.recreation.gov/")
	v.SetDefault("preferences.wait", "1s")
	v.SetDefault("preferences.long_delay", "5s")
	v.SetDefault("preferences.guests", 2)
	v.SetDefault("preferences.login", false)

	// -- Notify --
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.timeout", "30s")
}

// envBindings maps secrets that are usually kept out of the config file to
// their environment variables.
var envBindings = map[string]string{
	"preferences.password":  EnvPrefix + "_PASSWORD",
	"notify.email.password": EnvPrefix + "_SMTP_PASSWORD",
	"database.url":          EnvPrefix + "_DATABASE_URL",
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	p := c.Preferences
	if p.URL == "" {
		return errors.New("preferences.url is required")
	}
	if p.Guests < 1 {
		return fmt.Errorf("preferences.guests must be at least 1, got %d", p.Guests)
	}
	if p.Wait < 0 || p.LongDelay <= 0 {
		return errors.New("preferences.wait must not be negative and preferences.long_delay must be positive")
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("preferences.max_iterations must not be negative, got %d", p.MaxIterations)
	}
	if p.MaxIterations > 0 && p.Window != "" {
		return errors.New("set exactly one of preferences.max_iterations and preferences.window")
	}
	if p.MaxIterations == 0 && p.Window == "" {
		return errors.New("set one of preferences.max_iterations or preferences.window")
	}
	if p.Concurrency < 0 {
		return errors.New("preferences.concurrency must not be negative")
	}
	if len(c.Camping.Locations) == 0 && len(c.Permits.Locations) == 0 {
		return errors.New("no camping or permit locations configured")
	}
	if c.Notify.Email.Enabled && (c.Notify.Email.Server == "" || c.Notify.Email.From == "" || len(c.Notify.Email.To) == 0) {
		return errors.New("notify.email needs server, from and to when enabled")
	}
	return nil
}

// Policy resolves the exit policy. A window is "hh:mm:ss-hh:mm:ss" on the
// day of now and must not have ended yet.
func (c *Config) Policy(now time.Time) (poller.ExitPolicy, error) {
	p := c.Preferences
	if p.Window == "" {
		return poller.CountPolicy{Max: p.MaxIterations}, nil
	}
	start, end, err := parseWindow(p.Window, now)
	if err != nil {
		return nil, fmt.Errorf("preferences.window: %w", err)
	}
	if !end.After(now) {
		return nil, fmt.Errorf("preferences.window: end %s is not after the current time", end.Format("15:04:05"))
	}
	return poller.WindowPolicy{Start: start, End: end}, nil
}

func parseWindow(s string, now time.Time) (time.Time, time.Time, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed window %q, want hh:mm:ss-hh:mm:ss", s)
	}
	start, err := clock(from, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := clock(to, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s is not after start %s", strings.TrimSpace(to), strings.TrimSpace(from))
	}
	return start, end, nil
}

func clock(s string, now time.Time) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed time %q, want hh:mm:ss", s)
	}
	var hms [3]int
	limits := [3]int{23, 59, 59}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > limits[i] {
			return time.Time{}, fmt.Errorf("malformed time %q, want hh:mm:ss", s)
		}
		hms[i] = n
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, hms[0], hms[1], hms[2], 0, now.Location()), nil
}

// Criteria builds the criteria shared by all locations of kind.
func (c *Config) Criteria(kind reservation.Kind, logger *zap.Logger) (reservation.Criteria, error) {
	d := c.Details(kind)
	crit := reservation.Criteria{
		Guests:     c.Preferences.Guests,
		TripType:   d.TripType,
		SiteTypes:  d.SiteTypes,
		Equipment:  d.Equipment,
		Commercial: d.Commercial,
	}
	if d.Guests > 0 {
		crit.Guests = d.Guests
	}

	start, err := reservation.ParseNumericDate(d.Start)
	if err != nil {
		if d.Start != "" {
			logger.Warn("unreadable start date, searching for the next available date",
				zap.String("kind", string(kind)), zap.String("start", d.Start), zap.Error(err))
		}
		crit.NextAvailable = true
	} else {
		crit.Start = start
		if kind == reservation.KindCamping {
			end, err := reservation.ParseNumericDate(d.End)
			switch {
			case err != nil && d.End != "":
				logger.Warn("unreadable end date, staying one night",
					zap.String("end", d.End), zap.Error(err))
				crit.End = start.AddDate(0, 0, 1)
			case err != nil:
				crit.End = start.AddDate(0, 0, 1)
			default:
				crit.End = end
			}
		}
	}

	if err := crit.Validate(kind); err != nil {
		return crit, fmt.Errorf("%s details: %w", kind, err)
	}
	return crit, nil
}

func (c *Config) Details(kind reservation.Kind) DetailsConfig {
	if kind == reservation.KindPermit {
		return c.Permits.Details
	}
	return c.Camping.Details
}

// Locations parses every configured location, camping first.
func (c *Config) Locations() ([]reservation.LocationSpec, error) {
	var out []reservation.LocationSpec
	groups := []struct {
		kind reservation.Kind
		list []string
	}{
		{reservation.KindCamping, c.Camping.Locations},
		{reservation.KindPermit, c.Permits.Locations},
	}
	for _, g := range groups {
		for _, s := range g.list {
			loc, err := reservation.ParseLocation(g.kind, s)
			if err != nil {
				return nil, fmt.Errorf("%s location %q: %w", g.kind, s, err)
			}
			out = append(out, loc)
		}
	}
	return out, nil
}

// Credentials returns the account to log in with. Sealed credentials take
// precedence and need the passphrase they were sealed with.
func (c *Config) Credentials(passphrase string) (secrets.Credentials, error) {
	p := c.Preferences
	if p.SealedCredentials != "" {
		sealer, err := secrets.NewSealer(passphrase)
		if err != nil {
			return secrets.Credentials{}, fmt.Errorf("sealed credentials: %w", err)
		}
		return sealer.Open(p.SealedCredentials)
	}
	creds := secrets.Credentials{Username: p.Username, Password: p.Password}
	if p.Login && creds.Empty() {
		return creds, errors.New("preferences.login is set but no credentials are configured")
	}
	return creds, nil
}

// Handoff reports whether an authenticated checkout is left to the operator.
func (c *Config) Handoff() bool {
	if c.Preferences.Handoff != nil {
		return *c.Preferences.Handoff
	}
	return !c.Browser.Headless
}

func (c *Config) SMTP() notify.SMTPConfig {
	e := c.Notify.Email
	return notify.SMTPConfig{Server: e.Server, Port: e.Port, From: e.From, Password: e.Password, To: e.To, Timeout: e.Timeout}
}
