package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
	"github.com/example/recsched/internal/secrets"
)

const sample = `
preferences:
  max_iterations: 40
  login: true
  username: camper@example.com
  password: hunter2
camping:
  locations:
    - "Yosemite:Upper Pines:A12,A13"
    - "North Pines:"
  details:
    start: 06/10/2025
    end: 06/12/2025
    site_types: [Standard]
permits:
  locations:
    - "Enchantment Permit Area:Colchuck Zone,Core Enchantment Zone"
  details:
    guests: 4
    trip_type: [Overnight]
`

func load(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	return Load(v)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := load(t, sample)
	require.NoError(t, err)

	assert.Equal(t, "https://www.recreation.gov/", cfg.Preferences.URL)
	assert.Equal(t, time.Second, cfg.Preferences.Wait)
	assert.Equal(t, 5*time.Second, cfg.Preferences.LongDelay)
	assert.Equal(t, 2, cfg.Preferences.Guests)
	assert.Equal(t, 30*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Handoff(), "visible browser hands off to the operator")

	policy, err := cfg.Policy(time.Now())
	require.NoError(t, err)
	assert.Equal(t, poller.CountPolicy{Max: 40}, policy)
}

func TestLoadBindsSecretEnv(t *testing.T) {
	t.Setenv("RECSCHED_PASSWORD", "from-env")
	t.Setenv("RECSCHED_SMTP_PASSWORD", "smtp-secret")
	t.Setenv("RECSCHED_DATABASE_URL", "postgres://localhost/recsched")

	cfg, err := load(t, sample)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Preferences.Password)
	assert.Equal(t, "smtp-secret", cfg.Notify.Email.Password)
	assert.Equal(t, "postgres://localhost/recsched", cfg.Database.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "both policies",
			yaml: "preferences: {max_iterations: 3, window: '07:00:00-07:15:00'}\ncamping: {locations: ['a:b:c']}",
			want: "exactly one",
		},
		{
			name: "no policy",
			yaml: "camping: {locations: ['a:b:c']}",
			want: "set one of",
		},
		{
			name: "no locations",
			yaml: "preferences: {max_iterations: 3}",
			want: "no camping or permit locations",
		},
		{
			name: "zero guests",
			yaml: "preferences: {max_iterations: 3, guests: 0}\ncamping: {locations: ['a:b:c']}",
			want: "guests",
		},
		{
			name: "email without recipients",
			yaml: "preferences: {max_iterations: 3}\ncamping: {locations: ['a:b:c']}\nnotify: {email: {enabled: true, server: smtp.example.com, from: me@example.com}}",
			want: "notify.email",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.yaml)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPolicyWindow(t *testing.T) {
	now := time.Date(2025, time.June, 1, 6, 55, 0, 0, time.Local)
	cfg := &Config{Preferences: PreferencesConfig{Window: "07:00:00 - 07:15:00"}}

	policy, err := cfg.Policy(now)
	require.NoError(t, err)
	w, ok := policy.(poller.WindowPolicy)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.June, 1, 7, 0, 0, 0, time.Local), w.Start)
	assert.Equal(t, time.Date(2025, time.June, 1, 7, 15, 0, 0, time.Local), w.End)
	assert.Equal(t, 5*time.Minute, w.Delay(now))

	for _, bad := range []string{"07:00:00", "7:00-7:15", "07:00:00-25:00:00", "07:15:00-07:00:00"} {
		cfg.Preferences.Window = bad
		_, err := cfg.Policy(now)
		assert.Error(t, err, bad)
	}

	cfg.Preferences.Window = "05:00:00-06:00:00"
	_, err = cfg.Policy(now)
	assert.ErrorContains(t, err, "not after the current time")
}

func TestCriteria(t *testing.T) {
	cfg, err := load(t, sample)
	require.NoError(t, err)
	logger := zap.NewNop()

	camp, err := cfg.Criteria(reservation.KindCamping, logger)
	require.NoError(t, err)
	assert.Equal(t, reservation.Criteria{
		Guests:    2,
		Start:     reservation.Date(2025, time.June, 10),
		End:       reservation.Date(2025, time.June, 12),
		SiteTypes: []string{"Standard"},
	}, camp)

	permit, err := cfg.Criteria(reservation.KindPermit, logger)
	require.NoError(t, err)
	assert.True(t, permit.NextAvailable, "no date means next available")
	assert.Equal(t, 4, permit.Guests)
	assert.Equal(t, []string{"Overnight"}, permit.TripType)
}

func TestCriteriaMalformedDate(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	cfg := &Config{
		Preferences: PreferencesConfig{Guests: 2},
		Camping:     GroupConfig{Details: DetailsConfig{Start: "13/45/2025"}},
	}

	crit, err := cfg.Criteria(reservation.KindCamping, zap.New(core))
	require.NoError(t, err)
	assert.True(t, crit.NextAvailable)
	assert.True(t, crit.Start.IsZero())
	assert.Equal(t, 1, logs.FilterMessageSnippet("next available").Len())

	cfg.Camping.Details = DetailsConfig{Start: "06/10/2025"}
	crit, err = cfg.Criteria(reservation.KindCamping, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, reservation.Date(2025, time.June, 11), crit.End, "one night by default")

	cfg.Camping.Details = DetailsConfig{Start: "06/10/2025", End: "06/09/2025"}
	_, err = cfg.Criteria(reservation.KindCamping, zap.New(core))
	assert.ErrorContains(t, err, "must be after start")
}

func TestLocations(t *testing.T) {
	cfg, err := load(t, sample)
	require.NoError(t, err)

	locs, err := cfg.Locations()
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, "Yosemite - Upper Pines", locs[0].Name())
	assert.Equal(t, []string{"A12", "A13"}, locs[0].Sites)
	assert.Equal(t, "North Pines", locs[1].Name())
	assert.Equal(t, reservation.KindPermit, locs[2].Kind)
	assert.Equal(t, []string{"Colchuck Zone", "Core Enchantment Zone"}, locs[2].EntryPoints)

	cfg.Camping.Locations = []string{""}
	_, err = cfg.Locations()
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	cfg, err := load(t, sample)
	require.NoError(t, err)

	creds, err := cfg.Credentials("")
	require.NoError(t, err)
	assert.Equal(t, secrets.Credentials{Username: "camper@example.com", Password: "hunter2"}, creds)

	sealer, err := secrets.NewSealer("correct horse")
	require.NoError(t, err)
	token, err := sealer.Seal(secrets.Credentials{Username: "sealed@example.com", Password: "s3cret"})
	require.NoError(t, err)
	cfg.Preferences.SealedCredentials = token

	creds, err = cfg.Credentials("correct horse")
	require.NoError(t, err)
	assert.Equal(t, "sealed@example.com", creds.Username)

	_, err = cfg.Credentials("wrong")
	assert.Error(t, err)
	_, err = cfg.Credentials("")
	assert.ErrorIs(t, err, secrets.ErrEmptyPassphrase)

	cfg.Preferences = PreferencesConfig{Login: true}
	_, err = cfg.Credentials("")
	assert.ErrorContains(t, err, "no credentials")
}
