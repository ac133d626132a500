package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/config"
	"github.com/example/recsched/internal/observability"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

// errNothingBooked makes the process exit non-zero without printing usage.
var errNothingBooked = errors.New("no location reached checkout")

// app carries what the subcommands share: the viper instance and the config
// file flag.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:           "recsched",
		Short:         "Polls recreation.gov for campsites and permits and books the first match up to checkout",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./recsched.yaml)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(a.newRunCmd())
	root.AddCommand(a.newInspectCmd())
	root.AddCommand(a.newHistoryCmd())
	root.AddCommand(newSealCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readConfig reads the config file and RECSCHED_ environment variables into
// the viper instance. A missing default file is not an error.
func (a *app) readConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("recsched")
		a.v.SetConfigType("yaml")
	}
	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// load returns the validated config and the logger it describes.
func (a *app) load() (*config.Config, *zap.Logger, error) {
	if err := a.readConfig(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewStdout(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// loadLogger is load for commands that need only the logger section.
func (a *app) loadLogger() (*zap.Logger, error) {
	if err := a.readConfig(); err != nil {
		return nil, err
	}
	var lc config.LoggerConfig
	if err := a.v.UnmarshalKey("logger", &lc); err != nil {
		return nil, fmt.Errorf("error unmarshaling logger config: %w", err)
	}
	return observability.NewStdout(lc)
}
