package main

import (
	"github.com/spf13/cobra"

	"github.com/MimeLyc/dynamic-splash/internal/config"
)

var (
	// Version is overridden at build time with
	//   -ldflags "-X main.Version=v1.2.3"
	Version = "dev"
)

type rootFlags struct {
	dataDir    string
	configURL  string
	configFile string
	backend    string
}

// options turns the flags that were set into config options. Flags win over
// the environment.
func (f *rootFlags) options() []config.Option {
	var opts []config.Option
	if f.dataDir != "" {
		opts = append(opts, config.WithDataDir(f.dataDir))
	}
	if f.configURL != "" {
		opts = append(opts, config.WithConfigURL(f.configURL))
	}
	if f.configFile != "" {
		opts = append(opts, config.WithConfigFile(f.configFile))
	}
	if f.backend != "" {
		opts = append(opts, config.WithBackend(f.backend))
	}
	return opts
}

// withApp loads the configuration, builds the app and closes it after fn.
func (f *rootFlags) withApp(fn func(a *app) error) error {
	cfg, err := loadConfig(f.options()...)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close()
	}()
	return fn(a)
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "splash",
		Short: "splash keeps a launch splash image in sync with a remote config",
		Long: `splash fetches a splash config (one object or a weighted list), caches the
selected image locally and records what the next launch should display.

Configuration comes from SPLASH_* environment variables and an optional .env
file; the flags below override them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (env SPLASH_DATA_DIR)")
	root.PersistentFlags().StringVar(&flags.configURL, "config-url", "", "splash config URL (env SPLASH_CONFIG_URL)")
	root.PersistentFlags().StringVar(&flags.configFile, "config-file", "", "splash config file, JSON or YAML (env SPLASH_CONFIG_FILE)")
	root.PersistentFlags().StringVar(&flags.backend, "backend", "", "kv backend: sqlite, bolt or memory (env SPLASH_KV_BACKEND)")

	root.AddCommand(
		newServeCmd(flags),
		newSyncCmd(flags),
		newStatusCmd(flags),
		newPlanCmd(flags),
		newClearCmd(flags),
	)
	return root
}
