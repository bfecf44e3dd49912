package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adflow/internal/gateway/config"
	"adflow/internal/logging"
)

type rootOptions struct {
	envFile string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "adflow",
		Short: "Ad campaign pipeline orchestrator",
		Long: `adflow turns a website or Telegram channel into an ad campaign:
brief, strategy, hypotheses, copy and banners, each reviewed before it is
accepted.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.envFile, "config", "c", "", "env file to load (default .env when present)")
	flags.String("port", "", "listen address, overrides PORT")
	flags.String("env", "", "environment name, overrides APP_ENV")
	flags.BoolP("verbose", "v", false, "debug logging")

	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		v, err := config.NewViper(opts.envFile)
		if err != nil {
			return err
		}
		// Explicitly set flags win over the environment.
		for key, name := range flagForKey {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		cfg, err := config.FromViper(v)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Env, cfg.Verbose)
		if err != nil {
			return err
		}
		opts.cfg, opts.log = cfg, log
		return nil
	}
	root.PersistentPostRun = func(*cobra.Command, []string) {
		if opts.log != nil {
			_ = opts.log.Sync()
		}
	}

	root.AddCommand(newServeCmd(opts), newRunCmd(opts))
	return root
}

var flagForKey = map[string]string{
	"PORT":    "port",
	"APP_ENV": "env",
	"VERBOSE": "verbose",
}
