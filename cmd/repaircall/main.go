package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/repaircall/internal/config"
	applog "github.com/vovakirdan/repaircall/internal/log"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "repaircall: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "repaircall",
		Short:         "Voice call client for the repair service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(flags),
		newHistoryCmd(flags),
		newNotificationsCmd(flags),
		newTokenCmd(flags),
	)
	return root
}

// load resolves configuration and builds the logger for a command.
func (f *rootFlags) load() (*config.Config, string, *zerolog.Logger, error) {
	bootstrap := applog.New("info")
	cfg, path, err := config.Load(bootstrap, f.configPath)
	if err != nil {
		return nil, "", nil, err
	}
	cfg.UpdateFrom(config.Config{LogLevel: f.logLevel})
	return &cfg, path, applog.New(cfg.LogLevel), nil
}
