package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/repaircall/internal/app"
	"github.com/vovakirdan/repaircall/internal/config"
	applog "github.com/vovakirdan/repaircall/internal/log"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		listen      string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Listen for calls and serve the control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, logger, err := flags.load()
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{ListenAddr: listen})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var term *terminal
			opts := []app.Option{}
			if interactive {
				term = newTerminal(os.Stdin, os.Stdout)
				opts = append(opts, app.WithElapsedListener(term.elapsed))
			}

			application, err := app.New(cfg, logger, opts...)
			if err != nil {
				return err
			}

			// Only the log level is applied live; other settings need a restart.
			config.Watch(path, logger, func(next config.Config) {
				if flags.logLevel == "" {
					applog.SetLevel(next.LogLevel)
				}
			})

			if term != nil {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					term.run(ctx, application.Session(), application.Cues())
					cancel()
				}()
				return application.Run(ctx)
			}

			logger.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting repaircall")
			return application.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "control API listen address override")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read call actions from stdin")
	return cmd
}
