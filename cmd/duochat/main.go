package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duochat/duochat/internal/app"
	"github.com/duochat/duochat/internal/config"
	"github.com/duochat/duochat/internal/logging"
)

func main() {
	var configFile string
	var addr string

	root := &cobra.Command{
		Use:   "duochat",
		Short: "Two-user direct-messaging chat server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
	serve.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	serve.Flags().StringVar(&addr, "addr", "", "http listen address (overrides config)")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		logging.Logger.Fatal().Err(err).Msg("exiting")
	}
}
