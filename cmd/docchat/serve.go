package main

import (
	"doc-chat/internal/server"

	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(*cfgPath, false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr != "" {
				cfg.Server.Address = addr
			}

			components, err := server.BuildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return server.NewServer(components).Run(cmd.Context())
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides SERVER_ADDR)")
	return serve
}
