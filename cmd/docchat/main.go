// Package main Document Chat API Server
//
//	@title			Document Chat API
//	@version		1.0
//	@description	Chat with uploaded documents through Gemini, using either long-context caching or the File Search tool.
//
//	@contact.name	API Support
//
//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "doc-chat/docs" // registers the swagger spec
	"doc-chat/internal/config"
	"doc-chat/internal/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "docchat",
		Short:         "Chat with your documents through Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (env and .env are always read)")

	root.AddCommand(serveCMD(&cfgPath), chatCMD(&cfgPath), sweepCMD(&cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

// loadRuntime reads configuration and builds the logger. quiet keeps
// console logs out of interactive output; the log file still gets them.
func loadRuntime(cfgPath string, quiet bool) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	opts := logger.Options{
		Level:      cfg.Log.Level,
		FilePath:   cfg.Log.FilePath,
		Production: cfg.IsProduction(),
	}
	if quiet {
		opts.Console = io.Discard
	}
	l, err := logger.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return cfg, l, nil
}
