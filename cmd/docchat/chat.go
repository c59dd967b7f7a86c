package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"doc-chat/internal/models"
	"doc-chat/internal/server"
	"doc-chat/internal/services"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func chatCMD(cfgPath *string) *cobra.Command {
	var mode string
	var verbose bool
	chat := &cobra.Command{
		Use:   "chat FILE...",
		Short: "Upload documents and chat about them in the terminal",
		Long: "Uploads up to 5 txt, pdf or csv files and starts an interactive conversation.\n" +
			"Commands: /reset, /mode <long-context|file-search>, /docs, /quit.\n" +
			"Every remote file and store is deleted on exit.",
		Args: cobra.RangeArgs(1, services.MaxDocumentsPerSession),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := models.ParseMode(mode)
			if err != nil {
				return err
			}

			cfg, logger, err := loadRuntime(*cfgPath, !verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			components, err := server.BuildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			files, err := readFiles(args)
			if err != nil {
				return err
			}

			return runChat(cmd.Context(), components.Manager, m, files, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chat.Flags().StringVarP(&mode, "mode", "m", string(models.ModeLongContext), "retrieval mode: long-context or file-search")
	chat.Flags().BoolVarP(&verbose, "verbose", "v", false, "print logs to the console")
	return chat
}

func readFiles(paths []string) ([]services.FileUpload, error) {
	files := make([]services.FileUpload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, services.FileUpload{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// chatSessions is the part of the session manager the REPL drives
type chatSessions interface {
	Create(mode models.Mode) services.Session
	Upload(ctx context.Context, id string, files []services.FileUpload) (services.Session, error)
	Ask(ctx context.Context, id, prompt string, onChunk func(string) error) (services.Session, error)
	ChangeMode(ctx context.Context, id string, mode models.Mode) (services.Session, error)
	Reset(ctx context.Context, id string) (services.Session, error)
	Delete(ctx context.Context, id string) error
}

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	infoColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
	okColor     = color.New(color.FgGreen)
)

func runChat(ctx context.Context, sessions chatSessions, mode models.Mode, files []services.FileUpload, in io.Reader, out io.Writer) error {
	s := sessions.Create(mode)
	defer sessions.Delete(context.WithoutCancel(ctx), s.ID)

	upload := func() error {
		infoColor.Fprintf(out, "Processing %d file(s) with %s...\n", len(files), s.Mode.Label())
		next, err := sessions.Upload(ctx, s.ID, files)
		s = next
		if err != nil {
			return err
		}
		okColor.Fprintln(out, s.Status)
		return nil
	}
	if err := upload(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		promptColor.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/docs":
			for _, d := range s.Documents {
				fmt.Fprintf(out, "  %s (%s)\n", d.DisplayName, d.MimeType)
			}
			continue
		case line == "/reset":
			next, err := sessions.Reset(ctx, s.ID)
			if err != nil {
				return err
			}
			s = next
			if err := upload(); err != nil {
				return err
			}
			continue
		case strings.HasPrefix(line, "/mode"):
			m, err := models.ParseMode(strings.TrimSpace(strings.TrimPrefix(line, "/mode")))
			if err != nil {
				errColor.Fprintln(out, err)
				continue
			}
			next, err := sessions.ChangeMode(ctx, s.ID, m)
			if err != nil {
				return err
			}
			s = next
			if err := upload(); err != nil {
				return err
			}
			continue
		}

		promptColor.Fprint(out, "gemini> ")
		next, err := sessions.Ask(ctx, s.ID, line, func(chunk string) error {
			_, err := io.WriteString(out, chunk)
			return err
		})
		s = next
		fmt.Fprintln(out)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			errColor.Fprintf(out, "Error: %v\n", err)
		}
	}
}
