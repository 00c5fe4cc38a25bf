package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"vectort/internal/bootstrap"
	"vectort/internal/domain"
)

var watchBackend string

var watchCmd = &cobra.Command{
	Use:   "watch <project-id>",
	Short: "Follow a project's generation stream until it completes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if watchBackend != "" {
			cfg.Backend.BaseURL = watchBackend
		}

		printer := newStreamPrinter(cmd.OutOrStdout())
		services := bootstrap.BuildWithConfig(cfg, nil, printer, logger)
		defer services.Close()

		ctx := cmd.Context()
		if err := services.Stream.Attach(ctx, args[0]); err != nil {
			return err
		}
		if err := services.Stream.Wait(ctx); err != nil {
			return err
		}

		session := services.Stream.Session()
		if !session.IsComplete {
			if session.Error != "" {
				return errors.New(session.Error)
			}
			return errors.New("generation stream ended before completion")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "done: %d files created\n", len(session.FilesCreated))
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchBackend, "backend", "", "backend base URL (overrides config)")
}

// streamPrinter writes each new generation message as one line.
type streamPrinter struct {
	out io.Writer

	mu      sync.Mutex
	printed int
	project string
}

func newStreamPrinter(out io.Writer) *streamPrinter {
	return &streamPrinter{out: out}
}

func (p *streamPrinter) StreamSessionChanged(session domain.StreamSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session.ProjectID != p.project {
		p.project = session.ProjectID
		p.printed = 0
	}
	for _, message := range session.Messages[min(p.printed, len(session.Messages)):] {
		fmt.Fprintln(p.out, formatMessage(message, session.Progress))
	}
	p.printed = len(session.Messages)
}

func (p *streamPrinter) GenerationComplete(projectID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "project %s complete\n", projectID)
}

func formatMessage(message domain.StreamMessage, progress int) string {
	line := fmt.Sprintf("[%3d%%] %-12s %s", progress, message.Type, message.Content)
	if message.Agent != "" {
		line += " (" + message.Agent + ")"
	}
	return line
}
