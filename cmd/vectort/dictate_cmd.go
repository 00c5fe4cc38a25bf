package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"vectort/internal/bootstrap"
	"vectort/internal/domain"
)

var (
	dictateContinuous bool
	dictateLanguage   string
	dictateInitial    string
)

var dictateCmd = &cobra.Command{
	Use:   "dictate",
	Short: "Dictate into the prompt and print the merged text",
	Long: `Starts the microphone and merges the live transcript into the prompt.
Capture ends after one utterance, or on Enter when --continuous is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("continuous") {
			cfg.Speech.Continuous = dictateContinuous
		}
		if dictateLanguage != "" {
			cfg.Speech.Language = dictateLanguage
		}

		printer := newInputPrinter(cmd.ErrOrStderr())
		services := bootstrap.BuildWithConfig(cfg, printer, nil, logger)
		defer services.Close()

		if !services.Speech.State().IsSupported {
			return errors.New("voice input is unavailable: set DEEPGRAM_API_KEY and install ffmpeg")
		}
		if dictateInitial != "" {
			services.Input.SetValue(dictateInitial)
		}

		watcher := newDictationWatcher()
		services.Speech.Subscribe(watcher)

		ctx := cmd.Context()
		services.Input.ToggleMic(ctx)
		fmt.Fprintln(cmd.ErrOrStderr(), "listening, press Enter to stop")

		go waitForEnter(cmd.InOrStdin(), watcher.stopRequested)

		select {
		case <-watcher.ended:
		case <-watcher.stopRequested:
			services.Speech.StopListening()
			<-watcher.ended
		case <-ctx.Done():
			services.Speech.StopListening()
			<-watcher.ended
		}

		if state := services.Speech.State(); state.LastError != "" && services.Input.Value() == dictateInitial {
			return fmt.Errorf("speech recognition failed: %s", state.LastError)
		}
		fmt.Fprintln(cmd.OutOrStdout(), services.Input.Value())
		return nil
	},
}

func init() {
	dictateCmd.Flags().BoolVar(&dictateContinuous, "continuous", false, "keep listening across pauses")
	dictateCmd.Flags().StringVar(&dictateLanguage, "language", "", "recognition language (overrides config)")
	dictateCmd.Flags().StringVar(&dictateInitial, "initial", "", "text already in the prompt")
}

func waitForEnter(in io.Reader, stop chan<- struct{}) {
	if in == nil {
		in = os.Stdin
	}
	if _, err := bufio.NewReader(in).ReadString('\n'); err == nil {
		close(stop)
	}
}

// dictationWatcher reports when a capture that was started has ended.
type dictationWatcher struct {
	ended         chan struct{}
	stopRequested chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

func newDictationWatcher() *dictationWatcher {
	return &dictationWatcher{
		ended:         make(chan struct{}),
		stopRequested: make(chan struct{}),
	}
}

func (w *dictationWatcher) TranscriptChanged(state domain.TranscriptState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if state.IsListening {
		w.started = true
		return
	}
	if w.closed || (!w.started && state.LastError == "") {
		return
	}
	w.closed = true
	close(w.ended)
}

// inputPrinter echoes the prompt as it changes.
type inputPrinter struct {
	out io.Writer
	mu  sync.Mutex
}

func newInputPrinter(out io.Writer) *inputPrinter {
	return &inputPrinter{out: out}
}

func (p *inputPrinter) OnChange(event domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\r> %s", event.Target.Value)
}

func (p *inputPrinter) OnFileUpload(_ []domain.FileHandle)           {}
func (p *inputPrinter) OnGithubSave(_ string, _ []domain.FileHandle) {}
func (p *inputPrinter) OnFork(_ string)                              {}
func (p *inputPrinter) OnUltraMode(_ bool)                           {}
