package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codiris/voice/internal/app"
	"github.com/codiris/voice/internal/dictation"
	"github.com/codiris/voice/internal/insert"
	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/audio/mic"
	"github.com/codiris/voice/pkg/audio/wavfile"
	"github.com/codiris/voice/pkg/mode"
	"github.com/codiris/voice/pkg/provider/stt"
)

func (c *cli) dictateCmd() *cobra.Command {
	var (
		file     string
		sinks    []string
		modeName string
		realtime bool
	)
	cmd := &cobra.Command{
		Use:   "dictate",
		Short: "Record speech and deliver the enhanced text",
		Long: `Record from the microphone until Enter is pressed, or replay a WAV file
with --file. The transcript is enhanced in the current mode and delivered
to every sink given with --to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var (
				src     audio.Source
				fileEnd <-chan struct{}
			)
			if file != "" {
				ws, err := wavfile.Open(file, wavfile.WithRealtime(realtime))
				if err != nil {
					return err
				}
				src, fileEnd = notifyEnd(ws)
			} else {
				src = mic.New()
			}

			sink, err := buildSink(sinks)
			if err != nil {
				return err
			}

			client, _, err := c.client(ctx,
				app.WithSource(src),
				app.WithSink(sink),
				app.WithEvents(printEvent),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			if modeName != "" {
				m, err := mode.Parse(modeName)
				if err != nil {
					return err
				}
				p, err := client.Prefs().Load(ctx)
				if err != nil {
					return err
				}
				p.CurrentMode = m
				if err := client.Prefs().Save(ctx, p); err != nil {
					return err
				}
			}

			ctrl, err := client.Controller(ctx)
			if err != nil {
				return err
			}
			if err := ctrl.Start(ctx); err != nil {
				return err
			}

			if fileEnd != nil {
				fmt.Fprintln(os.Stderr, "Transcribing", file, "...")
			} else {
				fmt.Fprintln(os.Stderr, "Recording. Press Enter to stop, Ctrl+C to cancel.")
			}
			select {
			case <-fileEnd:
			case <-waitEnter(fileEnd == nil):
			case <-ctx.Done():
				ctrl.Cancel()
				return ctx.Err()
			}

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
			defer cancel()
			if _, err := ctrl.Stop(stopCtx); err != nil {
				if errors.Is(err, stt.ErrNoSpeech) {
					fmt.Fprintln(os.Stderr, "No speech detected.")
					return nil
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "transcribe a WAV file instead of the microphone")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "replay --file at playback speed")
	cmd.Flags().StringSliceVar(&sinks, "to", []string{"stdout"}, "where to deliver the text: stdout, clipboard")
	cmd.Flags().StringVarP(&modeName, "mode", "m", "", "switch to this mode before recording")
	return cmd
}

func buildSink(names []string) (insert.Sink, error) {
	var sinks []insert.Sink
	for _, name := range names {
		switch name {
		case "stdout":
			sinks = append(sinks, insert.SinkFunc(func(_ context.Context, text string) error {
				_, err := fmt.Fprintln(os.Stdout, text)
				return err
			}))
		case "clipboard":
			cb, err := insert.NewClipboard()
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, cb)
		default:
			return nil, fmt.Errorf("unknown sink %q (want stdout or clipboard)", name)
		}
	}
	if len(sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}
	return insert.Multi(sinks...), nil
}

func printEvent(e dictation.Event) {
	switch e.Kind {
	case dictation.EventPartial:
		fmt.Fprintf(os.Stderr, "\r\033[K… %s", e.Text)
	case dictation.EventDelivered:
		fmt.Fprint(os.Stderr, "\r\033[K")
	case dictation.EventError:
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", e.Err)
	}
}

// waitEnter closes the returned channel when a line is read from stdin. It
// returns nil, which blocks forever in a select, when on is false.
func waitEnter(on bool) <-chan struct{} {
	if !on {
		return nil
	}
	ch := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(ch)
	}()
	return ch
}

// endSource reports when the wrapped source has emitted its last chunk.
type endSource struct {
	audio.Source
	end chan struct{}
}

func notifyEnd(src audio.Source) (audio.Source, <-chan struct{}) {
	s := &endSource{Source: src, end: make(chan struct{})}
	return s, s.end
}

func (s *endSource) Start(ctx context.Context) (<-chan []byte, error) {
	in, err := s.Source.Start(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []byte)
	go func() {
		defer close(s.end)
		defer close(out)
		for chunk := range in {
			out <- chunk
		}
	}()
	return out, nil
}
