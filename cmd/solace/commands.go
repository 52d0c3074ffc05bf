package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/solace/internal/app"
	"github.com/MrWong99/solace/internal/conversation"
	"github.com/MrWong99/solace/internal/library"
	"github.com/MrWong99/solace/internal/playback"
	"github.com/MrWong99/solace/internal/soundscape"
	"github.com/MrWong99/solace/pkg/audio/mixer"
)

// execFunc runs a command. offline is non-nil only for commands that render
// into a file.
type execFunc func(ctx context.Context, a *app.App, offline *mixer.Mixer) error

type command struct {
	help    string
	summary bool
	offline bool
	setup   func(fs *flag.FlagSet) execFunc
}

var commandOrder = []string{"meditate", "story", "companion", "soundscape", "play", "render", "voices", "history", "titles"}

var commands = map[string]command{
	"meditate": {
		help:    "play a library meditation (-title) or a generated one (-prompt)",
		summary: true,
		setup:   setupMeditate,
	},
	"story": {
		help:    "generate and play a sleep story",
		summary: true,
		setup:   setupStory,
	},
	"companion": {
		help:    "talk to the live voice companion",
		summary: true,
		setup:   setupCompanion,
	},
	"soundscape": {
		help:    "loop ambient noise and binaural layers",
		summary: true,
		setup:   setupSoundscape,
	},
	"play": {
		help:    "play a 16-bit PCM WAV file",
		summary: true,
		setup:   setupPlay,
	},
	"render": {
		help:    "render a library meditation to a WAV file",
		offline: true,
		setup:   setupRender,
	},
	"voices": {
		help: "list the speech provider's voices",
		setup: func(*flag.FlagSet) execFunc {
			return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
				voices, err := a.Voices(ctx)
				if err != nil {
					return err
				}
				for _, v := range voices {
					fmt.Printf("%-12s %s\n", v.ID, v.Description)
				}
				return nil
			}
		},
	},
	"history": {
		help: "print the stored companion conversation",
		setup: func(*flag.FlagSet) execFunc {
			return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
				turns, err := a.History(ctx)
				if err != nil {
					return err
				}
				if len(turns) == 0 {
					fmt.Println("(no conversation yet)")
				}
				for _, t := range turns {
					printTurn(t)
				}
				return nil
			}
		},
	},
	"titles": {
		help: "list the built-in meditations and story themes",
		setup: func(*flag.FlagSet) execFunc {
			return func(context.Context, *app.App, *mixer.Mixer) error {
				fmt.Println("Meditations:")
				for _, t := range library.Titles() {
					fmt.Println("  " + t)
				}
				fmt.Println("Story themes:")
				for _, t := range library.Themes() {
					fmt.Println("  " + t)
				}
				return nil
			}
		},
	},
}

func setupMeditate(fs *flag.FlagSet) execFunc {
	title := fs.String("title", "", "built-in meditation title, see `solace titles`")
	prompt := fs.String("prompt", "", "describe a custom guided imagery scene")
	minutes := fs.Int("minutes", 0, "stop with a fade and chime after this many minutes (0 plays everything)")

	return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
		if *title == "" && *prompt == "" {
			return errors.New("meditate: pass -title or -prompt")
		}
		m, err := a.Meditate(ctx, app.MeditationRequest{Title: *title, Prompt: *prompt, Minutes: *minutes})
		if err != nil {
			return err
		}
		if m.Title != "" {
			fmt.Printf("Playing %q. Press Enter to pause or resume.\n", m.Title)
		} else {
			fmt.Println(m.Script)
			fmt.Println("\nPress Enter to pause or resume.")
		}
		return follow(ctx, m.Session)
	}
}

func setupStory(fs *flag.FlagSet) execFunc {
	topic := fs.String("topic", "", "what the story is about (random theme when empty)")

	return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
		s, err := a.SleepStory(ctx, *topic)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n%s\n\nPress Enter to pause or resume.\n", s.Topic, s.Text)
		return follow(ctx, s.Session)
	}
}

func setupCompanion(*flag.FlagSet) execFunc {
	return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
		s, err := a.Companion(ctx)
		if err != nil {
			return err
		}
		fmt.Println("Listening. Press Ctrl+C to end the conversation.")

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		var printed int
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				<-s.Done()
				return nil
			case <-s.Done():
				printed = printNewTurns(s, printed)
				if err := s.Err(); err != nil {
					if conversation.Retryable(err) {
						return fmt.Errorf("%w (try again)", err)
					}
					return err
				}
				return nil
			case <-ticker.C:
				printed = printNewTurns(s, printed)
			}
		}
	}
}

func setupSoundscape(fs *flag.FlagSet) execFunc {
	preset := fs.String("preset", "", "starting mix: "+strings.Join(soundscape.PresetNames(), ", "))
	minutes := fs.Int("minutes", 0, "fade out after this many minutes (0 loops until Ctrl+C)")
	levels := make(map[string]*float64)
	for _, l := range soundscape.Layers() {
		levels[string(l)] = fs.Float64(string(l), 0, fmt.Sprintf("%s level, 0 to %.1f (overrides the preset)", l, soundscape.MaxLevel))
	}

	return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
		req := app.SoundscapeRequest{Preset: *preset, Minutes: *minutes, Levels: soundscape.Levels{}}
		fs.Visit(func(f *flag.Flag) {
			if v, ok := levels[f.Name]; ok {
				req.Levels[soundscape.Layer(f.Name)] = *v
			}
		})
		if req.Preset == "" && len(req.Levels) == 0 {
			return errors.New("soundscape: pass -preset or at least one layer level")
		}
		s, err := a.Soundscape(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("Playing %v. Press Ctrl+C to stop.\n", s.Levels())

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Stop()
				fmt.Println()
				return nil
			case <-s.Done():
				fmt.Printf("\nFinished (%s)\n", s.Reason())
				return nil
			case <-ticker.C:
				fmt.Printf("\r%s ", s.Elapsed().Round(time.Second))
			}
		}
	}
}

func setupPlay(fs *flag.FlagSet) execFunc {
	path := fs.String("wav", "", "16-bit PCM WAV file to play")
	minutes := fs.Int("minutes", 0, "stop with a fade and chime after this many minutes (0 plays everything)")

	return func(ctx context.Context, a *app.App, _ *mixer.Mixer) error {
		if *path == "" {
			return errors.New("play: pass -wav")
		}
		s, err := a.PlayFile(ctx, *path, playback.Options{MaxDuration: time.Duration(*minutes) * time.Minute})
		if err != nil {
			return err
		}
		fmt.Printf("Playing %s. Press Enter to pause or resume.\n", *path)
		return follow(ctx, s)
	}
}

func setupRender(fs *flag.FlagSet) execFunc {
	title := fs.String("title", "", "built-in meditation title")
	minutes := fs.Int("minutes", 0, "stop with a fade and chime after this many minutes")
	out := fs.String("out", "meditation.wav", "output WAV path")

	return func(ctx context.Context, a *app.App, m *mixer.Mixer) error {
		if *title == "" {
			return errors.New("render: pass -title")
		}
		med, err := a.Meditate(ctx, app.MeditationRequest{Title: *title, Minutes: *minutes})
		if err != nil {
			return err
		}

		f, err := os.Create(*out)
		if err != nil {
			med.Session.Stop()
			return fmt.Errorf("render: %w", err)
		}
		defer f.Close()

		sink := mixer.NewWAVSink(f, m)
		if err := mixer.RenderOffline(ctx, m, sink, mixer.DefaultQuantum, 0); err != nil {
			med.Session.Stop()
			return fmt.Errorf("render: %w", err)
		}
		if err := sink.Close(); err != nil {
			return fmt.Errorf("render: write %s: %w", *out, err)
		}
		<-med.Session.Done()
		fmt.Printf("Wrote %s (%s, %s)\n", *out, sink.Buffer().Duration().Round(time.Second), med.Session.Reason())
		return nil
	}
}

// follow waits for a playback to end, toggling pause on every line read from
// stdin and printing the position. Cancelling ctx stops the playback.
func follow(ctx context.Context, s *playback.Session) error {
	lines := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case lines <- struct{}{}:
			case <-s.Done():
				return
			}
		}
	}()

	progress := s.Watch(ctx, time.Second)
	total := s.Total().Round(time.Second)
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			fmt.Println()
			return nil
		case <-s.Done():
			fmt.Printf("\nFinished (%s)\n", s.Reason())
			return nil
		case el, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			fmt.Printf("\r%s / %s ", el.Round(time.Second), total)
		case <-lines:
			if err := togglePause(ctx, s); err != nil {
				return err
			}
		}
	}
}

func togglePause(ctx context.Context, s *playback.Session) error {
	switch s.State() {
	case playback.Playing:
		if err := s.Pause(); err != nil {
			return err
		}
		fmt.Print("\r(paused) ")
	case playback.Paused:
		if err := s.Resume(ctx); err != nil {
			if !playback.Retryable(err) {
				return err
			}
			fmt.Fprintf(os.Stderr, "\nresume failed, press Enter to try again: %v\n", err)
		}
	}
	return nil
}

func printNewTurns(s *conversation.Session, printed int) int {
	turns := s.History()
	for _, t := range turns[printed:] {
		printTurn(t)
	}
	return len(turns)
}

func printTurn(t conversation.Turn) {
	fmt.Printf("[%s] %-9s %s\n", t.At.Format("15:04"), t.Speaker+":", t.Text)
}
