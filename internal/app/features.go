package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"time"

	"github.com/MrWong99/solace/internal/conversation"
	"github.com/MrWong99/solace/internal/entitlement"
	"github.com/MrWong99/solace/internal/library"
	"github.com/MrWong99/solace/internal/playback"
	"github.com/MrWong99/solace/internal/soundscape"
	"github.com/MrWong99/solace/pkg/store"
)

// HistoryKey is the store key of the companion's conversation history.
const HistoryKey = "companion:history"

// ErrUnknownTitle is returned by [App.Meditate] for a title that is not in
// the library.
var ErrUnknownTitle = errors.New("app: unknown meditation title")

// MeditationRequest selects a guided meditation. Exactly one of Title and
// Prompt should be set; Title wins when both are.
type MeditationRequest struct {
	// Title of a built-in script, see [library.Titles].
	Title string

	// Prompt describes a custom guided imagery scene.
	Prompt string

	// Minutes limits the session. Zero plays the full script.
	Minutes int
}

// Meditation is a running guided meditation.
type Meditation struct {
	Title   string
	Script  string
	Session *playback.Session
}

// Story is a running sleep story.
type Story struct {
	Topic   string
	Text    string
	Session *playback.Session
}

// Meditate renders and plays a guided meditation. Library scripts are
// synthesised once and then served from the store.
func (a *App) Meditate(ctx context.Context, req MeditationRequest) (*Meditation, error) {
	if err := entitlement.Check(a.Tier(), entitlement.Meditation); err != nil {
		return nil, err
	}
	if req.Minutes < 0 {
		return nil, fmt.Errorf("app: meditation minutes %d must not be negative", req.Minutes)
	}

	m := &Meditation{Title: req.Title}
	var err error
	if req.Title != "" {
		script, ok := library.Script(req.Title)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTitle, req.Title)
		}
		m.Script = script
	} else {
		genReq, err := library.MeditationRequest(req.Prompt)
		if err != nil {
			return nil, err
		}
		if m.Script, err = a.Generate(ctx, genReq); err != nil {
			return nil, err
		}
	}

	synth := a.Synthesize
	if req.Title != "" {
		synth = a.synthesizeCached
	}
	payload, err := synth(ctx, m.Script, library.MeditationVoice)
	if err != nil {
		return nil, err
	}

	m.Session, err = a.PlayGeneratedSpeech(ctx, payload, playback.Options{
		MaxDuration: time.Duration(req.Minutes) * time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SleepStory generates, renders and plays a bedtime story about topic. An
// empty topic picks one of [library.Themes] at random. The returned session
// supports Pause and Resume.
func (a *App) SleepStory(ctx context.Context, topic string) (*Story, error) {
	if err := entitlement.Check(a.Tier(), entitlement.SleepStory); err != nil {
		return nil, err
	}
	if topic == "" {
		themes := library.Themes()
		topic = themes[rand.IntN(len(themes))]
	}

	req, err := library.StoryRequest(topic)
	if err != nil {
		return nil, err
	}
	story, err := a.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	payload, err := a.Synthesize(ctx, story, library.SleepVoice)
	if err != nil {
		return nil, err
	}
	sess, err := a.PlayGeneratedSpeech(ctx, payload, playback.Options{})
	if err != nil {
		return nil, err
	}
	return &Story{Topic: topic, Text: story, Session: sess}, nil
}

// SoundscapeRequest selects an ambient mix.
type SoundscapeRequest struct {
	// Preset names a starting mix, see [soundscape.PresetNames]. Empty
	// starts from silence.
	Preset string

	// Levels override the preset per layer.
	Levels soundscape.Levels

	// Minutes fades the mix out after this long. Zero loops until stopped.
	Minutes int
}

// Soundscape loops ambient noise and binaural layers.
func (a *App) Soundscape(ctx context.Context, req SoundscapeRequest) (*soundscape.Session, error) {
	if err := entitlement.Check(a.Tier(), entitlement.Soundscape); err != nil {
		return nil, err
	}
	if req.Minutes < 0 {
		return nil, fmt.Errorf("app: soundscape minutes %d must not be negative", req.Minutes)
	}
	mix := soundscape.Levels{}
	if req.Preset != "" {
		p, ok := soundscape.Preset(req.Preset)
		if !ok {
			return nil, fmt.Errorf("%w: preset %q", soundscape.ErrUnknownLayer, req.Preset)
		}
		mix = p
	}
	maps.Copy(mix, req.Levels)
	return a.StartSoundscape(ctx, mix, soundscape.Options{
		MaxDuration: time.Duration(req.Minutes) * time.Minute,
	})
}

// Companion starts the voice companion. When the conversation ends its
// finalized turns are appended to the history under [HistoryKey].
func (a *App) Companion(ctx context.Context) (*conversation.Session, error) {
	if err := entitlement.Check(a.Tier(), entitlement.Companion); err != nil {
		return nil, err
	}
	s, err := a.StartLiveConversation(ctx, conversation.Config{
		SystemInstruction: library.CompanionInstruction,
		Voice:             library.CompanionVoice,
	})
	if err != nil {
		return nil, err
	}

	a.savers.Add(1)
	go func() {
		defer a.savers.Done()
		<-s.Done()
		a.saveHistory(s)
	}()
	return s, nil
}

// History returns the stored companion turns, oldest first.
func (a *App) History(ctx context.Context) ([]conversation.Turn, error) {
	var turns []conversation.Turn
	err := a.store.Get(ctx, HistoryKey, &turns)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("app: load history: %w", err)
	}
	return turns, nil
}

func (a *App) saveHistory(s *conversation.Session) {
	turns := s.History()
	if len(turns) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
	defer cancel()

	a.historyMu.Lock()
	defer a.historyMu.Unlock()

	prev, err := a.History(ctx)
	if err != nil {
		slog.Warn("companion history not saved", "session_id", s.ID(), "err", err)
		return
	}
	if err := a.store.Set(ctx, HistoryKey, append(prev, turns...)); err != nil {
		slog.Warn("companion history not saved", "session_id", s.ID(), "err", err)
		return
	}
	slog.Info("companion history saved", "session_id", s.ID(), "turns", len(turns))
}
