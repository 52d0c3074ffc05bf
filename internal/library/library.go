// Package library holds the built-in content of the wellness features: the
// meditation scripts, the sleep story themes, the prompts that turn a short
// user request into a full script, and the companion's persona.
package library

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/MrWong99/solace/pkg/provider/text"
)

// Voices used for each feature.
const (
	MeditationVoice = "Kore"
	SleepVoice      = "Fenrir"
	CompanionVoice  = "Kore"
)

// CompanionInstruction is the system instruction of the voice companion.
const CompanionInstruction = "You are a warm, empathetic mindfulness coach. Speak calmly and clearly. " +
	"Your role is to be a supportive, non-judgmental listener. Guide the user gently if they seem " +
	"distressed, but avoid giving direct advice. Use pauses in your speech to create a calm pacing."

// TimerChoices are the meditation lengths offered to the user, in minutes.
// Zero plays the full script.
var TimerChoices = []int{0, 5, 10, 15}

// ErrEmptyPrompt is returned when a custom meditation or story has no topic.
var ErrEmptyPrompt = errors.New("library: prompt is empty")

// Titles returns the built-in meditation titles, sorted.
func Titles() []string {
	return slices.Sorted(maps.Keys(scripts))
}

// Script returns the built-in meditation with the given title. The lookup is
// case-insensitive.
func Script(title string) (string, bool) {
	if s, ok := scripts[title]; ok {
		return s, true
	}
	for k, s := range scripts {
		if strings.EqualFold(k, strings.TrimSpace(title)) {
			return s, true
		}
	}
	return "", false
}

// Themes returns the suggested sleep story topics.
func Themes() []string {
	return slices.Clone(storyThemes)
}

// MeditationRequest builds the generation request for a guided imagery script
// based on prompt.
func MeditationRequest(prompt string) (text.Request, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return text.Request{}, ErrEmptyPrompt
	}
	return text.Request{
		Prompt: fmt.Sprintf("Write a soothing, sensory-rich guided imagery meditation script based on this prompt: %q. "+
			"Include gentle breathing cues. Keep it concise (approx 150-200 words). "+
			"Do not include title or instructions, just the spoken words.", prompt),
	}, nil
}

// StoryRequest builds the generation request for a bedtime story about topic.
func StoryRequest(topic string) (text.Request, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return text.Request{}, ErrEmptyPrompt
	}
	return text.Request{
		Prompt: fmt.Sprintf("Write a soothing, sleep-inducing bedtime story about: %s. "+
			"Use sensory details, calming language, and slow pacing. "+
			"Keep it around 150-200 words. Do not include a title, just the story.", topic),
	}, nil
}
