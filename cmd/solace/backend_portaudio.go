//go:build portaudio

package main

import (
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/portaudio"
)

func portaudioBackend(rate int) (audio.OpenFunc, audio.CaptureSource, bool) {
	return portaudio.OpenOutput(rate, portaudio.DefaultFramesPerBuffer), portaudio.Microphone{}, true
}
