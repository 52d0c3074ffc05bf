//go:build !portaudio

package main

import "github.com/MrWong99/solace/pkg/audio"

func portaudioBackend(int) (audio.OpenFunc, audio.CaptureSource, bool) {
	return nil, nil, false
}
