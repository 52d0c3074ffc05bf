// Package audio is the device layer shared by the playback and conversation
// controllers.
//
// A [Device] is an output with its own sample clock. Sources are scheduled on
// it at absolute device times and every scheduled [Voice] carries a gain
// [Envelope], so a fade is expressed as automation on the device clock rather
// than as wall-clock sleeps. Devices are shared through a reference counted
// [DeviceRegistry].
//
// Capture runs the other way: a [CaptureSource] opens a session-scoped
// [Capture] whose frames may arrive in any format; [ConvertStream] normalises
// them.
//
// [Tone], [Binaural] and [NoiseBuffer] synthesise the chime and the ambient
// soundscape layers.
//
// The codec functions translate between the base64 PCM16LE transport text of
// the generative service and float sample buffers.
//
// Concrete devices live in sub-packages: mixer (software mixing and offline
// rendering), portaudio (sound card) and mock (manual clock for tests).
package audio
