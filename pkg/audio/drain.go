package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it after closing a [Capture] so that a [ConvertStream] goroutine still
// holding converted frames can exit.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
