package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// release a capture goroutine whose remaining chunks are no longer wanted.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
