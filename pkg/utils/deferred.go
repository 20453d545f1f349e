// Package utils holds small helpers shared by the CLI entrypoint.
package utils

import (
	"io"
	"sync"
)

// DeferredWriter buffers writes until Flush is called. It holds log output
// while a full-screen program owns the terminal.
type DeferredWriter struct {
	mu     sync.Mutex
	chunks [][]byte
}

// Write records a copy of p.
func (w *DeferredWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.chunks = append(w.chunks, append([]byte(nil), p...))
	return len(p), nil
}

// Flush writes every buffered chunk to out in order and empties the buffer.
func (w *DeferredWriter) Flush(out io.Writer) error {
	w.mu.Lock()
	chunks := w.chunks
	w.chunks = nil
	w.mu.Unlock()

	for _, c := range chunks {
		if _, err := out.Write(c); err != nil {
			return err
		}
	}
	return nil
}
