package capture

import (
	"io"
	"sync"
)

// chunkBuffer collects encoded output in arrival order. It is the
// io.Writer the encoder's stdout is bound to.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (b *chunkBuffer) Write(p []byte) (int, error) {
	chunk := make([]byte, len(p))
	copy(chunk, p)

	b.mu.Lock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	b.mu.Unlock()
	return len(p), nil
}

func (b *chunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *chunkBuffer) Chunks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// WriteTo concatenates every chunk into w.
func (b *chunkBuffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	chunks := b.chunks
	b.mu.Unlock()

	var n int64
	for _, c := range chunks {
		m, err := w.Write(c)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
