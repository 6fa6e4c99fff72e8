package callseq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

type teeWriter struct {
	one io.Writer
	two io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n1, err1 := w.one.Write(p)
	n2, err2 := w.two.Write(p)
	if err1 == nil && err2 == nil && n1 != n2 {
		return 0, fmt.Errorf("uneven write %d != %d", n1, n2)
	}
	return n1, errors.Join(err1, err2)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.String()
}

func (lb *lockedBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	return lb.buf.Len()
}
