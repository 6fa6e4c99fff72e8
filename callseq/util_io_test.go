package callseq

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	data       []byte
	writeCount int
	err        error
}

func (m *mockWriter) Write(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	} else if m.writeCount > 0 && len(p) > m.writeCount {
		p = p[:m.writeCount]
	}
	m.data = append(m.data, p...)
	return len(p), nil
}

func TestTeeWriterWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		one     *mockWriter
		two     *mockWriter
		wantN   int
		wantErr bool
	}{
		{
			name:  "all_success",
			one:   &mockWriter{},
			two:   &mockWriter{},
			wantN: 4,
		},
		{
			name:    "different_counts",
			one:     &mockWriter{},
			two:     &mockWriter{writeCount: 3},
			wantErr: true,
		},
		{
			name:    "one_error",
			one:     &mockWriter{err: errors.New("error1")},
			two:     &mockWriter{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &teeWriter{one: tt.one, two: tt.two}
			n, err := writer.Write([]byte("test"))
			assert.Equal(t, tt.wantN, n)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "test", string(tt.one.data))
				assert.Equal(t, "test", string(tt.two.data))
			}
		})
	}
}

func TestLockedBufferConcurrentWrite(t *testing.T) {
	t.Parallel()

	var lb lockedBuffer
	var wg sync.WaitGroup
	const workers = 10
	const loops = 100
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < loops; j++ {
				_, _ = lb.Write([]byte("a"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, workers*loops, lb.Len())
	assert.Equal(t, string(bytes.Repeat([]byte("a"), workers*loops)), lb.String())
}
