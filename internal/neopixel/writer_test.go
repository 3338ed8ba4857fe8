package neopixel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/adaboard/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	payloads [][]byte
	entered  chan struct{}
	release  chan struct{}
	err      error
}

func (r *recordingWriter) write(_ context.Context, p []byte) error {
	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return r.err
}

func (r *recordingWriter) got() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.payloads...)
}

func TestFrameWriter_SupersedesStaleFrames(t *testing.T) {
	rec := &recordingWriter{entered: make(chan struct{}, 1), release: make(chan struct{})}
	w := NewFrameWriter(rec.write, testutils.NewSilentLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	w.Submit([]byte{1})
	<-rec.entered // first write in flight

	w.Submit([]byte{2})
	w.Submit([]byte{3})
	w.Submit([]byte{4})
	rec.entered = nil
	close(rec.release)

	assert.Eventually(t, func() bool { return len(rec.got()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]byte{{1}, {4}}, rec.got())
	m := w.Metrics()
	assert.Equal(t, int64(2), m.Written)
	assert.Equal(t, int64(2), m.Superseded)
}

func TestFrameWriter_FailuresAreNotRetried(t *testing.T) {
	rec := &recordingWriter{err: errors.New("link busy")}
	w := NewFrameWriter(rec.write, testutils.NewSilentLogger())
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	w.Submit([]byte{9})
	assert.Eventually(t, func() bool { return w.Metrics().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.got(), 1)
}

func TestFrameWriter_StartTwice(t *testing.T) {
	w := NewFrameWriter((&recordingWriter{}).write, testutils.NewSilentLogger())
	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestFrameWriter_StopDiscardsPending(t *testing.T) {
	rec := &recordingWriter{}
	w := NewFrameWriter(rec.write, testutils.NewSilentLogger())
	w.Submit([]byte{1})
	w.Submit([]byte{2})

	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.got())
}
