package voice

import (
	"bytes"
	"errors"
	"io"
	"os"
	"sync"
)

var (
	ErrBusy         = errors.New("voice: recording already in progress")
	ErrNotRecording = errors.New("voice: no recording in progress")
)

// Source is the audio capture device. Open yields the live track; closing
// the track releases the underlying hardware. The real microphone lives
// outside this module; a Source adapts whatever capture backend the host
// application has.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Recorder owns the capture resource exclusively while a recording session
// is active. The track is released on every exit path: Stop, Abort, end of
// stream and mid-capture read failures all close it exactly once.
type Recorder struct {
	src Source

	mu     sync.Mutex
	active *capture
}

func NewRecorder(src Source) *Recorder {
	return &Recorder{src: src}
}

type capture struct {
	track   io.ReadCloser
	release sync.Once
	done    chan struct{}

	mu      sync.Mutex
	buf     bytes.Buffer
	stopped bool
	err     error
}

func (c *capture) close() {
	c.release.Do(func() { c.track.Close() })
}

// Start opens the capture device and begins buffering audio. At most one
// session may hold the device.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrBusy
	}
	track, err := r.src.Open()
	if err != nil {
		return err
	}
	c := &capture{track: track, done: make(chan struct{})}
	r.active = c
	go c.run()
	return nil
}

func (c *capture) run() {
	defer func() {
		c.close()
		close(c.done)
	}()
	chunk := make([]byte, 4096)
	for {
		n, err := c.track.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf.Write(chunk[:n])
			c.mu.Unlock()
		}
		if err != nil {
			c.mu.Lock()
			// A read error after Stop/Abort is our own release, not a
			// capture failure.
			if !c.stopped && !errors.Is(err, io.EOF) {
				c.err = err
			}
			c.mu.Unlock()
			return
		}
	}
}

// Stop ends the session, releases the device and returns the captured
// audio.
func (r *Recorder) Stop() ([]byte, error) {
	c, err := r.detach()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	audio := append([]byte(nil), c.buf.Bytes()...)
	captureErr := c.err
	c.mu.Unlock()
	if captureErr != nil {
		return nil, captureErr
	}
	return audio, nil
}

// Abort ends the session and discards whatever was captured. The device is
// still released.
func (r *Recorder) Abort() error {
	_, err := r.detach()
	return err
}

// Recording reports whether a session currently holds the device.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recorder) detach() (*capture, error) {
	r.mu.Lock()
	c := r.active
	r.active = nil
	r.mu.Unlock()
	if c == nil {
		return nil, ErrNotRecording
	}
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.close()
	<-c.done
	return c, nil
}

// FileSource captures from an audio file instead of a microphone. It is
// what the terminal client uses, and it keeps the release semantics of a
// real device.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}
