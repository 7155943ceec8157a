// Package audio provides microphone capture for pronunciation practice.
//
// The two abstractions are:
//
//   - [Device] acquires the audio input and returns a [Session].
//   - [Recorder] is a state machine over one capture session that accumulates
//     encoded chunks, tracks elapsed time and input level, and finalizes a
//     playable [Clip] on stop.
//
// Device implementations wrap whatever capture backend the host offers. The
// interfaces are kept narrow so the practice panel stays decoupled from the
// capture backend, and so tests can script a device.
package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy is returned when the input device is already held by an active session.
var ErrBusy = errors.New("audio: input device busy")

// ErrNoDevice is returned when no capture device is available at all.
var ErrNoDevice = errors.New("audio: no capture device")

// Chunk is one encoded audio fragment delivered by a capture session.
type Chunk struct {
	// Data is an encoded fragment in the session's container format.
	Data []byte

	// Level is the normalized instantaneous input level in [0, 1], sampled
	// when the fragment was produced. It feeds live waveform display only.
	Level float64
}

// Session is an open microphone capture session.
type Session interface {
	// Chunks delivers encoded fragments as they become available. The channel
	// is closed when the session ends, either via Close or a device failure.
	Chunks() <-chan Chunk

	// MimeType describes the encoding container of the delivered fragments.
	MimeType() string

	// Close releases the underlying input handle. Safe to call more than once.
	Close() error
}

// Device acquires the audio input and starts a capture session.
type Device interface {
	Open(ctx context.Context) (Session, error)
}

// Exclusive wraps d so that only one session can be open at a time.
// Open returns [ErrBusy] while a previous session has not been closed.
//
// The OS input device is a shared resource; enforcing exclusivity here means
// callers do not have to coordinate among themselves.
func Exclusive(d Device) Device {
	return &exclusiveDevice{inner: d}
}

type exclusiveDevice struct {
	mu     sync.Mutex
	inner  Device
	active bool
}

func (d *exclusiveDevice) Open(ctx context.Context) (Session, error) {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.active = true
	d.mu.Unlock()

	sess, err := d.inner.Open(ctx)
	if err != nil {
		d.mu.Lock()
		d.active = false
		d.mu.Unlock()
		return nil, err
	}
	return &exclusiveSession{Session: sess, release: d.release}, nil
}

func (d *exclusiveDevice) release() {
	d.mu.Lock()
	d.active = false
	d.mu.Unlock()
}

type exclusiveSession struct {
	Session
	once    sync.Once
	release func()
}

func (s *exclusiveSession) Close() error {
	err := s.Session.Close()
	s.once.Do(s.release)
	return err
}
